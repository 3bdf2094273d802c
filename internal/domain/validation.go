package domain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation constants
const (
	MaxAmount      = "1000000000000" // 1 trillion units of any asset
	MaxUserIDLen   = 64
	MaxFailureText = 512
	MaxAssetScale  = 18
)

var (
	assetSymbolRegex = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
	maxAmount        = decimal.RequireFromString(MaxAmount)
)

// NormalizeAsset upper-cases and trims an asset symbol.
func NormalizeAsset(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ValidateAssetSymbol validates the shape of an asset symbol. Whether the
// asset is recognized is decided by the asset registry.
func ValidateAssetSymbol(symbol string) error {
	if !assetSymbolRegex.MatchString(symbol) {
		return fmt.Errorf("%w: %q is not a valid asset symbol", ErrUnknownAsset, symbol)
	}
	return nil
}

// ValidateUserID validates a caller-supplied user identifier.
func ValidateUserID(userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrMissingUser
	}
	if len(userID) > MaxUserIDLen {
		return fmt.Errorf("%w: user id exceeds %d characters", ErrInvalidAmount, MaxUserIDLen)
	}
	return nil
}

// ValidateAmount validates a strictly positive amount, price or quantity.
func ValidateAmount(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: must be positive, got %s", ErrInvalidAmount, amount)
	}
	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("%w: maximum is %s", ErrInvalidAmount, MaxAmount)
	}
	return nil
}

// ValidateScale rejects amounts with more decimal places than the asset allows.
func ValidateScale(amount decimal.Decimal, scale int32) error {
	if !amount.Equal(amount.Truncate(scale)) {
		return fmt.Errorf("%w: at most %d decimal places allowed", ErrInvalidAmount, scale)
	}
	return nil
}

// TruncateReason keeps failure reasons within the stored column width.
func TruncateReason(reason string) string {
	if len(reason) <= MaxFailureText {
		return reason
	}
	return reason[:MaxFailureText]
}

// ValidatePagination validates and limits pagination parameters
func ValidatePagination(limit, offset int) (int, int, error) {
	const MaxPageSize = 1000
	const DefaultPageSize = 50

	if limit <= 0 {
		limit = DefaultPageSize
	}

	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if offset < 0 {
		offset = 0
	}

	return limit, offset, nil
}
