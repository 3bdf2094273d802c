package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// AssetSeed describes one asset to register at startup.
type AssetSeed struct {
	Symbol         string `yaml:"symbol"`
	Name           string `yaml:"name"`
	Scale          int32  `yaml:"scale"`
	ReferencePrice string `yaml:"reference_price,omitempty"`
}

// Price parses the seed's reference price; an empty value is zero.
func (s AssetSeed) Price() (decimal.Decimal, error) {
	if strings.TrimSpace(s.ReferencePrice) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.TrimSpace(s.ReferencePrice))
}

type assetsFile struct {
	Assets []AssetSeed `yaml:"assets"`
}

// DefaultAssets is used when no assets file is configured.
func DefaultAssets(quote string) []AssetSeed {
	return []AssetSeed{
		{Symbol: quote, Name: quote, Scale: 2, ReferencePrice: "1"},
	}
}

// LoadAssets reads an assets seed file:
//
//	assets:
//	  - symbol: USD
//	    name: US Dollar
//	    scale: 2
//	    reference_price: "1"
func LoadAssets(path string) ([]AssetSeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read assets file: %w", err)
	}

	var f assetsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse assets file: %w", err)
	}

	seen := make(map[string]bool, len(f.Assets))
	for i, a := range f.Assets {
		symbol := strings.ToUpper(strings.TrimSpace(a.Symbol))
		if symbol == "" {
			return nil, fmt.Errorf("assets[%d]: symbol is required", i)
		}
		if seen[symbol] {
			return nil, fmt.Errorf("assets[%d]: duplicate symbol %s", i, symbol)
		}
		seen[symbol] = true
		if _, err := a.Price(); err != nil {
			return nil, fmt.Errorf("assets[%d]: invalid reference_price %q: %w", i, a.ReferencePrice, err)
		}
	}

	return f.Assets, nil
}
