package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iho/goexchange/internal/adapter/http/dto"
	"github.com/iho/goexchange/internal/infrastructure/auth"
	"github.com/iho/goexchange/internal/infrastructure/logger"
	"github.com/iho/goexchange/internal/infrastructure/postgres"
)

type options struct {
	baseURL        string
	userID         string
	token          string
	idempotencyKey string
	timeout        time.Duration
}

func (o *options) client() *apiClient {
	c := newAPIClient(o.baseURL, o.userID, o.token, o.timeout)
	c.idempotencyKey = o.idempotencyKey
	return c
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "goexchange-cli",
		Short:         "GoExchange CLI tool",
		Long:          `A command line interface for interacting with the GoExchange API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", "http://localhost:8080", "Base URL of the GoExchange API")
	rootCmd.PersistentFlags().StringVar(&opts.userID, "user", "", "User to act as (sent as X-User-ID when no token is given)")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", "", "Bearer token")
	rootCmd.PersistentFlags().StringVar(&opts.idempotencyKey, "idempotency-key", "", "Idempotency-Key for mutating requests")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(
		ledgerCmd(opts),
		assetsCmd(opts),
		bookCmd(opts),
		balanceCmd(opts),
		accountsCmd(opts),
		depositCmd(opts),
		withdrawCmd(opts),
		transferCmd(opts),
		transactionsCmd(opts),
		orderCmd(opts),
		tokenCmd(),
		migrateCmd(),
	)

	return rootCmd
}

// runRequest performs one API call and prints its JSON answer.
func runRequest(cmd *cobra.Command, opts *options, method, path string, body any) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	data, err := opts.client().do(ctx, method, path, body)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			_ = printJSON(cmd.ErrOrStderr(), data)
		}
		return err
	}

	return printJSON(cmd.OutOrStdout(), data)
}

func ledgerCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "consistency",
		Short: "Check ledger consistency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkConsistency(cmd, opts)
		},
	}, &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile every account against its entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, http.MethodGet, "/api/v1/ledger/reconciliation", nil)
		},
	})

	return cmd
}

func checkConsistency(cmd *cobra.Command, opts *options) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	data, err := opts.client().do(ctx, http.MethodGet, "/api/v1/ledger/consistency", nil)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			fmt.Fprintf(out, "Consistency check FAILED (Status: %d)\nResponse: %s\n", apiErr.Status, apiErr.Body)
		}
		return err
	}

	var result dto.ConsistencyResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Fprintf(out, "Consistency check PASSED\n")
	fmt.Fprintf(out, "Consistent: %v\n", result.Consistent)
	fmt.Fprintf(out, "Status: %s\n", result.Status)
	return nil
}

func assetsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "List recognized assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, http.MethodGet, "/api/v1/assets", nil)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "price <asset>",
		Short: "Show an asset's reference price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, http.MethodGet, "/api/v1/assets/"+url.PathEscape(args[0])+"/price", nil)
		},
	})

	return cmd
}

func bookCmd(opts *options) *cobra.Command {
	var levels int

	cmd := &cobra.Command{
		Use:   "book <asset>",
		Short: "Show order book depth",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/v1/books/%s?levels=%d", url.PathEscape(args[0]), levels)
			return runRequest(cmd, opts, http.MethodGet, path, nil)
		},
	}
	cmd.Flags().IntVar(&levels, "levels", 10, "Price levels per side")

	return cmd
}

func balanceCmd(opts *options) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "balance <asset>",
		Short: "Show the caller's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/balances/" + url.PathEscape(args[0])
			if at != "" {
				if _, err := time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--at must be RFC3339: %w", err)
				}
				path += "?at=" + url.QueryEscape(at)
			}
			return runRequest(cmd, opts, http.MethodGet, path, nil)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Historical balance at an RFC3339 time")

	return cmd
}

func accountsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List the caller's wallets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, http.MethodGet, "/api/v1/accounts", nil)
		},
	}

	var limit int
	entries := &cobra.Command{
		Use:   "entries <asset>",
		Short: "List a wallet's ledger entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/v1/accounts/%s/entries?limit=%d", url.PathEscape(args[0]), limit)
			return runRequest(cmd, opts, http.MethodGet, path, nil)
		},
	}
	entries.Flags().IntVar(&limit, "limit", 20, "Maximum entries")

	cmd.AddCommand(entries, &cobra.Command{
		Use:   "archive",
		Short: "Archive all of the caller's wallets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, http.MethodPost, "/api/v1/accounts/archive", nil)
		},
	})

	return cmd
}

func depositCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <asset> <amount>",
		Short: "Credit the caller",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, http.MethodPost, "/api/v1/deposits", dto.DepositRequest{Asset: args[0], Amount: args[1]})
		},
	}
}

func withdrawCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <asset> <amount>",
		Short: "Debit the caller",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, http.MethodPost, "/api/v1/withdrawals", dto.WithdrawalRequest{Asset: args[0], Amount: args[1]})
		},
	}
}

func transferCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "transfer <to-user> <asset> <amount>",
		Short: "Move funds to another user",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, http.MethodPost, "/api/v1/transfers",
				dto.TransferRequest{ToUserID: args[0], Asset: args[1], Amount: args[2]})
		},
	}
}

func transactionsCmd(opts *options) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "transactions [id]",
		Short: "List the caller's journal records, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runRequest(cmd, opts, http.MethodGet, "/api/v1/transactions/"+url.PathEscape(args[0]), nil)
			}
			return runRequest(cmd, opts, http.MethodGet, "/api/v1/transactions?limit="+strconv.Itoa(limit), nil)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum records")

	return cmd
}

func orderCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Order operations",
	}

	submit := &cobra.Command{
		Use:   "submit <buy|sell> <asset> <quantity> <price>",
		Short: "Submit a limit order",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, http.MethodPost, "/api/v1/orders", dto.SubmitOrderRequest{
				Side:     args[0],
				Asset:    args[1],
				Quantity: args[2],
				Price:    args[3],
			})
		},
	}

	cancel := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a live order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, http.MethodDelete, "/api/v1/orders/"+url.PathEscape(args[0]), nil)
		},
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, http.MethodGet, "/api/v1/orders/"+url.PathEscape(args[0]), nil)
		},
	}

	fills := &cobra.Command{
		Use:   "fills <id>",
		Short: "List an order's settlements",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, http.MethodGet, "/api/v1/orders/"+url.PathEscape(args[0])+"/settlements", nil)
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List the caller's orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRequest(cmd, opts, http.MethodGet, "/api/v1/orders", nil)
		},
	}

	cmd.AddCommand(submit, cancel, get, fills, list)
	return cmd
}

func tokenCmd() *cobra.Command {
	var (
		secret string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <user>",
		Short: "Issue a bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return errors.New("--secret is required")
			}
			token, err := auth.NewJWTManager(secret, ttl).Generate(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "JWT signing secret (JWT_SECRET of the server)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")

	return cmd
}

func migrateCmd() *cobra.Command {
	var databaseURL, path string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	cmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL")
	cmd.PersistentFlags().StringVar(&path, "path", "migrations", "Migrations directory")

	run := func(fn func(string, string, zerolog.Logger) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return errors.New("--database-url is required")
			}
			return fn(databaseURL, path, cliLogger(cmd.ErrOrStderr()))
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  run(postgres.RunMigrations),
	}, &cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE:  run(postgres.RunMigrationsDown),
	})

	return cmd
}

func cliLogger(w io.Writer) zerolog.Logger {
	return logger.New(logger.Config{Level: "info", Format: "console", Output: w})
}
