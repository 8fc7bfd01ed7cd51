// Package cli implements the ratecardctl command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ratecard-service/internal/apiclient"
	"ratecard-service/internal/cart"
)

type runtime struct {
	apiURL   string
	token    string
	cartDB   string
	redisURL string
	asJSON   bool

	// storage overrides the sqlite/redis cart store.
	storage cart.Storage
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRootCmd() *cobra.Command { return newRootCmd(&runtime{}) }

func newRootCmd(rt *runtime) *cobra.Command {
	root := &cobra.Command{
		Use:          "ratecardctl",
		Short:        "Price airtime packages, edit rate-card tables and book from a local cart",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&rt.apiURL, "api", orDefault(rt.apiURL, envOr("RATECARD_API", "http://localhost:8080")), "Rate-card API base URL")
	flags.StringVar(&rt.token, "token", orDefault(rt.token, os.Getenv("RATECARD_TOKEN")), "Bearer token for operator commands")
	flags.StringVar(&rt.cartDB, "cart-db", rt.cartDB, "Cart database path (default ~/.config/ratecard/cart.db)")
	flags.StringVar(&rt.redisURL, "redis-url", orDefault(rt.redisURL, os.Getenv("RATECARD_REDIS_URL")), "Keep the cart in redis instead of sqlite")
	flags.BoolVar(&rt.asJSON, "json", rt.asJSON, "Output JSON")

	root.AddCommand(quoteCmd(rt))
	root.AddCommand(tableCmd(rt))
	root.AddCommand(cartCmd(rt))
	return root
}

func (rt *runtime) client() *apiclient.Client {
	return apiclient.New(rt.apiURL, rt.token)
}

// openCart loads the cart from the configured storage. The returned func
// releases the storage.
func (rt *runtime) openCart(ctx context.Context) (*cart.Cart, func(), error) {
	if rt.storage != nil {
		c, err := cart.Load(ctx, rt.storage)
		return c, func() {}, err
	}

	var (
		s       cart.Storage
		closeFn func() error
	)
	if rt.redisURL != "" {
		r, err := cart.OpenRedis(ctx, rt.redisURL)
		if err != nil {
			return nil, nil, err
		}
		s, closeFn = r, r.Close
	} else {
		path := rt.cartDB
		if path == "" {
			p, err := cart.DefaultPath()
			if err != nil {
				return nil, nil, err
			}
			path = p
		}
		db, err := cart.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		s, closeFn = db, db.Close
	}

	c, err := cart.Load(ctx, s)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}
	return c, func() { _ = closeFn() }, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// orDefault keeps a value already set on the runtime as the flag default.
func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func exactArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("usage: %s", usage)
		}
		return nil
	}
}
