// Package cli implements the contactsync command tree.
package cli

import (
	"fmt"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
)

const envPrefix = "CONTACTSYNC_"

// Backend names accepted by --backend.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

var (
	ValidBackends = []string{BackendMemory, BackendSQLite, BackendPostgres, BackendRedis}
	ValidFormats  = []string{"text", "json"}
)

// RootOptions holds flags shared by every command. Each flag falls back to a
// CONTACTSYNC_* environment variable.
type RootOptions struct {
	Backend     string
	SQLitePath  string
	PostgresURL string
	RedisURL    string
	RedisPrefix string
	Region      string
	Env         string
	LogLevel    string
	Format      string
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "contactsync",
		Short: "Reconcile contact records into a store",
		Long: `contactsync upserts contact records into one of the supported stores,
matching each record by phone number first and by user id second.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidBackends, opts.Backend) {
				return fmt.Errorf("invalid backend %q: must be one of %v", opts.Backend, ValidBackends)
			}
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.Backend, "backend", env("BACKEND", BackendMemory), "store backend (memory|sqlite|postgres|redis)")
	f.StringVar(&opts.SQLitePath, "sqlite-path", env("SQLITE_PATH", "contacts.db"), "SQLite database file")
	f.StringVar(&opts.PostgresURL, "postgres-url", env("POSTGRES_URL", ""), "postgres:// connection URL")
	f.StringVar(&opts.RedisURL, "redis-url", env("REDIS_URL", "redis://localhost:6379/0"), "redis:// connection URL")
	f.StringVar(&opts.RedisPrefix, "redis-prefix", env("REDIS_PREFIX", ""), "Redis key prefix")
	f.StringVar(&opts.Region, "region", env("REGION", "US"), "default region for numbers without a country code")
	f.StringVar(&opts.Env, "env", env("ENV", "production"), "log profile (production|development|debug)")
	f.StringVar(&opts.LogLevel, "log-level", env("LOG_LEVEL", ""), "minimum log level, overrides the profile default")
	f.StringVar(&opts.Format, "format", env("FORMAT", "text"), "output format (text|json)")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewListCommand(opts))

	return cmd
}

func env(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	n, err := strconv.Atoi(env(key, ""))
	if err != nil {
		return def
	}
	return n
}
