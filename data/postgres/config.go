package postgres

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

const defaultApplicationName = "go-contacts"

// Config describes a pgx pool. URL is a postgres:// DSN; Params are merged
// into its query string.
type Config struct {
	URL    string
	Params map[string]string

	// ApplicationName shows up in pg_stat_activity. Defaults to go-contacts.
	ApplicationName string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration

	// PingTimeout bounds the connectivity check in Open. Defaults to 5s.
	PingTimeout time.Duration
}

var (
	errEmptyURL                = errors.New("postgres: empty URL")
	errBadScheme               = errors.New("postgres: URL scheme must be postgres or postgresql")
	errNegativeMaxConns        = errors.New("postgres: max conns must be >= 0")
	errNegativeMinConns        = errors.New("postgres: min conns must be >= 0")
	errMinConnsExceedsMaxConns = errors.New("postgres: min conns must be <= max conns")
)

func (c Config) validate() error {
	raw := strings.TrimSpace(c.URL)
	if raw == "" {
		return errEmptyURL
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return errBadScheme
	}
	if c.MaxConns < 0 {
		return errNegativeMaxConns
	}
	if c.MinConns < 0 {
		return errNegativeMinConns
	}
	if c.MaxConns > 0 && c.MinConns > c.MaxConns {
		return errMinConnsExceedsMaxConns
	}
	return nil
}

// dsn applies Params to URL. Empty values are skipped.
func (c Config) dsn() string {
	base := strings.TrimSpace(c.URL)
	if len(c.Params) == 0 {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	for k, v := range c.Params {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c Config) applicationName() string {
	if n := strings.TrimSpace(c.ApplicationName); n != "" {
		return n
	}
	return defaultApplicationName
}

func (c Config) pingTimeout() time.Duration {
	if c.PingTimeout > 0 {
		return c.PingTimeout
	}
	return 5 * time.Second
}
