package postgres

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	const dsn = "postgres://u:p@h:5432/db"
	tests := []struct {
		name string
		cfg  Config
		err  error
	}{
		{name: "empty url", cfg: Config{}, err: errEmptyURL},
		{name: "blank url", cfg: Config{URL: "  "}, err: errEmptyURL},
		{name: "wrong scheme", cfg: Config{URL: "mysql://u:p@h/db"}, err: errBadScheme},
		{name: "negative max", cfg: Config{URL: dsn, MaxConns: -1}, err: errNegativeMaxConns},
		{name: "negative min", cfg: Config{URL: dsn, MinConns: -1}, err: errNegativeMinConns},
		{name: "min exceeds max", cfg: Config{URL: dsn, MaxConns: 2, MinConns: 3}, err: errMinConnsExceedsMaxConns},
		{name: "ok", cfg: Config{URL: dsn + "?sslmode=disable", MaxConns: 8, MinConns: 2}},
		{name: "keyword dsn", cfg: Config{URL: "host=h user=u dbname=db"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.validate()
			if tc.err == nil {
				require.NoError(t, err)
				return
			}
			if !errors.Is(err, tc.err) {
				t.Fatalf("expected %v, got %v", tc.err, err)
			}
		})
	}
}

func TestConfigDSN_MergesParams(t *testing.T) {
	t.Parallel()

	cfg := Config{
		URL:    "postgres://u:p@h:5432/db?sslmode=require",
		Params: map[string]string{"sslmode": "disable", "search_path": "contacts", "skip": ""},
	}
	u, err := url.Parse(cfg.dsn())
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "disable", q.Get("sslmode"))
	assert.Equal(t, "contacts", q.Get("search_path"))
	assert.False(t, q.Has("skip"))
}

func TestApplyPoolOptions(t *testing.T) {
	t.Parallel()

	pcfg, err := pgxpool.ParseConfig("postgres://u:p@h:5432/db")
	require.NoError(t, err)

	applyPoolOptions(pcfg, Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		ApplicationName: "contactsync",
	})
	assert.EqualValues(t, 10, pcfg.MaxConns)
	assert.EqualValues(t, 2, pcfg.MinConns)
	assert.Equal(t, time.Hour, pcfg.MaxConnLifetime)
	assert.Equal(t, "contactsync", pcfg.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "UTC", pcfg.ConnConfig.RuntimeParams["TimeZone"])
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "go-contacts", Config{}.applicationName())
	assert.Equal(t, 5*time.Second, Config{}.pingTimeout())
	assert.Equal(t, time.Second, Config{PingTimeout: time.Second}.pingTimeout())
}

func TestOpen_InvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), Config{URL: "mysql://db"})
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.ErrorIs(t, err, errBadScheme)
}
