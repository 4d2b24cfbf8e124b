package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap/zapcore"

	"github.com/vortex-fintech/go-contacts/contact"
	"github.com/vortex-fintech/go-contacts/contact/memstore"
	"github.com/vortex-fintech/go-contacts/contact/pgstore"
	"github.com/vortex-fintech/go-contacts/contact/redisstore"
	"github.com/vortex-fintech/go-contacts/contact/sqlitestore"
	"github.com/vortex-fintech/go-contacts/data/postgres"
	redisdata "github.com/vortex-fintech/go-contacts/data/redis"
	"github.com/vortex-fintech/go-contacts/domain"
	"github.com/vortex-fintech/go-contacts/logger"
	"github.com/vortex-fintech/go-contacts/metrics"
	"github.com/vortex-fintech/go-contacts/phone"
	"github.com/vortex-fintech/go-contacts/retry"
)

// eventBacklog caps change events held in memory during one run.
const eventBacklog = 100_000

// app is everything a command needs once flags are parsed.
type app struct {
	log     *logger.Logger
	svc     *contact.Service
	metrics *metrics.Reconcile
	events  *domain.EventBuffer
	health  func(ctx context.Context) error
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.log.SafeSync()
}

func newApp(ctx context.Context, opts *RootOptions) (*app, error) {
	var logOpts []logger.Option
	if opts.LogLevel != "" {
		lvl, err := zapcore.ParseLevel(opts.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.LogLevel, err)
		}
		logOpts = append(logOpts, logger.WithLevel(lvl))
	}
	log, err := logger.New("contactsync", opts.Env, logOpts...)
	if err != nil {
		return nil, err
	}
	a := &app{log: log, metrics: metrics.NewReconcile(), events: domain.NewEventBuffer(eventBacklog)}

	store, err := a.openStore(ctx, opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	norm, err := phone.New(phone.Config{DefaultRegion: opts.Region})
	if err != nil {
		a.Close()
		return nil, err
	}
	rec, err := contact.NewReconciler(store, norm,
		contact.WithLogger(log),
		contact.WithObserver(a.metrics),
		contact.WithNumberMask(phone.Mask),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.svc, err = contact.NewService(rec,
		contact.WithServiceLogger(log),
		contact.WithEventBuffer(a.events),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context, opts *RootOptions) (contact.Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return memstore.New(), nil

	case BackendSQLite:
		s, err := sqlitestore.Open(ctx, sqlitestore.Options{Path: opts.SQLitePath})
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", opts.SQLitePath, err)
		}
		a.health = s.Ping
		a.closers = append(a.closers, func() { _ = s.Close() })
		return s, nil

	case BackendPostgres:
		if strings.TrimSpace(opts.PostgresURL) == "" {
			return nil, errors.New("--postgres-url is required for the postgres backend")
		}
		var c *postgres.Client
		err := retry.RetryInit(ctx, func() error {
			var err error
			c, err = postgres.Open(ctx, postgres.Config{URL: opts.PostgresURL})
			if errors.Is(err, postgres.ErrInvalidConfig) {
				return retry.Permanent(err)
			}
			if err != nil {
				a.log.WarnwCtx(ctx, "postgres not ready", "error", err)
			}
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.health = c.Ping
		a.closers = append(a.closers, c.Close)

		s := pgstore.New(c)
		if err := s.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return s, nil

	case BackendRedis:
		var rdb goredis.UniversalClient
		err := retry.RetryInit(ctx, func() error {
			var err error
			rdb, err = redisdata.Open(ctx, redisdata.Config{URL: opts.RedisURL})
			if errors.Is(err, redisdata.ErrInvalidConfig) {
				return retry.Permanent(err)
			}
			if err != nil {
				a.log.WarnwCtx(ctx, "redis not ready", "error", err)
			}
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("open redis: %w", err)
		}
		a.health = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		s, err := redisstore.New(rdb, redisstore.Options{Prefix: opts.RedisPrefix})
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", opts.Backend)
	}
}
