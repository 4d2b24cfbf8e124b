package redis

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewUniversal builds the client. Replaced in tests.
var NewUniversal = func(opt *redis.UniversalOptions) redis.UniversalClient {
	return redis.NewUniversalClient(opt)
}

// ErrInvalidConfig wraps every error Open reports before dialing.
var ErrInvalidConfig = errors.New("redis: invalid config")

// Open builds a client from cfg and pings it before returning.
func Open(ctx context.Context, cfg Config) (redis.UniversalClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	opt, err := universalOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	rdb := NewUniversal(opt)

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func universalOptions(cfg Config) (*redis.UniversalOptions, error) {
	opt := &redis.UniversalOptions{
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	}

	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		u, err := redis.ParseURL(raw)
		if err != nil {
			return nil, err
		}
		opt.Addrs = []string{u.Addr}
		opt.DB = u.DB
		opt.Username = u.Username
		opt.Password = u.Password
		opt.TLSConfig = u.TLSConfig
		return opt, nil
	}

	opt.Addrs = cfg.addrs()
	opt.MasterName = strings.TrimSpace(cfg.MasterName)
	opt.DB = cfg.DB
	opt.Username = cfg.Username
	opt.Password = cfg.Password
	if cfg.TLSEnabled {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opt, nil
}
