package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TxManager runs fn inside one transaction. Code deeper in the stack reaches
// the transaction through Client.Conn(ctx).
type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ TxManager = (*Client)(nil)

// TxOptions tunes a transaction opened by InTxOpts.
type TxOptions struct {
	Iso pgx.TxIsoLevel // default: read committed

	// Applied with SET LOCAL for the transaction only.
	LockTimeout      time.Duration
	StatementTimeout time.Duration
}

// beginner is the part of *pgxpool.Pool InTxOpts needs.
type beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// InTx runs fn in a read committed transaction.
func (c *Client) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.InTxOpts(ctx, TxOptions{}, fn)
}

// InTxOpts runs fn in a transaction, committing when fn returns nil. When
// ctx already carries a transaction fn joins it and opts are ignored.
func (c *Client) InTxOpts(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	return inTx(ctx, c.Pool, opts, fn)
}

func inTx(ctx context.Context, db beginner, opts TxOptions, fn func(ctx context.Context) error) (err error) {
	if _, ok := RunnerFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTx(ctx, pgx.TxOptions{IsoLevel: opts.Iso, AccessMode: pgx.ReadWrite})
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			return
		}
		err = tx.Commit(ctx)
	}()

	if err = setLocal(ctx, tx, "lock_timeout", opts.LockTimeout); err != nil {
		return err
	}
	if err = setLocal(ctx, tx, "statement_timeout", opts.StatementTimeout); err != nil {
		return err
	}
	return fn(ContextWithRunner(ctx, tx))
}

func setLocal(ctx context.Context, tx pgx.Tx, name string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	_, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL %s = %d", name, d.Milliseconds()))
	return err
}
