package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Runner is satisfied by *pgxpool.Pool and pgx.Tx.
type Runner interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ctxKeyRunner struct{}

// ContextWithRunner binds r to ctx so Conn picks it up deeper in the stack.
func ContextWithRunner(ctx context.Context, r Runner) context.Context {
	return context.WithValue(ctx, ctxKeyRunner{}, r)
}

// RunnerFromContext returns the runner bound by InTx, if any.
func RunnerFromContext(ctx context.Context) (Runner, bool) {
	r, ok := ctx.Value(ctxKeyRunner{}).(Runner)
	return r, ok && r != nil
}

// Conn returns the transaction bound to ctx, or the pool outside one.
func (c *Client) Conn(ctx context.Context) Runner {
	if r, ok := RunnerFromContext(ctx); ok {
		return r
	}
	return c.Pool
}
