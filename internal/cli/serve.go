package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/vortex-fintech/go-contacts/metrics"
)

const metricsShutdownTimeout = 2 * time.Second

// serveMetrics starts the metrics endpoint when addr is set. The returned
// func stops it and is safe to call when nothing was started.
func (a *app) serveMetrics(ctx context.Context, addr string) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}
	h, _, err := metrics.New(metrics.Options{Register: a.metrics.Register, Health: a.health})
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.ErrorwCtx(ctx, "metrics server stopped", "error", err)
		}
	}()
	a.log.InfowCtx(ctx, "metrics listening", "addr", ln.Addr().String())

	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}, nil
}
