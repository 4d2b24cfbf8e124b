package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/vortex-fintech/go-contacts/errors"
)

// Options configures the /metrics and /health endpoints.
type Options struct {
	Registry *prometheus.Registry
	// Register adds service collectors to the registry.
	Register func(reg prometheus.Registerer) error
	// Health reports readiness. Nil always reports healthy.
	Health        func(ctx context.Context) error
	MetricsPath   string
	HealthPath    string
	HealthTimeout time.Duration
}

func (o *Options) defaults() {
	if o.MetricsPath == "" {
		o.MetricsPath = "/metrics"
	}
	if o.HealthPath == "" {
		o.HealthPath = "/health"
	}
	if o.HealthTimeout <= 0 {
		o.HealthTimeout = 500 * time.Millisecond
	}
	if o.Registry == nil {
		o.Registry = prometheus.NewRegistry()
	}
}

// register adds c to reg, tolerating a collector that is already there.
func register(reg prometheus.Registerer, c prometheus.Collector) error {
	err := reg.Register(c)
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return nil
	}
	return err
}

// New builds a mux serving /metrics and /health and returns it with the
// registry it exports.
func New(opts Options) (http.Handler, *prometheus.Registry, error) {
	opts.defaults()
	reg := opts.Registry

	for _, c := range []prometheus.Collector{
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	} {
		if err := register(reg, c); err != nil {
			return nil, nil, err
		}
	}
	if opts.Register != nil {
		if err := opts.Register(reg); err != nil {
			return nil, nil, err
		}
	}

	mux := http.NewServeMux()
	mux.Handle(opts.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle(opts.HealthPath, healthHandler(opts.Health, opts.HealthTimeout))
	return mux, reg, nil
}

// healthHandler runs check under timeout. A check that ignores its context
// still answers within timeout. Failures render as Unavailable responses.
func healthHandler(check func(ctx context.Context) error, timeout time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check == nil {
			writeOK(w)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- check(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				apperrors.Unavailable().WithReason("unhealthy").WithDetail("error", err.Error()).ToHTTP(w)
				return
			}
			writeOK(w)
		case <-ctx.Done():
			apperrors.Unavailable().WithReason("health_timeout").ToHTTP(w)
		}
	})
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}` + "\n"))
}
