package metrics_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortex-fintech/go-contacts/contact"
	"github.com/vortex-fintech/go-contacts/metrics"
)

func TestHandler_Defaults(t *testing.T) {
	rec := metrics.NewReconcile()
	h, _, err := metrics.New(metrics.Options{Register: rec.Register})
	require.NoError(t, err)

	rec.ObserveReconcile(contact.Change{Op: contact.OpInserted, MatchedBy: contact.MatchNone}, time.Millisecond, nil)

	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "# TYPE contacts_reconcile_total counter")
	require.Contains(t, string(body), `contacts_reconcile_total{matched_by="none",op="inserted",result="ok"} 1`)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandler_Health(t *testing.T) {
	tests := []struct {
		name   string
		health func(ctx context.Context) error
	}{
		{"failing", func(context.Context) error { return errors.New("db down") }},
		{"slow", func(ctx context.Context) error { <-ctx.Done(); time.Sleep(10 * time.Millisecond); return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, err := metrics.New(metrics.Options{Health: tt.health, HealthTimeout: 50 * time.Millisecond})
			require.NoError(t, err)
			srv := httptest.NewServer(h)
			defer srv.Close()

			resp, err := http.Get(srv.URL + "/health")
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		})
	}
}

func TestHandler_RegisterError(t *testing.T) {
	_, _, err := metrics.New(metrics.Options{
		Register: func(prometheus.Registerer) error { return errors.New("nope") },
	})
	require.Error(t, err)
}

func TestReconcile_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewReconcile()
	require.NoError(t, rec.Register(reg))
	require.NoError(t, rec.Register(reg))
}

func TestResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, metrics.ResultOK},
		{&contact.ValidationError{Fields: map[string]string{"user_id": "required"}}, metrics.ResultInvalid},
		{contact.Transient("insert", errors.New("io")), metrics.ResultTransient},
		{fmt.Errorf("upsert: %w", contact.Constraint("insert", errors.New("dup"))), metrics.ResultConstraint},
		{context.Canceled, metrics.ResultCanceled},
		{errors.New("other"), metrics.ResultError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, metrics.Result(tt.err), "%v", tt.err)
	}
}

func TestReconcile_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewReconcile()
	require.NoError(t, rec.Register(reg))

	rec.ObserveReconcile(contact.Change{Op: contact.OpUpdated, MatchedBy: contact.MatchByPhone}, time.Millisecond, nil)
	rec.ObserveReconcile(contact.Change{Op: contact.OpUpdated, MatchedBy: contact.MatchByPhone}, time.Millisecond, nil)
	rec.ObserveReconcile(contact.Change{}, time.Millisecond, contact.Transient("find", errors.New("io")))

	n, err := testutil.GatherAndCount(reg, "contacts_reconcile_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = testutil.GatherAndCount(reg, "contacts_reconcile_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestHandler_HealthBody(t *testing.T) {
	h, _, err := metrics.New(metrics.Options{Health: func(context.Context) error { return errors.New("db down") }})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":"Unavailable","reason":"unhealthy","message":"Service unavailable","details":{"error":"db down"}}`, rr.Body.String())

	ok, _, err := metrics.New(metrics.Options{})
	require.NoError(t, err)
	rr = httptest.NewRecorder()
	ok.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}
