// Package metrics exports reconciliation counters and serves them over HTTP.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vortex-fintech/go-contacts/contact"
)

const namespace = "contacts"

// Result label values.
const (
	ResultOK         = "ok"
	ResultInvalid    = "invalid"
	ResultTransient  = "transient"
	ResultConstraint = "constraint"
	ResultCanceled   = "canceled"
	ResultError      = "error"
)

// Reconcile counts and times Upsert calls. It implements contact.Observer.
type Reconcile struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ contact.Observer = (*Reconcile)(nil)

func NewReconcile() *Reconcile {
	return &Reconcile{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_total",
			Help:      "Upsert calls by store mutation, matching key and result.",
		}, []string{"op", "matched_by", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_duration_seconds",
			Help:      "Upsert latency by result.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"result"}),
	}
}

// Register adds the collectors to reg. It fits Options.Register.
func (m *Reconcile) Register(reg prometheus.Registerer) error {
	if err := register(reg, m.total); err != nil {
		return err
	}
	return register(reg, m.duration)
}

func (m *Reconcile) ObserveReconcile(ch contact.Change, d time.Duration, err error) {
	op, by := string(ch.Op), string(ch.MatchedBy)
	if op == "" {
		op = string(contact.OpNone)
	}
	if by == "" {
		by = string(contact.MatchNone)
	}
	res := Result(err)
	m.total.WithLabelValues(op, by, res).Inc()
	m.duration.WithLabelValues(res).Observe(d.Seconds())
}

// Result maps an Upsert error onto a result label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, contact.ErrInvalidContact):
		return ResultInvalid
	case contact.IsTransient(err):
		return ResultTransient
	case contact.IsConstraint(err):
		return ResultConstraint
	case errors.Is(err, context.Canceled):
		return ResultCanceled
	default:
		return ResultError
	}
}
