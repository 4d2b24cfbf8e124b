package contact

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrInvalidContact = errors.New("contact: invalid contact")
	ErrNilStore       = errors.New("contact: store is required")
	ErrNilNormalizer  = errors.New("contact: normalizer is required")
	ErrNilReconciler  = errors.New("contact: reconciler is required")
	ErrRowVanished    = errors.New("contact: matched row no longer exists")
	ErrNoReceiver     = errors.New("contact: no receiver in items or user ids")
	ErrUnsupported    = errors.New("contact: operation not supported by store")
)

// StorageKind tells callers whether a storage failure is worth retrying.
type StorageKind string

const (
	// KindTransient covers I/O failures, timeouts, lost connections and
	// aborted transactions. Retrying the same Upsert converges.
	KindTransient StorageKind = "transient"
	// KindConstraint covers uniqueness, schema and corruption failures.
	KindConstraint StorageKind = "constraint"
)

// StorageError wraps a failed store call.
type StorageError struct {
	Kind StorageKind
	Op   string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("contact: %s storage error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("contact: %s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable storage failure. It returns nil for nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Kind: KindTransient, Op: op, Err: err}
}

// Constraint wraps err as a non-retryable storage failure. It returns nil for nil.
func Constraint(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Kind: KindConstraint, Op: op, Err: err}
}

// AsStorageError keeps an already classified error and treats anything else
// as transient. Context cancellation is returned as is.
func AsStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return Transient(op, err)
}

func IsTransient(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Kind == KindTransient
}

func IsConstraint(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Kind == KindConstraint
}

// ValidationError lists per-field violations of an incoming record.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+e.Fields[k])
	}
	return ErrInvalidContact.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidContact }

func invalid(field, reason string) error {
	return &ValidationError{Fields: map[string]string{field: reason}}
}
