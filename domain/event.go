package domain

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Event interface {
	EventName() string
	OccurredAt() time.Time
	EventID() uuid.UUID
}

// Sentinel error for errors.Is checks.
var ErrInvalidEvent = errors.New("invalid event")

var (
	ErrInvalidEventName     = errors.New("invalid event name")
	ErrInvalidEventProducer = errors.New("invalid event producer")
	ErrInvalidEventTime     = errors.New("invalid event time")
	ErrInvalidEventID       = errors.New("invalid event id")
)

// BaseEvent carries common event metadata and no business payload.
type BaseEvent struct {
	Name     string
	At       time.Time
	ID       uuid.UUID
	Producer string

	// Non-PII metadata.
	Meta map[string]string
}

var _ Event = BaseEvent{}

// NewBaseEvent stamps a UTC time and a fresh id.
func NewBaseEvent(name, producer string, at time.Time) (BaseEvent, error) {
	e := BaseEvent{
		Name:     strings.TrimSpace(name),
		At:       at.UTC(),
		ID:       uuid.New(),
		Producer: strings.TrimSpace(producer),
	}
	if err := e.Validate(); err != nil {
		return BaseEvent{}, err
	}
	return e, nil
}

// WithMeta uses copy-on-write to avoid hidden map sharing.
func (e BaseEvent) WithMeta(k, v string) BaseEvent {
	k = strings.TrimSpace(k)
	if k == "" {
		return e
	}
	m := make(map[string]string, len(e.Meta)+1)
	maps.Copy(m, e.Meta)
	m[k] = strings.TrimSpace(v)
	e.Meta = m
	return e
}

func (e BaseEvent) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, ErrInvalidEventName)
	}
	if e.Producer == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, ErrInvalidEventProducer)
	}
	if e.At.IsZero() || e.At.Location() != time.UTC {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, ErrInvalidEventTime)
	}
	if e.ID == uuid.Nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, ErrInvalidEventID)
	}
	return nil
}

func (e BaseEvent) EventName() string     { return e.Name }
func (e BaseEvent) OccurredAt() time.Time { return e.At }
func (e BaseEvent) EventID() uuid.UUID    { return e.ID }
