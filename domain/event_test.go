package domain

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 7200))
	e, err := NewBaseEvent(" contact.created ", "contacts", at)
	require.NoError(t, err)
	assert.Equal(t, "contact.created", e.EventName())
	assert.Equal(t, time.UTC, e.OccurredAt().Location())
	assert.NotEqual(t, uuid.Nil, e.EventID())
}

func TestNewBaseEvent_Invalid(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name     string
		evName   string
		producer string
		at       time.Time
		want     error
	}{
		{name: "name", evName: " ", producer: "p", at: now, want: ErrInvalidEventName},
		{name: "producer", evName: "n", producer: "", at: now, want: ErrInvalidEventProducer},
		{name: "time", evName: "n", producer: "p", want: ErrInvalidEventTime},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewBaseEvent(tc.evName, tc.producer, tc.at)
			require.True(t, errors.Is(err, ErrInvalidEvent))
			require.True(t, errors.Is(err, tc.want))
		})
	}
}

func TestWithMetaCopyOnWrite(t *testing.T) {
	t.Parallel()

	e, err := NewBaseEvent("n", "p", time.Now())
	require.NoError(t, err)
	a := e.WithMeta("matched_by", "phone")
	b := a.WithMeta("op", "updated")
	assert.Len(t, a.Meta, 1)
	assert.Len(t, b.Meta, 2)
	assert.Equal(t, a, a.WithMeta(" ", "ignored"))
}

func TestEventBuffer(t *testing.T) {
	t.Parallel()

	var b EventBuffer
	b.Record(nil)
	var nilPtr *BaseEvent
	b.Record(nilPtr)
	require.Equal(t, 0, b.Len())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, _ := NewBaseEvent("n", "p", time.Now())
			b.Record(e)
		}()
	}
	wg.Wait()

	require.Len(t, b.Peek(), 10)
	require.Len(t, b.Pull(), 10)
	require.Nil(t, b.Pull())
	require.Equal(t, 0, b.Len())
}

func TestEventBuffer_Limit(t *testing.T) {
	t.Parallel()

	b := NewEventBuffer(2)
	for _, name := range []string{"a", "b", "c"} {
		e, err := NewBaseEvent(name, "p", time.Now())
		require.NoError(t, err)
		b.Record(e)
	}

	got := b.Pull()
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].EventName())
	assert.Equal(t, "c", got[1].EventName())
	assert.Equal(t, uint64(1), b.Dropped())

	assert.Zero(t, NewEventBuffer(-1).limit)
}
