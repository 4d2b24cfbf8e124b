package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortex-fintech/go-contacts/contact"
	"github.com/vortex-fintech/go-contacts/timeutil"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newStore() *Store {
	return New(WithClock(timeutil.NewFrozenClock(t0)))
}

func phoneContact(id, num string) contact.Contact {
	return contact.Contact{UserID: id, Type: contact.TypeUser, FormattedNumber: num}
}

func TestInsertAndFind(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore()

	require.NoError(t, s.Insert(ctx, phoneContact("u1", "+15550001")))

	got, err := s.FindByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "+15550001", got.FormattedNumber)
	assert.Equal(t, t0, got.UpdatedAt)

	byPhone, err := s.FindByPhone(ctx, "+15550001")
	require.NoError(t, err)
	require.NotNil(t, byPhone)
	assert.Equal(t, "u1", byPhone.UserID)

	missing, err := s.FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	empty, err := s.FindByPhone(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestFindReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.Insert(ctx, contact.Contact{UserID: "u1", FullName: "Ann"}))

	got, _ := s.FindByID(ctx, "u1")
	got.FullName = "changed"

	again, _ := s.FindByID(ctx, "u1")
	assert.Equal(t, "Ann", again.FullName)
}

func TestUniqueness(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name string
		run  func(s *Store) error
		want error
	}{
		{
			name: "duplicate id",
			run:  func(s *Store) error { return s.Insert(ctx, contact.New("u1")) },
			want: ErrDuplicateID,
		},
		{
			name: "duplicate number on insert",
			run:  func(s *Store) error { return s.Insert(ctx, phoneContact("u3", "+15550001")) },
			want: ErrDuplicateNumber,
		},
		{
			name: "number taken on update by id",
			run:  func(s *Store) error { return s.UpdateByID(ctx, phoneContact("u2", "+15550001")) },
			want: ErrDuplicateNumber,
		},
		{
			name: "id taken on update by phone",
			run:  func(s *Store) error { return s.UpdateByPhone(ctx, phoneContact("u2", "+15550001")) },
			want: ErrDuplicateID,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := newStore()
			require.NoError(t, s.Insert(ctx, phoneContact("u1", "+15550001")))
			require.NoError(t, s.Insert(ctx, contact.New("u2")))

			err := tt.run(s)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, contact.IsConstraint(err))
		})
	}
}

func TestUpdateVanished(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore()

	err := s.UpdateByID(ctx, contact.New("ghost"))
	require.ErrorIs(t, err, contact.ErrRowVanished)
	assert.True(t, contact.IsTransient(err))

	err = s.UpdateByPhone(ctx, phoneContact("ghost", "+15559999"))
	require.ErrorIs(t, err, contact.ErrRowVanished)
}

func TestUpdateByPhoneRewritesUserID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.Insert(ctx, phoneContact("old", "+15550001")))

	require.NoError(t, s.UpdateByPhone(ctx, contact.Contact{
		UserID: "new", Type: contact.TypeUser, FormattedNumber: "+15550001", FullName: "Bob",
	}))

	gone, _ := s.FindByID(ctx, "old")
	assert.Nil(t, gone)
	got, _ := s.FindByPhone(ctx, "+15550001")
	require.NotNil(t, got)
	assert.Equal(t, "new", got.UserID)
	assert.Equal(t, "Bob", got.FullName)
	assert.Equal(t, 1, s.Len())
}

func TestUpdateByIDMovesNumber(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.Insert(ctx, phoneContact("u1", "+15550001")))

	require.NoError(t, s.UpdateByID(ctx, phoneContact("u1", "+15550002")))

	old, _ := s.FindByPhone(ctx, "+15550001")
	assert.Nil(t, old)
	cur, _ := s.FindByPhone(ctx, "+15550002")
	require.NotNil(t, cur)
	assert.Equal(t, "u1", cur.UserID)
}

func TestDeleteIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.Insert(ctx, phoneContact("u1", "+15550001")))

	require.NoError(t, s.Delete(ctx, "u1"))
	require.NoError(t, s.Delete(ctx, "u1"))

	byPhone, _ := s.FindByPhone(ctx, "+15550001")
	assert.Nil(t, byPhone)
	assert.Zero(t, s.Len())
}

func TestList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.Insert(ctx, contact.Contact{UserID: "c", Type: contact.TypePhoneBook}))
	require.NoError(t, s.Insert(ctx, contact.Contact{UserID: "a", Type: contact.TypeUser}))
	require.NoError(t, s.Insert(ctx, contact.Contact{UserID: "b", Type: contact.TypeUser}))

	all, err := s.List(ctx, contact.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(all))

	users, err := s.List(ctx, contact.Filter{Type: contact.TypeUser, ExcludeUserID: "a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(users))
}

func TestStatusWriter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.Insert(ctx, contact.New("u1")))

	seen := time.Date(2026, 3, 2, 8, 30, 0, 1234, time.UTC)
	require.NoError(t, s.SetConnected(ctx, "u1", true, seen))
	require.NoError(t, s.SetBlocked(ctx, "u1", true))
	require.NoError(t, s.SetBlockedBy(ctx, "u1", true))
	require.NoError(t, s.SetLocalImageURI(ctx, "u1", "file:///img/u1.png"))
	require.NoError(t, s.SetBlocked(ctx, "unknown", true))

	got, _ := s.FindByID(ctx, "u1")
	require.NotNil(t, got)
	assert.True(t, got.Connected)
	assert.Equal(t, seen.Truncate(time.Microsecond), got.LastSeenAt)
	assert.True(t, got.Blocked)
	assert.True(t, got.BlockedBy)
	assert.Equal(t, "file:///img/u1.png", got.LocalImageURI)
	assert.Equal(t, 1, s.Len())
}

func TestAtomicallyIsReentrantForItsOwnContext(t *testing.T) {
	t.Parallel()
	s := newStore()

	done := make(chan error, 1)
	go func() {
		done <- s.Atomically(context.Background(), []string{"id:u1"}, func(ctx context.Context) error {
			if _, err := s.FindByID(ctx, "u1"); err != nil {
				return err
			}
			return s.Insert(ctx, contact.New("u1"))
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Atomically deadlocked on nested store call")
	}
}

func TestAtomicallySerializesUnits(t *testing.T) {
	t.Parallel()
	s := newStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Atomically(ctx, []string{"id:u1"}, func(ctx context.Context) error {
				found, err := s.FindByID(ctx, "u1")
				if err != nil || found != nil {
					return err
				}
				return s.Insert(ctx, contact.New("u1"))
			})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, s.Len())
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()
	s := newStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FindByID(ctx, "u1")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.ErrorIs(t, s.Atomically(ctx, nil, func(context.Context) error { return nil }), context.Canceled)
}

func ids(cs []contact.Contact) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.UserID)
	}
	return out
}
