package redisstore_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vortex-fintech/go-contacts/contact"
	"github.com/vortex-fintech/go-contacts/contact/redisstore"
)

var asIs = contact.NormalizerFunc(func(c contact.Contact) contact.Contact { return c })

func newMiniStore(t *testing.T) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	s, err := redisstore.New(rdb, redisstore.Options{Prefix: "t", MaxAttempts: 64})
	require.NoError(t, err)
	return s, mr
}

func TestReconcile_ReassignAndMoveNumber(t *testing.T) {
	s, mr := newMiniStore(t)
	ctx := context.Background()
	r, err := contact.NewReconciler(s, asIs)
	require.NoError(t, err)

	_, err = r.Upsert(ctx, contact.Contact{UserID: "u1", Type: contact.TypeUser, FormattedNumber: "+1555"})
	require.NoError(t, err)

	ch, err := r.Upsert(ctx, contact.Contact{UserID: "u2", Type: contact.TypeUser, FormattedNumber: "+1555"})
	require.NoError(t, err)
	assert.Equal(t, contact.MatchByPhone, ch.MatchedBy)
	assert.Equal(t, "u1", ch.PreviousUserID)
	assert.Equal(t, []string{"{t}:id:u2", "{t}:ids", "{t}:phone:+1555"}, mr.Keys())
	assert.Equal(t, "u2", mustGet(t, mr, "{t}:phone:+1555"))

	ch, err = r.Upsert(ctx, contact.Contact{UserID: "u2", Type: contact.TypeUser, FormattedNumber: "+1666"})
	require.NoError(t, err)
	assert.Equal(t, contact.MatchByID, ch.MatchedBy)
	assert.Equal(t, []string{"{t}:id:u2", "{t}:ids", "{t}:phone:+1666"}, mr.Keys())

	members, err := mr.SMembers("{t}:ids")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, members)

	released, err := s.FindByPhone(ctx, "+1555")
	require.NoError(t, err)
	assert.Nil(t, released)

	require.NoError(t, s.Delete(ctx, "u2"))
	assert.Empty(t, mr.Keys())
}

func TestInsert_DuplicatesAreConstraints(t *testing.T) {
	s, _ := newMiniStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, contact.Contact{UserID: "u1", FormattedNumber: "+1555"}))

	err := s.Insert(ctx, contact.New("u1"))
	require.ErrorIs(t, err, redisstore.ErrDuplicateID)
	assert.True(t, contact.IsConstraint(err))

	err = s.Insert(ctx, contact.Contact{UserID: "u2", FormattedNumber: "+1555"})
	require.ErrorIs(t, err, redisstore.ErrDuplicateNumber)
	assert.True(t, contact.IsConstraint(err))
}

func TestAtomically_ReplaysUnitAfterConcurrentWrite(t *testing.T) {
	s, _ := newMiniStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, contact.New("u1")))

	attempts := 0
	err := s.Atomically(ctx, []string{contact.IDLockKey("u1")}, func(unitCtx context.Context) error {
		attempts++
		if _, err := s.FindByID(unitCtx, "u1"); err != nil {
			return err
		}
		if attempts == 1 {
			// A write from outside the unit invalidates the WATCH.
			require.NoError(t, s.SetBlocked(ctx, "u1", true))
		}
		return s.UpdateByID(unitCtx, contact.Contact{UserID: "u1", FullName: "Mine"})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	got, err := s.FindByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Mine", got.FullName)
}

func TestConcurrentUpserts_OneRowPerIdentity(t *testing.T) {
	s, mr := newMiniStore(t)
	ctx := context.Background()
	r, err := contact.NewReconciler(s, asIs)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Upsert(ctx, contact.Contact{
				UserID:          "same",
				Type:            contact.TypeUser,
				FormattedNumber: "+1555",
				FullName:        fmt.Sprintf("writer %d", i),
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := s.List(ctx, contact.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"{t}:id:same", "{t}:ids", "{t}:phone:+1555"}, mr.Keys())
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
