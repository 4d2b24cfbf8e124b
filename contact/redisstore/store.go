// Package redisstore keeps contacts in Redis. Each row is a hash, each
// formatted number a string key pointing at its owner, and a set tracks all
// ids. Atomic units run as optimistic WATCH/MULTI transactions that are
// replayed when a watched key changes underneath them.
package redisstore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vortex-fintech/go-contacts/contact"
	"github.com/vortex-fintech/go-contacts/retry"
	"github.com/vortex-fintech/go-contacts/timeutil"
)

const (
	defaultMaxAttempts = 16
	defaultRetryDelay  = 5 * time.Millisecond
)

var (
	ErrNilClient       = errors.New("redisstore: client is required")
	ErrDuplicateID     = errors.New("redisstore: user id already exists")
	ErrDuplicateNumber = errors.New("redisstore: formatted number already exists")
)

// Options tunes a Store. Zero values pick defaults.
type Options struct {
	// Prefix namespaces keys. Defaults to "contacts".
	Prefix string
	// MaxAttempts bounds replays of a unit aborted by a concurrent writer.
	MaxAttempts int
	// RetryDelay is the pause between replays.
	RetryDelay time.Duration
	Clock      timeutil.Clock
}

type Store struct {
	rdb    redis.UniversalClient
	keys   keyspace
	policy retry.Policy
	clock  timeutil.Clock
}

var (
	_ contact.Store        = (*Store)(nil)
	_ contact.Lister       = (*Store)(nil)
	_ contact.StatusWriter = (*Store)(nil)
)

func New(rdb redis.UniversalClient, o Options) (*Store, error) {
	if rdb == nil {
		return nil, ErrNilClient
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	return &Store{
		rdb:    rdb,
		keys:   newKeyspace(o.Prefix),
		policy: retry.Policy{MaxAttempts: o.MaxAttempts, Delay: o.RetryDelay},
		clock:  timeutil.OrDefault(o.Clock),
	}, nil
}

// reader is the read surface shared by the client and a watching tx.
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

type unitKey struct{}

// unit is one optimistic transaction. Reads go through tx after the key is
// watched; writes are queued and sent in a single MULTI/EXEC when fn returns.
// A unit does not observe its own queued writes.
type unit struct {
	store   *Store
	tx      *redis.Tx
	watched map[string]struct{}
	ops     []func(ctx context.Context, p redis.Pipeliner)
}

func (s *Store) unitFrom(ctx context.Context) *unit {
	u, _ := ctx.Value(unitKey{}).(*unit)
	if u == nil || u.store != s {
		return nil
	}
	return u
}

func (u *unit) watch(ctx context.Context, keys ...string) error {
	var fresh []string
	for _, k := range keys {
		if _, ok := u.watched[k]; !ok {
			u.watched[k] = struct{}{}
			fresh = append(fresh, k)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	return u.tx.Watch(ctx, fresh...).Err()
}

func (u *unit) queue(op func(ctx context.Context, p redis.Pipeliner)) {
	u.ops = append(u.ops, op)
}

func (u *unit) flush(ctx context.Context) error {
	if len(u.ops) == 0 {
		return nil
	}
	_, err := u.tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, op := range u.ops {
			op(ctx, p)
		}
		return nil
	})
	return err
}

// Atomically watches the Redis keys behind keys and runs fn. When another
// client writes a watched key before EXEC, fn is run again from scratch.
func (s *Store) Atomically(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	watch := s.keys.fromLockKeys(keys)
	if u := s.unitFrom(ctx); u != nil {
		if err := u.watch(ctx, watch...); err != nil {
			return classify("atomically", err)
		}
		return fn(ctx)
	}

	var fnErr error
	policy := s.policy
	policy.Retryable = func(err error) bool {
		return fnErr == nil && errors.Is(err, redis.TxFailedErr)
	}
	err := retry.Do(ctx, policy, func() error {
		fnErr = nil
		return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			u := &unit{store: s, tx: tx, watched: make(map[string]struct{}, len(watch))}
			for _, k := range watch {
				u.watched[k] = struct{}{}
			}
			if err := fn(context.WithValue(ctx, unitKey{}, u)); err != nil {
				fnErr = err
				return err
			}
			return u.flush(ctx)
		}, watch...)
	})
	if fnErr != nil {
		return fnErr
	}
	return classify("atomically", err)
}

// within runs fn inside the unit bound to ctx, opening one on keys if needed.
func (s *Store) within(ctx context.Context, keys []string, fn func(ctx context.Context, u *unit) error) error {
	if u := s.unitFrom(ctx); u != nil {
		if err := u.watch(ctx, s.keys.fromLockKeys(keys)...); err != nil {
			return classify("watch", err)
		}
		return fn(ctx, u)
	}
	return s.Atomically(ctx, keys, func(ctx context.Context) error {
		return fn(ctx, s.unitFrom(ctx))
	})
}

func (s *Store) src(ctx context.Context) reader {
	if u := s.unitFrom(ctx); u != nil {
		return u.tx
	}
	return s.rdb
}

func (s *Store) FindByID(ctx context.Context, userID string) (*contact.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := s.row(ctx, s.src(ctx), userID)
	return c, classify("find_by_id", err)
}

func (s *Store) FindByPhone(ctx context.Context, formattedNumber string) (*contact.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(formattedNumber) == "" {
		return nil, nil
	}
	r := s.src(ctx)
	owner, err := s.owner(ctx, r, formattedNumber)
	if err != nil || owner == "" {
		return nil, classify("find_by_phone", err)
	}
	if u := s.unitFrom(ctx); u != nil {
		if err := u.watch(ctx, s.keys.row(owner)); err != nil {
			return nil, classify("find_by_phone", err)
		}
	}
	c, err := s.row(ctx, r, owner)
	return c, classify("find_by_phone", err)
}

func (s *Store) Insert(ctx context.Context, c contact.Contact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.within(ctx, lockKeys(c), func(ctx context.Context, u *unit) error {
		n, err := u.tx.Exists(ctx, s.keys.row(c.UserID)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return contact.Constraint("insert", ErrDuplicateID)
		}
		if c.HasPhone() {
			owner, err := s.owner(ctx, u.tx, c.FormattedNumber)
			if err != nil {
				return err
			}
			if owner != "" {
				return contact.Constraint("insert", ErrDuplicateNumber)
			}
		}
		s.queuePut(u, c)
		return nil
	})
	return classify("insert", err)
}

func (s *Store) UpdateByID(ctx context.Context, c contact.Contact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.within(ctx, lockKeys(c), func(ctx context.Context, u *unit) error {
		old, err := s.row(ctx, u.tx, c.UserID)
		if err != nil {
			return err
		}
		if old == nil {
			return contact.Transient("update_by_id", contact.ErrRowVanished)
		}
		if c.HasPhone() {
			owner, err := s.owner(ctx, u.tx, c.FormattedNumber)
			if err != nil {
				return err
			}
			if owner != "" && owner != c.UserID {
				return contact.Constraint("update_by_id", ErrDuplicateNumber)
			}
		}
		if err := s.queueReleaseNumber(ctx, u, *old, c.FormattedNumber); err != nil {
			return err
		}
		s.queuePut(u, c)
		return nil
	})
	return classify("update_by_id", err)
}

// UpdateByPhone overwrites the row owning c.FormattedNumber, moving it to
// c.UserID when the ids differ.
func (s *Store) UpdateByPhone(ctx context.Context, c contact.Contact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.HasPhone() {
		return contact.Transient("update_by_phone", contact.ErrRowVanished)
	}
	err := s.within(ctx, lockKeys(c), func(ctx context.Context, u *unit) error {
		owner, err := s.owner(ctx, u.tx, c.FormattedNumber)
		if err != nil {
			return err
		}
		if owner == "" {
			return contact.Transient("update_by_phone", contact.ErrRowVanished)
		}
		if err := u.watch(ctx, s.keys.row(owner)); err != nil {
			return err
		}
		old, err := s.row(ctx, u.tx, owner)
		if err != nil {
			return err
		}
		if old == nil {
			return contact.Transient("update_by_phone", contact.ErrRowVanished)
		}
		if owner != c.UserID {
			n, err := u.tx.Exists(ctx, s.keys.row(c.UserID)).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return contact.Constraint("update_by_phone", ErrDuplicateID)
			}
			u.queue(func(ctx context.Context, p redis.Pipeliner) {
				p.Del(ctx, s.keys.row(owner))
				p.SRem(ctx, s.keys.ids(), owner)
			})
		}
		s.queuePut(u, c)
		return nil
	})
	return classify("update_by_phone", err)
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.within(ctx, []string{contact.IDLockKey(userID)}, func(ctx context.Context, u *unit) error {
		old, err := s.row(ctx, u.tx, userID)
		if err != nil || old == nil {
			return err
		}
		if err := s.queueReleaseNumber(ctx, u, *old, ""); err != nil {
			return err
		}
		u.queue(func(ctx context.Context, p redis.Pipeliner) {
			p.Del(ctx, s.keys.row(userID))
			p.SRem(ctx, s.keys.ids(), userID)
		})
		return nil
	})
	return classify("delete", err)
}

// List returns matching rows ordered by user id. It reads outside any unit.
func (s *Store) List(ctx context.Context, f contact.Filter) ([]contact.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, err := s.rdb.SMembers(ctx, s.keys.ids()).Result()
	if err != nil {
		return nil, classify("list", err)
	}
	slices.Sort(ids)

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	if len(ids) > 0 {
		_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
			for i, id := range ids {
				cmds[i] = p.HGetAll(ctx, s.keys.row(id))
			}
			return nil
		})
		if err != nil {
			return nil, classify("list", err)
		}
	}

	out := make([]contact.Contact, 0, len(ids))
	for _, cmd := range cmds {
		c, err := decode(cmd.Val())
		if err != nil {
			return nil, contact.Constraint("list", err)
		}
		// A row deleted between SMEMBERS and HGETALL decodes to nil.
		if c != nil && f.Match(*c) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *Store) SetConnected(ctx context.Context, userID string, connected bool, at time.Time) error {
	return s.patch(ctx, "set_connected", userID, func(c *contact.Contact) {
		c.Connected = connected
		c.LastSeenAt = timeutil.Stamp(at)
	})
}

func (s *Store) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	return s.patch(ctx, "set_blocked", userID, func(c *contact.Contact) { c.Blocked = blocked })
}

func (s *Store) SetBlockedBy(ctx context.Context, userID string, blockedBy bool) error {
	return s.patch(ctx, "set_blocked_by", userID, func(c *contact.Contact) { c.BlockedBy = blockedBy })
}

func (s *Store) SetLocalImageURI(ctx context.Context, userID, uri string) error {
	return s.patch(ctx, "set_local_image_uri", userID, func(c *contact.Contact) { c.LocalImageURI = uri })
}

func (s *Store) patch(ctx context.Context, op, userID string, fn func(*contact.Contact)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.within(ctx, []string{contact.IDLockKey(userID)}, func(ctx context.Context, u *unit) error {
		c, err := s.row(ctx, u.tx, userID)
		if err != nil || c == nil {
			return err
		}
		fn(c)
		c.UpdatedAt = timeutil.Stamp(s.clock.Now())
		fields := encode(*c)
		u.queue(func(ctx context.Context, p redis.Pipeliner) {
			p.HSet(ctx, s.keys.row(userID), fields)
		})
		return nil
	})
	return classify(op, err)
}

func (s *Store) row(ctx context.Context, r reader, userID string) (*contact.Contact, error) {
	m, err := r.HGetAll(ctx, s.keys.row(userID)).Result()
	if err != nil {
		return nil, err
	}
	c, err := decode(m)
	if err != nil {
		return nil, contact.Constraint("decode", err)
	}
	return c, nil
}

// owner returns the user id holding number, or "" when none does.
func (s *Store) owner(ctx context.Context, r reader, number string) (string, error) {
	id, err := r.Get(ctx, s.keys.phone(number)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

func (s *Store) queuePut(u *unit, c contact.Contact) {
	c.LastSeenAt = timeutil.Stamp(c.LastSeenAt)
	c.UpdatedAt = timeutil.Stamp(s.clock.Now())
	fields := encode(c)
	u.queue(func(ctx context.Context, p redis.Pipeliner) {
		p.HSet(ctx, s.keys.row(c.UserID), fields)
		p.SAdd(ctx, s.keys.ids(), c.UserID)
		if c.HasPhone() {
			p.Set(ctx, s.keys.phone(c.FormattedNumber), c.UserID, 0)
		}
	})
}

// queueReleaseNumber frees the number old holds unless it stays as keep.
func (s *Store) queueReleaseNumber(ctx context.Context, u *unit, old contact.Contact, keep string) error {
	if !old.HasPhone() || old.FormattedNumber == keep {
		return nil
	}
	key := s.keys.phone(old.FormattedNumber)
	if err := u.watch(ctx, key); err != nil {
		return err
	}
	owner, err := s.owner(ctx, u.tx, old.FormattedNumber)
	if err != nil {
		return err
	}
	if owner == old.UserID {
		u.queue(func(ctx context.Context, p redis.Pipeliner) { p.Del(ctx, key) })
	}
	return nil
}

func lockKeys(c contact.Contact) []string {
	keys := []string{contact.IDLockKey(c.UserID)}
	if c.HasPhone() {
		keys = append(keys, contact.PhoneLockKey(c.FormattedNumber))
	}
	return keys
}

// Replies Redis sends while it cannot serve a command right now.
var transientReplies = []string{"LOADING", "BUSY", "TRYAGAIN", "MOVED", "ASK", "CLUSTERDOWN", "MASTERDOWN", "READONLY"}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *contact.StorageError
	if errors.As(err, &se) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, redis.TxFailedErr) {
		return contact.Transient(op, err)
	}
	var rerr redis.Error
	if errors.As(err, &rerr) && !errors.Is(err, redis.Nil) {
		msg := rerr.Error()
		for _, p := range transientReplies {
			if strings.HasPrefix(msg, p) {
				return contact.Transient(op, err)
			}
		}
		return contact.Constraint(op, err)
	}
	return contact.Transient(op, err)
}
