// Package memstore keeps contacts in process memory. Every atomic unit holds
// one store-wide mutex, so units never interleave.
package memstore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vortex-fintech/go-contacts/contact"
	"github.com/vortex-fintech/go-contacts/timeutil"
)

var (
	ErrDuplicateID     = errors.New("memstore: user id already exists")
	ErrDuplicateNumber = errors.New("memstore: formatted number already exists")
)

type Store struct {
	mu     sync.Mutex
	rows   map[string]contact.Contact
	phones map[string]string // formatted number -> user id
	clock  timeutil.Clock
}

var (
	_ contact.Store        = (*Store)(nil)
	_ contact.Lister       = (*Store)(nil)
	_ contact.StatusWriter = (*Store)(nil)
)

type Option func(*Store)

// WithClock sets the source of UpdatedAt.
func WithClock(c timeutil.Clock) Option {
	return func(s *Store) { s.clock = timeutil.OrDefault(c) }
}

func New(opts ...Option) *Store {
	s := &Store{
		rows:   make(map[string]contact.Contact),
		phones: make(map[string]string),
		clock:  timeutil.UTCClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type unitKey struct{}

// lock takes the store mutex unless ctx already belongs to a unit of s.
func (s *Store) lock(ctx context.Context) func() {
	if owner, _ := ctx.Value(unitKey{}).(*Store); owner == s {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Atomically ignores keys: the whole store is one lock domain.
func (s *Store) Atomically(ctx context.Context, _ []string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.lock(ctx)
	defer unlock()
	return fn(context.WithValue(ctx, unitKey{}, s))
}

func (s *Store) FindByID(ctx context.Context, userID string) (*contact.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock(ctx)()

	c, ok := s.rows[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Store) FindByPhone(ctx context.Context, formattedNumber string) (*contact.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(formattedNumber) == "" {
		return nil, nil
	}
	defer s.lock(ctx)()

	id, ok := s.phones[formattedNumber]
	if !ok {
		return nil, nil
	}
	c := s.rows[id]
	return &c, nil
}

func (s *Store) Insert(ctx context.Context, c contact.Contact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock(ctx)()

	if _, ok := s.rows[c.UserID]; ok {
		return contact.Constraint("insert", ErrDuplicateID)
	}
	if c.HasPhone() {
		if _, ok := s.phones[c.FormattedNumber]; ok {
			return contact.Constraint("insert", ErrDuplicateNumber)
		}
	}
	s.put("", c)
	return nil
}

func (s *Store) UpdateByID(ctx context.Context, c contact.Contact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock(ctx)()

	if _, ok := s.rows[c.UserID]; !ok {
		return contact.Transient("update_by_id", contact.ErrRowVanished)
	}
	if err := s.checkNumber("update_by_id", c, c.UserID); err != nil {
		return err
	}
	s.put(c.UserID, c)
	return nil
}

// UpdateByPhone overwrites the row holding c.FormattedNumber, including its
// user id.
func (s *Store) UpdateByPhone(ctx context.Context, c contact.Contact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock(ctx)()

	oldID, ok := s.phones[c.FormattedNumber]
	if !ok || !c.HasPhone() {
		return contact.Transient("update_by_phone", contact.ErrRowVanished)
	}
	if oldID != c.UserID {
		if _, taken := s.rows[c.UserID]; taken {
			return contact.Constraint("update_by_phone", ErrDuplicateID)
		}
	}
	s.put(oldID, c)
	return nil
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock(ctx)()
	s.drop(userID)
	return nil
}

// List returns matching rows ordered by user id.
func (s *Store) List(ctx context.Context, f contact.Filter) ([]contact.Contact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer s.lock(ctx)()

	out := make([]contact.Contact, 0, len(s.rows))
	for _, c := range s.rows {
		if f.Match(c) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b contact.Contact) int { return strings.Compare(a.UserID, b.UserID) })
	return out, nil
}

func (s *Store) SetConnected(ctx context.Context, userID string, connected bool, at time.Time) error {
	return s.patch(ctx, userID, func(c *contact.Contact) {
		c.Connected = connected
		c.LastSeenAt = timeutil.Stamp(at)
	})
}

func (s *Store) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	return s.patch(ctx, userID, func(c *contact.Contact) { c.Blocked = blocked })
}

func (s *Store) SetBlockedBy(ctx context.Context, userID string, blockedBy bool) error {
	return s.patch(ctx, userID, func(c *contact.Contact) { c.BlockedBy = blockedBy })
}

func (s *Store) SetLocalImageURI(ctx context.Context, userID, uri string) error {
	return s.patch(ctx, userID, func(c *contact.Contact) { c.LocalImageURI = uri })
}

// Len reports the number of rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *Store) patch(ctx context.Context, userID string, fn func(*contact.Contact)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	defer s.lock(ctx)()

	c, ok := s.rows[userID]
	if !ok {
		return nil
	}
	fn(&c)
	c.UpdatedAt = timeutil.Stamp(s.clock.Now())
	s.rows[userID] = c
	return nil
}

// checkNumber rejects a number already held by a row other than self.
func (s *Store) checkNumber(op string, c contact.Contact, self string) error {
	if !c.HasPhone() {
		return nil
	}
	if owner, ok := s.phones[c.FormattedNumber]; ok && owner != self {
		return contact.Constraint(op, ErrDuplicateNumber)
	}
	return nil
}

// put replaces the row stored under oldID (if any) with c. Callers hold mu.
func (s *Store) put(oldID string, c contact.Contact) {
	if oldID != "" {
		s.drop(oldID)
	}
	c.LastSeenAt = timeutil.Stamp(c.LastSeenAt)
	c.UpdatedAt = timeutil.Stamp(s.clock.Now())
	s.rows[c.UserID] = c
	if c.HasPhone() {
		s.phones[c.FormattedNumber] = c.UserID
	}
}

func (s *Store) drop(userID string) {
	old, ok := s.rows[userID]
	if !ok {
		return
	}
	delete(s.rows, userID)
	if old.HasPhone() && s.phones[old.FormattedNumber] == userID {
		delete(s.phones, old.FormattedNumber)
	}
}
