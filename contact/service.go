package contact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vortex-fintech/go-contacts/domain"
	"github.com/vortex-fintech/go-contacts/logger"
	"github.com/vortex-fintech/go-contacts/retry"
	"github.com/vortex-fintech/go-contacts/timeutil"
)

// Service layers the contact operations callers use on top of the
// Reconciler. Mutations record events in a buffer; delivering them is the
// caller's job.
type Service struct {
	rec    *Reconciler
	store  Store
	events *domain.EventBuffer
	clock  timeutil.Clock
	policy retry.Policy
	log    logger.LoggerInterface
}

// DefaultEventBacklog caps the buffer a Service creates for itself. Past it
// the oldest events are dropped.
const DefaultEventBacklog = 10_000

type ServiceOption func(*Service)

func WithClock(c timeutil.Clock) ServiceOption {
	return func(s *Service) { s.clock = timeutil.OrDefault(c) }
}

// WithEventBuffer shares a buffer between services.
func WithEventBuffer(b *domain.EventBuffer) ServiceOption {
	return func(s *Service) {
		if b != nil {
			s.events = b
		}
	}
}

// WithRetryPolicy sets how AddAll retries a record. Only transient storage
// errors are retried regardless of p.Retryable.
func WithRetryPolicy(p retry.Policy) ServiceOption {
	return func(s *Service) { s.policy = p }
}

func WithServiceLogger(l logger.LoggerInterface) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func NewService(rec *Reconciler, opts ...ServiceOption) (*Service, error) {
	if rec == nil {
		return nil, ErrNilReconciler
	}
	s := &Service{
		rec:    rec,
		store:  rec.store,
		events: domain.NewEventBuffer(DefaultEventBacklog),
		clock:  timeutil.UTCClock{},
		policy: retry.DefaultFast,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.policy.Retryable = IsTransient
	return s, nil
}

// PullEvents drains recorded events.
func (s *Service) PullEvents() []domain.Event {
	return s.events.Pull()
}

// Add inserts c without reconciliation.
func (s *Service) Add(ctx context.Context, c Contact) error {
	if err := s.rec.check(c); err != nil {
		return err
	}
	c = s.rec.Normalize(c)
	if err := s.store.Insert(ctx, c); err != nil {
		return AsStorageError("insert", err)
	}
	s.recordChange(ctx, Change{Op: OpInserted, MatchedBy: MatchNone, UserID: c.UserID, Contact: c})
	return nil
}

func (s *Service) Upsert(ctx context.Context, c Contact) (Change, error) {
	ch, err := s.rec.Upsert(ctx, c)
	if err != nil {
		return ch, err
	}
	s.recordChange(ctx, ch)
	return ch, nil
}

// BatchResult summarizes AddAll.
type BatchResult struct {
	Inserted       int
	UpdatedByID    int
	UpdatedByPhone int
	Unchanged      int
	Failed         int
}

func (b *BatchResult) Count(ch Change) {
	switch {
	case ch.Op == OpInserted:
		b.Inserted++
	case ch.Op == OpUpdated && ch.MatchedBy == MatchByPhone:
		b.UpdatedByPhone++
	case ch.Op == OpUpdated:
		b.UpdatedByID++
	default:
		b.Unchanged++
	}
}

func (b BatchResult) Total() int {
	return b.Inserted + b.UpdatedByID + b.UpdatedByPhone + b.Unchanged + b.Failed
}

// AddAll upserts every record in order. A failing record does not stop the
// batch; its error is joined into the returned error. Cancellation does.
func (s *Service) AddAll(ctx context.Context, contacts []Contact) (BatchResult, error) {
	var (
		res  BatchResult
		errs []error
	)
	for i, c := range contacts {
		if err := ctx.Err(); err != nil {
			res.Failed += len(contacts) - i
			errs = append(errs, err)
			break
		}
		ch, err := s.UpsertWithRetry(ctx, c)
		if err != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("contact %q: %w", c.UserID, err))
			continue
		}
		res.Count(ch)
	}
	return res, errors.Join(errs...)
}

// UpsertWithRetry is Upsert retried on transient storage errors.
func (s *Service) UpsertWithRetry(ctx context.Context, c Contact) (Change, error) {
	var ch Change
	err := retry.Do(ctx, s.policy, func() error {
		var e error
		ch, e = s.Upsert(ctx, c)
		return e
	})
	return ch, err
}

// GetOrCreate returns the stored contact or creates it from id alone.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (Contact, error) {
	c, ch, err := s.rec.GetOrCreate(ctx, userID)
	if err != nil {
		return Contact{}, err
	}
	s.recordChange(ctx, ch)
	return c, nil
}

// Get returns nil when the id is unknown.
func (s *Service) Get(ctx context.Context, userID string) (*Contact, error) {
	c, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, AsStorageError("find_by_id", err)
	}
	if c == nil {
		return nil, nil
	}
	n := s.rec.Normalize(*c)
	return &n, nil
}

func (s *Service) Exists(ctx context.Context, userID string) (bool, error) {
	c, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return false, AsStorageError("find_by_id", err)
	}
	return c != nil, nil
}

func (s *Service) GetAll(ctx context.Context) ([]Contact, error) {
	return s.list(ctx, Filter{})
}

func (s *Service) ListByType(ctx context.Context, t Type) ([]Contact, error) {
	return s.list(ctx, Filter{Type: t})
}

// ListExcluding lists every contact except userID, typically the logged-in user.
func (s *Service) ListExcluding(ctx context.Context, userID string) ([]Contact, error) {
	return s.list(ctx, Filter{ExcludeUserID: userID})
}

func (s *Service) list(ctx context.Context, f Filter) ([]Contact, error) {
	l, ok := s.store.(Lister)
	if !ok {
		return nil, ErrUnsupported
	}
	out, err := l.List(ctx, f)
	if err != nil {
		return nil, AsStorageError("list", err)
	}
	return out, nil
}

// Update rewrites the row matched by id.
func (s *Service) Update(ctx context.Context, c Contact) error {
	if err := s.rec.check(c); err != nil {
		return err
	}
	c = s.rec.Normalize(c)
	if err := s.store.UpdateByID(ctx, c); err != nil {
		return AsStorageError("update_by_id", err)
	}
	s.recordChange(ctx, Change{Op: OpUpdated, MatchedBy: MatchByID, UserID: c.UserID, Contact: c})
	return nil
}

// Delete removes the row for userID. An unknown id is not an error and
// records no event.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return invalid("user_id", "required")
	}

	deleted := false
	err := s.store.Atomically(ctx, []string{IDLockKey(userID)}, func(ctx context.Context) error {
		c, err := s.store.FindByID(ctx, userID)
		if err != nil || c == nil {
			return AsStorageError("find_by_id", err)
		}
		if err := s.store.Delete(ctx, userID); err != nil {
			return AsStorageError("delete", err)
		}
		deleted = true
		return nil
	})
	if err != nil {
		return AsStorageError("delete", err)
	}
	if deleted {
		ev, err := newEvent(EventDeleted, userID, s.clock.Now())
		s.record(ctx, ev, err)
	}
	return nil
}

// UpdateConnectedStatus writes the flag only when it differs from the
// stored one. It reports whether anything changed.
func (s *Service) UpdateConnectedStatus(ctx context.Context, userID string, at time.Time, connected bool) (bool, error) {
	w, err := s.statusWriter()
	if err != nil {
		return false, err
	}

	changed := false
	err = s.store.Atomically(ctx, []string{IDLockKey(userID)}, func(ctx context.Context) error {
		c, err := s.store.FindByID(ctx, userID)
		if err != nil {
			return AsStorageError("find_by_id", err)
		}
		if c == nil || c.Connected == connected {
			return nil
		}
		if err := w.SetConnected(ctx, userID, connected, at); err != nil {
			return AsStorageError("set_connected", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, AsStorageError("set_connected", err)
	}
	if changed {
		ev, err := connectionEvent(userID, connected, s.clock.Now())
		s.record(ctx, ev, err)
	}
	return changed, nil
}

// UpdateBlocked is a no-op for an empty id.
func (s *Service) UpdateBlocked(ctx context.Context, userID string, blocked bool) error {
	if strings.TrimSpace(userID) == "" {
		return nil
	}
	w, err := s.statusWriter()
	if err != nil {
		return err
	}
	if err := w.SetBlocked(ctx, userID, blocked); err != nil {
		return AsStorageError("set_blocked", err)
	}
	ev, err := blockEvent(userID, "blocked", blocked, s.clock.Now())
	s.record(ctx, ev, err)
	return nil
}

// UpdateBlockedBy is a no-op for an empty id.
func (s *Service) UpdateBlockedBy(ctx context.Context, userID string, blockedBy bool) error {
	if strings.TrimSpace(userID) == "" {
		return nil
	}
	w, err := s.statusWriter()
	if err != nil {
		return err
	}
	if err := w.SetBlockedBy(ctx, userID, blockedBy); err != nil {
		return AsStorageError("set_blocked_by", err)
	}
	ev, err := blockEvent(userID, "blocked_by", blockedBy, s.clock.Now())
	s.record(ctx, ev, err)
	return nil
}

func (s *Service) UpdateLocalImageURI(ctx context.Context, userID, uri string) error {
	if strings.TrimSpace(userID) == "" {
		return invalid("user_id", "required")
	}
	w, err := s.statusWriter()
	if err != nil {
		return err
	}
	if err := w.SetLocalImageURI(ctx, userID, uri); err != nil {
		return AsStorageError("set_local_image_uri", err)
	}
	return nil
}

// Receiver resolves the conversation counterpart: the first user id if any,
// otherwise the first item.
func (s *Service) Receiver(ctx context.Context, items, userIDs []string) (Contact, error) {
	switch {
	case len(userIDs) > 0:
		return s.GetOrCreate(ctx, userIDs[0])
	case len(items) > 0:
		return s.GetOrCreate(ctx, items[0])
	default:
		return Contact{}, ErrNoReceiver
	}
}

func (s *Service) statusWriter() (StatusWriter, error) {
	w, ok := s.store.(StatusWriter)
	if !ok {
		return nil, ErrUnsupported
	}
	return w, nil
}

func (s *Service) recordChange(ctx context.Context, ch Change) {
	ev, ok, err := changeEvent(ch, s.clock.Now())
	if !ok && err == nil {
		return
	}
	s.record(ctx, ev, err)
}

func (s *Service) record(ctx context.Context, ev Event, err error) {
	if err != nil {
		s.log.WarnwCtx(ctx, "contact event dropped", "user_id", ev.UserID, "error", err)
		return
	}
	s.events.Record(ev)
}
