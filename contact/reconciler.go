package contact

import (
	"context"
	"maps"
	"strings"
	"time"

	"github.com/vortex-fintech/go-contacts/logger"
	"github.com/vortex-fintech/go-contacts/validator"
)

// Reconciler decides whether an incoming record is new or updates an
// existing row, and by which key. It keeps no state between calls and is
// safe for concurrent use; atomicity comes from the store's Transactor.
type Reconciler struct {
	store    Store
	norm     Normalizer
	log      logger.LoggerInterface
	observer Observer
	validate func(any) map[string]string
	mask     func(string) string
}

type Option func(*Reconciler)

func WithLogger(l logger.LoggerInterface) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(r *Reconciler) { r.observer = o }
}

// WithValidator replaces the default check of user_id and type. fn returns
// field -> reason. StrictValidation is the stock stricter choice.
func WithValidator(fn func(any) map[string]string) Option {
	return func(r *Reconciler) {
		if fn != nil {
			r.validate = fn
		}
	}
}

// WithNumberMask sets how phone numbers appear in logs.
func WithNumberMask(fn func(string) string) Option {
	return func(r *Reconciler) {
		if fn != nil {
			r.mask = fn
		}
	}
}

func NewReconciler(store Store, norm Normalizer, opts ...Option) (*Reconciler, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if norm == nil {
		return nil, ErrNilNormalizer
	}
	r := &Reconciler{
		store:    store,
		norm:     norm,
		log:      logger.Nop(),
		validate: validator.Validate,
		mask:     func(string) string { return "***" },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Upsert normalizes c and applies exactly one of insert, update-by-id or
// update-by-phone. Store failures come back as *StorageError; nothing is
// retried here.
func (r *Reconciler) Upsert(ctx context.Context, c Contact) (Change, error) {
	return r.upsert(ctx, c, false)
}

// upsert with keepExisting leaves a row found by id untouched. GetOrCreate
// uses it so a row created concurrently is not overwritten by an empty one.
func (r *Reconciler) upsert(ctx context.Context, c Contact, keepExisting bool) (ch Change, err error) {
	start := time.Now()
	defer func() {
		if r.observer != nil {
			r.observer.ObserveReconcile(ch, time.Since(start), err)
		}
	}()

	if err = r.check(c); err != nil {
		return Change{Op: OpNone, MatchedBy: MatchNone, UserID: c.UserID}, err
	}

	c = r.norm.Normalize(c)
	key := Classify(c)

	err = r.store.Atomically(ctx, key.LockKeys(), func(ctx context.Context) error {
		var e error
		ch, e = r.apply(ctx, key, c, keepExisting)
		return e
	})
	if err != nil {
		err = AsStorageError("upsert", err)
		r.log.WarnwCtx(ctx, "contact upsert failed",
			"user_id", c.UserID,
			"number", r.mask(c.FormattedNumber),
			"error", err,
		)
		return Change{Op: OpNone, MatchedBy: MatchNone, UserID: c.UserID, FormattedNumber: c.FormattedNumber}, err
	}

	r.log.DebugwCtx(ctx, "contact reconciled",
		"user_id", ch.UserID,
		"number", r.mask(ch.FormattedNumber),
		"op", ch.Op,
		"matched_by", ch.MatchedBy,
	)
	return ch, nil
}

func (r *Reconciler) apply(ctx context.Context, key Key, c Contact, keepExisting bool) (Change, error) {
	ch := Change{UserID: c.UserID, FormattedNumber: c.FormattedNumber, Contact: c}

	switch k := key.(type) {
	case NoPhoneKey:
		return r.applyByID(ctx, ch, k.UserID, keepExisting)

	case PhoneKey:
		existing, err := r.store.FindByPhone(ctx, k.Number)
		if err != nil {
			return ch, AsStorageError("find_by_phone", err)
		}
		if existing == nil {
			return r.applyByID(ctx, ch, k.UserID, keepExisting)
		}
		if err := r.store.UpdateByPhone(ctx, c); err != nil {
			return ch, AsStorageError("update_by_phone", err)
		}
		ch.Op, ch.MatchedBy = OpUpdated, MatchByPhone
		ch.PreviousUserID = existing.UserID
		return ch, nil

	default:
		// Key is sealed; this is unreachable.
		return ch, ErrUnsupported
	}
}

func (r *Reconciler) applyByID(ctx context.Context, ch Change, userID string, keepExisting bool) (Change, error) {
	existing, err := r.store.FindByID(ctx, userID)
	if err != nil {
		return ch, AsStorageError("find_by_id", err)
	}
	if existing == nil {
		if err := r.store.Insert(ctx, ch.Contact); err != nil {
			return ch, AsStorageError("insert", err)
		}
		ch.Op, ch.MatchedBy = OpInserted, MatchNone
		return ch, nil
	}
	if keepExisting {
		c := r.norm.Normalize(*existing)
		ch.Op, ch.MatchedBy = OpNone, MatchByID
		ch.FormattedNumber, ch.Contact = c.FormattedNumber, c
		return ch, nil
	}
	if err := r.store.UpdateByID(ctx, ch.Contact); err != nil {
		return ch, AsStorageError("update_by_id", err)
	}
	ch.Op, ch.MatchedBy = OpUpdated, MatchByID
	return ch, nil
}

// GetOrCreate never reports "not found" for a non-empty id: a missing row is
// created from the id alone and persisted before returning. The returned
// record is normalized; on the read path that projection is not persisted.
func (r *Reconciler) GetOrCreate(ctx context.Context, userID string) (Contact, Change, error) {
	if strings.TrimSpace(userID) == "" {
		return Contact{}, Change{Op: OpNone, MatchedBy: MatchNone}, invalid("user_id", "required")
	}

	found, err := r.store.FindByID(ctx, userID)
	if err != nil {
		return Contact{}, Change{Op: OpNone, MatchedBy: MatchNone, UserID: userID}, AsStorageError("find_by_id", err)
	}
	if found != nil {
		c := r.norm.Normalize(*found)
		return c, Change{Op: OpNone, MatchedBy: MatchByID, UserID: userID, FormattedNumber: c.FormattedNumber, Contact: c}, nil
	}

	ch, err := r.upsert(ctx, New(userID), true)
	if err != nil {
		return Contact{}, ch, err
	}
	return ch.Contact, ch, nil
}

// Normalize exposes the configured normalizer for read-side projections.
func (r *Reconciler) Normalize(c Contact) Contact {
	return r.norm.Normalize(c)
}

func (r *Reconciler) check(c Contact) error {
	if strings.TrimSpace(c.UserID) == "" {
		return invalid("user_id", "required")
	}
	if fields := r.validate(c); len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// ancillaryLimits carries opt-in rules for fields the default check ignores.
type ancillaryLimits struct {
	FullName        string `json:"full_name" validate:"max=512"`
	ContactNumber   string `json:"contact_number" validate:"max=64"`
	FormattedNumber string `json:"formatted_number" validate:"max=32"`
	ImageURL        string `json:"image_url" validate:"omitempty,url"`
}

// StrictValidation is the default check plus length limits and an absolute
// URL rule on ancillary fields. Opt in with WithValidator(StrictValidation).
func StrictValidation(v any) map[string]string {
	fields := validator.Validate(v)
	c, ok := v.(Contact)
	if !ok {
		return fields
	}
	extra := validator.Validate(ancillaryLimits{
		FullName:        c.FullName,
		ContactNumber:   c.ContactNumber,
		FormattedNumber: c.FormattedNumber,
		ImageURL:        c.ImageURL,
	})
	if len(extra) == 0 {
		return fields
	}
	if fields == nil {
		fields = make(map[string]string, len(extra))
	}
	maps.Copy(fields, extra)
	return fields
}
