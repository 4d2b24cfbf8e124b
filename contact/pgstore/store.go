// Package pgstore persists contacts in PostgreSQL.
//
// Atomic units are transactions that take one transaction-scoped advisory
// lock per key, in the order the caller passes them. The primary key and the
// partial unique index on formatted_number back the locks up.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vortex-fintech/go-contacts/contact"
	"github.com/vortex-fintech/go-contacts/data/postgres"
	"github.com/vortex-fintech/go-contacts/timeutil"
)

//go:embed schema.sql
var schemaSQL string

// DB is the part of *postgres.Client the store uses.
type DB interface {
	postgres.TxManager
	Conn(ctx context.Context) postgres.Runner
}

var _ DB = (*postgres.Client)(nil)

type Store struct {
	db    DB
	clock timeutil.Clock
}

var (
	_ contact.Store        = (*Store)(nil)
	_ contact.Lister       = (*Store)(nil)
	_ contact.StatusWriter = (*Store)(nil)
)

type Option func(*Store)

func WithClock(c timeutil.Clock) Option {
	return func(s *Store) { s.clock = timeutil.OrDefault(c) }
}

func New(db DB, opts ...Option) *Store {
	s := &Store{db: db, clock: timeutil.UTCClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the contacts table and its indexes if missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.Conn(ctx).Exec(ctx, schemaSQL)
	return classify("migrate", err)
}

const lockSQL = `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`

func (s *Store) Atomically(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	err := s.db.InTx(ctx, func(ctx context.Context) error {
		run := s.db.Conn(ctx)
		for _, k := range keys {
			if _, err := run.Exec(ctx, lockSQL, k); err != nil {
				return classify("lock", err)
			}
		}
		return fn(ctx)
	})
	return classify("atomically", err)
}

const selectColumns = `
	user_id, contact_type, full_name, contact_number, formatted_number,
	image_url, local_image_uri, connected, last_seen_at, blocked, blocked_by,
	updated_at`

func (s *Store) FindByID(ctx context.Context, userID string) (*contact.Contact, error) {
	row := s.db.Conn(ctx).QueryRow(ctx, `SELECT`+selectColumns+` FROM contacts WHERE user_id = $1`, userID)
	return scanOne("find_by_id", row)
}

func (s *Store) FindByPhone(ctx context.Context, formattedNumber string) (*contact.Contact, error) {
	if formattedNumber == "" {
		return nil, nil
	}
	row := s.db.Conn(ctx).QueryRow(ctx,
		`SELECT`+selectColumns+` FROM contacts WHERE formatted_number = $1 AND formatted_number <> ''`,
		formattedNumber)
	return scanOne("find_by_phone", row)
}

func (s *Store) Insert(ctx context.Context, c contact.Contact) error {
	_, err := s.db.Conn(ctx).Exec(ctx, `
		INSERT INTO contacts (
			user_id, contact_type, full_name, contact_number, formatted_number,
			image_url, local_image_uri, connected, last_seen_at, blocked, blocked_by,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, s.args(c)...)
	return classify("insert", err)
}

func (s *Store) UpdateByID(ctx context.Context, c contact.Contact) error {
	tag, err := s.db.Conn(ctx).Exec(ctx, `
		UPDATE contacts SET
			contact_type = $2, full_name = $3, contact_number = $4, formatted_number = $5,
			image_url = $6, local_image_uri = $7, connected = $8, last_seen_at = $9,
			blocked = $10, blocked_by = $11, updated_at = $12
		WHERE user_id = $1
	`, s.args(c)...)
	if err != nil {
		return classify("update_by_id", err)
	}
	if tag.RowsAffected() == 0 {
		return contact.Transient("update_by_id", contact.ErrRowVanished)
	}
	return nil
}

// UpdateByPhone rewrites every column of the row holding c.FormattedNumber,
// user_id included.
func (s *Store) UpdateByPhone(ctx context.Context, c contact.Contact) error {
	if !c.HasPhone() {
		return contact.Transient("update_by_phone", contact.ErrRowVanished)
	}
	tag, err := s.db.Conn(ctx).Exec(ctx, `
		UPDATE contacts SET
			user_id = $1, contact_type = $2, full_name = $3, contact_number = $4,
			image_url = $6, local_image_uri = $7, connected = $8, last_seen_at = $9,
			blocked = $10, blocked_by = $11, updated_at = $12
		WHERE formatted_number = $5 AND formatted_number <> ''
	`, s.args(c)...)
	if err != nil {
		return classify("update_by_phone", err)
	}
	if tag.RowsAffected() == 0 {
		return contact.Transient("update_by_phone", contact.ErrRowVanished)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	_, err := s.db.Conn(ctx).Exec(ctx, `DELETE FROM contacts WHERE user_id = $1`, userID)
	return classify("delete", err)
}

func (s *Store) List(ctx context.Context, f contact.Filter) ([]contact.Contact, error) {
	rows, err := s.db.Conn(ctx).Query(ctx, `SELECT`+selectColumns+`
		FROM contacts
		WHERE ($1 = 0 OR contact_type = $1)
		  AND ($2 = '' OR user_id <> $2)
		ORDER BY user_id
	`, int16(f.Type), f.ExcludeUserID)
	if err != nil {
		return nil, classify("list", err)
	}
	defer rows.Close()

	var out []contact.Contact
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, classify("list", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list", err)
	}
	return out, nil
}

func (s *Store) SetConnected(ctx context.Context, userID string, connected bool, at time.Time) error {
	return s.patch(ctx, "set_connected",
		`UPDATE contacts SET connected = $2, last_seen_at = $3, updated_at = $4 WHERE user_id = $1`,
		userID, connected, nullTime(at), s.now())
}

func (s *Store) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	return s.patch(ctx, "set_blocked",
		`UPDATE contacts SET blocked = $2, updated_at = $3 WHERE user_id = $1`,
		userID, blocked, s.now())
}

func (s *Store) SetBlockedBy(ctx context.Context, userID string, blockedBy bool) error {
	return s.patch(ctx, "set_blocked_by",
		`UPDATE contacts SET blocked_by = $2, updated_at = $3 WHERE user_id = $1`,
		userID, blockedBy, s.now())
}

func (s *Store) SetLocalImageURI(ctx context.Context, userID, uri string) error {
	return s.patch(ctx, "set_local_image_uri",
		`UPDATE contacts SET local_image_uri = $2, updated_at = $3 WHERE user_id = $1`,
		userID, uri, s.now())
}

func (s *Store) patch(ctx context.Context, op, sql string, args ...any) error {
	_, err := s.db.Conn(ctx).Exec(ctx, sql, args...)
	return classify(op, err)
}

func (s *Store) now() time.Time { return timeutil.Stamp(s.clock.Now()) }

// args orders c for the INSERT and UPDATE statements above.
func (s *Store) args(c contact.Contact) []any {
	return []any{
		c.UserID,
		int16(c.Type),
		c.FullName,
		c.ContactNumber,
		c.FormattedNumber,
		c.ImageURL,
		c.LocalImageURI,
		c.Connected,
		nullTime(c.LastSeenAt),
		c.Blocked,
		c.BlockedBy,
		s.now(),
	}
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return timeutil.Stamp(t)
}

func scanOne(op string, row pgx.Row) (*contact.Contact, error) {
	c, err := scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return &c, nil
}

func scan(row pgx.Row) (contact.Contact, error) {
	var (
		c        contact.Contact
		typ      int16
		lastSeen *time.Time
	)
	err := row.Scan(
		&c.UserID,
		&typ,
		&c.FullName,
		&c.ContactNumber,
		&c.FormattedNumber,
		&c.ImageURL,
		&c.LocalImageURI,
		&c.Connected,
		&lastSeen,
		&c.Blocked,
		&c.BlockedBy,
		&c.UpdatedAt,
	)
	if err != nil {
		return contact.Contact{}, err
	}
	c.Type = contact.Type(typ)
	if lastSeen != nil {
		c.LastSeenAt = lastSeen.UTC()
	}
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

// classify maps driver errors onto contact storage kinds. Server errors that
// retrying cannot fix, such as integrity or schema failures, are constraints.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *contact.StorageError
	switch {
	case errors.As(err, &se), errors.Is(err, context.Canceled):
		return err
	case postgres.IsRetryable(err):
		return contact.Transient(op, err)
	case postgres.IsIntegrityViolation(err), postgres.IsServerError(err):
		return contact.Constraint(op, err)
	default:
		return contact.Transient(op, err)
	}
}
