// Package sqlitestore persists contacts in a local SQLite file through
// database/sql and mattn/go-sqlite3.
//
// Every atomic unit is an immediate transaction, so units are serialized by
// SQLite's write lock. Unique indexes on user_id and the non-empty
// formatted_number back up the reconciliation rules.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vortex-fintech/go-contacts/contact"
	"github.com/vortex-fintech/go-contacts/timeutil"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db    *sql.DB
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

// NewWithDB wraps an already configured handle. Open is the usual entry point.
func NewWithDB(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, clock: timeutil.UTCClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", s.db.PingContext(ctx))
}

type txKey struct{}

func (s *Store) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// Atomically runs fn in one transaction. Keys are not needed: SQLite allows a
// single writer. A unit nested in another joins it.
func (s *Store) Atomically(ctx context.Context, _ []string, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = classify("commit", tx.Commit())
	}()

	return fn(context.WithValue(ctx, txKey{}, tx))
}

const selectColumns = `SELECT user_id, contact_type, full_name, contact_number, formatted_number,
	image_url, local_image_uri, connected, last_seen_at, blocked, blocked_by, updated_at
	FROM contacts`

func (s *Store) FindByID(ctx context.Context, userID string) (*contact.Contact, error) {
	row := s.conn(ctx).QueryRowContext(ctx, selectColumns+` WHERE user_id = ?`, userID)
	return scanOne("find_by_id", row)
}

func (s *Store) FindByPhone(ctx context.Context, formattedNumber string) (*contact.Contact, error) {
	if formattedNumber == "" {
		return nil, nil
	}
	row := s.conn(ctx).QueryRowContext(ctx,
		selectColumns+` WHERE formatted_number = ? AND formatted_number <> ''`, formattedNumber)
	return scanOne("find_by_phone", row)
}

func (s *Store) Insert(ctx context.Context, c contact.Contact) error {
	_, err := s.conn(ctx).ExecContext(ctx, `
		INSERT INTO contacts (
			contact_type, full_name, contact_number, image_url, local_image_uri,
			connected, last_seen_at, blocked, blocked_by, updated_at,
			user_id, formatted_number
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.args(c)...)
	return classify("insert", err)
}

func (s *Store) UpdateByID(ctx context.Context, c contact.Contact) error {
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE contacts SET
			contact_type = ?, full_name = ?, contact_number = ?, image_url = ?, local_image_uri = ?,
			connected = ?, last_seen_at = ?, blocked = ?, blocked_by = ?, updated_at = ?,
			user_id = ?, formatted_number = ?
		WHERE user_id = ?
	`, append(s.args(c), c.UserID)...)
	return affected("update_by_id", res, err)
}

// UpdateByPhone rewrites the row holding c.FormattedNumber, user_id included.
func (s *Store) UpdateByPhone(ctx context.Context, c contact.Contact) error {
	if !c.HasPhone() {
		return contact.Transient("update_by_phone", contact.ErrRowVanished)
	}
	res, err := s.conn(ctx).ExecContext(ctx, `
		UPDATE contacts SET
			contact_type = ?, full_name = ?, contact_number = ?, image_url = ?, local_image_uri = ?,
			connected = ?, last_seen_at = ?, blocked = ?, blocked_by = ?, updated_at = ?,
			user_id = ?, formatted_number = ?
		WHERE formatted_number = ? AND formatted_number <> ''
	`, append(s.args(c), c.FormattedNumber)...)
	return affected("update_by_phone", res, err)
}

func (s *Store) Delete(ctx context.Context, userID string) error {
	_, err := s.conn(ctx).ExecContext(ctx, `DELETE FROM contacts WHERE user_id = ?`, userID)
	return classify("delete", err)
}

func (s *Store) List(ctx context.Context, f contact.Filter) ([]contact.Contact, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, selectColumns+`
		WHERE (? = 0 OR contact_type = ?)
		  AND (? = '' OR user_id <> ?)
		ORDER BY user_id`,
		int(f.Type), int(f.Type), f.ExcludeUserID, f.ExcludeUserID)
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
		`UPDATE contacts SET connected = ?, last_seen_at = ?, updated_at = ? WHERE user_id = ?`,
		connected, nullMicros(at), s.now(), userID)
}

func (s *Store) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	return s.patch(ctx, "set_blocked",
		`UPDATE contacts SET blocked = ?, updated_at = ? WHERE user_id = ?`, blocked, s.now(), userID)
}

func (s *Store) SetBlockedBy(ctx context.Context, userID string, blockedBy bool) error {
	return s.patch(ctx, "set_blocked_by",
		`UPDATE contacts SET blocked_by = ?, updated_at = ? WHERE user_id = ?`, blockedBy, s.now(), userID)
}

func (s *Store) SetLocalImageURI(ctx context.Context, userID, uri string) error {
	return s.patch(ctx, "set_local_image_uri",
		`UPDATE contacts SET local_image_uri = ?, updated_at = ? WHERE user_id = ?`, uri, s.now(), userID)
}

func (s *Store) patch(ctx context.Context, op, query string, args ...any) error {
	_, err := s.conn(ctx).ExecContext(ctx, query, args...)
	return classify(op, err)
}

// now is the write timestamp in unix microseconds.
func (s *Store) now() int64 { return timeutil.Stamp(s.clock.Now()).UnixMicro() }

// args orders c for INSERT and the SET lists of both updates.
func (s *Store) args(c contact.Contact) []any {
	return []any{
		int(c.Type),
		c.FullName,
		c.ContactNumber,
		c.ImageURL,
		c.LocalImageURI,
		c.Connected,
		nullMicros(c.LastSeenAt),
		c.Blocked,
		c.BlockedBy,
		s.now(),
		c.UserID,
		c.FormattedNumber,
	}
}

func affected(op string, res sql.Result, err error) error {
	if err != nil {
		return classify(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return contact.Transient(op, contact.ErrRowVanished)
	}
	return nil
}

func nullMicros(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMicro(), Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(op string, row scanner) (*contact.Contact, error) {
	c, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(op, err)
	}
	return &c, nil
}

func scan(row scanner) (contact.Contact, error) {
	var (
		c        contact.Contact
		typ      int
		lastSeen sql.NullInt64
		updated  int64
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
		&updated,
	)
	if err != nil {
		return contact.Contact{}, err
	}
	c.Type = contact.Type(typ)
	if lastSeen.Valid {
		c.LastSeenAt = time.UnixMicro(lastSeen.Int64).UTC()
	}
	if updated != 0 {
		c.UpdatedAt = time.UnixMicro(updated).UTC()
	}
	return c, nil
}

// classify maps sqlite result codes onto contact storage kinds. Lock
// contention and I/O are transient; constraint, schema and corruption
// failures are not.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *contact.StorageError
	if errors.As(err, &se) || errors.Is(err, context.Canceled) {
		return err
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrInterrupt,
			sqlite3.ErrFull, sqlite3.ErrCantOpen, sqlite3.ErrProtocol:
			return contact.Transient(op, err)
		default:
			return contact.Constraint(op, err)
		}
	}
	return contact.Transient(op, err)
}
