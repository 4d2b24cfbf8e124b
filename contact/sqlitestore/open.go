package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema versions, tracked in PRAGMA user_version:
// 1 - contacts table with the partial unique index on formatted_number
const currentSchemaVersion = 1

var (
	ErrEmptyPath     = errors.New("sqlitestore: path is required")
	ErrSchemaTooNew  = errors.New("sqlitestore: database schema is newer than this build")
	defaultBusyLimit = 5 * time.Second
)

type Options struct {
	// Path is a file path or a file: URI.
	Path string
	// BusyTimeout is how long a writer waits for the database lock.
	// Defaults to 5s.
	BusyTimeout time.Duration
}

func (o Options) validate() error {
	if strings.TrimSpace(o.Path) == "" {
		return ErrEmptyPath
	}
	return nil
}

// dsn makes every transaction BEGIN IMMEDIATE so the write lock is taken
// before the first read of an atomic unit. Per-connection settings live here
// rather than in PRAGMAs so a replaced pool connection keeps them.
func (o Options) dsn() string {
	path := strings.TrimSpace(o.Path)
	q := url.Values{}
	q.Set("_txlock", "immediate")
	q.Set("_busy_timeout", strconv.FormatInt(o.busyTimeout().Milliseconds(), 10))
	q.Set("_foreign_keys", "1")
	q.Set("_synchronous", "NORMAL")

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + sep + q.Encode()
}

func (o Options) busyTimeout() time.Duration {
	if o.BusyTimeout > 0 {
		return o.BusyTimeout
	}
	return defaultBusyLimit
}

// Open creates or opens the database, applies pragmas and brings the schema
// up to date. Safe to call repeatedly on the same path.
func Open(ctx context.Context, o Options, opts ...Option) (*Store, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", o.dsn())
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: connect: %w", err)
	}

	// One connection: SQLite has a single writer and a nested store call
	// inside an atomic unit must reuse the unit's transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return NewWithDB(db, opts...), nil
}

// applyPragmas sets database-wide state. journal_mode persists in the file.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("sqlitestore: %q: %w", p, err)
		}
	}
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("sqlitestore: read user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("%w: %d > %d", ErrSchemaTooNew, version, currentSchemaVersion)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("sqlitestore: apply schema: %w", err)
	}
	if version == currentSchemaVersion {
		return nil
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("sqlitestore: set user_version: %w", err)
	}
	return nil
}
