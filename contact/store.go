package contact

import (
	"context"
	"time"
)

// Store is the persistent contact table, addressable by id and by phone.
//
// Find methods return (nil, nil) when no row matches. Update methods return
// ErrRowVanished when the matched row is gone. Delete is idempotent.
type Store interface {
	FindByID(ctx context.Context, userID string) (*Contact, error)
	FindByPhone(ctx context.Context, formattedNumber string) (*Contact, error)
	Insert(ctx context.Context, c Contact) error
	UpdateByID(ctx context.Context, c Contact) error
	UpdateByPhone(ctx context.Context, c Contact) error
	Delete(ctx context.Context, userID string) error

	Transactor
}

// Transactor runs fn as one unit that is atomic with respect to other units
// sharing any of keys. Store calls made with the ctx passed to fn join the unit.
type Transactor interface {
	Atomically(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// Lister is implemented by stores that can enumerate rows.
type Lister interface {
	List(ctx context.Context, f Filter) ([]Contact, error)
}

// StatusWriter updates single columns without a full row rewrite. Unknown
// ids are ignored.
type StatusWriter interface {
	SetConnected(ctx context.Context, userID string, connected bool, at time.Time) error
	SetBlocked(ctx context.Context, userID string, blocked bool) error
	SetBlockedBy(ctx context.Context, userID string, blockedBy bool) error
	SetLocalImageURI(ctx context.Context, userID, uri string) error
}

// Normalizer derives FormattedNumber from the raw phone fields.
// It must be total and idempotent; unresolvable numbers become "".
type Normalizer interface {
	Normalize(c Contact) Contact
}

type NormalizerFunc func(Contact) Contact

func (f NormalizerFunc) Normalize(c Contact) Contact { return f(c) }

// Observer receives one report per Upsert.
type Observer interface {
	ObserveReconcile(ch Change, d time.Duration, err error)
}
