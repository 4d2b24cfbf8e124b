package redisstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/vortex-fintech/go-contacts/contact"
)

const (
	fUserID          = "user_id"
	fType            = "type"
	fFullName        = "full_name"
	fContactNumber   = "contact_number"
	fFormattedNumber = "formatted_number"
	fImageURL        = "image_url"
	fLocalImageURI   = "local_image_uri"
	fConnected       = "connected"
	fLastSeenAt      = "last_seen_at"
	fBlocked         = "blocked"
	fBlockedBy       = "blocked_by"
	fUpdatedAt       = "updated_at"
)

// encode flattens c into hash fields. Timestamps are unix microseconds;
// a zero time is stored as an empty string.
func encode(c contact.Contact) map[string]any {
	return map[string]any{
		fUserID:          c.UserID,
		fType:            strconv.Itoa(int(c.Type)),
		fFullName:        c.FullName,
		fContactNumber:   c.ContactNumber,
		fFormattedNumber: c.FormattedNumber,
		fImageURL:        c.ImageURL,
		fLocalImageURI:   c.LocalImageURI,
		fConnected:       flag(c.Connected),
		fLastSeenAt:      micros(c.LastSeenAt),
		fBlocked:         flag(c.Blocked),
		fBlockedBy:       flag(c.BlockedBy),
		fUpdatedAt:       micros(c.UpdatedAt),
	}
}

// decode rebuilds a contact from HGETALL output. An empty map means no row.
func decode(m map[string]string) (*contact.Contact, error) {
	if len(m) == 0 {
		return nil, nil
	}
	typ, err := strconv.ParseUint(m[fType], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("redisstore: field %s: %w", fType, err)
	}
	lastSeen, err := parseMicros(m[fLastSeenAt])
	if err != nil {
		return nil, fmt.Errorf("redisstore: field %s: %w", fLastSeenAt, err)
	}
	updated, err := parseMicros(m[fUpdatedAt])
	if err != nil {
		return nil, fmt.Errorf("redisstore: field %s: %w", fUpdatedAt, err)
	}
	return &contact.Contact{
		UserID:          m[fUserID],
		Type:            contact.Type(typ),
		FullName:        m[fFullName],
		ContactNumber:   m[fContactNumber],
		FormattedNumber: m[fFormattedNumber],
		ImageURL:        m[fImageURL],
		LocalImageURI:   m[fLocalImageURI],
		Connected:       m[fConnected] == "1",
		LastSeenAt:      lastSeen,
		Blocked:         m[fBlocked] == "1",
		BlockedBy:       m[fBlockedBy] == "1",
		UpdatedAt:       updated,
	}, nil
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func micros(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMicro(), 10)
}

func parseMicros(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMicro(n).UTC(), nil
}
