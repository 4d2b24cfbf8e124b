package contact

import (
	"strings"
	"time"
)

// Type distinguishes contact classes. The zero value means the type is unset.
type Type uint8

const (
	TypeUnset Type = iota
	// TypeUser is a contact registered with the messaging backend.
	TypeUser
	// TypePhoneBook is a device phone-book entry.
	TypePhoneBook
	// TypePhoneBookUser is a phone-book entry that is also a registered user.
	TypePhoneBookUser
)

func (t Type) String() string {
	switch t {
	case TypeUnset:
		return "unset"
	case TypeUser:
		return "user"
	case TypePhoneBook:
		return "phone_book"
	case TypePhoneBookUser:
		return "phone_book_user"
	default:
		return "unknown"
	}
}

func (t Type) IsSet() bool { return t != TypeUnset }

// Contact is the unit of reconciliation.
type Contact struct {
	UserID          string    `json:"user_id" validate:"required"`
	Type            Type      `json:"type,omitempty" validate:"lte=3"`
	FullName        string    `json:"full_name,omitempty"`
	ContactNumber   string    `json:"contact_number,omitempty"`
	FormattedNumber string    `json:"formatted_number,omitempty"`
	ImageURL        string    `json:"image_url,omitempty"`
	LocalImageURI   string    `json:"local_image_uri,omitempty"`
	Connected       bool      `json:"connected,omitempty"`
	LastSeenAt      time.Time `json:"last_seen_at,omitzero"`
	Blocked         bool      `json:"blocked,omitempty"`
	BlockedBy       bool      `json:"blocked_by,omitempty"`
	UpdatedAt       time.Time `json:"updated_at,omitzero"`
}

// New returns a minimal record carrying only the identifier.
func New(userID string) Contact {
	return Contact{UserID: userID}
}

// HasPhone reports whether the record carries a canonical number.
func (c Contact) HasPhone() bool {
	return strings.TrimSpace(c.FormattedNumber) != ""
}

// Filter narrows List results. Zero value matches every row.
type Filter struct {
	Type          Type
	ExcludeUserID string
}

func (f Filter) Match(c Contact) bool {
	if f.Type.IsSet() && c.Type != f.Type {
		return false
	}
	if f.ExcludeUserID != "" && c.UserID == f.ExcludeUserID {
		return false
	}
	return true
}
