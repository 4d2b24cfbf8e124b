package contact

// Key is the matching key derived from a normalized record.
// It is either NoPhoneKey or PhoneKey.
type Key interface {
	// LockKeys lists the keys a Transactor must serialize on.
	LockKeys() []string
	isKey()
}

// NoPhoneKey matches by user id only.
type NoPhoneKey struct {
	UserID string
}

// PhoneKey matches by formatted number first, then by user id.
type PhoneKey struct {
	UserID string
	Number string
}

func (NoPhoneKey) isKey() {}
func (PhoneKey) isKey()   {}

func (k NoPhoneKey) LockKeys() []string {
	return []string{IDLockKey(k.UserID)}
}

func (k PhoneKey) LockKeys() []string {
	// Stores acquire locks in this order.
	return []string{IDLockKey(k.UserID), PhoneLockKey(k.Number)}
}

func IDLockKey(userID string) string   { return "id:" + userID }
func PhoneLockKey(number string) string { return "phone:" + number }

// Classify picks the matching key for an already normalized record.
// A record without a type or without a formatted number is matched by id only.
func Classify(c Contact) Key {
	if !c.Type.IsSet() || !c.HasPhone() {
		return NoPhoneKey{UserID: c.UserID}
	}
	return PhoneKey{UserID: c.UserID, Number: c.FormattedNumber}
}
