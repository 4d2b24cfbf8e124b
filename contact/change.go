package contact

// Op is the single store mutation an Upsert performed.
type Op string

const (
	OpNone     Op = "none"
	OpInserted Op = "inserted"
	OpUpdated  Op = "updated"
)

// MatchedBy names the key that located the existing row.
type MatchedBy string

const (
	MatchNone    MatchedBy = "none"
	MatchByID    MatchedBy = "id"
	MatchByPhone MatchedBy = "phone"
)

// Change describes what a reconciliation did. Callers decide whether it
// warrants a notification.
type Change struct {
	Op        Op
	MatchedBy MatchedBy
	UserID    string
	// PreviousUserID is set when a phone match rewrote the row of another id.
	PreviousUserID  string
	FormattedNumber string
	Contact         Contact
}

func (c Change) Created() bool { return c.Op == OpInserted }

// Reassigned reports whether a phone match moved the number's row to a new id.
func (c Change) Reassigned() bool {
	return c.MatchedBy == MatchByPhone && c.PreviousUserID != "" && c.PreviousUserID != c.UserID
}
