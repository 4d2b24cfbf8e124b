package contact

import (
	"strconv"
	"time"

	"github.com/vortex-fintech/go-contacts/domain"
)

const eventProducer = "contacts"

// Event names recorded by Service.
const (
	EventCreated           = "contact.created"
	EventUpdated           = "contact.updated"
	EventNumberReassigned  = "contact.number_reassigned"
	EventConnectionChanged = "contact.connection_changed"
	EventBlockChanged      = "contact.block_changed"
	EventDeleted           = "contact.deleted"
)

// Event is what Service records for callers to deliver. Meta never carries
// phone numbers.
type Event struct {
	domain.BaseEvent
	UserID string
}

func newEvent(name, userID string, at time.Time) (Event, error) {
	base, err := domain.NewBaseEvent(name, eventProducer, at)
	if err != nil {
		return Event{}, err
	}
	return Event{BaseEvent: base, UserID: userID}, nil
}

func changeEvent(ch Change, at time.Time) (Event, bool, error) {
	var name string
	switch {
	case ch.Op == OpInserted:
		name = EventCreated
	case ch.Reassigned():
		name = EventNumberReassigned
	case ch.Op == OpUpdated:
		name = EventUpdated
	default:
		return Event{}, false, nil
	}

	ev, err := newEvent(name, ch.UserID, at)
	if err != nil {
		return Event{}, false, err
	}
	ev.BaseEvent = ev.WithMeta("matched_by", string(ch.MatchedBy))
	if ch.PreviousUserID != "" {
		ev.BaseEvent = ev.WithMeta("previous_user_id", ch.PreviousUserID)
	}
	return ev, true, nil
}

func connectionEvent(userID string, connected bool, at time.Time) (Event, error) {
	ev, err := newEvent(EventConnectionChanged, userID, at)
	if err != nil {
		return Event{}, err
	}
	ev.BaseEvent = ev.WithMeta("connected", strconv.FormatBool(connected))
	return ev, nil
}

func blockEvent(userID, field string, value bool, at time.Time) (Event, error) {
	ev, err := newEvent(EventBlockChanged, userID, at)
	if err != nil {
		return Event{}, err
	}
	ev.BaseEvent = ev.WithMeta(field, strconv.FormatBool(value))
	return ev, nil
}
