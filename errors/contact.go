package errors

import (
	"context"
	stderrors "errors"

	"github.com/vortex-fintech/go-contacts/contact"
)

// FromContact maps an error returned by the contact package. An error that
// already is an ErrorResponse is returned as is.
func FromContact(err error) ErrorResponse {
	var resp ErrorResponse
	var verr *contact.ValidationError
	switch {
	case err == nil:
		return ErrorResponse{}
	case stderrors.As(err, &resp):
		return resp
	case stderrors.As(err, &verr):
		return ValidationFields(verr.Fields)
	case stderrors.Is(err, contact.ErrInvalidContact):
		return InvalidArgument().WithReason("validation_failed")
	case stderrors.Is(err, contact.ErrNoReceiver):
		return FailedPrecondition().WithReason("no_receiver")
	case stderrors.Is(err, contact.ErrUnsupported):
		return Unimplemented().WithReason("unsupported")
	// A vanished row is a lost race; the caller may retry the whole call.
	case stderrors.Is(err, contact.ErrRowVanished):
		return Aborted().WithReason("row_vanished")
	case contact.IsConstraint(err):
		return AlreadyExists().WithReason("conflict")
	case contact.IsTransient(err):
		return Unavailable().WithReason("storage_unavailable")
	case stderrors.Is(err, context.Canceled):
		return Canceled()
	case stderrors.Is(err, context.DeadlineExceeded):
		return DeadlineExceeded()
	default:
		return Internal()
	}
}
