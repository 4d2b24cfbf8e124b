package errors

import "google.golang.org/grpc/codes"

func Unknown() ErrorResponse { return New("Unknown error occurred", codes.Unknown, nil) }

func Canceled() ErrorResponse { return New("Request canceled", codes.Canceled, nil) }

func InvalidArgument() ErrorResponse { return New("Invalid argument", codes.InvalidArgument, nil) }

func DeadlineExceeded() ErrorResponse {
	return New("Deadline exceeded", codes.DeadlineExceeded, nil)
}

func NotFound() ErrorResponse { return New("Resource not found", codes.NotFound, nil) }

func AlreadyExists() ErrorResponse { return New("Resource already exists", codes.AlreadyExists, nil) }

func FailedPrecondition() ErrorResponse {
	return New("Operation cannot be performed in the current state", codes.FailedPrecondition, nil)
}

func Aborted() ErrorResponse { return New("Request aborted", codes.Aborted, nil) }

func Unimplemented() ErrorResponse { return New("Not implemented", codes.Unimplemented, nil) }

func Internal() ErrorResponse { return New("Internal error", codes.Internal, nil) }

func Unavailable() ErrorResponse { return New("Service unavailable", codes.Unavailable, nil) }

// ValidationFields builds an InvalidArgument response from field->reason pairs.
func ValidationFields(fields map[string]string) ErrorResponse {
	return New("Validation failed", codes.InvalidArgument, nil).
		WithReason("validation_failed").
		WithDetails(fields).
		WithViolations(ViolationsFromMap(fields))
}
