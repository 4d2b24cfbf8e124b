package errors

import (
	"time"

	"google.golang.org/grpc/codes"
)

// Suggested client backoff for codes where retrying the same call can succeed.
var retryAfter = map[codes.Code]time.Duration{
	codes.Unavailable: time.Second,
	codes.Aborted:     time.Second,
}

// RetryAfter reports the suggested delay before retrying a call that failed
// with code.
func RetryAfter(code codes.Code) (time.Duration, bool) {
	d, ok := retryAfter[code]
	return d, ok
}
