package sreality

import (
	"errors"
	"fmt"
)

// retryableStatus is the set of HTTP status codes worth retrying.
var retryableStatus = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
	520: true,
	521: true,
	522: true,
	523: true,
	524: true,
}

// TransientError marks a failure worth retrying: network errors,
// timeouts, and the retryable status family. Exhausting retries on a
// page surfaces the page as failed; the run continues.
type TransientError struct {
	Page       int
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("page %d: status %d", e.Page, e.StatusCode)
	}
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// FatalError marks a malformed count-discovery response. Without a
// declared total the run cannot size its page walk, so this aborts the
// whole run.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("count discovery: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("count discovery: %s", e.Reason)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsFatal reports whether err aborts the run.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
