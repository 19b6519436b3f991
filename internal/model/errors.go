package model

import (
	"errors"
	"fmt"
)

// TransientError marks a failure worth retrying: network errors,
// 5xx responses, and rate limiting.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RateLimited reports whether the failure was an HTTP 429.
func (e *TransientError) RateLimited() bool { return e.StatusCode == 429 }

// PermanentError marks a failure that retrying cannot fix: auth
// failures, bad requests, malformed responses.
type PermanentError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// ExtractionError marks a language-model response with no parseable
// JSON even after bracket salvage.
type ExtractionError struct {
	Model string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting with %s: %v", e.Model, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ErrNoPosts aborts a run when nothing survives normalization.
var ErrNoPosts = errors.New("no posts survived normalization")

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
