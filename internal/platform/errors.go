package platform

import (
	"errors"
	"fmt"
)

// AuthorityError means the engine lacks platform permission to perform an
// action. It is surfaced to operators and never retried.
type AuthorityError struct {
	Op  string
	Err error
}

func (e *AuthorityError) Error() string {
	return fmt.Sprintf("%s: insufficient authority: %v", e.Op, e.Err)
}

func (e *AuthorityError) Unwrap() error { return e.Err }

// TransientError covers network failures and platform rate limits. Callers
// retry with bounded exponential backoff.
type TransientError struct {
	Op         string
	RetryAfter int
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("%s: transient platform error: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsAuthority reports whether err is an authority failure.
func IsAuthority(err error) bool {
	var ae *AuthorityError
	return errors.As(err, &ae)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
