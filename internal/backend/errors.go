package backend

import (
	"errors"
	"fmt"
)

// ScopeError reports that a credential lacked permission for the
// attempted operation, as opposed to the operation itself failing.
type ScopeError struct {
	Op  string
	Err error
}

func (e *ScopeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: missing scope: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: missing scope", e.Op)
}

func (e *ScopeError) Unwrap() error { return e.Err }

// IsScopeError reports whether err is (or wraps) a ScopeError.
func IsScopeError(err error) bool {
	var se *ScopeError
	return errors.As(err, &se)
}

// QuotaError reports that a write would push an owner past their
// storage ceiling.
type QuotaError struct {
	Requested int64
	Used      int64
	Ceiling   int64
}

func (e *QuotaError) Error() string {
	remaining := e.Ceiling - e.Used
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("storage quota exceeded: requested %d bytes, %d bytes remaining", e.Requested, remaining)
}

// IsQuotaError reports whether err is (or wraps) a QuotaError.
func IsQuotaError(err error) bool {
	var qe *QuotaError
	return errors.As(err, &qe)
}
