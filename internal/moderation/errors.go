package moderation

import (
	"errors"
	"fmt"
)

var (
	// Validation.
	ErrEmptyText    = errors.New("empty text submission")
	ErrBadKind      = errors.New("unknown submission kind")
	ErrMissingMedia = errors.New("media submission without file id")
	ErrBadAction    = errors.New("unknown moderation action")
	ErrBadAdminID   = errors.New("invalid admin id")

	// Authorization.
	ErrForbidden       = errors.New("actor is not a moderator")
	ErrNotMainAdmin    = errors.New("only the main administrator may change the admin list")
	ErrRemoveMainAdmin = errors.New("the main administrator cannot be removed")

	// ErrAlreadyHandled is returned for a decision on a request that is no
	// longer pending (decided before, or never existed).
	ErrAlreadyHandled = errors.New("request already handled")
)

// CooldownError denies a submission that arrived inside the submitter's
// cooldown window.
type CooldownError struct {
	RetryAfter int64 // seconds, always >= 1
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("cooldown active, retry in %ds", e.RetryAfter)
}

// PersistError means the durable write failed. The in-memory mutation was
// reverted and nothing was committed.
type PersistError struct {
	Op  string
	Err error
}

func (e *PersistError) Error() string { return "persist " + e.Op + ": " + e.Err.Error() }
func (e *PersistError) Unwrap() error { return e.Err }
