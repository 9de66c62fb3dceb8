package httperr

import "errors"

type BadRequestError struct {
	msg string
}

func (e *BadRequestError) Error() string { return e.msg }

func NewBadRequest(msg string) error { return &BadRequestError{msg: msg} }

func IsBadRequest(err error) bool {
	var target *BadRequestError
	return errors.As(err, &target)
}

type UnauthorizedError struct {
	msg string
}

func (e *UnauthorizedError) Error() string { return e.msg }

func NewUnauthorized(msg string) error { return &UnauthorizedError{msg: msg} }

func IsUnauthorized(err error) bool {
	var target *UnauthorizedError
	return errors.As(err, &target)
}

// ConflictError marks a state-precondition violation (wrong lifecycle
// status for the requested transition).
type ConflictError struct {
	msg string
}

func (e *ConflictError) Error() string { return e.msg }

func NewConflict(msg string) error { return &ConflictError{msg: msg} }

func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// PreconditionFailedError marks a missing external prerequisite (e.g. an
// unapproved payment letter), as opposed to a wrong lifecycle status.
type PreconditionFailedError struct {
	msg string
}

func (e *PreconditionFailedError) Error() string { return e.msg }

func NewPreconditionFailed(msg string) error { return &PreconditionFailedError{msg: msg} }

func IsPreconditionFailed(err error) bool {
	var target *PreconditionFailedError
	return errors.As(err, &target)
}

// UnavailableError wraps a transient external-service failure that survived
// the bounded internal retries.
type UnavailableError struct {
	msg string
	err error
}

func (e *UnavailableError) Error() string { return e.msg }

func (e *UnavailableError) Unwrap() error { return e.err }

func NewUnavailable(msg string, err error) error { return &UnavailableError{msg: msg, err: err} }

func IsUnavailable(err error) bool {
	var target *UnavailableError
	return errors.As(err, &target)
}

// LedgerInconsistencyError means the persisted token state and the ledger's
// observed state disagree. Never auto-corrected; mutation on the affected
// asset halts until an operator reconciles.
type LedgerInconsistencyError struct {
	msg string
}

func (e *LedgerInconsistencyError) Error() string { return e.msg }

func NewLedgerInconsistency(msg string) error { return &LedgerInconsistencyError{msg: msg} }

func IsLedgerInconsistency(err error) bool {
	var target *LedgerInconsistencyError
	return errors.As(err, &target)
}
