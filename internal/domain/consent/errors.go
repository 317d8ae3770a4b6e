package consent

import "errors"

var (
	// ErrInvalidExpiry rejects a validUntil that is not strictly in the
	// future at the moment the operation is recorded.
	ErrInvalidExpiry = errors.New("consent: validUntil must be in the future")

	// ErrNotOwner rejects a grant/revoke from anyone but the owning patient.
	ErrNotOwner = errors.New("consent: caller is not the owning patient")

	// ErrInvalidState rejects a transition the state machine does not allow,
	// e.g. granting a revoked consent.
	ErrInvalidState = errors.New("consent: invalid state transition")

	// ErrConflict signals that a concurrent mutation won; the caller must
	// re-query state and re-issue if still applicable.
	ErrConflict = errors.New("consent: concurrent modification")

	// ErrNotFound signals the consent does not exist.
	ErrNotFound = errors.New("consent: not found")

	// ErrValidation rejects malformed input before any state change.
	ErrValidation = errors.New("consent: invalid input")

	// ErrUnavailable wraps backend failures. It must never be interpreted
	// as a Deny: "could not decide" is not "you may not".
	ErrUnavailable = errors.New("consent: store unavailable")
)
