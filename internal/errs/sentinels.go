// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure (base version mismatch).
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated caller lacks the permission for the action.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates a temporary lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation marks bad input; wrap it with the offending detail.
	ErrValidation = errors.New("validation")

	// ErrDraftNotSaved indicates a step needs a draft that has no remote row yet.
	ErrDraftNotSaved = errors.New("draft not saved")

	// ErrStepIncomplete indicates the current wizard step is missing required fields.
	ErrStepIncomplete = errors.New("step incomplete")

	// ErrReasonRequired indicates an impersonation attempt without a reason.
	ErrReasonRequired = errors.New("reason required")

	// ErrNotImpersonating indicates exit was requested without an active impersonation.
	ErrNotImpersonating = errors.New("not impersonating")

	// ErrAlreadyImpersonating indicates a nested impersonation attempt.
	ErrAlreadyImpersonating = errors.New("already impersonating")
)
