package domain

import "errors"

var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with the current state.
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates invalid input data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateTemplate indicates an equivalent template already exists.
	ErrDuplicateTemplate = errors.New("duplicate template")

	// ErrValueInUse indicates a placeholder value is already used within the template.
	ErrValueInUse = errors.New("placeholder value already used in template")

	// ErrValidationFailed indicates JSON schema validation failed.
	ErrValidationFailed = errors.New("validation failed")
)
