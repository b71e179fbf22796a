package store

import "errors"

var (
	// ErrNotFound is returned when the requested user or account does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a conditional write lost a race, e.g. one side of a
	// mutual match was matched by a concurrent request.
	ErrConflict = errors.New("conflict")
	// ErrDuplicateEmail is returned when registering an email that already has an account.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrProfileExists is returned when profile setup runs twice for the same user.
	ErrProfileExists = errors.New("profile already exists")
	// ErrAlreadyAnswered is returned when answers are submitted after the questionnaire
	// was marked complete.
	ErrAlreadyAnswered = errors.New("questionnaire already answered")
)
