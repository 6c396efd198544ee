package accountrepo

import "errors"

var (
	// ErrNotFound indicates the requested account does not exist.
	ErrNotFound = errors.New("account not found")

	// ErrSubjectAlreadyBound indicates an account already exists for the provided subject.
	ErrSubjectAlreadyBound = errors.New("account subject already bound")

	// ErrEmailInUse indicates another account already uses the (case-insensitive) email.
	ErrEmailInUse = errors.New("account email already in use")

	// ErrAlreadyExists indicates an account already exists with the provided ID.
	ErrAlreadyExists = errors.New("account already exists")
)
