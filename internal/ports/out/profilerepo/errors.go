package profilerepo

import "errors"

var (
	ErrNotFound = errors.New("profile not found")

	// ErrOwnerAlreadyHasProfile indicates the owning account already has a profile.
	ErrOwnerAlreadyHasProfile = errors.New("owner already has a profile")

	ErrAlreadyExists = errors.New("profile already exists")
)
