package messagerepo

import "errors"

var (
	ErrNotFound      = errors.New("contact message not found")
	ErrAlreadyExists = errors.New("contact message already exists")
)
