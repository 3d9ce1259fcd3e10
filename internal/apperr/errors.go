package apperr

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidTitle   = errors.New("invalid note title")
	ErrInvalidBaseDir = errors.New("invalid base directory")
	ErrOutsideBaseDir = errors.New("path outside base directory")
	ErrLineOutOfRange = errors.New("line out of range")
)
