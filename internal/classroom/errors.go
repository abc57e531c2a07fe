package classroom

import "errors"

var (
	ErrCodeExhausted = errors.New("could not allocate a unique join code")
	ErrInvalidCode   = errors.New("join code must be 8 characters")
)
