package types

import "errors"

var (
	ErrInvalidUserID   = errors.New("user ID must be 1-64 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidRoomName = errors.New("room name must be 1-200 characters")
	ErrInvalidHostID   = errors.New("host_id must be valid user ID")
	ErrEmptyContent    = errors.New("message content cannot be empty")
	ErrContentTooLarge = errors.New("message content exceeds 4KB limit")
	ErrMissingField    = errors.New("required field missing")
	ErrUnknownEvent    = errors.New("unknown event")
	ErrInvalidPayload  = errors.New("invalid event payload")
)
