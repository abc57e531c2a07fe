package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomEnded    = errors.New("room has ended")
	ErrUnauthorized = errors.New("unauthorized access")
)
