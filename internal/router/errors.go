package router

import "errors"

// Outcomes of handling an inbound event. None of them reach the sender; they
// only drive logging and metrics.
var (
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNotHost             = errors.New("acting user is not the room host")
	ErrUnknownSender       = errors.New("sender identity unresolved")
)
