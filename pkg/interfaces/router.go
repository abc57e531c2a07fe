package interfaces

import (
	"context"

	"classroom/pkg/types"
)

// EventRouter consumes decoded inbound events and connection lifecycle signals.
// None of its methods report errors to the sender.
type EventRouter interface {
	Connect(sink Sink)
	Dispatch(ctx context.Context, connID string, event types.Event)
	Disconnect(connID string)
}
