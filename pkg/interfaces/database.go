package interfaces

import (
	"context"

	"classroom/pkg/types"
)

// DatabaseManager handles all persistence for the room catalog and chat history.
type DatabaseManager interface {
	// CreateRoom inserts a new room record.
	CreateRoom(ctx context.Context, room *types.Room) error

	// GetRoom returns ErrRoomNotFound when no record exists.
	GetRoom(ctx context.Context, roomID string) (*types.Room, error)

	// GetRoomByCode looks up an active room by its join code.
	GetRoomByCode(ctx context.Context, code string) (*types.Room, error)

	// DeactivateRoom marks a room as ended. Ending an ended room is not an error.
	DeactivateRoom(ctx context.Context, roomID string) error

	// ListActiveRooms returns active rooms, newest first.
	ListActiveRooms(ctx context.Context) ([]*types.Room, error)

	MessageStore

	// GetRoomMessages returns at most limit messages in chronological order.
	GetRoomMessages(ctx context.Context, roomID string, limit int) ([]*types.ChatMessage, error)

	HealthCheck(ctx context.Context) error
	Close() error
}

// MessageStore is the chat persistence hook used by the event router.
type MessageStore interface {
	StoreMessage(ctx context.Context, message *types.ChatMessage) error
}
