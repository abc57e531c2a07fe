package interfaces

import (
	"context"

	"classroom/pkg/types"
)

// HostResolver answers whether a user is the recorded host of a room.
// It is consulted at join (role resolution) and for mute_all authorization.
type HostResolver interface {
	IsHost(ctx context.Context, roomID, userID string) (bool, error)
}

// RoomCatalog manages persistent room records.
type RoomCatalog interface {
	HostResolver

	CreateRoom(ctx context.Context, name, hostID, hostName string) (*types.Room, error)
	GetRoom(ctx context.Context, roomID string) (*types.Room, error)
	GetRoomByCode(ctx context.Context, code string) (*types.Room, error)
	ListActiveRooms(ctx context.Context) ([]*types.Room, error)

	// EndRoom deactivates the record and terminates the live room.
	EndRoom(ctx context.Context, roomID string) error
}

// RoomTerminator drops all live state of a room after notifying its members.
// It reports whether live state existed.
type RoomTerminator interface {
	TerminateRoom(roomID string) bool
}
