// Package classroom keeps the catalog of persistent room records and answers
// host lookups for the live coordinator.
package classroom

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"classroom/pkg/interfaces"
	"classroom/pkg/types"
)

// CodeLength is the length of a room join code.
const CodeLength = 8

const maxCodeAttempts = 5

// Catalog implements interfaces.RoomCatalog on top of the database manager,
// caching active rooms in memory.
type Catalog struct {
	db          interfaces.DatabaseManager
	terminator  interfaces.RoomTerminator
	activeRooms map[string]*types.Room // roomID -> Room
	endedRooms  map[string]struct{}    // ended by this catalog, never re-cached
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// NewCatalog creates a catalog. SetTerminator must be called before EndRoom
// can drop live state.
func NewCatalog(db interfaces.DatabaseManager, logger zerolog.Logger) *Catalog {
	return &Catalog{
		db:          db,
		activeRooms: make(map[string]*types.Room),
		endedRooms:  make(map[string]struct{}),
		logger:      logger.With().Str("module", "catalog").Logger(),
	}
}

// SetTerminator connects the catalog to the live coordinator.
func (c *Catalog) SetTerminator(t interfaces.RoomTerminator) {
	c.mu.Lock()
	c.terminator = t
	c.mu.Unlock()
}

// LoadActiveRooms fills the cache from the database.
func (c *Catalog) LoadActiveRooms(ctx context.Context) error {
	rooms, err := c.db.ListActiveRooms(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active rooms: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.activeRooms = make(map[string]*types.Room, len(rooms))
	for _, room := range rooms {
		c.activeRooms[room.ID] = room
	}

	c.logger.Info().Int("rooms", len(rooms)).Msg("loaded active rooms")
	return nil
}

// CreateRoom records a new active room with a fresh join code.
func (c *Catalog) CreateRoom(ctx context.Context, name, hostID, hostName string) (*types.Room, error) {
	hostName = strings.TrimSpace(hostName)
	if hostName == "" {
		hostName = hostID
	}

	room := &types.Room{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(name),
		HostID:    hostID,
		HostName:  hostName,
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}
	if err := room.Validate(); err != nil {
		return nil, err
	}

	code, err := c.allocateCode(ctx)
	if err != nil {
		return nil, err
	}
	room.Code = code

	if err := c.db.CreateRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	c.mu.Lock()
	c.activeRooms[room.ID] = room
	c.mu.Unlock()

	c.logger.Info().Str("room_id", room.ID).Str("code", room.Code).Str("host_id", room.HostID).Msg("room created")
	return copyRoom(room), nil
}

// allocateCode picks a code no active room is using.
func (c *Catalog) allocateCode(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := newCode()
		_, err := c.db.GetRoomByCode(ctx, code)
		if errors.Is(err, interfaces.ErrRoomNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check join code: %w", err)
		}
	}
	return "", ErrCodeExhausted
}

func newCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:CodeLength])
}

// GetRoom returns a room record, active or ended.
func (c *Catalog) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	c.mu.RLock()
	room, ok := c.activeRooms[roomID]
	c.mu.RUnlock()
	if ok {
		return copyRoom(room), nil
	}

	return c.db.GetRoom(ctx, roomID)
}

// GetRoomByCode resolves a join code to an active room.
func (c *Catalog) GetRoomByCode(ctx context.Context, code string) (*types.Room, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != CodeLength {
		return nil, ErrInvalidCode
	}

	c.mu.RLock()
	for _, room := range c.activeRooms {
		if room.Code == code {
			c.mu.RUnlock()
			return copyRoom(room), nil
		}
	}
	c.mu.RUnlock()

	return c.db.GetRoomByCode(ctx, code)
}

// ListActiveRooms returns the cached active rooms, newest first.
func (c *Catalog) ListActiveRooms(ctx context.Context) ([]*types.Room, error) {
	c.mu.RLock()
	rooms := make([]*types.Room, 0, len(c.activeRooms))
	for _, room := range c.activeRooms {
		rooms = append(rooms, copyRoom(room))
	}
	c.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

// EndRoom deactivates the record, then terminates the live room so every
// connected participant receives room_ended.
func (c *Catalog) EndRoom(ctx context.Context, roomID string) error {
	room, err := c.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.IsActive {
		return interfaces.ErrRoomEnded
	}

	if err := c.db.DeactivateRoom(ctx, roomID); err != nil {
		return fmt.Errorf("failed to end room: %w", err)
	}

	c.mu.Lock()
	delete(c.activeRooms, roomID)
	c.endedRooms[roomID] = struct{}{}
	terminator := c.terminator
	c.mu.Unlock()

	live := false
	if terminator != nil {
		live = terminator.TerminateRoom(roomID)
	}

	c.logger.Info().Str("room_id", roomID).Bool("had_live_state", live).Msg("room ended")
	return nil
}

// IsHost reports whether userID is the recorded host of an active room.
// Unknown and ended rooms have no host.
func (c *Catalog) IsHost(ctx context.Context, roomID, userID string) (bool, error) {
	c.mu.RLock()
	room, ok := c.activeRooms[roomID]
	c.mu.RUnlock()
	if ok {
		return room.HostID == userID, nil
	}

	room, err := c.db.GetRoom(ctx, roomID)
	if errors.Is(err, interfaces.ErrRoomNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !room.IsActive {
		return false, nil
	}

	// Active in the database but missing from the cache: another writer
	// created it, so cache it now. The read may predate an EndRoom that
	// finished meanwhile.
	c.mu.Lock()
	if _, ended := c.endedRooms[room.ID]; ended {
		c.mu.Unlock()
		return false, nil
	}
	c.activeRooms[room.ID] = room
	c.mu.Unlock()

	return room.HostID == userID, nil
}

// GetStats returns catalog statistics.
func (c *Catalog) GetStats() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"active_rooms": len(c.activeRooms),
	}
}

func copyRoom(room *types.Room) *types.Room {
	cp := *room
	return &cp
}
