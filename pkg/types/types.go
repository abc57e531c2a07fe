package types

import (
	"time"
)

// Participant roles. A role is fixed when the participant joins.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Participant is the live representation of a user inside a room
// for the duration of one connection.
type Participant struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	Role         string `json:"role"`
	IsMuted      bool   `json:"is_muted"`
	IsVideoOn    bool   `json:"is_video_on"`
	IsHandRaised bool   `json:"is_hand_raised"`
	IsPresenting bool   `json:"is_presenting"`

	// ConnectionID is only used to resolve disconnects and never leaves the process.
	ConnectionID string `json:"-"`
}

// RoomSnapshot is the full state of a room as sent to a joining connection
// and returned by the participants endpoint.
type RoomSnapshot struct {
	RoomID        string         `json:"room_id"`
	Participants  []*Participant `json:"participants"`
	PresenterID   string         `json:"presenter_id"`
	SharedContent string         `json:"shared_content"`
}

// Room is the persistent record of a classroom kept by the catalog.
// Only IsActive changes after creation.
type Room struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Code      string    `json:"code" db:"code"`
	HostID    string    `json:"host_id" db:"host_id"`
	HostName  string    `json:"host_name" db:"host_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	IsActive  bool      `json:"is_active" db:"is_active"`
}

// ChatMessage is a chat line sent inside a room.
type ChatMessage struct {
	ID          string    `json:"id"`
	RoomID      string    `json:"room_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

// Frame is the envelope of every WebSocket message in both directions.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}
