package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Inbound event names. Field names of each payload are part of the wire contract.
const (
	EventJoin            = "join"
	EventLeave           = "leave"
	EventToggleMute      = "toggle_mute"
	EventToggleVideo     = "toggle_video"
	EventRaiseHand       = "raise_hand"
	EventStartPresenting = "start_presenting"
	EventStopPresenting  = "stop_presenting"
	EventMuteAll         = "mute_all"
	EventSendMessage     = "send_message"
)

// Outbound event names.
const (
	EventParticipantJoined   = "participant_joined"
	EventRoomState           = "room_state"
	EventParticipantLeft     = "participant_left"
	EventParticipantUpdated  = "participant_updated"
	EventHandRaised          = "hand_raised"
	EventPresentationStarted = "presentation_started"
	EventPresentationStopped = "presentation_stopped"
	EventAllMuted            = "all_muted"
	EventRoomEnded           = "room_ended"
	EventNewMessage          = "new_message"
)

// Event is one decoded inbound control event. The concrete types below
// are the only implementations.
type Event interface {
	EventName() string
	Room() string
}

type Join struct {
	RoomID      string
	UserID      string
	DisplayName string
}

type Leave struct {
	RoomID string
	UserID string
}

type ToggleMute struct {
	RoomID  string
	UserID  string
	IsMuted bool
}

type ToggleVideo struct {
	RoomID    string
	UserID    string
	IsVideoOn bool
}

type RaiseHand struct {
	RoomID       string
	UserID       string
	IsHandRaised bool
}

type StartPresenting struct {
	RoomID     string
	UserID     string
	ContentRef string
}

type StopPresenting struct {
	RoomID string
	UserID string
}

type MuteAll struct {
	RoomID       string
	ActingUserID string
}

type SendMessage struct {
	RoomID      string
	UserID      string
	DisplayName string
	Content     string
}

func (Join) EventName() string            { return EventJoin }
func (Leave) EventName() string           { return EventLeave }
func (ToggleMute) EventName() string      { return EventToggleMute }
func (ToggleVideo) EventName() string     { return EventToggleVideo }
func (RaiseHand) EventName() string       { return EventRaiseHand }
func (StartPresenting) EventName() string { return EventStartPresenting }
func (StopPresenting) EventName() string  { return EventStopPresenting }
func (MuteAll) EventName() string         { return EventMuteAll }
func (SendMessage) EventName() string     { return EventSendMessage }

func (e Join) Room() string            { return e.RoomID }
func (e Leave) Room() string           { return e.RoomID }
func (e ToggleMute) Room() string      { return e.RoomID }
func (e ToggleVideo) Room() string     { return e.RoomID }
func (e RaiseHand) Room() string       { return e.RoomID }
func (e StartPresenting) Room() string { return e.RoomID }
func (e StopPresenting) Room() string  { return e.RoomID }
func (e MuteAll) Room() string         { return e.RoomID }
func (e SendMessage) Room() string     { return e.RoomID }

// Outbound payloads. participant_joined carries a *Participant, room_state a
// RoomSnapshot and new_message a ChatMessage.

type ParticipantLeft struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type MuteUpdated struct {
	UserID  string `json:"user_id"`
	IsMuted bool   `json:"is_muted"`
}

type VideoUpdated struct {
	UserID    string `json:"user_id"`
	IsVideoOn bool   `json:"is_video_on"`
}

type HandRaised struct {
	UserID       string `json:"user_id"`
	DisplayName  string `json:"display_name"`
	IsHandRaised bool   `json:"is_hand_raised"`
}

type PresentationStarted struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	ContentRef  string `json:"content_ref"`
}

type PresentationStopped struct {
	UserID string `json:"user_id"`
}

type AllMuted struct {
	RoomID string `json:"room_id"`
}

type RoomEnded struct {
	RoomID string `json:"room_id"`
}

// inboundPayload is the union of every inbound field. Pointers tell a missing
// field apart from a zero value.
type inboundPayload struct {
	RoomID       *string `json:"room_id"`
	UserID       *string `json:"user_id"`
	ActingUserID *string `json:"acting_user_id"`
	HostID       *string `json:"host_id"`
	DisplayName  *string `json:"display_name"`
	IsMuted      *bool   `json:"is_muted"`
	IsVideoOn    *bool   `json:"is_video_on"`
	IsHandRaised *bool   `json:"is_hand_raised"`
	ContentRef   *string `json:"content_ref"`
	Content      *string `json:"content"`
}

// DecodeEvent turns a named inbound frame into its typed event. It returns
// ErrUnknownEvent, ErrInvalidPayload or an error wrapping ErrMissingField;
// callers on the socket path drop the frame on any error.
func DecodeEvent(name string, data json.RawMessage) (Event, error) {
	var p inboundPayload
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}

	switch name {
	case EventJoin:
		if err := require(p.RoomID, "room_id", p.UserID, "user_id", p.DisplayName, "display_name"); err != nil {
			return nil, err
		}
		return Join{RoomID: *p.RoomID, UserID: *p.UserID, DisplayName: strings.TrimSpace(*p.DisplayName)}, nil

	case EventLeave:
		if err := require(p.RoomID, "room_id", p.UserID, "user_id"); err != nil {
			return nil, err
		}
		return Leave{RoomID: *p.RoomID, UserID: *p.UserID}, nil

	case EventToggleMute:
		if err := require(p.RoomID, "room_id", p.UserID, "user_id"); err != nil {
			return nil, err
		}
		if p.IsMuted == nil {
			return nil, missing("is_muted")
		}
		return ToggleMute{RoomID: *p.RoomID, UserID: *p.UserID, IsMuted: *p.IsMuted}, nil

	case EventToggleVideo:
		if err := require(p.RoomID, "room_id", p.UserID, "user_id"); err != nil {
			return nil, err
		}
		if p.IsVideoOn == nil {
			return nil, missing("is_video_on")
		}
		return ToggleVideo{RoomID: *p.RoomID, UserID: *p.UserID, IsVideoOn: *p.IsVideoOn}, nil

	case EventRaiseHand:
		if err := require(p.RoomID, "room_id", p.UserID, "user_id"); err != nil {
			return nil, err
		}
		if p.IsHandRaised == nil {
			return nil, missing("is_hand_raised")
		}
		return RaiseHand{RoomID: *p.RoomID, UserID: *p.UserID, IsHandRaised: *p.IsHandRaised}, nil

	case EventStartPresenting:
		if err := require(p.RoomID, "room_id", p.UserID, "user_id", p.ContentRef, "content_ref"); err != nil {
			return nil, err
		}
		return StartPresenting{RoomID: *p.RoomID, UserID: *p.UserID, ContentRef: *p.ContentRef}, nil

	case EventStopPresenting:
		if err := require(p.RoomID, "room_id", p.UserID, "user_id"); err != nil {
			return nil, err
		}
		return StopPresenting{RoomID: *p.RoomID, UserID: *p.UserID}, nil

	case EventMuteAll:
		actor := firstPresent(p.ActingUserID, p.UserID, p.HostID)
		if err := require(p.RoomID, "room_id", actor, "acting_user_id"); err != nil {
			return nil, err
		}
		return MuteAll{RoomID: *p.RoomID, ActingUserID: *actor}, nil

	case EventSendMessage:
		if err := require(p.RoomID, "room_id", p.Content, "content"); err != nil {
			return nil, err
		}
		if err := ValidateChatContent(*p.Content); err != nil {
			return nil, err
		}
		msg := SendMessage{RoomID: *p.RoomID, Content: *p.Content}
		if p.UserID != nil {
			msg.UserID = *p.UserID
		}
		if p.DisplayName != nil {
			msg.DisplayName = *p.DisplayName
		}
		return msg, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

// require takes (value, name) pairs and reports the first absent or blank one.
func require(pairs ...any) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		v, _ := pairs[i].(*string)
		if v == nil || strings.TrimSpace(*v) == "" {
			return missing(pairs[i+1].(string))
		}
	}
	return nil
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

func firstPresent(candidates ...*string) *string {
	for _, c := range candidates {
		if c != nil && strings.TrimSpace(*c) != "" {
			return c
		}
	}
	return nil
}
