package types

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestRoom_Validate(t *testing.T) {
	tests := []struct {
		name    string
		room    Room
		wantErr error
	}{
		{
			name:    "valid room",
			room:    Room{Name: "Physics 101", HostID: "teacher_1"},
			wantErr: nil,
		},
		{
			name:    "empty name",
			room:    Room{Name: "   ", HostID: "teacher_1"},
			wantErr: ErrInvalidRoomName,
		},
		{
			name:    "name too long",
			room:    Room{Name: strings.Repeat("a", 201), HostID: "teacher_1"},
			wantErr: ErrInvalidRoomName,
		},
		{
			name:    "invalid host",
			room:    Room{Name: "Physics 101", HostID: "bad host!"},
			wantErr: ErrInvalidHostID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.room.Validate()
			if err != tt.wantErr {
				t.Errorf("Room.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParticipant_ConnectionIDNotSerialized(t *testing.T) {
	p := Participant{ID: "p1", UserID: "u1", DisplayName: "Alice", Role: RoleTeacher, ConnectionID: "conn-secret"}

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Failed to marshal participant: %v", err)
	}
	if strings.Contains(string(data), "conn-secret") {
		t.Errorf("connection id leaked into JSON: %s", data)
	}
	if !strings.Contains(string(data), `"role":"teacher"`) {
		t.Errorf("expected role in JSON, got %s", data)
	}
}

func TestRoomSnapshot_AlwaysCarriesPresentationKeys(t *testing.T) {
	data, err := json.Marshal(RoomSnapshot{RoomID: "R1", Participants: []*Participant{}})
	if err != nil {
		t.Fatalf("Failed to marshal snapshot: %v", err)
	}
	for _, key := range []string{`"shared_content":""`, `"presenter_id":""`, `"participants":[]`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("Expected %s in room_state payload, got %s", key, data)
		}
	}
}

func TestDecodeEvent_Join(t *testing.T) {
	ev, err := DecodeEvent(EventJoin, json.RawMessage(`{"room_id":"R1","user_id":"U1","display_name":"Alice"}`))
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	join, ok := ev.(Join)
	if !ok {
		t.Fatalf("Expected Join, got %T", ev)
	}
	if join.RoomID != "R1" || join.UserID != "U1" || join.DisplayName != "Alice" {
		t.Errorf("Unexpected join payload: %+v", join)
	}
	if ev.Room() != "R1" {
		t.Errorf("Expected Room() R1, got %s", ev.Room())
	}
}

func TestDecodeEvent_MissingFields(t *testing.T) {
	tests := []struct {
		name  string
		event string
		data  string
	}{
		{"join without display name", EventJoin, `{"room_id":"R1","user_id":"U1"}`},
		{"join with blank room", EventJoin, `{"room_id":"  ","user_id":"U1","display_name":"A"}`},
		{"leave without user", EventLeave, `{"room_id":"R1"}`},
		{"toggle_mute without flag", EventToggleMute, `{"room_id":"R1","user_id":"U1"}`},
		{"toggle_video without flag", EventToggleVideo, `{"room_id":"R1","user_id":"U1"}`},
		{"raise_hand without flag", EventRaiseHand, `{"room_id":"R1","user_id":"U1"}`},
		{"start_presenting without content", EventStartPresenting, `{"room_id":"R1","user_id":"U1"}`},
		{"stop_presenting without room", EventStopPresenting, `{"user_id":"U1"}`},
		{"mute_all without actor", EventMuteAll, `{"room_id":"R1"}`},
		{"send_message without content", EventSendMessage, `{"room_id":"R1","user_id":"U1"}`},
		{"empty payload", EventLeave, ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent(tt.event, json.RawMessage(tt.data))
			if !errors.Is(err, ErrMissingField) {
				t.Errorf("Expected ErrMissingField, got %v", err)
			}
		})
	}
}

func TestDecodeEvent_FalseTogglesArePresent(t *testing.T) {
	ev, err := DecodeEvent(EventToggleMute, json.RawMessage(`{"room_id":"R1","user_id":"U1","is_muted":false}`))
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if mute := ev.(ToggleMute); mute.IsMuted {
		t.Error("Expected is_muted=false to decode as false")
	}
}

func TestDecodeEvent_MuteAllActor(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"acting_user_id", `{"room_id":"R1","acting_user_id":"U1","user_id":"U9"}`, "U1"},
		{"user_id fallback", `{"room_id":"R1","user_id":"U2"}`, "U2"},
		{"host_id fallback", `{"room_id":"R1","host_id":"U3"}`, "U3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent(EventMuteAll, json.RawMessage(tt.data))
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}
			if got := ev.(MuteAll).ActingUserID; got != tt.want {
				t.Errorf("Expected actor %s, got %s", tt.want, got)
			}
		})
	}
}

func TestDecodeEvent_UnknownAndInvalid(t *testing.T) {
	if _, err := DecodeEvent("teleport", json.RawMessage(`{}`)); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("Expected ErrUnknownEvent, got %v", err)
	}
	if _, err := DecodeEvent(EventJoin, json.RawMessage(`{"room_id":42}`)); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Expected ErrInvalidPayload, got %v", err)
	}
}

func TestDecodeEvent_ChatContentLimits(t *testing.T) {
	big := strings.Repeat("x", MaxChatContentBytes+1)
	data, _ := json.Marshal(map[string]string{"room_id": "R1", "content": big})
	if _, err := DecodeEvent(EventSendMessage, data); err != ErrContentTooLarge {
		t.Errorf("Expected ErrContentTooLarge, got %v", err)
	}

	ev, err := DecodeEvent(EventSendMessage, json.RawMessage(`{"room_id":"R1","content":"hi"}`))
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if msg := ev.(SendMessage); msg.UserID != "" || msg.Content != "hi" {
		t.Errorf("Unexpected chat payload: %+v", msg)
	}
}

func TestIsValidUserID(t *testing.T) {
	tests := []struct {
		userID string
		valid  bool
	}{
		{"user123", true},
		{"user_123", true},
		{"user-123", true},
		{"", false},
		{strings.Repeat("a", 65), false},
		{"user@123", false},
		{"user 123", false},
	}

	for _, tt := range tests {
		if got := IsValidUserID(tt.userID); got != tt.valid {
			t.Errorf("IsValidUserID(%q) = %v, want %v", tt.userID, got, tt.valid)
		}
	}
}
