package types

import (
	"regexp"
	"strings"
)

// MaxChatContentBytes bounds a single chat line.
const MaxChatContentBytes = 4096

var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate checks a room record before it is persisted.
func (r *Room) Validate() error {
	name := strings.TrimSpace(r.Name)
	if len(name) < 1 || len(name) > 200 {
		return ErrInvalidRoomName
	}
	if !IsValidUserID(r.HostID) {
		return ErrInvalidHostID
	}
	return nil
}

// IsValidUserID checks the format of externally issued user identities
// accepted by the REST layer. Identities are otherwise opaque.
func IsValidUserID(userID string) bool {
	if len(userID) < 1 || len(userID) > 64 {
		return false
	}
	return userIDRegex.MatchString(userID)
}

// ValidateChatContent rejects blank and oversized chat lines.
func ValidateChatContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyContent
	}
	if len(content) > MaxChatContentBytes {
		return ErrContentTooLarge
	}
	return nil
}

// IsValidRole reports whether role is one of the two participant roles.
func IsValidRole(role string) bool {
	return role == RoleTeacher || role == RoleStudent
}
