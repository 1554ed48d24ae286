package messaging

import (
	"strings"
	"time"
)

// Conversation is the private channel between exactly two distinct users.
// The pair is conceptually unordered but stored in two fixed slots; lookups
// must therefore check both orderings.
type Conversation struct {
	ID            string
	User1ID       string
	User2ID       string
	ProductID     string
	LastMessageID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasParticipant reports whether userID occupies either participant slot.
func (c Conversation) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return c.User1ID == userID || c.User2ID == userID
}

// OtherParticipant returns the participant opposite to userID.
// ok is false when userID is not a participant at all.
func (c Conversation) OtherParticipant(userID string) (string, bool) {
	switch userID {
	case "":
		return "", false
	case c.User1ID:
		return c.User2ID, true
	case c.User2ID:
		return c.User1ID, true
	default:
		return "", false
	}
}

// User holds the display fields the core stores for conversation summaries.
// Identity itself is owned by the external auth layer; the core only stores
// and compares ids.
type User struct {
	ID          string
	Username    string
	DisplayName string
	AvatarURL   string
	CreatedAt   time.Time
}

// ConversationSummary is one row of a user's conversation listing: the
// conversation, who it is with, the last message (if any) and how many
// messages are still unread for the caller.
type ConversationSummary struct {
	Conversation Conversation
	OtherUser    User
	LastMessage  *Message
	UnreadCount  int
}

// normalizePair validates and trims a participant pair.
// Slot order is preserved; uniqueness across orderings is the store's job.
func normalizePair(userA, userB string) (string, string, error) {
	userA = strings.TrimSpace(userA)
	userB = strings.TrimSpace(userB)
	if userA == "" || userB == "" || userA == userB {
		return "", "", ErrInvalidParticipants
	}
	return userA, userB, nil
}
