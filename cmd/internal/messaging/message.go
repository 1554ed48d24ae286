package messaging

import (
	"strings"
	"time"
)

// Kind classifies a message on the wire and in storage.
type Kind string

// Message kinds (wire-stable).
const (
	KindDirect            Kind = "direct_message"
	KindOrderNotification Kind = "order_notification"
	KindOrderConfirmation Kind = "order_confirmation"
	KindSystem            Kind = "system"
)

// Valid reports whether k is one of the allowed kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDirect, KindOrderNotification, KindOrderConfirmation, KindSystem:
		return true
	default:
		return false
	}
}

// Message is a single directed communication unit inside a conversation.
//
// Messages are immutable after creation except for IsRead, which transitions
// false -> true when the receiver views the conversation.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	OrderID        string
	Content        string
	Type           Kind
	IsRead         bool
	IsPrivate      bool
	Metadata       map[string]any
	CreatedAt      time.Time
}

// ValidateContent trims content and enforces the 1..1000 character bound.
// Length is measured in runes, matching what users perceive as characters.
func ValidateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrContentInvalid
	}
	if len([]rune(content)) > maxContentChars {
		return "", ErrContentInvalid
	}
	return content, nil
}
