// Package v1 defines the Vroom chat wire contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Frame type tags (wire-stable).
const (
	// TypeMessage carries an accepted message (server -> client).
	TypeMessage = "message"
	// TypeError reports a message-level failure to the offending sender only (server -> client).
	TypeError = "error"
)

// SendFrame is the client -> server message intent.
//
// ConversationID and ProductID are optional: when ConversationID is omitted the
// server resolves (or lazily creates) the conversation for the sender/receiver
// pair, and ProductID is linked to it as context.
type SendFrame struct {
	ReceiverID     string `json:"receiverId"`
	Content        string `json:"content"`
	ConversationID string `json:"conversationId,omitempty"`
	ProductID      string `json:"productId,omitempty"`
}

// Validate performs structural validation for an inbound send intent.
// Content length limits are enforced by the domain layer, not here.
func (f SendFrame) Validate() error {
	if strings.TrimSpace(f.ReceiverID) == "" {
		return errors.New("missing field: receiverId")
	}
	if strings.TrimSpace(f.Content) == "" {
		return errors.New("missing field: content")
	}
	return nil
}

// Message is the wire representation of a persisted message.
type Message struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversationId"`
	SenderID       string         `json:"senderId"`
	ReceiverID     string         `json:"receiverId"`
	OrderID        string         `json:"orderId,omitempty"`
	Content        string         `json:"content"`
	MessageType    string         `json:"messageType"`
	IsRead         bool           `json:"isRead"`
	IsPrivate      bool           `json:"isPrivate"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// Conversation is the wire representation of a conversation.
type Conversation struct {
	ID        string    `json:"id"`
	User1ID   string    `json:"user1Id"`
	User2ID   string    `json:"user2Id"`
	ProductID string    `json:"productId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Frame is the server -> client tagged union. Exactly one shape is populated
// depending on Type: message frames carry Data and Conversation, error frames
// carry Message.
type Frame struct {
	Type         string        `json:"type"`
	Data         *Message      `json:"data,omitempty"`
	Conversation *Conversation `json:"conversation,omitempty"`
	Message      string        `json:"message,omitempty"`
}

// NewMessageFrame builds the fan-out/echo frame for an accepted message.
func NewMessageFrame(m Message, c Conversation) Frame {
	return Frame{Type: TypeMessage, Data: &m, Conversation: &c}
}

// NewErrorFrame builds an error frame for the offending sender.
func NewErrorFrame(msg string) Frame {
	return Frame{Type: TypeError, Message: msg}
}

// Validate performs strict structural validation for an outbound Frame.
func (f Frame) Validate() error {
	switch f.Type {
	case TypeMessage:
		if f.Data == nil {
			return errors.New("message frame: missing data")
		}
		if f.Conversation == nil {
			return errors.New("message frame: missing conversation")
		}
		return nil
	case TypeError:
		if strings.TrimSpace(f.Message) == "" {
			return errors.New("error frame: missing message")
		}
		return nil
	case "":
		return errors.New("missing field: type")
	default:
		return fmt.Errorf("unknown type: %q", f.Type)
	}
}
