// Package messaging contains Vroom's conversation/message core: the
// conversation registry, message store, live-connection registry, the
// websocket gateway and its REST counterparts.
package messaging

import "context"

// ConversationStore is the single source of truth for "does a conversation
// exist between these two users, and who may touch it".
//
// Requirements:
//   - FindConversation is order-independent over the participant pair.
//   - CreateConversation is safe under races: a concurrent duplicate create
//     for the same pair must resolve to the one surviving row (the store's
//     uniqueness constraint is the authority; creators that hit it re-read).
type ConversationStore interface {
	FindConversation(ctx context.Context, userA, userB string) (Conversation, error)
	CreateConversation(ctx context.Context, userA, userB string) (Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)

	// LinkToProduct attaches optional product context; it never affects
	// authorization.
	LinkToProduct(ctx context.Context, conversationID, productID string) error
	FindByProduct(ctx context.Context, userID, productID string) (Conversation, error)

	// ListConversations returns the user's conversations newest-activity
	// first, hydrated with the other participant, last message and unread
	// count.
	ListConversations(ctx context.Context, userID string) ([]ConversationSummary, error)

	GetUser(ctx context.Context, id string) (User, error)
}

// MessageStore is the durable history and read-state for conversations.
//
// AppendMessage does not re-check participant authorization; that is the
// caller's responsibility, performed before persisting.
type MessageStore interface {
	AppendMessage(ctx context.Context, m *Message) error

	// ListByConversation returns messages oldest-first with pure
	// offset-based pagination.
	ListByConversation(ctx context.Context, conversationID string, limit, offset int) ([]Message, error)

	// MarkConversationRead flips IsRead for every message in the
	// conversation addressed to userID. Idempotent.
	MarkConversationRead(ctx context.Context, userID, conversationID string) error

	UnreadCount(ctx context.Context, userID, conversationID string) (int, error)
	TotalUnreadCount(ctx context.Context, userID string) (int, error)
	LastMessage(ctx context.Context, conversationID string) (Message, error)
}

// Store is the full persistence surface the service is wired against.
// A single backend (Postgres or in-memory) implements all of it.
type Store interface {
	ConversationStore
	MessageStore
	Close() error
}

func clampHistoryLimit(limit int) int {
	if limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
