package messaging

import (
	"context"
	"sort"
	"sync"
	"time"
)

const memMaxMessagesPerConversation = 10_000

// InMemoryStore is the fallback Store when no database is configured.
// It keeps the same invariants as the Postgres store (order-independent pair
// uniqueness, idempotent mark-read, oldest-first history) behind one mutex,
// which also makes it the backend for most unit tests.
type InMemoryStore struct {
	mu    sync.Mutex
	users map[string]User
	convs map[string]*Conversation
	pairs map[pairKey]string // normalized pair -> conversation id
	msgs  map[string][]Message
}

// pairKey is the order-independent index key for a participant pair.
type pairKey struct {
	lo, hi string
}

func newPairKey(userA, userB string) pairKey {
	if userB < userA {
		userA, userB = userB, userA
	}
	return pairKey{lo: userA, hi: userB}
}

// NewInMemoryStore constructs an empty in-memory Store implementation.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users: make(map[string]User),
		convs: make(map[string]*Conversation),
		pairs: make(map[pairKey]string),
		msgs:  make(map[string][]Message),
	}
}

// Close closes the store (noop for in-memory).
func (s *InMemoryStore) Close() error { return nil }

// SeedUser inserts or replaces a user row (display fields for summaries).
func (s *InMemoryStore) SeedUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u
}

// GetUser returns the stored user row for id.
func (s *InMemoryStore) GetUser(_ context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

// FindConversation resolves the conversation for an unordered user pair.
func (s *InMemoryStore) FindConversation(ctx context.Context, userA, userB string) (Conversation, error) {
	userA, userB, err := normalizePair(userA, userB)
	if err != nil {
		return Conversation{}, err
	}
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.pairs[newPairKey(userA, userB)]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return *s.convs[id], nil
}

// CreateConversation creates the conversation for the pair, or returns the
// existing one when a concurrent creator got there first.
func (s *InMemoryStore) CreateConversation(ctx context.Context, userA, userB string) (Conversation, error) {
	userA, userB, err := normalizePair(userA, userB)
	if err != nil {
		return Conversation{}, err
	}
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := newPairKey(userA, userB)
	if id, ok := s.pairs[key]; ok {
		return *s.convs[id], nil
	}

	now := time.Now().UTC()
	id, err := NewID(now)
	if err != nil {
		return Conversation{}, err
	}

	c := &Conversation{
		ID:        id,
		User1ID:   userA,
		User2ID:   userB,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.convs[id] = c
	s.pairs[key] = id
	return *c, nil
}

// GetConversation returns the conversation by id.
func (s *InMemoryStore) GetConversation(_ context.Context, id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return *c, nil
}

// LinkToProduct attaches product context to a conversation.
func (s *InMemoryStore) LinkToProduct(_ context.Context, conversationID, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[conversationID]
	if !ok {
		return ErrConversationNotFound
	}
	c.ProductID = productID
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// FindByProduct locates the caller's conversation carrying productID context.
func (s *InMemoryStore) FindByProduct(_ context.Context, userID, productID string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *Conversation
	for _, c := range s.convs {
		if c.ProductID != productID || !c.HasParticipant(userID) {
			continue
		}
		if found == nil || c.UpdatedAt.After(found.UpdatedAt) {
			found = c
		}
	}
	if found == nil {
		return Conversation{}, ErrConversationNotFound
	}
	return *found, nil
}

// ListConversations returns the user's conversations newest-activity first.
func (s *InMemoryStore) ListConversations(_ context.Context, userID string) ([]ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ConversationSummary, 0, 8)
	for _, c := range s.convs {
		if !c.HasParticipant(userID) {
			continue
		}
		otherID, _ := c.OtherParticipant(userID)

		other, ok := s.users[otherID]
		if !ok {
			other = User{ID: otherID}
		}

		sum := ConversationSummary{
			Conversation: *c,
			OtherUser:    other,
		}
		if msgs := s.msgs[c.ID]; len(msgs) > 0 {
			last := msgs[len(msgs)-1]
			sum.LastMessage = &last
		}
		for _, m := range s.msgs[c.ID] {
			if m.ReceiverID == userID && !m.IsRead {
				sum.UnreadCount++
			}
		}
		out = append(out, sum)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Conversation.UpdatedAt.After(out[j].Conversation.UpdatedAt)
	})
	return out, nil
}

// AppendMessage persists a message, assigning id and timestamp, and bumps the
// owning conversation's last-message reference.
func (s *InMemoryStore) AppendMessage(ctx context.Context, m *Message) error {
	if m == nil {
		return ErrMessageNotFound
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[m.ConversationID]
	if !ok {
		return ErrConversationNotFound
	}

	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if m.ID == "" {
		id, err := NewID(m.CreatedAt)
		if err != nil {
			return err
		}
		m.ID = id
	}

	s.msgs[c.ID] = append(s.msgs[c.ID], *m)
	if len(s.msgs[c.ID]) > memMaxMessagesPerConversation {
		s.msgs[c.ID] = s.msgs[c.ID][len(s.msgs[c.ID])-memMaxMessagesPerConversation:]
	}

	c.LastMessageID = m.ID
	c.UpdatedAt = now
	return nil
}

// ListByConversation returns messages oldest-first with offset pagination.
func (s *InMemoryStore) ListByConversation(_ context.Context, conversationID string, limit, offset int) ([]Message, error) {
	limit = clampHistoryLimit(limit)
	if offset < 0 {
		offset = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.msgs[conversationID]
	if offset >= len(msgs) {
		return nil, nil
	}

	end := offset + limit
	if end > len(msgs) {
		end = len(msgs)
	}
	return append([]Message(nil), msgs[offset:end]...), nil
}

// MarkConversationRead flips IsRead for all messages addressed to userID.
func (s *InMemoryStore) MarkConversationRead(_ context.Context, userID, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.msgs[conversationID]
	for i := range msgs {
		if msgs[i].ReceiverID == userID {
			msgs[i].IsRead = true
		}
	}
	return nil
}

// UnreadCount counts unread messages addressed to userID in one conversation.
func (s *InMemoryStore) UnreadCount(_ context.Context, userID, conversationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.msgs[conversationID] {
		if m.ReceiverID == userID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

// TotalUnreadCount counts unread messages addressed to userID across all
// conversations.
func (s *InMemoryStore) TotalUnreadCount(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, msgs := range s.msgs {
		for _, m := range msgs {
			if m.ReceiverID == userID && !m.IsRead {
				n++
			}
		}
	}
	return n, nil
}

// LastMessage returns the newest message in the conversation.
func (s *InMemoryStore) LastMessage(_ context.Context, conversationID string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.msgs[conversationID]
	if len(msgs) == 0 {
		return Message{}, ErrMessageNotFound
	}
	return msgs[len(msgs)-1], nil
}
