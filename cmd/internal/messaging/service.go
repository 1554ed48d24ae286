package messaging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Service is the dispatcher core shared by the REST surface and the websocket
// gateway: one send-message pipeline (validate, resolve conversation,
// authorize, persist) so every caller goes through the identical sequence.
// Fan-out to live connections stays in the gateway; the service ends at
// durable persistence.
type Service struct {
	log     *slog.Logger
	store   Store
	metrics *Metrics
}

// NewService constructs the messaging service. metrics may be nil.
func NewService(log *slog.Logger, store Store, metrics *Metrics) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{log: log, store: store, metrics: metrics}
}

// SendInput is one message intent, regardless of transport.
type SendInput struct {
	ReceiverID     string
	Content        string
	ConversationID string
	ProductID      string
	OrderID        string
	Kind           Kind
	Metadata       map[string]any
	IsPrivate      bool
}

// Send runs the full send pipeline for senderID:
//
//  1. reject when receiver or content is absent;
//  2. reject sender == receiver;
//  3. resolve the conversation: load + authorize when an id is supplied,
//     find-or-create for the pair otherwise (linking product context
//     best-effort);
//  4. persist.
//
// No persistence write happens on any rejection.
func (s *Service) Send(ctx context.Context, senderID string, in SendInput) (Message, Conversation, error) {
	senderID = strings.TrimSpace(senderID)
	receiverID := strings.TrimSpace(in.ReceiverID)

	if senderID == "" || receiverID == "" || strings.TrimSpace(in.Content) == "" {
		return s.reject(ErrMissingFields)
	}
	if senderID == receiverID {
		return s.reject(ErrSelfMessage)
	}

	content, err := ValidateContent(in.Content)
	if err != nil {
		return s.reject(err)
	}

	kind := in.Kind
	if kind == "" {
		kind = KindDirect
	}
	if !kind.Valid() {
		return s.reject(ErrInvalidKind)
	}

	conv, err := s.resolveConversation(ctx, senderID, receiverID, in.ConversationID, in.ProductID)
	if err != nil {
		return s.reject(err)
	}

	msg := Message{
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		OrderID:        strings.TrimSpace(in.OrderID),
		Content:        content,
		Type:           kind,
		IsPrivate:      in.IsPrivate,
		Metadata:       in.Metadata,
	}
	if err := s.store.AppendMessage(ctx, &msg); err != nil {
		s.log.Error("messaging.send.persist_fail", "conversation_id", conv.ID, "err", err)
		return s.reject(err)
	}

	s.metrics.messageSent(kind)
	return msg, conv, nil
}

// resolveConversation implements step 3 of the pipeline.
func (s *Service) resolveConversation(ctx context.Context, senderID, receiverID, conversationID, productID string) (Conversation, error) {
	conversationID = strings.TrimSpace(conversationID)

	if conversationID != "" {
		conv, err := s.store.GetConversation(ctx, conversationID)
		if err != nil {
			return Conversation{}, err
		}
		if !conv.HasParticipant(senderID) {
			return Conversation{}, ErrAccessDenied
		}
		if other, _ := conv.OtherParticipant(senderID); other != receiverID {
			return Conversation{}, ErrReceiverMismatch
		}
		return conv, nil
	}

	conv, err := s.EnsureConversation(ctx, senderID, receiverID)
	if err != nil {
		return Conversation{}, err
	}

	if productID = strings.TrimSpace(productID); productID != "" {
		// Contextual only: a failed link never fails the send.
		if err := s.store.LinkToProduct(ctx, conv.ID, productID); err != nil {
			s.log.Warn("messaging.conversation.link_product_fail",
				"conversation_id", conv.ID, "product_id", productID, "err", err)
		} else {
			conv.ProductID = productID
		}
	}
	return conv, nil
}

// EnsureConversation is the single shared find-or-create for a user pair.
// Duplicate-creation races resolve through the store's uniqueness constraint:
// the losing creator re-reads the surviving row.
func (s *Service) EnsureConversation(ctx context.Context, userA, userB string) (Conversation, error) {
	conv, err := s.store.FindConversation(ctx, userA, userB)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrConversationNotFound) {
		return Conversation{}, err
	}
	return s.store.CreateConversation(ctx, userA, userB)
}

// History returns one page of a conversation's messages (oldest-first) after
// an authorization check. Viewing history marks the caller's pending messages
// read, so the returned page already reflects the flipped flags.
func (s *Service) History(ctx context.Context, userID, conversationID string, limit, offset int) (Conversation, []Message, error) {
	conv, err := s.authorizedConversation(ctx, userID, conversationID)
	if err != nil {
		return Conversation{}, nil, err
	}

	if err := s.store.MarkConversationRead(ctx, userID, conv.ID); err != nil {
		return Conversation{}, nil, err
	}

	msgs, err := s.store.ListByConversation(ctx, conv.ID, limit, offset)
	if err != nil {
		return Conversation{}, nil, err
	}
	return conv, msgs, nil
}

// ConversationWithUser finds or creates the conversation between userID and
// otherUserID and returns it with its first history page.
func (s *Service) ConversationWithUser(ctx context.Context, userID, otherUserID string, limit, offset int) (Conversation, []Message, error) {
	conv, err := s.EnsureConversation(ctx, userID, otherUserID)
	if err != nil {
		return Conversation{}, nil, err
	}
	return s.History(ctx, userID, conv.ID, limit, offset)
}

// Conversations lists the caller's conversations, newest activity first.
func (s *Service) Conversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	return s.store.ListConversations(ctx, userID)
}

// ProductConversation locates the caller's conversation carrying productID
// context.
func (s *Service) ProductConversation(ctx context.Context, userID, productID string) (Conversation, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Conversation{}, ErrConversationNotFound
	}
	return s.store.FindByProduct(ctx, userID, productID)
}

// UnreadTotal sums unread messages addressed to userID across all their
// conversations.
func (s *Service) UnreadTotal(ctx context.Context, userID string) (int, error) {
	return s.store.TotalUnreadCount(ctx, userID)
}

// MarkRead flips the read flag on every message addressed to userID in the
// conversation, after an authorization check. Idempotent.
func (s *Service) MarkRead(ctx context.Context, userID, conversationID string) error {
	conv, err := s.authorizedConversation(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	return s.store.MarkConversationRead(ctx, userID, conv.ID)
}

// NotifyOrder emits an order event into the buyer/seller conversation.
// Used by checkout; kind must be one of the order kinds or system.
func (s *Service) NotifyOrder(ctx context.Context, senderID, receiverID, orderID, content string, kind Kind) (Message, Conversation, error) {
	if kind != KindOrderNotification && kind != KindOrderConfirmation && kind != KindSystem {
		return s.reject(ErrInvalidKind)
	}
	return s.Send(ctx, senderID, SendInput{
		ReceiverID: receiverID,
		Content:    content,
		OrderID:    orderID,
		Kind:       kind,
	})
}

func (s *Service) authorizedConversation(ctx context.Context, userID, conversationID string) (Conversation, error) {
	conv, err := s.store.GetConversation(ctx, strings.TrimSpace(conversationID))
	if err != nil {
		return Conversation{}, err
	}
	if !conv.HasParticipant(userID) {
		return Conversation{}, ErrAccessDenied
	}
	return conv, nil
}

func (s *Service) reject(err error) (Message, Conversation, error) {
	s.metrics.sendRejectedWith(errorCode(err))
	return Message{}, Conversation{}, err
}
