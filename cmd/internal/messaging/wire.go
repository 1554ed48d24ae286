package messaging

import (
	v1 "vroom/shared/contracts/chat/v1"
)

// wireMessage maps a domain message onto its wire representation.
func wireMessage(m Message) v1.Message {
	return v1.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		OrderID:        m.OrderID,
		Content:        m.Content,
		MessageType:    string(m.Type),
		IsRead:         m.IsRead,
		IsPrivate:      m.IsPrivate,
		Metadata:       m.Metadata,
		CreatedAt:      m.CreatedAt,
	}
}

// wireConversation maps a domain conversation onto its wire representation.
func wireConversation(c Conversation) v1.Conversation {
	return v1.Conversation{
		ID:        c.ID,
		User1ID:   c.User1ID,
		User2ID:   c.User2ID,
		ProductID: c.ProductID,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func wireMessages(msgs []Message) []v1.Message {
	out := make([]v1.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, wireMessage(m))
	}
	return out
}
