package messaging

import (
	"errors"
	"strings"
)

// Sentinel errors for the messaging core. Handlers and the websocket gateway
// map these onto HTTP status codes / error frames; everything else is treated
// as a transient persistence failure.
var (
	// ErrMissingFields: receiverId or content absent from a send intent.
	ErrMissingFields = errors.New("messaging: receiverId and content are required")

	// ErrSelfMessage: sender and receiver are the same user.
	ErrSelfMessage = errors.New("messaging: cannot send a message to yourself")

	// ErrInvalidParticipants: a conversation needs two distinct, non-empty users.
	ErrInvalidParticipants = errors.New("messaging: conversation requires two distinct participants")

	// ErrContentInvalid: content empty or over the length limit after trimming.
	ErrContentInvalid = errors.New("messaging: content must be between 1 and 1000 characters")

	// ErrInvalidKind: messageType outside the allowed enum.
	ErrInvalidKind = errors.New("messaging: invalid message type")

	// ErrConversationNotFound: unknown conversation id, or no conversation for a pair.
	ErrConversationNotFound = errors.New("messaging: conversation not found")

	// ErrMessageNotFound: conversation has no messages.
	ErrMessageNotFound = errors.New("messaging: message not found")

	// ErrUserNotFound: unknown user id.
	ErrUserNotFound = errors.New("messaging: user not found")

	// ErrAccessDenied: caller is not a participant of the conversation.
	ErrAccessDenied = errors.New("messaging: not a participant of this conversation")

	// ErrReceiverMismatch: receiver is not the other participant of the conversation.
	ErrReceiverMismatch = errors.New("messaging: receiver is not the other participant")
)

// errorCode maps a core error onto its stable wire code. Unknown errors are
// reported as "internal" and never leak details to the caller.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrMissingFields):
		return "missing_fields"
	case errors.Is(err, ErrSelfMessage):
		return "self_message_denied"
	case errors.Is(err, ErrInvalidParticipants):
		return "invalid_participants"
	case errors.Is(err, ErrContentInvalid):
		return "invalid_content"
	case errors.Is(err, ErrInvalidKind):
		return "invalid_message_type"
	case errors.Is(err, ErrConversationNotFound):
		return "conversation_not_found"
	case errors.Is(err, ErrMessageNotFound):
		return "message_not_found"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, ErrReceiverMismatch):
		return "receiver_mismatch"
	default:
		return "internal"
	}
}

// publicMessage is the human-readable error surfaced to callers. Unknown
// (persistence/transient) failures become a generic message; their details
// stay in the server logs.
func publicMessage(err error) string {
	if errorCode(err) == "internal" {
		return "failed to process message"
	}
	return strings.TrimPrefix(err.Error(), "messaging: ")
}

