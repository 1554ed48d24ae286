package messaging

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vroom/cmd/identity"
	v1 "vroom/shared/contracts/chat/v1"
)

const apiMaxBodyBytes = 16 << 10 // 16 KiB

// APIHandler exposes the REST counterpart of the realtime channel. Every
// endpoint runs the same validation/persistence pipeline as the websocket
// gateway (via Service); the only difference is the absence of fan-out.
type APIHandler struct {
	log *slog.Logger
	svc *Service
}

// NewAPIHandler constructs the REST handler.
func NewAPIHandler(log *slog.Logger, svc *Service) *APIHandler {
	if log == nil {
		log = slog.Default()
	}
	return &APIHandler{log: log, svc: svc}
}

// Register wires the message routes onto the provided mux.
func (h *APIHandler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("GET /api/messages/conversations", h.handleConversations)
	mux.HandleFunc("GET /api/messages/conversation/{id}", h.handleHistory)
	mux.HandleFunc("GET /api/messages/user/{otherUserID}", h.handleWithUser)
	mux.HandleFunc("POST /api/messages", h.handleSend)
	mux.HandleFunc("POST /api/messages/start", h.handleStart)
	mux.HandleFunc("GET /api/messages/product/{productID}", h.handleProduct)
	mux.HandleFunc("GET /api/messages/unread-count", h.handleUnreadCount)
}

// ---- request/response shapes ----

type sendRequest struct {
	ReceiverID     string         `json:"receiverId"`
	Content        string         `json:"content"`
	ConversationID string         `json:"conversationId,omitempty"`
	ProductID      string         `json:"productId,omitempty"`
	OrderID        string         `json:"orderId,omitempty"`
	MessageType    string         `json:"messageType,omitempty"`
	IsPrivate      bool           `json:"isPrivate,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

type startRequest struct {
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	ProductID  string `json:"productId,omitempty"`
}

type sendResponse struct {
	Message      v1.Message      `json:"message"`
	Conversation v1.Conversation `json:"conversation"`
}

type historyResponse struct {
	Conversation v1.Conversation `json:"conversation"`
	Messages     []v1.Message    `json:"messages"`
}

type userPayload struct {
	ID          string    `json:"id"`
	Username    string    `json:"username,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	AvatarURL   string    `json:"avatarUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

type summaryPayload struct {
	Conversation v1.Conversation `json:"conversation"`
	OtherUser    userPayload     `json:"otherUser"`
	LastMessage  *v1.Message     `json:"lastMessage,omitempty"`
	UnreadCount  int             `json:"unreadCount"`
}

type conversationsResponse struct {
	Conversations []summaryPayload `json:"conversations"`
}

type unreadCountResponse struct {
	UnreadCount int `json:"unreadCount"`
}

// ---- handlers ----

func (h *APIHandler) handleConversations(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "identity required")
		return
	}

	sums, err := h.svc.Conversations(r.Context(), principal.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := conversationsResponse{Conversations: make([]summaryPayload, 0, len(sums))}
	for _, s := range sums {
		p := summaryPayload{
			Conversation: wireConversation(s.Conversation),
			OtherUser: userPayload{
				ID:          s.OtherUser.ID,
				Username:    s.OtherUser.Username,
				DisplayName: s.OtherUser.DisplayName,
				AvatarURL:   s.OtherUser.AvatarURL,
				CreatedAt:   s.OtherUser.CreatedAt,
			},
			UnreadCount: s.UnreadCount,
		}
		if s.LastMessage != nil {
			m := wireMessage(*s.LastMessage)
			p.LastMessage = &m
		}
		out.Conversations = append(out.Conversations, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *APIHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "identity required")
		return
	}

	limit, offset := pageParams(r)
	conv, msgs, err := h.svc.History(r.Context(), principal.ID, r.PathValue("id"), limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{
		Conversation: wireConversation(conv),
		Messages:     wireMessages(msgs),
	})
}

func (h *APIHandler) handleWithUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "identity required")
		return
	}

	limit, offset := pageParams(r)
	conv, msgs, err := h.svc.ConversationWithUser(r.Context(), principal.ID, r.PathValue("otherUserID"), limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, historyResponse{
		Conversation: wireConversation(conv),
		Messages:     wireMessages(msgs),
	})
}

func (h *APIHandler) handleSend(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "identity required")
		return
	}

	var req sendRequest
	if err := decodeJSON(w, r, apiMaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	msg, conv, err := h.svc.Send(r.Context(), principal.ID, SendInput{
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		ConversationID: req.ConversationID,
		ProductID:      req.ProductID,
		OrderID:        req.OrderID,
		Kind:           Kind(req.MessageType),
		IsPrivate:      req.IsPrivate,
		Metadata:       req.Metadata,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, sendResponse{
		Message:      wireMessage(msg),
		Conversation: wireConversation(conv),
	})
}

func (h *APIHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "identity required")
		return
	}

	var req startRequest
	if err := decodeJSON(w, r, apiMaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	// Conversations are only ever created alongside their first message.
	msg, conv, err := h.svc.Send(r.Context(), principal.ID, SendInput{
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		ProductID:  req.ProductID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, sendResponse{
		Message:      wireMessage(msg),
		Conversation: wireConversation(conv),
	})
}

func (h *APIHandler) handleProduct(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "identity required")
		return
	}

	conv, err := h.svc.ProductConversation(r.Context(), principal.ID, r.PathValue("productID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Conversation v1.Conversation `json:"conversation"`
	}{Conversation: wireConversation(conv)})
}

func (h *APIHandler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	principal, ok := identity.FromRequest(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "identity required")
		return
	}

	n, err := h.svc.UnreadTotal(r.Context(), principal.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unreadCountResponse{UnreadCount: n})
}

// ---- error mapping ----

func (h *APIHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.log.Error("api.messages.fail", "path", r.URL.Path, "err", err)
	}
	writeError(w, status, errorCode(err), publicMessage(err))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, ErrMissingFields),
		errors.Is(err, ErrSelfMessage),
		errors.Is(err, ErrInvalidParticipants),
		errors.Is(err, ErrContentInvalid),
		errors.Is(err, ErrInvalidKind):
		return http.StatusBadRequest
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrReceiverMismatch):
		return http.StatusForbidden
	case errors.Is(err, ErrConversationNotFound),
		errors.Is(err, ErrMessageNotFound),
		errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func pageParams(r *http.Request) (limit, offset int) {
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	if v := strings.TrimSpace(q.Get("offset")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			offset = n
		}
	}
	return limit, offset
}
