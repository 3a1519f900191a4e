package chat

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/KavishkaDulshan/Chat-App-Backend/internal/apperrors"
	myMiddleware "github.com/KavishkaDulshan/Chat-App-Backend/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// ServeWs upgrades an authenticated request into a chat session. Identity
// comes from the JWT middleware; an upgrade never proceeds anonymously.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	h.svc.HandleConnect(conn, userID)
}

// StartConversation finds or creates the conversation with another user and
// returns it, so clients can open a room before any message exists.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req JoinPrivateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	conv, err := h.svc.StartConversation(r.Context(), userID, req.OtherUserID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}

// ListConversations returns the caller's conversation list, newest activity
// first, with previews decrypted and unread counts attached.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	summaries, err := h.svc.ListConversations(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []ConversationSummary{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaries)
}

// GetChatHistory serves a room's recent messages to a participant.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(myMiddleware.UserKey).(int)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	roomID, err := strconv.Atoi(r.URL.Query().Get("roomId"))
	if err != nil || roomID <= 0 {
		http.Error(w, "roomId parameter is required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	messages, err := h.svc.History(r.Context(), userID, roomID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if messages == nil {
		messages = []*Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(messages)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.CodeOf(err) {
	case apperrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case apperrors.CodeNotFound:
		status = http.StatusNotFound
	case apperrors.CodeAlreadyExists:
		status = http.StatusConflict
	case apperrors.CodeUnauthenticated:
		status = http.StatusUnauthorized
	case apperrors.CodePermissionDenied:
		status = http.StatusForbidden
	}
	http.Error(w, err.Error(), status)
}
