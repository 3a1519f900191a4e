package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/KavishkaDulshan/Chat-App-Backend/internal/apperrors"
	"github.com/KavishkaDulshan/Chat-App-Backend/internal/crypto"
	"github.com/KavishkaDulshan/Chat-App-Backend/internal/push"
	"github.com/KavishkaDulshan/Chat-App-Backend/internal/user"
)

// eventTimeout bounds the I/O of one inbound event. Events are not
// cancellable once accepted; this only stops a wedged backend call from
// pinning the session's read loop forever.
const eventTimeout = 10 * time.Second

// Service wires the hub, the stores and the collaborators into the event
// operations. One instance serves every session.
type Service struct {
	hub      *Hub
	presence *Presence
	convs    ConversationStore
	msgs     MessageStore
	users    user.Store
	codec    *crypto.Codec
	notifier push.Notifier
}

func NewService(hub *Hub, presence *Presence, convs ConversationStore, msgs MessageStore,
	users user.Store, codec *crypto.Codec, notifier push.Notifier) *Service {
	return &Service{
		hub:      hub,
		presence: presence,
		convs:    convs,
		msgs:     msgs,
		users:    users,
		codec:    codec,
		notifier: notifier,
	}
}

// HandleConnect admits an authenticated connection: builds the session,
// registers it, bumps presence and confirms login. The registration op is
// queued before the confirmation frame, so the session is always routable by
// the time the client sees login_success.
func (s *Service) HandleConnect(conn *websocket.Conn, userID int) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("userId", userID).Error("admission lookup failed")
		conn.Close()
		return
	}

	sess := NewSession(u.ID, u.Username, u.Avatar, conn, s)
	s.hub.Register(sess)
	s.presence.Connected(ctx, u.ID)
	s.hub.Direct(sess, NewEnvelope(EventLoginSuccess, LoginSuccessPayload{
		UserID:   u.ID,
		Username: u.Username,
		Avatar:   u.Avatar,
	}))

	go sess.writePump()
	go sess.readPump()

	logrus.WithFields(logrus.Fields{
		"session":  sess.ID,
		"userId":   u.ID,
		"username": u.Username,
	}).Info("session opened")
}

// HandleDisconnect releases a session after its read loop ends.
func (s *Service) HandleDisconnect(sess *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	s.hub.Unregister(sess)
	s.presence.Disconnected(ctx, sess.UserID)

	logrus.WithFields(logrus.Fields{
		"session": sess.ID,
		"userId":  sess.UserID,
	}).Info("session closed")
}

// Dispatch decodes one inbound frame and runs its handler. Called inline
// from the session's read loop, so a session's events execute one at a time
// in arrival order. Bad frames earn an error event, never a dropped
// connection.
func (s *Service) Dispatch(sess *Session, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.sendError(sess, "dispatch", "malformed frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch env.Event {
	case EventChatMessage:
		var req ChatMessageRequest
		if !s.decode(sess, env, &req) {
			return
		}
		s.SendMessage(ctx, sess, req)

	case EventJoinPrivate:
		var req JoinPrivateChatRequest
		if !s.decode(sess, env, &req) {
			return
		}
		s.JoinPrivateChat(ctx, sess, req.OtherUserID)

	case EventMarkRead:
		var req ReadRequest
		if !s.decode(sess, env, &req) {
			return
		}
		s.MarkRead(ctx, sess, req.RoomID)

	case EventMarkDelivered:
		var req DeliveredRequest
		if !s.decode(sess, env, &req) {
			return
		}
		s.MarkDelivered(ctx, sess, req.MessageID)

	case EventDeleteMessage:
		var req DeleteRequest
		if !s.decode(sess, env, &req) {
			return
		}
		s.DeleteMessage(ctx, sess, req.MessageID)

	case EventTyping:
		var req TypingRequest
		if !s.decode(sess, env, &req) {
			return
		}
		s.Typing(sess, req.RoomID, true)

	case EventStopTyping:
		var req TypingRequest
		if !s.decode(sess, env, &req) {
			return
		}
		s.Typing(sess, req.RoomID, false)

	default:
		s.sendError(sess, "dispatch", "unknown event: "+env.Event)
	}
}

func (s *Service) decode(sess *Session, env Envelope, v any) bool {
	if err := json.Unmarshal(env.Data, v); err != nil {
		s.sendError(sess, env.Event, "malformed payload")
		return false
	}
	return true
}

func (s *Service) sendError(sess *Session, source, msg string) {
	s.hub.Direct(sess, NewEnvelope(EventError, ErrorPayload{Source: source, Message: msg}))
}

// reason picks the client-facing line for a failed request. Only messages
// from the error taxonomy are shown; anything else stays in the logs.
func reason(err error) string {
	var app *apperrors.AppError
	if errors.As(err, &app) {
		return app.Message
	}
	return "internal error"
}
