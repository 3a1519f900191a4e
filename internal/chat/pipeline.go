package chat

import (
	"context"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/KavishkaDulshan/Chat-App-Backend/internal/apperrors"
)

const defaultHistoryLimit = 50

// SendMessage runs the full pipeline for one inbound message: validate,
// encrypt text, persist, refresh the conversation preview, fan out the
// plaintext to both participants' user channels and push to an offline
// recipient. Steps after persistence are best-effort; a persistence failure
// is the one surfaced back to the sender.
func (s *Service) SendMessage(ctx context.Context, sess *Session, req ChatMessageRequest) {
	if err := normalizeMessage(&req); err != nil {
		s.sendError(sess, EventChatMessage, reason(err))
		return
	}
	content := req.Content

	conv, err := s.ResolveRoomRef(ctx, req.RoomID, sess.UserID)
	if err != nil {
		s.sendError(sess, EventChatMessage, reason(err))
		return
	}

	stored := content
	if req.Type == TypeText {
		stored, err = s.codec.Encrypt(content)
		if err != nil {
			logrus.WithError(err).WithField("roomId", conv.ID).Error("encrypt message")
			s.sendFailed(sess, req.RoomID, "message could not be secured")
			return
		}
	}

	msg := &Message{
		ConversationID: conv.ID,
		SenderID:       sess.UserID,
		Content:        stored,
		Type:           req.Type,
		Duration:       req.Duration,
	}
	if err := s.msgs.Insert(ctx, msg); err != nil {
		logrus.WithError(err).WithField("roomId", conv.ID).Error("persist message")
		s.sendFailed(sess, req.RoomID, "message could not be saved")
		return
	}

	if err := s.convs.UpdatePreview(ctx, conv.ID, previewFor(stored, req.Type)); err != nil {
		logrus.WithError(err).WithField("roomId", conv.ID).Warn("preview update failed")
	}

	// The wire payload carries the plaintext; ciphertext never leaves
	// storage. Sender identity rides along so clients render without a
	// directory lookup, and the sender's own echo reconciles optimistic UI.
	msg.Content = content
	msg.SenderName = sess.Username
	msg.SenderAvatar = sess.Avatar
	env := NewEnvelope(EventChatMessage, msg)
	s.hub.Emit(UserChannel(conv.UserA), env)
	s.hub.Emit(UserChannel(conv.UserB), env)

	s.notifyOffline(ctx, conv, sess, req.Type)
}

// normalizeMessage defaults the type and trims text content. Empty text and
// unrecognized types are the only rejections; media content is an opaque URL
// and passes as-is.
func normalizeMessage(req *ChatMessageRequest) error {
	if req.Type == "" {
		req.Type = TypeText
	}
	if !req.Type.Valid() {
		return apperrors.ErrInvalidMessage
	}
	if req.Type == TypeText {
		req.Content = strings.TrimSpace(req.Content)
		if req.Content == "" {
			return apperrors.ErrInvalidMessage
		}
	}
	return nil
}

func (s *Service) sendFailed(sess *Session, roomRef, why string) {
	s.hub.Direct(sess, NewEnvelope(EventSendFailed, SendFailedPayload{
		RoomID: roomRef,
		Reason: why,
	}))
}

// notifyOffline fires at most one push at the counterpart, and only when
// they are offline with registered device tokens. The body never contains
// the message text.
func (s *Service) notifyOffline(ctx context.Context, conv *Conversation, sess *Session, mtype MessageType) {
	recipientID := conv.OtherParticipant(sess.UserID)
	recipient, err := s.users.GetByID(ctx, recipientID)
	if err != nil {
		logrus.WithError(err).WithField("userId", recipientID).Warn("push recipient lookup failed")
		return
	}
	if recipient.Online {
		return
	}

	tokens, err := s.users.PushTokens(ctx, recipientID)
	if err != nil {
		logrus.WithError(err).WithField("userId", recipientID).Warn("push token lookup failed")
		return
	}
	if len(tokens) == 0 {
		return
	}

	data := map[string]string{
		"roomId":   strconv.Itoa(conv.ID),
		"senderId": strconv.Itoa(sess.UserID),
	}
	if err := s.notifier.Notify(ctx, tokens, sess.Username, pushBody(mtype), data); err != nil {
		logrus.WithError(err).WithField("userId", recipientID).Warn("push delivery failed")
	}
}

func pushBody(t MessageType) string {
	switch t {
	case TypeImage:
		return "Sent a photo"
	case TypeAudio:
		return "Sent a voice message"
	default:
		return "Sent you a new message"
	}
}

// previewFor keeps plaintext out of the conversation row: text previews stay
// ciphertext, media previews are fixed labels.
func previewFor(stored string, t MessageType) string {
	switch t {
	case TypeImage:
		return imagePreview
	case TypeAudio:
		return audioPreview
	default:
		return stored
	}
}

// LoadHistory returns up to limit recent messages oldest-first, decrypted
// for display. Deleted messages render as the placeholder whatever their
// stored content decrypts to; rows that fail to decrypt keep their stored
// string rather than dropping from history.
func (s *Service) LoadHistory(ctx context.Context, convID, limit int) ([]*Message, error) {
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	messages, err := s.msgs.ListRecent(ctx, convID, limit)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	for _, msg := range messages {
		if msg.Deleted {
			msg.Content = DeletedPlaceholder
			continue
		}
		plain, err := s.codec.Decrypt(msg.Content)
		if err != nil {
			logrus.WithError(err).WithField("messageId", msg.ID).Warn("undecryptable message in history")
			continue
		}
		msg.Content = plain
	}
	return messages, nil
}

// History is the REST entry to LoadHistory: only participants may read a
// room's messages.
func (s *Service) History(ctx context.Context, actorID, convID, limit int) ([]*Message, error) {
	conv, err := s.convs.GetByID(ctx, convID)
	if err != nil {
		return nil, err
	}
	if !conv.Includes(actorID) {
		return nil, apperrors.ErrNotAuthorized
	}
	return s.LoadHistory(ctx, conv.ID, limit)
}

// ListConversations returns the user's conversation list with previews
// decrypted for display. Media labels and the start-of-conversation sentinel
// carry no envelope prefix, so they pass through unchanged.
func (s *Service) ListConversations(ctx context.Context, userID int) ([]ConversationSummary, error) {
	summaries, err := s.convs.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range summaries {
		plain, err := s.codec.Decrypt(summaries[i].LastMessage)
		if err != nil {
			logrus.WithError(err).WithField("roomId", summaries[i].ID).Warn("undecryptable preview")
			continue
		}
		summaries[i].LastMessage = plain
	}
	return summaries, nil
}
