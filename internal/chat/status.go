package chat

import (
	"context"

	"github.com/sirupsen/logrus"
)

// MarkDelivered promotes one message from sent to delivered and announces it
// to the conversation channel. Repeats, foreign rooms, own messages and
// unknown ids all fall out of the store as non-updates and stay silent.
func (s *Service) MarkDelivered(ctx context.Context, sess *Session, messageID int) {
	convID, updated, err := s.msgs.MarkDelivered(ctx, messageID, sess.UserID)
	if err != nil {
		logrus.WithError(err).WithField("messageId", messageID).Error("mark delivered")
		return
	}
	if !updated {
		return
	}
	s.hub.Emit(ConversationChannel(convID), NewEnvelope(EventStatusUpdate, StatusUpdatePayload{
		MessageID: messageID,
		RoomID:    convID,
		Status:    StatusDelivered,
	}))
}

// MarkRead bulk-promotes the counterpart's messages in the room to read and
// acknowledges with the reader's id. Read absorbs delivered: rows still at
// sent jump straight to read.
func (s *Service) MarkRead(ctx context.Context, sess *Session, roomID int) {
	updated, err := s.msgs.MarkConversationRead(ctx, roomID, sess.UserID)
	if err != nil {
		logrus.WithError(err).WithField("roomId", roomID).Error("mark read")
		return
	}
	if !updated {
		return
	}
	s.hub.Emit(ConversationChannel(roomID), NewEnvelope(EventReadAck, ReadAckPayload{
		RoomID:   roomID,
		ReaderID: sess.UserID,
	}))
}

// DeleteMessage tombstones one of the requester's own messages. Anyone
// else's request is ignored without a reply, so existence is not leaked.
// When the deleted message is the room's newest, the conversation preview is
// rewritten to the placeholder so list views stop showing its content.
func (s *Service) DeleteMessage(ctx context.Context, sess *Session, messageID int) {
	convID, deleted, err := s.msgs.SoftDelete(ctx, messageID, sess.UserID)
	if err != nil {
		logrus.WithError(err).WithField("messageId", messageID).Error("delete message")
		return
	}
	if !deleted {
		return
	}
	if err := s.convs.ErasePreview(ctx, convID, messageID); err != nil {
		logrus.WithError(err).WithField("messageId", messageID).Warn("preview erase failed")
	}
	s.hub.Emit(ConversationChannel(convID), NewEnvelope(EventMessageDeleted, MessageDeletedPayload{
		MessageID: messageID,
	}))
}

// Typing relays a typing indicator to everyone viewing the room except the
// typist. Nothing is persisted and no lookup runs per keystroke: the hub
// relays only within channels the typist has joined, so a session cannot
// signal into a room it never opened.
func (s *Service) Typing(sess *Session, roomID int, active bool) {
	event := EventHideTyping
	if active {
		event = EventDisplayTyping
	}
	s.hub.Relay(ConversationChannel(roomID), sess, NewEnvelope(event, TypingPayload{
		RoomID:   roomID,
		UserID:   sess.UserID,
		Username: sess.Username,
	}))
}
