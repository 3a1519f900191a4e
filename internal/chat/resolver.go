package chat

import (
	"context"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/KavishkaDulshan/Chat-App-Backend/internal/apperrors"
)

// Resolve returns the one conversation for the unordered pair (a, b),
// creating it on first contact. Self-conversations and unknown users are
// InvalidParticipant.
func (s *Service) Resolve(ctx context.Context, a, b int) (*Conversation, error) {
	if a <= 0 || b <= 0 || a == b {
		return nil, apperrors.ErrInvalidParticipant
	}
	for _, id := range []int{a, b} {
		if _, err := s.users.GetByID(ctx, id); err != nil {
			if apperrors.CodeOf(err) == apperrors.CodeNotFound {
				return nil, apperrors.ErrInvalidParticipant
			}
			return nil, err
		}
	}

	conv, created, err := s.convs.GetOrCreate(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if created {
		logrus.WithFields(logrus.Fields{
			"roomId": conv.ID,
			"userA":  conv.UserA,
			"userB":  conv.UserB,
		}).Info("conversation created")
	}
	return conv, nil
}

// StartConversation is the REST face of Resolve: the returned conversation
// carries its preview decrypted for display, like the list view, so
// ciphertext never leaves storage through this path either.
func (s *Service) StartConversation(ctx context.Context, a, b int) (*Conversation, error) {
	conv, err := s.Resolve(ctx, a, b)
	if err != nil {
		return nil, err
	}
	plain, err := s.codec.Decrypt(conv.LastMessage)
	if err != nil {
		logrus.WithError(err).WithField("roomId", conv.ID).Warn("undecryptable preview")
		return conv, nil
	}
	conv.LastMessage = plain
	return conv, nil
}

// ResolveRoomRef accepts either a canonical conversation id or the pending
// composite token "idA_idB" a client uses before the conversation exists.
// The actor must be a participant either way.
func (s *Service) ResolveRoomRef(ctx context.Context, ref string, actorID int) (*Conversation, error) {
	if a, b, ok := splitComposite(ref); ok {
		if actorID != a && actorID != b {
			return nil, apperrors.ErrNotAuthorized
		}
		return s.Resolve(ctx, a, b)
	}

	id, err := strconv.Atoi(ref)
	if err != nil || id <= 0 {
		return nil, apperrors.ErrConversationNotFound
	}
	conv, err := s.convs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.Includes(actorID) {
		return nil, apperrors.ErrNotAuthorized
	}
	return conv, nil
}

func splitComposite(ref string) (int, int, bool) {
	left, right, found := strings.Cut(ref, "_")
	if !found {
		return 0, 0, false
	}
	a, errA := strconv.Atoi(left)
	b, errB := strconv.Atoi(right)
	if errA != nil || errB != nil {
		return 0, 0, false
	}
	return a, b, true
}

// JoinPrivateChat resolves the conversation with otherUserID, subscribes the
// session to its channel and replies with the room id plus recent history.
// The join op is queued ahead of the ready frame, so the client is already
// receiving room events when it renders the history.
func (s *Service) JoinPrivateChat(ctx context.Context, sess *Session, otherUserID int) {
	conv, err := s.Resolve(ctx, sess.UserID, otherUserID)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"userId": sess.UserID,
			"other":  otherUserID,
		}).Debug("join rejected")
		s.sendError(sess, EventJoinPrivate, reason(err))
		return
	}

	history, err := s.LoadHistory(ctx, conv.ID, defaultHistoryLimit)
	if err != nil {
		logrus.WithError(err).WithField("roomId", conv.ID).Error("load history for join")
		s.sendError(sess, EventJoinPrivate, "history unavailable")
		return
	}
	if history == nil {
		history = []*Message{}
	}

	s.hub.Join(sess, ConversationChannel(conv.ID))
	s.hub.Direct(sess, NewEnvelope(EventPrivateChatReady, PrivateChatReadyPayload{
		RoomID:  conv.ID,
		History: history,
	}))
}
