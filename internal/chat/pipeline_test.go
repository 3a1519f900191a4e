package chat

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KavishkaDulshan/Chat-App-Backend/internal/apperrors"
)

func TestFirstContactSendCreatesConversationAndPushes(t *testing.T) {
	r := newRig()
	r.users.add(1, "alice", true)
	r.users.add(2, "bob", false)
	require.NoError(t, r.users.AddPushToken(context.Background(), 2, "tok-b"))

	sessA := r.connect(1)

	r.dispatch(t, sessA, EventChatMessage, ChatMessageRequest{
		RoomID:  compositeRef(1, 2),
		Content: "hello",
		Type:    TypeText,
	})

	// Sender echo carries the plaintext.
	env := recvEvent(t, sessA, EventChatMessage)
	var echo Message
	decodeData(t, env, &echo)
	assert.Equal(t, "hello", echo.Content)
	assert.Equal(t, 1, echo.SenderID)
	assert.Equal(t, "alice", echo.SenderName)
	assert.Equal(t, StatusSent, echo.Status)
	require.NotZero(t, echo.ID)

	// Stored row is ciphertext, never the plaintext.
	stored := r.store.message(echo.ID)
	assert.Equal(t, StatusSent, stored.Status)
	assert.NotEqual(t, "hello", stored.Content)
	plain, err := r.codec.Decrypt(stored.Content)
	require.NoError(t, err)
	assert.Equal(t, "hello", plain)

	// Preview holds the ciphertext too.
	conv := r.store.conversation(echo.ConversationID)
	assert.NotEqual(t, "hello", conv.LastMessage)
	assert.Equal(t, stored.Content, conv.LastMessage)

	// Exactly one push for the offline recipient, body free of content.
	require.Equal(t, 1, r.notifier.callCount())
	call := r.notifier.call(0)
	assert.Equal(t, []string{"tok-b"}, call.tokens)
	assert.Equal(t, "alice", call.title)
	assert.NotContains(t, call.body, "hello")
	assert.Equal(t, strconv.Itoa(echo.ConversationID), call.data["roomId"])
	assert.Equal(t, "1", call.data["senderId"])
}

func TestSendDeliversPlaintextToBothParticipants(t *testing.T) {
	r := newRig()
	r.users.add(1, "alice", true)
	r.users.add(2, "bob", true)

	sessA := r.connect(1)
	sessB := r.connect(2)

	r.dispatch(t, sessA, EventChatMessage, ChatMessageRequest{
		RoomID:  compositeRef(2, 1),
		Content: "hey there",
	})

	for _, sess := range []*Session{sessA, sessB} {
		env := recvEvent(t, sess, EventChatMessage)
		var msg Message
		decodeData(t, env, &msg)
		assert.Equal(t, "hey there", msg.Content)
		assert.Equal(t, TypeText, msg.Type)
	}

	// Recipient online, so no push.
	assert.Zero(t, r.notifier.callCount())
}

func TestSendWithCanonicalRoomID(t *testing.T) {
	r := newRig()
	r.users.add(1, "alice", true)
	r.users.add(2, "bob", true)

	conv, err := r.svc.Resolve(context.Background(), 1, 2)
	require.NoError(t, err)

	sessA := r.connect(1)
	r.dispatch(t, sessA, EventChatMessage, ChatMessageRequest{
		RoomID:  strconv.Itoa(conv.ID),
		Content: "via id",
	})

	env := recvEvent(t, sessA, EventChatMessage)
	var msg Message
	decodeData(t, env, &msg)
	assert.Equal(t, conv.ID, msg.ConversationID)
}

func TestSendRejectsOutsiders(t *testing.T) {
	r := newRig()
	r.users.add(1, "alice", true)
	r.users.add(2, "bob", true)
	r.users.add(3, "carol", true)

	conv, err := r.svc.Resolve(context.Background(), 1, 2)
	require.NoError(t, err)

	sessC := r.connect(3)
	r.dispatch(t, sessC, EventChatMessage, ChatMessageRequest{
		RoomID:  strconv.Itoa(conv.ID),
		Content: "let me in",
	})

	env := recvEvent(t, sessC, EventError)
	var ep ErrorPayload
	decodeData(t, env, &ep)
	assert.Equal(t, EventChatMessage, ep.Source)

	history, err := r.svc.LoadHistory(context.Background(), conv.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSendValidation(t *testing.T) {
	r := newRig()
	r.users.add(1, "alice", true)
	r.users.add(2, "bob", true)
	sessA := r.connect(1)

	r.dispatch(t, sessA, EventChatMessage, ChatMessageRequest{
		RoomID:  compositeRef(1, 2),
		Content: "   ",
	})
	recvEvent(t, sessA, EventError)

	r.dispatch(t, sessA, EventChatMessage, ChatMessageRequest{
		RoomID:  compositeRef(1, 2),
		Content: "clip",
		Type:    MessageType("video"),
	})
	recvEvent(t, sessA, EventError)

	// Neither attempt reached storage or push.
	assert.Empty(t, r.store.msgs)
	assert.Zero(t, r.notifier.callCount())
}

func TestPersistenceFailureSurfacedToSender(t *testing.T) {
	r := newRig()
	r.users.add(1, "alice", true)
	r.users.add(2, "bob", false)
	require.NoError(t, r.users.AddPushToken(context.Background(), 2, "tok-b"))
	r.store.insertErr = errors.New("connection refused")

	sessA := r.connect(1)
	r.dispatch(t, sessA, EventChatMessage, ChatMessageRequest{
		RoomID:  compositeRef(1, 2),
		Content: "doomed",
	})

	env := recvEvent(t, sessA, EventSendFailed)
	var sf SendFailedPayload
	decodeData(t, env, &sf)
	assert.Equal(t, compositeRef(1, 2), sf.RoomID)
	assert.NotEmpty(t, sf.Reason)

	// No fan-out, no push.
	expectNoFrame(t, sessA)
	assert.Zero(t, r.notifier.callCount())
}

func TestMediaMessagePassesThroughUnencrypted(t *testing.T) {
	r := newRig()
	r.users.add(1, "alice", true)
	r.users.add(2, "bob", false)
	require.NoError(t, r.users.AddPushToken(context.Background(), 2, "tok-b"))

	sessA := r.connect(1)
	r.dispatch(t, sessA, EventChatMessage, ChatMessageRequest{
		RoomID:  compositeRef(1, 2),
		Content: "http://localhost/uploads/pic.png",
		Type:    TypeImage,
	})

	env := recvEvent(t, sessA, EventChatMessage)
	var msg Message
	decodeData(t, env, &msg)

	stored := r.store.message(msg.ID)
	assert.Equal(t, "http://localhost/uploads/pic.png", stored.Content)

	conv := r.store.conversation(msg.ConversationID)
	assert.Equal(t, imagePreview, conv.LastMessage)

	require.Equal(t, 1, r.notifier.callCount())
	assert.Equal(t, "Sent a photo", r.notifier.call(0).body)
}

func TestPushFailureDoesNotFailSend(t *testing.T) {
	r := newRig()
	r.users.add(1, "alice", true)
	r.users.add(2, "bob", false)
	require.NoError(t, r.users.AddPushToken(context.Background(), 2, "tok-b"))
	r.notifier.err = errors.New("fcm unreachable")

	sessA := r.connect(1)
	r.dispatch(t, sessA, EventChatMessage, ChatMessageRequest{
		RoomID:  compositeRef(1, 2),
		Content: "still sends",
	})

	env := recvEvent(t, sessA, EventChatMessage)
	var msg Message
	decodeData(t, env, &msg)
	assert.Equal(t, "still sends", msg.Content)
}

func TestNoPushWithoutTokens(t *testing.T) {
	r := newRig()
	r.users.add(1, "alice", true)
	r.users.add(2, "bob", false)

	sessA := r.connect(1)
	r.dispatch(t, sessA, EventChatMessage, ChatMessageRequest{
		RoomID:  compositeRef(1, 2),
		Content: "quiet",
	})
	recvEvent(t, sessA, EventChatMessage)

	assert.Zero(t, r.notifier.callCount())
}

func TestLoadHistoryOrderPlaceholderAndDecrypt(t *testing.T) {
	r := newRig()
	r.users.add(1, "alice", true)
	r.users.add(2, "bob", true)
	sessA := r.connect(1)

	for _, text := range []string{"one", "two", "three"} {
		r.dispatch(t, sessA, EventChatMessage, ChatMessageRequest{
			RoomID:  compositeRef(1, 2),
			Content: text,
		})
		recvEvent(t, sessA, EventChatMessage)
	}

	conv, err := r.svc.Resolve(context.Background(), 1, 2)
	require.NoError(t, err)

	// Tombstone the middle message.
	_, deleted, err := r.store.SoftDelete(context.Background(), 2, 1)
	require.NoError(t, err)
	require.True(t, deleted)

	history, err := r.svc.LoadHistory(context.Background(), conv.ID, 50)
	require.NoError(t, err)
	require.Len(t, history, 3)

	// Oldest first, plaintext out, placeholder for the deleted row.
	assert.Equal(t, "one", history[0].Content)
	assert.Equal(t, DeletedPlaceholder, history[1].Content)
	assert.Equal(t, "three", history[2].Content)
	assert.True(t, history[1].Deleted)
	assert.Equal(t, "alice", history[0].SenderName)
}

func TestLoadHistoryRespectsLimitNewestKept(t *testing.T) {
	r := newRig()
	r.users.add(1, "alice", true)
	r.users.add(2, "bob", true)
	sessA := r.connect(1)

	for _, text := range []string{"m1", "m2", "m3", "m4"} {
		r.dispatch(t, sessA, EventChatMessage, ChatMessageRequest{
			RoomID:  compositeRef(1, 2),
			Content: text,
		})
		recvEvent(t, sessA, EventChatMessage)
	}

	conv, err := r.svc.Resolve(context.Background(), 1, 2)
	require.NoError(t, err)

	history, err := r.svc.LoadHistory(context.Background(), conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "m3", history[0].Content)
	assert.Equal(t, "m4", history[1].Content)
}

func TestLoadHistoryKeepsUndecryptableRows(t *testing.T) {
	r := newRig()
	r.users.add(1, "alice", true)
	r.users.add(2, "bob", true)

	conv, _, err := r.store.GetOrCreate(context.Background(), 1, 2)
	require.NoError(t, err)

	corrupt := &Message{ConversationID: conv.ID, SenderID: 1, Content: "enc:v1:!!!not-base64!!!", Type: TypeText}
	require.NoError(t, r.store.Insert(context.Background(), corrupt))
	legacy := &Message{ConversationID: conv.ID, SenderID: 2, Content: "plain legacy text", Type: TypeText}
	require.NoError(t, r.store.Insert(context.Background(), legacy))

	history, err := r.svc.LoadHistory(context.Background(), conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "enc:v1:!!!not-base64!!!", history[0].Content)
	assert.Equal(t, "plain legacy text", history[1].Content)
}

func TestHistoryRequiresMembership(t *testing.T) {
	r := newRig()
	r.users.add(1, "alice", true)
	r.users.add(2, "bob", true)
	r.users.add(3, "carol", true)

	conv, err := r.svc.Resolve(context.Background(), 1, 2)
	require.NoError(t, err)

	_, err = r.svc.History(context.Background(), 3, conv.ID, 10)
	assert.ErrorIs(t, err, apperrors.ErrNotAuthorized)

	_, err = r.svc.History(context.Background(), 1, conv.ID, 10)
	assert.NoError(t, err)
}

func TestListConversationsDecryptedPreviewAndUnread(t *testing.T) {
	r := newRig()
	r.users.add(1, "alice", true)
	r.users.add(2, "bob", true)
	sessA := r.connect(1)

	r.dispatch(t, sessA, EventChatMessage, ChatMessageRequest{
		RoomID:  compositeRef(1, 2),
		Content: "secret hello",
	})
	recvEvent(t, sessA, EventChatMessage)

	forBob, err := r.svc.ListConversations(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, forBob, 1)
	assert.Equal(t, "secret hello", forBob[0].LastMessage)
	assert.Equal(t, 1, forBob[0].UnreadCount)
	assert.Equal(t, "alice", forBob[0].OtherUsername)

	forAlice, err := r.svc.ListConversations(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, forAlice, 1)
	assert.Zero(t, forAlice[0].UnreadCount)
	assert.Equal(t, "bob", forAlice[0].OtherUsername)
}

func TestFreshConversationSentinelPreview(t *testing.T) {
	r := newRig()
	r.users.add(1, "alice", true)
	r.users.add(2, "bob", true)

	_, err := r.svc.Resolve(context.Background(), 1, 2)
	require.NoError(t, err)

	list, err := r.svc.ListConversations(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, conversationStartPreview, list[0].LastMessage)
	assert.False(t, strings.HasPrefix(list[0].LastMessage, "enc:v1:"))
}
