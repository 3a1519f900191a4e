package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/KavishkaDulshan/Chat-App-Backend/internal/apperrors"
	"github.com/KavishkaDulshan/Chat-App-Backend/internal/crypto"
	"github.com/KavishkaDulshan/Chat-App-Backend/internal/user"
)

// ---- fake user directory ----

type fakeUsers struct {
	mu     sync.Mutex
	users  map[int]*user.User
	tokens map[int][]string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[int]*user.User), tokens: make(map[int][]string)}
}

func (f *fakeUsers) add(id int, name string, online bool) *user.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &user.User{ID: id, Username: name, Avatar: name + ".png", Online: online}
	f.users[id] = u
	return u
}

func (f *fakeUsers) CreateUser(_ context.Context, u *user.User) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = len(f.users) + 1
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, name string) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == name {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperrors.ErrUserNotFound
}

func (f *fakeUsers) SearchUsers(context.Context, string) ([]user.User, error) {
	return nil, nil
}

func (f *fakeUsers) SetOnline(_ context.Context, id int, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.Online = online
	}
	return nil
}

func (f *fakeUsers) AddPushToken(_ context.Context, userID int, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[userID] = append(f.tokens[userID], token)
	return nil
}

func (f *fakeUsers) PushTokens(_ context.Context, userID int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.tokens[userID]...), nil
}

// ---- fake conversation + message store ----

// memStore mimics the SQL store's semantics in memory, guards included, so
// service tests exercise the same contracts the real store honors.
type memStore struct {
	mu       sync.Mutex
	users    *fakeUsers
	nextConv int
	nextMsg  int
	convs    map[int]*Conversation
	msgs     map[int]*Message

	insertErr error // forced failure for Insert
}

func newMemStore(users *fakeUsers) *memStore {
	return &memStore{
		users: users,
		convs: make(map[int]*Conversation),
		msgs:  make(map[int]*Message),
	}
}

func (m *memStore) GetOrCreate(_ context.Context, a, b int) (*Conversation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.convs {
		if (c.UserA == a && c.UserB == b) || (c.UserA == b && c.UserB == a) {
			cp := *c
			return &cp, false, nil
		}
	}
	m.nextConv++
	c := &Conversation{
		ID:          m.nextConv,
		UserA:       a,
		UserB:       b,
		LastMessage: conversationStartPreview,
		LastUpdated: time.Now(),
		CreatedAt:   time.Now(),
	}
	m.convs[c.ID] = c
	cp := *c
	return &cp, true, nil
}

func (m *memStore) GetByID(_ context.Context, id int) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, apperrors.ErrConversationNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListForUser(_ context.Context, userID int) ([]ConversationSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ConversationSummary
	for _, c := range m.convs {
		if !c.Includes(userID) {
			continue
		}
		other := m.users.users[c.OtherParticipant(userID)]
		unread := 0
		for _, msg := range m.msgs {
			if msg.ConversationID == c.ID && msg.SenderID != userID &&
				msg.Status != StatusRead && !msg.Deleted {
				unread++
			}
		}
		out = append(out, ConversationSummary{
			ID:            c.ID,
			OtherUserID:   other.ID,
			OtherUsername: other.Username,
			OtherAvatar:   other.Avatar,
			OtherOnline:   other.Online,
			LastMessage:   c.LastMessage,
			LastUpdated:   c.LastUpdated,
			UnreadCount:   unread,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	return out, nil
}

func (m *memStore) UpdatePreview(_ context.Context, convID int, preview string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.convs[convID]; ok {
		c.LastMessage = preview
		c.LastUpdated = time.Now()
	}
	return nil
}

func (m *memStore) ErasePreview(_ context.Context, convID, msgID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[convID]
	if !ok {
		return nil
	}
	newest := 0
	var newestAt time.Time
	for _, msg := range m.msgs {
		if msg.ConversationID != convID {
			continue
		}
		if msg.CreatedAt.After(newestAt) || (msg.CreatedAt.Equal(newestAt) && msg.ID > newest) {
			newest, newestAt = msg.ID, msg.CreatedAt
		}
	}
	if newest == msgID {
		c.LastMessage = DeletedPlaceholder
	}
	return nil
}

func (m *memStore) RelevantContacts(_ context.Context, userID int) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[int]bool)
	var out []int
	for _, c := range m.convs {
		if !c.Includes(userID) {
			continue
		}
		other := c.OtherParticipant(userID)
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	sort.Ints(out)
	return out, nil
}

func (m *memStore) Insert(_ context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.nextMsg++
	msg.ID = m.nextMsg
	msg.Status = StatusSent
	msg.CreatedAt = time.Unix(0, 0).Add(time.Duration(m.nextMsg) * time.Second)
	cp := *msg
	m.msgs[msg.ID] = &cp
	return nil
}

func (m *memStore) ListRecent(_ context.Context, convID, limit int) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Message
	for _, msg := range m.msgs {
		if msg.ConversationID != convID {
			continue
		}
		cp := *msg
		if u, ok := m.users.users[cp.SenderID]; ok {
			cp.SenderName = u.Username
			cp.SenderAvatar = u.Avatar
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) MarkDelivered(_ context.Context, msgID, actorID int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[msgID]
	if !ok || msg.Status != StatusSent || msg.SenderID == actorID {
		return 0, false, nil
	}
	conv := m.convs[msg.ConversationID]
	if conv == nil || !conv.Includes(actorID) {
		return 0, false, nil
	}
	msg.Status = StatusDelivered
	return msg.ConversationID, true, nil
}

func (m *memStore) MarkConversationRead(_ context.Context, convID, readerID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv := m.convs[convID]
	if conv == nil || !conv.Includes(readerID) {
		return false, nil
	}
	updated := false
	for _, msg := range m.msgs {
		if msg.ConversationID == convID && msg.SenderID != readerID && msg.Status != StatusRead {
			msg.Status = StatusRead
			updated = true
		}
	}
	return updated, nil
}

func (m *memStore) SoftDelete(_ context.Context, msgID, requesterID int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[msgID]
	if !ok || msg.SenderID != requesterID || msg.Deleted {
		return 0, false, nil
	}
	msg.Deleted = true
	return msg.ConversationID, true, nil
}

// message returns the stored row for assertions on persisted state.
func (m *memStore) message(id int) Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.msgs[id]
}

func (m *memStore) conversation(id int) Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.convs[id]
}

// ---- fake push notifier ----

type pushCall struct {
	tokens []string
	title  string
	body   string
	data   map[string]string
}

type fakeNotifier struct {
	mu    sync.Mutex
	err   error
	calls []pushCall
}

func (f *fakeNotifier) Notify(_ context.Context, tokens []string, title, body string, data map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, pushCall{tokens: tokens, title: title, body: body, data: data})
	return f.err
}

func (f *fakeNotifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeNotifier) call(i int) pushCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// ---- test rig ----

type rig struct {
	hub      *Hub
	svc      *Service
	users    *fakeUsers
	store    *memStore
	notifier *fakeNotifier
	counter  *MemorySessionCounter
	presence *Presence
	codec    *crypto.Codec
}

func newRig() *rig {
	users := newFakeUsers()
	store := newMemStore(users)
	notifier := &fakeNotifier{}
	hub := NewHub(nil)
	go hub.Run()

	counter := NewMemorySessionCounter()
	presence := NewPresence(counter, users, store, hub)
	codec := crypto.NewCodec("unit-test-key")
	svc := NewService(hub, presence, store, store, users, codec, notifier)

	return &rig{
		hub:      hub,
		svc:      svc,
		users:    users,
		store:    store,
		notifier: notifier,
		counter:  counter,
		presence: presence,
		codec:    codec,
	}
}

// connect builds a registered session without a real socket. Frames land in
// sess.send for the test to read.
func (r *rig) connect(userID int) *Session {
	u, _ := r.users.GetByID(context.Background(), userID)
	sess := NewSession(u.ID, u.Username, u.Avatar, nil, r.svc)
	r.hub.Register(sess)
	return sess
}

func recvEnvelope(t *testing.T, sess *Session) Envelope {
	t.Helper()
	select {
	case frame := <-sess.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		return env
	case <-time.After(time.Second):
		t.Fatal("no frame within 1s")
		return Envelope{}
	}
}

// recvEvent reads the next frame and requires it to carry the given event.
func recvEvent(t *testing.T, sess *Session, event string) Envelope {
	t.Helper()
	env := recvEnvelope(t, sess)
	require.Equal(t, event, env.Event, "unexpected event %q (data: %s)", env.Event, env.Data)
	return env
}

func decodeData(t *testing.T, env Envelope, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, v))
}

func expectNoFrame(t *testing.T, sess *Session) {
	t.Helper()
	select {
	case frame := <-sess.send:
		t.Fatalf("unexpected frame: %s", frame)
	case <-time.After(100 * time.Millisecond):
	}
}

// dispatch feeds a raw client frame through the same path the read loop uses.
func (r *rig) dispatch(t *testing.T, sess *Session, event string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	require.NoError(t, err)
	r.svc.Dispatch(sess, frame)
}

func compositeRef(a, b int) string {
	return fmt.Sprintf("%d_%d", a, b)
}
