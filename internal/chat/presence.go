package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/KavishkaDulshan/Chat-App-Backend/internal/user"
)

// SessionCounter tracks live sessions per user across every instance, so
// that presence flips only on the first connect and the last disconnect.
type SessionCounter interface {
	Increment(ctx context.Context, userID int) (int64, error)
	Decrement(ctx context.Context, userID int) (int64, error)
}

func presenceKey(userID int) string {
	return fmt.Sprintf("presence:sessions:%d", userID)
}

type RedisSessionCounter struct {
	rdb *redis.Client
}

func NewRedisSessionCounter(rdb *redis.Client) *RedisSessionCounter {
	return &RedisSessionCounter{rdb: rdb}
}

func (c *RedisSessionCounter) Increment(ctx context.Context, userID int) (int64, error) {
	return c.rdb.Incr(ctx, presenceKey(userID)).Result()
}

func (c *RedisSessionCounter) Decrement(ctx context.Context, userID int) (int64, error) {
	n, err := c.rdb.Decr(ctx, presenceKey(userID)).Result()
	if err != nil {
		return 0, err
	}
	// A double release would park the counter below zero and swallow the
	// next offline transition, so clamp.
	if n < 0 {
		if err := c.rdb.Set(ctx, presenceKey(userID), 0, 0).Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return n, nil
}

// MemorySessionCounter is the single-instance fallback when Redis is absent.
type MemorySessionCounter struct {
	mu     sync.Mutex
	counts map[int]int64
}

func NewMemorySessionCounter() *MemorySessionCounter {
	return &MemorySessionCounter{counts: make(map[int]int64)}
}

func (c *MemorySessionCounter) Increment(_ context.Context, userID int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[userID]++
	return c.counts[userID], nil
}

func (c *MemorySessionCounter) Decrement(_ context.Context, userID int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts[userID] > 0 {
		c.counts[userID]--
	}
	return c.counts[userID], nil
}

// Presence turns session churn into user_status_change broadcasts. Every
// transition is best-effort: a failure here never blocks admission or
// teardown of the session itself.
type Presence struct {
	counter SessionCounter
	users   user.Store
	convs   ConversationStore
	hub     *Hub
}

func NewPresence(counter SessionCounter, users user.Store, convs ConversationStore, hub *Hub) *Presence {
	return &Presence{counter: counter, users: users, convs: convs, hub: hub}
}

// Connected records one more live session. Only the 0→1 transition flips the
// user online and notifies their contacts; further devices are silent.
func (p *Presence) Connected(ctx context.Context, userID int) {
	n, err := p.counter.Increment(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("userId", userID).Error("presence increment failed")
		return
	}
	if n == 1 {
		p.flip(ctx, userID, true)
	}
}

// Disconnected is the mirror of Connected: only the last session going away
// flips the user offline.
func (p *Presence) Disconnected(ctx context.Context, userID int) {
	n, err := p.counter.Decrement(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("userId", userID).Error("presence decrement failed")
		return
	}
	if n == 0 {
		p.flip(ctx, userID, false)
	}
}

func (p *Presence) flip(ctx context.Context, userID int, online bool) {
	if err := p.users.SetOnline(ctx, userID, online); err != nil {
		logrus.WithError(err).WithField("userId", userID).Error("persist online flag")
	}

	contacts, err := p.convs.RelevantContacts(ctx, userID)
	if err != nil {
		logrus.WithError(err).WithField("userId", userID).Error("load presence contacts")
		return
	}

	env := NewEnvelope(EventUserStatus, UserStatusPayload{UserID: userID, Online: online})
	for _, contact := range contacts {
		p.hub.Emit(UserChannel(contact), env)
	}
}
