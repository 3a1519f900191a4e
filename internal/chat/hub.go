package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
)

func UserChannel(userID int) string {
	return fmt.Sprintf("user:%d", userID)
}

func ConversationChannel(convID int) string {
	return fmt.Sprintf("conv:%d", convID)
}

type opKind int

const (
	opRegister opKind = iota
	opUnregister
	opJoin
	opEmit
	opRelay
	opDeliver
	opDirect
)

type hubOp struct {
	kind    opKind
	sess    *Session
	channel string
	exclude string // session id skipped during delivery
	frame   []byte
}

// routedFrame is the envelope published over the bus so every instance can
// deliver to its own local members of the target channel.
type routedFrame struct {
	Channel string          `json:"channel"`
	Exclude string          `json:"exclude,omitempty"`
	Frame   json.RawMessage `json:"frame"`
}

// Hub routes frames to sessions through named channels. A session is
// subscribed to its own user channel at registration and to conversation
// channels as it joins them. All state lives behind a single ops queue, so
// registration, joins and emissions against one session keep their order and
// only the Run goroutine ever touches a send channel.
type Hub struct {
	ops      chan hubOp
	sessions map[*Session]bool
	channels map[string]map[*Session]bool
	bus      Bus // nil runs the hub single-instance
}

func NewHub(bus Bus) *Hub {
	return &Hub{
		ops:      make(chan hubOp, 256),
		sessions: make(map[*Session]bool),
		channels: make(map[string]map[*Session]bool),
		bus:      bus,
	}
}

func (h *Hub) Register(s *Session)   { h.ops <- hubOp{kind: opRegister, sess: s} }
func (h *Hub) Unregister(s *Session) { h.ops <- hubOp{kind: opUnregister, sess: s} }

func (h *Hub) Join(s *Session, channel string) {
	h.ops <- hubOp{kind: opJoin, sess: s, channel: channel}
}

// Emit sends env to every member of channel, on every instance.
func (h *Hub) Emit(channel string, env Envelope) {
	h.emit(hubOp{kind: opEmit, channel: channel}, env)
}

// Relay is Emit restricted to insiders: the frame reaches every member of
// channel except the sender's own session, and only if the sender is itself a
// member. A session that never joined the channel cannot inject frames into
// it; its relay is dropped without a reply (typing indicators).
func (h *Hub) Relay(channel string, from *Session, env Envelope) {
	h.emit(hubOp{kind: opRelay, sess: from, channel: channel, exclude: from.ID}, env)
}

func (h *Hub) emit(op hubOp, env Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		logrus.WithError(err).WithField("event", env.Event).Error("marshal outbound frame")
		return
	}
	op.frame = frame
	h.ops <- op
}

// Direct sends env to a single session. Sessions are instance-local, so a
// direct frame never crosses the Redis bridge.
func (h *Hub) Direct(s *Session, env Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		logrus.WithError(err).WithField("event", env.Event).Error("marshal outbound frame")
		return
	}
	h.ops <- hubOp{kind: opDirect, sess: s, frame: frame}
}

func (h *Hub) Run() {
	for op := range h.ops {
		switch op.kind {
		case opRegister:
			h.sessions[op.sess] = true
			h.subscribe(op.sess, UserChannel(op.sess.UserID))

		case opUnregister:
			if _, ok := h.sessions[op.sess]; ok {
				h.drop(op.sess)
			}

		case opJoin:
			if h.sessions[op.sess] {
				h.subscribe(op.sess, op.channel)
			}

		case opEmit:
			h.route(op)

		case opRelay:
			// Only current members may relay into a channel.
			if h.channels[op.channel][op.sess] {
				h.route(op)
			}

		case opDeliver:
			h.deliver(op.channel, op.exclude, op.frame)

		case opDirect:
			if h.sessions[op.sess] {
				h.send(op.sess, op.frame)
			}
		}
	}
}

// SubscribeToBus pumps the shared event bus into local delivery. Runs for
// the life of the process; a nil bus means single-instance mode and emissions
// deliver directly.
func (h *Hub) SubscribeToBus() {
	if h.bus == nil {
		return
	}
	for payload := range h.bus.Subscribe(context.Background()) {
		var rf routedFrame
		if err := json.Unmarshal(payload, &rf); err != nil {
			logrus.WithError(err).Warn("malformed frame on event bus")
			continue
		}
		h.ops <- hubOp{kind: opDeliver, channel: rf.Channel, exclude: rf.Exclude, frame: rf.Frame}
	}
}

// route hands one emission to every instance. With a bus configured,
// publishing is the only path to delivery: the frame comes back through the
// subscription on every instance, this one included.
func (h *Hub) route(op hubOp) {
	if h.bus != nil {
		h.publish(op)
		return
	}
	h.deliver(op.channel, op.exclude, op.frame)
}

func (h *Hub) publish(op hubOp) {
	payload, err := json.Marshal(routedFrame{
		Channel: op.channel,
		Exclude: op.exclude,
		Frame:   op.frame,
	})
	if err != nil {
		logrus.WithError(err).Error("marshal routed frame")
		return
	}
	if err := h.bus.Publish(context.Background(), payload); err != nil {
		logrus.WithError(err).WithField("channel", op.channel).Error("publish to event bus")
	}
}

func (h *Hub) subscribe(s *Session, channel string) {
	members, ok := h.channels[channel]
	if !ok {
		members = make(map[*Session]bool)
		h.channels[channel] = members
	}
	members[s] = true
	s.joined[channel] = true
}

func (h *Hub) deliver(channel, exclude string, frame []byte) {
	for sess := range h.channels[channel] {
		if sess.ID == exclude {
			continue
		}
		h.send(sess, frame)
	}
}

// send enqueues a frame for the session's writePump. A full buffer means the
// reader stopped draining; the session is dropped rather than blocking the
// whole hub behind it.
func (h *Hub) send(s *Session, frame []byte) {
	select {
	case s.send <- frame:
	default:
		logrus.WithFields(logrus.Fields{
			"session": s.ID,
			"userId":  s.UserID,
		}).Warn("dropping slow consumer")
		h.drop(s)
	}
}

func (h *Hub) drop(s *Session) {
	delete(h.sessions, s)
	for channel := range s.joined {
		members := h.channels[channel]
		delete(members, s)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
	close(s.send)
}
