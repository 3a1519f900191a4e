package chat

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 8192                // Maximum frame size allowed from peer.
)

// Session is one authenticated websocket connection. A user with several
// devices holds several sessions; the hub addresses them together through the
// user channel and individually through Direct.
type Session struct {
	ID       string
	UserID   int
	Username string
	Avatar   string

	svc  *Service
	conn *websocket.Conn
	send chan []byte

	// joined is owned by the hub goroutine.
	joined map[string]bool
}

func NewSession(userID int, username, avatar string, conn *websocket.Conn, svc *Service) *Session {
	return &Session{
		ID:       uuid.NewString(),
		UserID:   userID,
		Username: username,
		Avatar:   avatar,
		svc:      svc,
		conn:     conn,
		send:     make(chan []byte, 256),
		joined:   make(map[string]bool),
	}
}

// readPump pumps frames from the websocket connection into the dispatcher.
// Dispatch is inline, so one session's requests are handled in the order the
// client sent them.
func (s *Session) readPump() {
	defer func() {
		s.svc.HandleDisconnect(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("session", s.ID).Debug("read loop closed")
			}
			break
		}
		s.svc.Dispatch(s, raw)
	}
}

// writePump pumps frames from the hub to the websocket connection and keeps
// the heartbeat going.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub dropped us.
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(frame)

			// Flush whatever else is queued in one write.
			n := len(s.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-s.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
