package dispatch

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/example/rider-core/internal/observability"
)

const writeWait = 5 * time.Second

var ErrNoSession = errors.New("no ws session")

// Envelope is what every rider client receives: Type says which snapshot
// Data carries ("ride", "locations" or "search").
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// WSSession is one connected rider client.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(env)
}

// WSRegistry holds rider sessions and fans snapshots out to them.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
	logger   *zap.Logger
}

func NewWSRegistry(logger *zap.Logger) *WSRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSRegistry{sessions: make(map[string]*WSSession), logger: logger}
}

// Add registers conn under id, replacing and closing any previous session.
func (r *WSRegistry) Add(id string, conn *websocket.Conn) {
	_ = r.Attach(id, conn)
}

// Attach registers conn under id and writes initial to it before any
// broadcast can reach the session.
func (r *WSRegistry) Attach(id string, conn *websocket.Conn, initial ...Envelope) error {
	s := &WSSession{conn: conn}
	s.mu.Lock()
	r.mu.Lock()
	old, replaced := r.sessions[id]
	r.sessions[id] = s
	r.mu.Unlock()
	if replaced {
		_ = old.conn.Close()
	} else {
		observability.NotifierClients.Inc()
	}
	var err error
	for _, env := range initial {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err = conn.WriteJSON(env); err != nil {
			break
		}
	}
	s.mu.Unlock()
	if err != nil {
		r.logger.Warn("ws initial send error", zap.String("session", id), zap.Error(err))
		r.Remove(id)
	}
	return err
}

func (r *WSRegistry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		observability.NotifierClients.Dec()
		_ = s.conn.Close()
	}
}

func (r *WSRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *WSRegistry) Send(id string, env Envelope) error {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	if err := s.Send(env); err != nil {
		r.logger.Warn("ws send error", zap.String("session", id), zap.Error(err))
		r.Remove(id)
		return err
	}
	return nil
}

// Broadcast sends env to every session. Sessions that fail to accept the
// write are dropped.
func (r *WSRegistry) Broadcast(typ string, data any) {
	env := Envelope{Type: typ, Data: data}
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	for _, id := range ids {
		_ = r.Send(id, env)
	}
}
