package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Session is one authenticated open connection. Writes are serialized
// through the session mutex because the echo loop and hub broadcasts run on
// different goroutines.
type Session struct {
	SubjectID string

	conn *websocket.Conn
	mu   sync.Mutex
}

func newSession(subjectID string, conn *websocket.Conn) *Session {
	return &Session{SubjectID: subjectID, conn: conn}
}

func (s *Session) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// Hub tracks open sessions by subject. Membership is registered when a
// connection reaches Open and released on every close path; validation
// failures never touch the hub at all.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]map[*Session]struct{})}
}

func (h *Hub) register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[s.SubjectID]
	if !ok {
		set = make(map[*Session]struct{})
		h.sessions[s.SubjectID] = set
	}
	set[s] = struct{}{}
}

func (h *Hub) unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.sessions[s.SubjectID]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.sessions, s.SubjectID)
	}
}

// ActiveSessions reports how many open connections a subject currently has.
func (h *Hub) ActiveSessions(subjectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[subjectID])
}

// Broadcast sends a payload to every open connection of a subject. Send
// failures on one session do not stop delivery to the others.
func (h *Hub) Broadcast(subjectID string, payload json.RawMessage) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions[subjectID]))
	for s := range h.sessions[subjectID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	env := Envelope{
		Type:      "broadcast",
		Content:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for _, s := range targets {
		_ = s.send(env)
	}
}
