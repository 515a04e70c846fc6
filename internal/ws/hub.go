package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/ZAPHODh/ws-guess-server/internal/services"
)

type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func messageFor(event services.Event) WSMessage {
	return WSMessage{Type: event.EventType(), Data: event}
}

// Hub is the per-session connection directory: for every session, the
// current connection of each participant.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Client
}

var _ services.Publisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]map[string]*Client),
	}
}

// Attach makes c the connection of participantID in sessionID. A previous
// connection for the same participant is unbound and told why, and c no
// longer speaks for whichever participant it was bound to before.
func (h *Hub) Attach(sessionID, participantID string, c *Client) {
	oldSession, oldParticipant := c.Binding()

	h.mu.Lock()
	if oldSession != "" && (oldSession != sessionID || oldParticipant != participantID) {
		if old := h.sessions[oldSession]; old != nil && old[oldParticipant] == c {
			delete(old, oldParticipant)
			if len(old) == 0 {
				delete(h.sessions, oldSession)
			}
		}
	}
	conns := h.sessions[sessionID]
	if conns == nil {
		conns = make(map[string]*Client)
		h.sessions[sessionID] = conns
	}
	prev := conns[participantID]
	conns[participantID] = c
	total := len(conns)
	h.mu.Unlock()

	c.bind(sessionID, participantID)
	if prev != nil && prev != c {
		prev.unbind()
		prev.SendMessage(messageFor(services.ErrorEvent{
			Message: "joined from another connection",
			Code:    services.CodeConflict,
		}))
	}
	log.Printf("ws: participant %s attached to session %s (total: %d)", participantID, sessionID, total)
}

// Remove drops c from the directory if it is still the participant's
// current connection and reports whether it was.
func (h *Hub) Remove(sessionID, participantID string, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.sessions[sessionID]
	if !ok || conns[participantID] != c {
		return false
	}
	delete(conns, participantID)
	if len(conns) == 0 {
		delete(h.sessions, sessionID)
	}
	log.Printf("ws: participant %s left session %s", participantID, sessionID)
	return true
}

// Detach removes the participant's connection from the session without
// closing it.
func (h *Hub) Detach(sessionID, participantID string) {
	h.mu.Lock()
	var c *Client
	if conns, ok := h.sessions[sessionID]; ok {
		c = conns[participantID]
		delete(conns, participantID)
		if len(conns) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	h.mu.Unlock()

	if c != nil {
		c.unbind()
		log.Printf("ws: participant %s detached from session %s", participantID, sessionID)
	}
}

func (h *Hub) Publish(sessionID string, event services.Event) {
	data, err := json.Marshal(messageFor(event))
	if err != nil {
		log.Printf("ws: marshal error: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.sessions[sessionID] {
		c.Send(data)
	}
}

func (h *Hub) SendTo(sessionID, participantID string, event services.Event) {
	h.mu.RLock()
	c := h.sessions[sessionID][participantID]
	h.mu.RUnlock()

	if c != nil {
		c.SendMessage(messageFor(event))
	}
}

// Connections returns how many participants of sessionID are attached.
func (h *Hub) Connections(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}
