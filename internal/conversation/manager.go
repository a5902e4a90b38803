package conversation

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("unknown conversation")

// Event is one audit-log entry scoped to a conversation.
type Event struct {
	Type    string         `json:"type"`
	Ts      time.Time      `json:"timestamp"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Manager owns every live conversation and its event log. Controllers
// never outlive the manager; ending a conversation closes its
// controller so a pending interpretation cannot leak into a new one.
type Manager struct {
	interp Interpreter
	sink   Sink

	mu     sync.RWMutex
	convs  map[string]*Controller
	events map[string][]Event
}

func NewManager(interp Interpreter, sink Sink) *Manager {
	return &Manager{
		interp: interp,
		sink:   sink,
		convs:  make(map[string]*Controller),
		events: make(map[string][]Event),
	}
}

// Create starts a new conversation with its own transcript and draft.
func (m *Manager) Create() *Controller {
	id := uuid.New().String()
	c := NewController(id, m.interp, m.sink)
	m.mu.Lock()
	m.convs[id] = c
	m.events[id] = []Event{}
	m.mu.Unlock()
	m.AppendEvent(id, "conversation_created", nil)
	return c
}

func (m *Manager) Get(id string) *Controller {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.convs[id]
}

// End closes the conversation; the transcript is discarded with the
// controller, only the event log survives for inspection.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	c := m.convs[id]
	if c == nil {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.convs, id)
	m.mu.Unlock()
	c.Close()
	m.AppendEvent(id, "conversation_ended", nil)
	return nil
}

// AppendEvent records an event, capping the log so one chatty
// conversation cannot grow without bound.
func (m *Manager) AppendEvent(id, typ string, payload map[string]any) Event {
	evt := Event{Type: typ, Ts: time.Now().UTC(), Payload: payload}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[id] = append(m.events[id], evt)
	const maxEvents = 200
	if l := len(m.events[id]); l > maxEvents {
		keep := maxEvents - 1
		dropped := l - keep
		m.events[id] = append([]Event(nil), m.events[id][l-keep:]...)
		warn := Event{Type: "events_truncated", Ts: time.Now().UTC(), Payload: map[string]any{"dropped": dropped, "kept": keep}}
		m.events[id] = append(m.events[id], warn)
	}
	return evt
}

func (m *Manager) ListEvents(id string) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.events[id]
	out := make([]Event, len(src))
	copy(out, src)
	return out
}

func (m *Manager) ListIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.convs))
	for id := range m.convs {
		out = append(out, id)
	}
	return out
}
