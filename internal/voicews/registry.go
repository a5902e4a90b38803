package voicews

import (
	"context"
	"encoding/json"
	"sync"

	ws "nhooyr.io/websocket"
)

// Conn is the slice of the websocket connection the registry touches.
type Conn interface {
	Write(ctx context.Context, typ ws.MessageType, p []byte) error
	Close(code ws.StatusCode, reason string) error
}

// Registry keeps at most one voice channel per conversation.
type Registry struct {
	mu    sync.Mutex
	conns map[string]Conn
}

func NewRegistry() *Registry { return &Registry{conns: make(map[string]Conn)} }

// Replace installs the connection for a conversation, closing any
// previous channel still open.
func (r *Registry) Replace(conversationID string, c Conn) (prevClosed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.conns[conversationID]; ok && old != nil {
		_ = old.Close(ws.StatusNormalClosure, "replaced")
		prevClosed = true
	}
	r.conns[conversationID] = c
	return
}

// RemoveIfSame evicts the conversation's channel only while it is still
// the given connection. A read loop draining after its connection was
// replaced arrives here late and must not evict the live replacement.
func (r *Registry) RemoveIfSame(conversationID string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[conversationID] == c {
		delete(r.conns, conversationID)
	}
}

// SendJSON writes a JSON message to the conversation's channel, if any.
func (r *Registry) SendJSON(ctx context.Context, conversationID string, v any) error {
	r.mu.Lock()
	c := r.conns[conversationID]
	r.mu.Unlock()
	if c == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Write(ctx, ws.MessageText, b)
}
