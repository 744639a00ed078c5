// Package eventws streams announcement progress events to websocket
// observers, typically dashboards watching a session restore.
package eventws

import (
	"context"
	"encoding/json"
	"sync"

	ws "nhooyr.io/websocket"
)

// Registry tracks observer connections. An observer subscribes to one
// announcement id or, with an empty id, to everything.
type Registry struct {
	mu    sync.Mutex
	conns map[string]map[*ws.Conn]bool
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[*ws.Conn]bool)}
}

func (r *Registry) Add(announcementID string, c *ws.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[announcementID] == nil {
		r.conns[announcementID] = make(map[*ws.Conn]bool)
	}
	r.conns[announcementID][c] = true
}

func (r *Registry) Remove(announcementID string, c *ws.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns[announcementID], c)
	if len(r.conns[announcementID]) == 0 {
		delete(r.conns, announcementID)
	}
}

func (r *Registry) subscribers(announcementID string) []*ws.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*ws.Conn
	for c := range r.conns[announcementID] {
		out = append(out, c)
	}
	if announcementID != "" {
		for c := range r.conns[""] {
			out = append(out, c)
		}
	}
	return out
}

// Broadcast sends one event frame to every subscriber of the announcement
// plus the wildcard observers. Write failures are ignored; the read loop in
// the handler notices the dead connection and removes it.
func (r *Registry) Broadcast(ctx context.Context, announcementID string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	for _, c := range r.subscribers(announcementID) {
		_ = c.Write(ctx, ws.MessageText, b)
	}
}
