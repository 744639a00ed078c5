package api

import (
	"context"
	"time"

	"herald/announcer/internal/eventws"
	"herald/announcer/internal/store"
)

// Sink fans session events out to the announcement store and to websocket
// observers. It is the orchestrator's only view of the serving layer.
type Sink struct {
	Store *store.Store
	Reg   *eventws.Registry
}

func (s *Sink) Event(announcementID, typ string, payload map[string]any) {
	if announcementID == "" {
		return
	}
	evt := s.Store.AppendEvent(announcementID, typ, payload)

	switch typ {
	case "state":
		if to, ok := payload["to"].(string); ok {
			s.Store.SetStatus(announcementID, to)
		}
	case "duration_resolved":
		ms, _ := payload["duration_ms"].(int64)
		src, _ := payload["source"].(string)
		s.Store.SetDuration(announcementID, ms, src)
	case "session_done", "session_failed":
		s.Store.SetFinished(announcementID, time.Now().UTC())
	}

	if s.Reg != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		s.Reg.Broadcast(ctx, announcementID, map[string]any{
			"announcement_id": announcementID,
			"type":            evt.Type,
			"timestamp":       evt.Ts,
			"payload":         evt.Payload,
		})
		cancel()
	}
}
