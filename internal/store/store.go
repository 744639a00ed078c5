package store

import (
	"errors"
	"sync"
	"time"

	"herald/announcer/internal/types"
)

var ErrAnnouncementExists = errors.New("announcement already exists")

// Store keeps announcement records and their event logs in memory. Nothing
// persists across restarts; the duration cache (internal/duration) is the
// only state that outlives a session.
type Store struct {
	mu            sync.RWMutex
	announcements map[string]*types.Announcement
	events        map[string][]types.Event
}

func New() *Store {
	return &Store{
		announcements: make(map[string]*types.Announcement),
		events:        make(map[string][]types.Event),
	}
}

func (s *Store) Create(a *types.Announcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.announcements[a.ID]; ok {
		return ErrAnnouncementExists
	}
	s.announcements[a.ID] = a
	s.events[a.ID] = []types.Event{}
	return nil
}

func (s *Store) Get(id string) *types.Announcement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.announcements[id]
}

func (s *Store) SetStatus(id, status string) {
	s.mu.Lock()
	if a, ok := s.announcements[id]; ok {
		a.Status = status
	}
	s.mu.Unlock()
}

func (s *Store) SetDuration(id string, millis int64, source string) {
	s.mu.Lock()
	if a, ok := s.announcements[id]; ok {
		a.DurationMS = millis
		a.DurationSource = source
	}
	s.mu.Unlock()
}

func (s *Store) SetFinished(id string, at time.Time) {
	s.mu.Lock()
	if a, ok := s.announcements[id]; ok {
		a.FinishedAt = &at
	}
	s.mu.Unlock()
}

func (s *Store) AppendEvent(id, typ string, payload map[string]any) types.Event {
	evt := types.Event{Type: typ, Ts: time.Now().UTC(), Payload: payload}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id] = append(s.events[id], evt)
	// Cap total events per announcement to avoid unbounded growth
	const maxEvents = 200
	if l := len(s.events[id]); l > maxEvents {
		// Keep space for a single truncation warning so the total stays at maxEvents
		keep := maxEvents - 1
		dropped := l - keep
		s.events[id] = append([]types.Event(nil), s.events[id][l-keep:]...)
		warn := types.Event{Type: "events_truncated", Ts: time.Now().UTC(), Payload: map[string]any{"announcement_id": id, "dropped": dropped, "kept": keep}}
		s.events[id] = append(s.events[id], warn)
	}
	return evt
}

func (s *Store) ListEvents(id string) []types.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.events[id]
	out := make([]types.Event, len(src))
	copy(out, src)
	return out
}

func (s *Store) ListIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.announcements))
	for id := range s.announcements {
		out = append(out, id)
	}
	return out
}
