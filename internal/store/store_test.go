package store

import (
	"fmt"
	"testing"
	"time"

	"herald/announcer/internal/types"
)

func newAnnouncement(id string) *types.Announcement {
	return &types.Announcement{
		ID:         id,
		Message:    "hello",
		SpeakerIDs: []string{"a"},
		CreatedAt:  time.Now().UTC(),
		Status:     "accepted",
	}
}

func TestCreateAndGet(t *testing.T) {
	s := New()
	if err := s.Create(newAnnouncement("x")); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(newAnnouncement("x")); err != ErrAnnouncementExists {
		t.Fatalf("duplicate create err = %v", err)
	}
	if s.Get("x") == nil {
		t.Fatal("get returned nil")
	}
	if s.Get("missing") != nil {
		t.Fatal("expected nil for unknown id")
	}
}

func TestStatusDurationFinished(t *testing.T) {
	s := New()
	s.Create(newAnnouncement("x"))

	s.SetStatus("x", "restoring")
	s.SetDuration("x", 4000, "engine")
	at := time.Now().UTC()
	s.SetFinished("x", at)

	a := s.Get("x")
	if a.Status != "restoring" || a.DurationMS != 4000 || a.DurationSource != "engine" {
		t.Fatalf("record = %+v", a)
	}
	if a.FinishedAt == nil || !a.FinishedAt.Equal(at) {
		t.Fatalf("finished at = %v", a.FinishedAt)
	}

	// Updates on unknown ids are silently dropped
	s.SetStatus("missing", "done")
}

func TestEventsAppendAndCap(t *testing.T) {
	s := New()
	s.Create(newAnnouncement("x"))

	for i := 0; i < 250; i++ {
		s.AppendEvent("x", "tick", map[string]any{"i": fmt.Sprintf("%d", i)})
	}
	events := s.ListEvents("x")
	if len(events) > 200 {
		t.Fatalf("events not capped: %d", len(events))
	}
	last := events[len(events)-1]
	if last.Type != "events_truncated" {
		t.Fatalf("last event = %s, want truncation marker", last.Type)
	}
}
