package media

import (
	"context"
	"sync"
	"testing"
	"time"

	"herald/announcer/internal/control"
	"herald/announcer/internal/platform"
	"herald/announcer/internal/types"
)

type fakeCtrl struct {
	mu     sync.Mutex
	paused []string
	played []string
}

func (f *fakeCtrl) Probe(ctx context.Context, id string) (control.ProbeResult, error) {
	return control.ProbeResult{}, nil
}
func (f *fakeCtrl) SetVolume(ctx context.Context, id string, l float64) error { return nil }
func (f *fakeCtrl) Pause(ctx context.Context, id string) error {
	f.mu.Lock()
	f.paused = append(f.paused, id)
	f.mu.Unlock()
	return nil
}
func (f *fakeCtrl) Play(ctx context.Context, id string) error {
	f.mu.Lock()
	f.played = append(f.played, id)
	f.mu.Unlock()
	return nil
}
func (f *fakeCtrl) TurnOn(ctx context.Context, id string) error          { return nil }
func (f *fakeCtrl) Join(ctx context.Context, c string, m []string) error { return nil }
func (f *fakeCtrl) Unjoin(ctx context.Context, ids []string) error       { return nil }

func playingProbe(contentID string) control.ProbeResult {
	attrs := map[string]any{}
	if contentID != "" {
		attrs["media_content_id"] = contentID
	}
	return control.ProbeResult{State: types.StatePlaying, Attributes: attrs}
}

func newTestManager(f *fakeCtrl) *Manager {
	m := NewManager(f, []string{platform.Sonos, platform.Cast, platform.Default})
	m.sleep = func(time.Duration) {}
	return m
}

func TestSnapshotFiltersByPlatform(t *testing.T) {
	m := newTestManager(&fakeCtrl{})

	if !m.Snapshot("sonos1", platform.Sonos, playingProbe("spotify:track:1")) {
		t.Error("playing sonos speaker should be a pause candidate")
	}
	if m.Snapshot("echo1", platform.Alexa, playingProbe("x")) {
		t.Error("alexa is not in the pausable set")
	}
	if m.Snapshot("sonos2", platform.Sonos, control.ProbeResult{State: types.StateIdle}) {
		t.Error("idle speaker is not a pause candidate")
	}
}

func TestResumeSkipsUnpausablePlatform(t *testing.T) {
	f := &fakeCtrl{}
	m := newTestManager(f)

	// The speaker kept playing through the announcement; a play call here
	// would restart its queue.
	m.Snapshot("echo1", platform.Alexa, playingProbe("amzn:track:1"))
	if err := m.Resume(context.Background(), "echo1"); err != nil {
		t.Fatal(err)
	}
	if len(f.played) != 0 {
		t.Fatalf("played = %v, want none for an unpausable platform", f.played)
	}
}

func TestResumeOnlyWasPlayingWithContent(t *testing.T) {
	f := &fakeCtrl{}
	m := newTestManager(f)
	ctx := context.Background()

	m.Snapshot("playing", platform.Sonos, playingProbe("spotify:track:1"))
	m.Snapshot("no_content", platform.Sonos, playingProbe(""))
	m.Snapshot("idle", platform.Sonos, control.ProbeResult{State: types.StateIdle})

	for _, id := range []string{"playing", "no_content", "idle", "never_snapshotted"} {
		if err := m.Resume(ctx, id); err != nil {
			t.Fatalf("resume %s: %v", id, err)
		}
	}
	if len(f.played) != 1 || f.played[0] != "playing" {
		t.Fatalf("played = %v, want only the speaker with content", f.played)
	}
}

func TestPauseAllConcurrent(t *testing.T) {
	f := &fakeCtrl{}
	m := newTestManager(f)

	m.PauseAll(context.Background(), []string{"a", "b", "c"}, 0)
	if len(f.paused) != 3 {
		t.Fatalf("paused %d speakers, want 3", len(f.paused))
	}
}
