// Package media pauses ambient playback around an announcement and resumes
// it afterwards. Only speakers that were playing identifiable content get
// resumed; everything else is left where the announcement left it.
package media

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"herald/announcer/internal/control"
	"herald/announcer/internal/types"
)

type snapshot struct {
	wasPlaying bool
	contentID  string
}

// Manager snapshots what each speaker was doing before the announcement.
// One Manager lives for one session. pausable names the platforms whose
// pause/resume is trusted; others are skipped.
type Manager struct {
	ctrl     control.SpeakerController
	pausable map[string]bool

	mu    sync.Mutex
	snaps map[string]snapshot

	sleep func(time.Duration)
}

func NewManager(ctrl control.SpeakerController, pausablePlatforms []string) *Manager {
	p := make(map[string]bool, len(pausablePlatforms))
	for _, name := range pausablePlatforms {
		p[name] = true
	}
	return &Manager{
		ctrl:     ctrl,
		pausable: p,
		snaps:    make(map[string]snapshot),
		sleep:    time.Sleep,
	}
}

// Snapshot records the speaker's pre-announcement playback from an already
// taken probe. Returns whether the speaker is a pause candidate. Platforms
// outside the pausable set get no snapshot at all: we will never pause them,
// so resuming them later would restart media we never stopped.
func (m *Manager) Snapshot(speakerID, platformName string, probe control.ProbeResult) bool {
	if !m.pausable[platformName] {
		return false
	}
	playing := probe.State == types.StatePlaying
	content, _ := probe.ContentID()
	m.mu.Lock()
	m.snaps[speakerID] = snapshot{wasPlaying: playing, contentID: content}
	m.mu.Unlock()
	return playing
}

// PauseAll pauses the given speakers concurrently, then waits one uniform
// settle period. Individual failures are logged and dropped; a speaker that
// keeps playing just has the announcement mixed over it.
func (m *Manager) PauseAll(ctx context.Context, speakerIDs []string, settle time.Duration) {
	if len(speakerIDs) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, id := range speakerIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := m.ctrl.Pause(ctx, id); err != nil {
				log.Printf("[media] pause %s failed: %v", id, err)
			}
		}(id)
	}
	wg.Wait()
	m.sleep(settle)
}

// Resume restarts playback on a speaker that was playing identifiable
// content before the announcement. Anything else is a no-op.
func (m *Manager) Resume(ctx context.Context, speakerID string) error {
	m.mu.Lock()
	snap, ok := m.snaps[speakerID]
	m.mu.Unlock()
	if !ok || !snap.wasPlaying {
		return nil
	}
	if snap.contentID == "" {
		log.Printf("[media] %s was playing without a content id, not resuming", speakerID)
		return nil
	}
	if err := m.ctrl.Play(ctx, speakerID); err != nil {
		return fmt.Errorf("resume %s: %w", speakerID, err)
	}
	return nil
}
