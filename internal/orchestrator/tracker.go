package orchestrator

import "sync"

// restoreTracker enforces at-most-once restoration per speaker. Every restore
// path, timer, state poll or bail-out, must win the claim here before
// touching the speaker.
type restoreTracker struct {
	mu       sync.Mutex
	restored map[string]bool
}

func newRestoreTracker() *restoreTracker {
	return &restoreTracker{restored: make(map[string]bool)}
}

// claim marks the speaker restored and reports whether this caller won the
// claim. Exactly one caller per speaker ever sees true.
func (t *restoreTracker) claim(speakerID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.restored[speakerID] {
		return false
	}
	t.restored[speakerID] = true
	return true
}

func (t *restoreTracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.restored)
}
