// Package volume snapshots and restores speaker volume around an
// announcement. Every level the session touches flows through here so the
// restore path can compare against a single recorded snapshot.
package volume

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"herald/announcer/internal/control"
	"herald/announcer/internal/platform"
)

// Tolerance is the smallest volume difference worth a hub call. Levels within
// it are treated as equal.
const Tolerance = 0.01

// Manager records initial volume levels per speaker and restores them. One
// Manager lives for one announcement session.
type Manager struct {
	ctrl control.SpeakerController

	mu       sync.Mutex
	recorded map[string]float64
	// changed flags speakers whose volume this manager actually set.
	// Restore refuses to touch anything else.
	changed map[string]bool

	// sleep is swapped out in tests
	sleep func(time.Duration)
}

func NewManager(ctrl control.SpeakerController) *Manager {
	return &Manager{
		ctrl:     ctrl,
		recorded: make(map[string]float64),
		changed:  make(map[string]bool),
		sleep:    time.Sleep,
	}
}

// Record probes the speaker and snapshots its current volume. Speakers that
// expose no volume attribute are recorded as absent and skipped on restore.
func (m *Manager) Record(ctx context.Context, speakerID string) (float64, bool, error) {
	probe, err := m.ctrl.Probe(ctx, speakerID)
	if err != nil {
		return 0, false, fmt.Errorf("volume record %s: %w", speakerID, err)
	}
	level, ok := probe.VolumeLevel()
	if !ok {
		log.Printf("[volume] %s exposes no volume level, restore will skip it", speakerID)
		return 0, false, nil
	}
	m.mu.Lock()
	m.recorded[speakerID] = level
	m.mu.Unlock()
	return level, true, nil
}

// RecordFrom snapshots the volume out of an already taken probe, saving a
// hub round trip when the caller probed the speaker anyway.
func (m *Manager) RecordFrom(speakerID string, probe control.ProbeResult) bool {
	level, ok := probe.VolumeLevel()
	if !ok {
		return false
	}
	m.mu.Lock()
	m.recorded[speakerID] = level
	m.mu.Unlock()
	return true
}

// Recorded returns the snapshot taken by Record, if any.
func (m *Manager) Recorded(speakerID string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.recorded[speakerID]
	return v, ok
}

// Apply sets the announcement volume if the recorded level actually differs.
// Platforms whose reported volume lags get verify-and-retry rounds.
func (m *Manager) Apply(ctx context.Context, speakerID string, prof platform.Profile, target float64) error {
	m.mu.Lock()
	current, recorded := m.recorded[speakerID]
	m.mu.Unlock()
	if recorded && math.Abs(current-target) <= Tolerance {
		log.Printf("[volume] %s already at %.2f, skipping set", speakerID, target)
		return nil
	}
	if err := m.ctrl.SetVolume(ctx, speakerID, target); err != nil {
		return fmt.Errorf("volume set %s: %w", speakerID, err)
	}
	m.mu.Lock()
	m.changed[speakerID] = true
	m.mu.Unlock()
	m.sleep(prof.VolumeChangeDelay)

	for i := 0; i < prof.VolumeVerifyRetries; i++ {
		probe, err := m.ctrl.Probe(ctx, speakerID)
		if err != nil {
			return nil // set succeeded; verification is best effort
		}
		got, ok := probe.VolumeLevel()
		if !ok || math.Abs(got-target) <= Tolerance {
			return nil
		}
		log.Printf("[volume] %s reports %.2f after set to %.2f, retrying (%d/%d)",
			speakerID, got, target, i+1, prof.VolumeVerifyRetries)
		if err := m.ctrl.SetVolume(ctx, speakerID, target); err != nil {
			return fmt.Errorf("volume set %s: %w", speakerID, err)
		}
		m.sleep(prof.VolumeChangeDelay)
	}
	return nil
}

// Restore puts the speaker back at its recorded level. Speakers this manager
// never set are left alone, whatever their level reads now. The current level
// is re-probed first; a speaker already within tolerance is left alone, so a
// second Restore call is a no-op.
func (m *Manager) Restore(ctx context.Context, speakerID string, prof platform.Profile) error {
	m.mu.Lock()
	want, ok := m.recorded[speakerID]
	touched := m.changed[speakerID]
	m.mu.Unlock()
	if !ok || !touched {
		return nil
	}
	probe, err := m.ctrl.Probe(ctx, speakerID)
	if err == nil {
		if got, has := probe.VolumeLevel(); has && math.Abs(got-want) <= Tolerance {
			log.Printf("[volume] %s already back at %.2f", speakerID, want)
			return nil
		}
	}
	if err := m.ctrl.SetVolume(ctx, speakerID, want); err != nil {
		return fmt.Errorf("volume restore %s: %w", speakerID, err)
	}
	m.sleep(prof.VolumeChangeDelay)
	return nil
}
