package volume

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"herald/announcer/internal/control"
	"herald/announcer/internal/platform"
	"herald/announcer/internal/types"
)

type fakeCtrl struct {
	mu      sync.Mutex
	volumes map[string]float64
	noVol   map[string]bool
	failSet map[string]error
	sets    []string
}

func newFakeCtrl() *fakeCtrl {
	return &fakeCtrl{
		volumes: make(map[string]float64),
		noVol:   make(map[string]bool),
		failSet: make(map[string]error),
	}
}

func (f *fakeCtrl) Probe(ctx context.Context, id string) (control.ProbeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	attrs := map[string]any{}
	if !f.noVol[id] {
		attrs["volume_level"] = f.volumes[id]
	}
	return control.ProbeResult{State: types.StateIdle, Attributes: attrs}, nil
}

func (f *fakeCtrl) SetVolume(ctx context.Context, id string, level float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failSet[id]; err != nil {
		return err
	}
	f.volumes[id] = level
	f.sets = append(f.sets, id)
	return nil
}

func (f *fakeCtrl) Pause(ctx context.Context, id string) error              { return nil }
func (f *fakeCtrl) Play(ctx context.Context, id string) error               { return nil }
func (f *fakeCtrl) TurnOn(ctx context.Context, id string) error             { return nil }
func (f *fakeCtrl) Join(ctx context.Context, c string, m []string) error    { return nil }
func (f *fakeCtrl) Unjoin(ctx context.Context, ids []string) error          { return nil }

func (f *fakeCtrl) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sets)
}

func newTestManager(f *fakeCtrl) *Manager {
	m := NewManager(f)
	m.sleep = func(time.Duration) {}
	return m
}

func TestRecordAndRestore(t *testing.T) {
	f := newFakeCtrl()
	f.volumes["media_player.kitchen"] = 0.35
	m := newTestManager(f)
	ctx := context.Background()
	prof := platform.ByName(platform.Sonos)

	if _, ok, err := m.Record(ctx, "media_player.kitchen"); err != nil || !ok {
		t.Fatalf("record: ok=%v err=%v", ok, err)
	}
	if err := m.Apply(ctx, "media_player.kitchen", prof, 0.8); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if f.volumes["media_player.kitchen"] != 0.8 {
		t.Fatalf("volume after apply = %v", f.volumes["media_player.kitchen"])
	}
	if err := m.Restore(ctx, "media_player.kitchen", prof); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if f.volumes["media_player.kitchen"] != 0.35 {
		t.Fatalf("volume after restore = %v", f.volumes["media_player.kitchen"])
	}
}

func TestApplySkipsWithinTolerance(t *testing.T) {
	f := newFakeCtrl()
	f.volumes["s"] = 0.795
	m := newTestManager(f)
	ctx := context.Background()

	m.Record(ctx, "s")
	if err := m.Apply(ctx, "s", platform.ByName(platform.Default), 0.8); err != nil {
		t.Fatal(err)
	}
	if f.setCount() != 0 {
		t.Fatalf("expected no volume sets, got %d", f.setCount())
	}
}

func TestRestoreIsIdempotent(t *testing.T) {
	f := newFakeCtrl()
	f.volumes["s"] = 0.4
	m := newTestManager(f)
	ctx := context.Background()
	prof := platform.ByName(platform.Default)

	m.Record(ctx, "s")
	m.Apply(ctx, "s", prof, 0.9)
	setsAfterApply := f.setCount()

	if err := m.Restore(ctx, "s", prof); err != nil {
		t.Fatal(err)
	}
	if err := m.Restore(ctx, "s", prof); err != nil {
		t.Fatal(err)
	}
	// Second restore sees the speaker already at the recorded level and
	// issues no further set.
	if f.setCount() != setsAfterApply+1 {
		t.Fatalf("expected exactly one restore set, got %d total sets", f.setCount())
	}
}

func TestRestoreLeavesUntouchedSpeaker(t *testing.T) {
	f := newFakeCtrl()
	f.volumes["s"] = 0.8
	m := newTestManager(f)
	ctx := context.Background()
	prof := platform.ByName(platform.Default)

	m.Record(ctx, "s")
	// The session never set this speaker; meanwhile the user turned it down.
	f.mu.Lock()
	f.volumes["s"] = 0.5
	f.mu.Unlock()

	if err := m.Restore(ctx, "s", prof); err != nil {
		t.Fatal(err)
	}
	if f.setCount() != 0 {
		t.Fatalf("expected no sets for a speaker the manager never touched, got %d", f.setCount())
	}
	if f.volumes["s"] != 0.5 {
		t.Fatalf("user's volume was overwritten: %v", f.volumes["s"])
	}
}

func TestRestoreSkipsToleranceSkippedApply(t *testing.T) {
	f := newFakeCtrl()
	f.volumes["s"] = 0.8
	m := newTestManager(f)
	ctx := context.Background()
	prof := platform.ByName(platform.Default)

	m.Record(ctx, "s")
	// Target equals the recorded level, so Apply issues no set call.
	if err := m.Apply(ctx, "s", prof, 0.8); err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	f.volumes["s"] = 0.3
	f.mu.Unlock()

	if err := m.Restore(ctx, "s", prof); err != nil {
		t.Fatal(err)
	}
	if f.setCount() != 0 {
		t.Fatalf("expected restore to leave the speaker alone, got %d sets", f.setCount())
	}
}

func TestRestoreSkipsUnrecorded(t *testing.T) {
	f := newFakeCtrl()
	m := newTestManager(f)

	if err := m.Restore(context.Background(), "never_recorded", platform.ByName(platform.Default)); err != nil {
		t.Fatal(err)
	}
	if f.setCount() != 0 {
		t.Fatal("restore of unrecorded speaker should be a no-op")
	}
}

func TestRecordNoVolumeAttribute(t *testing.T) {
	f := newFakeCtrl()
	f.noVol["display"] = true
	m := newTestManager(f)

	_, ok, err := m.Record(context.Background(), "display")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no recorded volume")
	}
}

func TestRestoreSurfacesSetError(t *testing.T) {
	f := newFakeCtrl()
	f.volumes["s"] = 0.4
	m := newTestManager(f)
	ctx := context.Background()
	prof := platform.ByName(platform.Default)

	m.Record(ctx, "s")
	m.Apply(ctx, "s", prof, 0.9)
	f.failSet["s"] = errors.New("hub down")

	if err := m.Restore(ctx, "s", prof); err == nil {
		t.Fatal("expected restore error")
	}
}
