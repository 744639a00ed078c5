package duration

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"herald/announcer/internal/control"
	"herald/announcer/internal/types"
)

type fakeSynth struct {
	statuses []control.SynthStatus
	err      error
	calls    int
}

func (f *fakeSynth) Speak(ctx context.Context, e string, ids []string, msg, lang string, o types.SpeakOptions) error {
	return nil
}

func (f *fakeSynth) Status(ctx context.Context, e string) (control.SynthStatus, error) {
	if f.err != nil {
		return control.SynthStatus{}, f.err
	}
	i := f.calls
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.calls++
	return f.statuses[i], nil
}

type fakeProber struct {
	d   time.Duration
	err error
}

func (f *fakeProber) Estimate(ctx context.Context, url string) (time.Duration, error) {
	return f.d, f.err
}

func staticURL(u string) func(context.Context) string {
	return func(context.Context) string { return u }
}

func newResolver(s control.Synthesizer, p MediaProber) *Resolver {
	return &Resolver{
		Synth:         s,
		Cache:         NewCache(8),
		Prob:          p,
		EngineTimeout: 200 * time.Millisecond,
		PollInterval:  time.Millisecond,
		Fallback:      10 * time.Second,
	}
}

func TestResolveEngineTier(t *testing.T) {
	s := &fakeSynth{statuses: []control.SynthStatus{
		{Active: true},
		{Active: true},
		{Active: false, DurationMS: 3200},
	}}
	r := newResolver(s, nil)

	d, src := r.Resolve(context.Background(), "tts.a", "key1", nil)
	if src != SourceEngine {
		t.Fatalf("source = %s, want engine", src)
	}
	if d != 3200*time.Millisecond {
		t.Fatalf("duration = %v", d)
	}
	// Engine result is written back to the cache
	if cached, ok := r.Cache.Get("key1"); !ok || cached != d {
		t.Fatalf("cache = %v %v", cached, ok)
	}
}

func TestResolveCacheTier(t *testing.T) {
	s := &fakeSynth{err: errors.New("hub gone")}
	r := newResolver(s, nil)
	r.Cache.Put("key1", 4*time.Second)

	d, src := r.Resolve(context.Background(), "tts.a", "key1", nil)
	if src != SourceCache || d != 4*time.Second {
		t.Fatalf("got %v from %s", d, src)
	}
}

func TestResolveCacheSkippedWhileEngineBusy(t *testing.T) {
	// A busy engine means the cached measurement may be stale; the engine
	// tier runs and its fresh answer replaces the cache entry.
	s := &fakeSynth{statuses: []control.SynthStatus{
		{Active: true},
		{Active: false, DurationMS: 2500},
	}}
	r := newResolver(s, nil)
	r.Cache.Put("key1", 9*time.Second)

	d, src := r.Resolve(context.Background(), "tts.a", "key1", nil)
	if src != SourceEngine || d != 2500*time.Millisecond {
		t.Fatalf("got %v from %s", d, src)
	}
	if cached, _ := r.Cache.Get("key1"); cached != d {
		t.Fatalf("cache not refreshed: %v", cached)
	}
}

func TestResolveProbeTier(t *testing.T) {
	s := &fakeSynth{err: errors.New("hub gone")}
	r := newResolver(s, &fakeProber{d: 7 * time.Second})

	d, src := r.Resolve(context.Background(), "tts.a", "miss", staticURL("/audio/x.mp3"))
	if src != SourceProbe || d != 7*time.Second {
		t.Fatalf("got %v from %s", d, src)
	}
	// Probe result also feeds the cache for next time
	if cached, ok := r.Cache.Get("miss"); !ok || cached != d {
		t.Fatalf("cache = %v %v", cached, ok)
	}
}

func TestResolveFallbackTier(t *testing.T) {
	s := &fakeSynth{err: errors.New("hub gone")}
	r := newResolver(s, &fakeProber{err: errors.New("404")})

	d, src := r.Resolve(context.Background(), "tts.a", "miss", staticURL("/audio/x.mp3"))
	if src != SourceFallback || d != 10*time.Second {
		t.Fatalf("got %v from %s", d, src)
	}
}

func TestResolveLocatesMediaLazily(t *testing.T) {
	// The clip lookup scans live speaker state, so it must not run at all
	// when an earlier tier already answered.
	s := &fakeSynth{statuses: []control.SynthStatus{{Active: false, DurationMS: 1800}}}
	r := newResolver(s, &fakeProber{d: 7 * time.Second})
	located := 0

	_, src := r.Resolve(context.Background(), "tts.a", "key1", func(context.Context) string {
		located++
		return "/audio/x.mp3"
	})
	if src != SourceEngine {
		t.Fatalf("source = %s, want engine", src)
	}
	if located != 0 {
		t.Fatalf("media lookup ran %d times, want 0", located)
	}
}

func TestResolveEngineZeroDurationFallsThrough(t *testing.T) {
	// Engine goes inactive but never learned the duration
	s := &fakeSynth{statuses: []control.SynthStatus{{Active: false, DurationMS: 0}}}
	r := newResolver(s, nil)

	_, src := r.Resolve(context.Background(), "tts.a", "", nil)
	if src != SourceFallback {
		t.Fatalf("source = %s, want fallback", src)
	}
}

func TestResolveEngineStuckActive(t *testing.T) {
	s := &fakeSynth{statuses: []control.SynthStatus{{Active: true}}}
	r := newResolver(s, nil)
	r.EngineTimeout = 5 * time.Millisecond

	_, src := r.Resolve(context.Background(), "tts.a", "", nil)
	if src != SourceFallback {
		t.Fatalf("source = %s, want fallback", src)
	}
}

func TestKeyDistinguishesVoice(t *testing.T) {
	a := Key("hello", "en", "alloy", 1.0)
	b := Key("hello", "en", "onyx", 1.0)
	if a == b {
		t.Fatal("different voices must key differently")
	}
	if a != Key("hello", "en", "alloy", 1.0) {
		t.Fatal("key must be deterministic")
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c := NewCache(3)
	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("k%d", i), time.Duration(i)*time.Second)
	}
	c.Get("k0") // refresh k0
	c.Put("k3", 3*time.Second)

	if _, ok := c.Get("k1"); ok {
		t.Fatal("k1 should have been evicted")
	}
	if _, ok := c.Get("k0"); !ok {
		t.Fatal("recently used k0 should survive")
	}
	if c.Len() != 3 {
		t.Fatalf("len = %d", c.Len())
	}
}
