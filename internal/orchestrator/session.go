// Package orchestrator runs announcement sessions: snapshot the speakers,
// prepare them in phases, trigger playback, infer when it finished, and put
// every speaker back the way it was, exactly once each.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"herald/announcer/internal/control"
	"herald/announcer/internal/duration"
	"herald/announcer/internal/grouping"
	"herald/announcer/internal/media"
	"herald/announcer/internal/platform"
	"herald/announcer/internal/types"
	"herald/announcer/internal/volume"
)

// ErrNoUsableSpeakers is the only failure surfaced to the caller as an
// error: nothing was reachable, so nothing was changed and nothing needs
// restoring.
var ErrNoUsableSpeakers = errors.New("no usable speakers")

// EventSink receives session progress events keyed by announcement id.
type EventSink interface {
	Event(announcementID, typ string, payload map[string]any)
}

type nopSink struct{}

func (nopSink) Event(string, string, map[string]any) {}

// Config carries the session policy knobs. Zero values get conservative
// defaults in New.
type Config struct {
	SynthEntity string

	PausePlatforms  []string
	GroupingEnabled bool
	RestoreVolume   bool
	PausePlayback   bool

	MaxSpeakRetries int
	SpeakRetryDelay time.Duration

	// TurnOnSettle is the wait after powering on an off speaker before its
	// reported state is trusted.
	TurnOnSettle time.Duration
	// PauseSettle is the single uniform wait after the pause batch.
	PauseSettle time.Duration
	// PostPrepareSettle separates the end of preparation from playback.
	PostPrepareSettle time.Duration

	// StatePollInterval drives the observed-state restore path.
	StatePollInterval time.Duration
	// MediaScanWindow bounds the search for the announcement clip's content
	// reference when the duration resolver needs the media probe tier.
	MediaScanWindow time.Duration
	// RestoreGrace bounds how long the observed-state path waits past the
	// estimated end before restoring anyway.
	RestoreGrace time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxSpeakRetries <= 0 {
		c.MaxSpeakRetries = 3
	}
	if c.SpeakRetryDelay <= 0 {
		c.SpeakRetryDelay = 500 * time.Millisecond
	}
	if c.TurnOnSettle <= 0 {
		c.TurnOnSettle = time.Second
	}
	if c.PauseSettle <= 0 {
		c.PauseSettle = 300 * time.Millisecond
	}
	if c.PostPrepareSettle <= 0 {
		c.PostPrepareSettle = 800 * time.Millisecond
	}
	if c.StatePollInterval <= 0 {
		c.StatePollInterval = 500 * time.Millisecond
	}
	if c.MediaScanWindow <= 0 {
		c.MediaScanWindow = 3 * time.Second
	}
	if c.RestoreGrace <= 0 {
		c.RestoreGrace = 10 * time.Second
	}
}

// Orchestrator is the long-lived service; each Announce call runs one
// ephemeral session over the shared collaborators.
type Orchestrator struct {
	ctrl     control.SpeakerController
	synth    control.Synthesizer
	resolver *duration.Resolver
	cfg      Config
	sink     EventSink
}

func New(ctrl control.SpeakerController, synth control.Synthesizer, resolver *duration.Resolver, cfg Config, sink EventSink) *Orchestrator {
	cfg.applyDefaults()
	if sink == nil {
		sink = nopSink{}
	}
	return &Orchestrator{ctrl: ctrl, synth: synth, resolver: resolver, cfg: cfg, sink: sink}
}

// Params is one announcement call.
type Params struct {
	ID            string
	SynthEntity   string
	SpeakerIDs    []string
	Message       string
	Language      string
	Options       types.SpeakOptions
	TargetVolume  *float64
	PausePlayback *bool
}

// Result summarizes a finished session.
type Result struct {
	Status         string
	Duration       time.Duration
	DurationSource duration.Source
	Targets        []string
	Skipped        []string
}

// session is the per-announcement state. The speaker partition and all
// snapshots are fixed during preparation and never recomputed.
type session struct {
	o *Orchestrator
	p Params

	state State

	profiles map[string]platform.Profile
	usable   []string
	skipped  []string

	// Fixed start-of-session partition.
	wasOff     map[string]bool
	wasPlaying map[string]bool

	// priorContent remembers what each speaker reported before the
	// announcement, so the clip search can tell the clip from ambient media.
	priorContent map[string]string

	vol     *volume.Manager
	med     *media.Manager
	tracker *restoreTracker

	grouped map[string]bool // member of a formed group
	groups  []grouping.Group

	pausePlayback bool
}

// Announce runs one full session and blocks until every speaker's
// restoration has been attempted (or nothing was reachable).
func (o *Orchestrator) Announce(ctx context.Context, p Params) (Result, error) {
	synthEntity := p.SynthEntity
	if synthEntity == "" {
		synthEntity = o.cfg.SynthEntity
	}
	p.SynthEntity = synthEntity

	pause := o.cfg.PausePlayback
	if p.PausePlayback != nil {
		pause = *p.PausePlayback
	}

	s := &session{
		o:             o,
		p:             p,
		state:         StateIdle,
		profiles:      make(map[string]platform.Profile),
		wasOff:        make(map[string]bool),
		wasPlaying:    make(map[string]bool),
		priorContent:  make(map[string]string),
		vol:           volume.NewManager(o.ctrl),
		med:           media.NewManager(o.ctrl, o.cfg.PausePlatforms),
		tracker:       newRestoreTracker(),
		grouped:       make(map[string]bool),
		pausePlayback: pause,
	}

	start := time.Now()
	res, err := s.run(ctx)
	metricSessionMS.Observe(float64(time.Since(start).Milliseconds()))
	metricAnnouncements.WithLabelValues(res.Status).Inc()
	return res, err
}

func (s *session) emit(typ string, payload map[string]any) {
	s.o.sink.Event(s.p.ID, typ, payload)
}

func (s *session) run(ctx context.Context) (Result, error) {
	prepStart := time.Now()
	s.setState(StatePreparing)

	probes := s.probeAll(ctx, s.p.SpeakerIDs)
	pauseCandidates := s.partitionAndSnapshot(probes)
	if len(s.usable) == 0 {
		s.setState(StateFailed)
		s.emit("session_failed", map[string]any{"reason": "no usable speakers"})
		return Result{Status: string(StateFailed), Skipped: s.skipped}, ErrNoUsableSpeakers
	}

	s.wakeOffSpeakers(ctx)
	s.pauseAndSetVolume(ctx, pauseCandidates)
	s.sleep(ctx, s.o.cfg.PostPrepareSettle)
	s.formGroups(ctx)
	metricPrepareMS.Observe(float64(time.Since(prepStart).Milliseconds()))

	if ctx.Err() != nil {
		return s.bailOut(ctx, "cancelled during preparation"), nil
	}

	s.setState(StatePlaying)
	if err := s.speakWithRetry(ctx); err != nil {
		log.Printf("[session] %s playback trigger failed: %v", s.p.ID, err)
		return s.bailOut(ctx, fmt.Sprintf("playback failed: %v", err)), nil
	}
	playStart := time.Now()
	s.emit("playback_started", map[string]any{"speakers": s.playTargets()})

	s.setState(StateResolvingDuration)
	key := duration.Key(s.p.Message, s.p.Language, s.p.Options.Voice, s.p.Options.Speed)
	total, src := s.o.resolver.Resolve(ctx, s.p.SynthEntity, key, s.findMediaURL)
	remaining := total - time.Since(playStart)
	if remaining < 0 {
		remaining = 0
	}
	s.emit("duration_resolved", map[string]any{
		"duration_ms":  total.Milliseconds(),
		"source":       string(src),
		"remaining_ms": remaining.Milliseconds(),
	})

	s.setState(StateRestoring)
	var wg sync.WaitGroup
	for _, id := range s.usable {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.restoreWorker(ctx, id, remaining)
		}(id)
	}
	wg.Wait()

	s.dissolveGroups()
	s.setState(StateDone)
	s.emit("session_done", map[string]any{"restored": s.tracker.count()})
	return Result{
		Status:         string(StateDone),
		Duration:       total,
		DurationSource: src,
		Targets:        s.usable,
		Skipped:        s.skipped,
	}, nil
}

// probeAll reads every requested speaker concurrently. Probe failures leave
// the speaker out of the result; the partition step records it as skipped.
func (s *session) probeAll(ctx context.Context, ids []string) map[string]control.ProbeResult {
	var mu sync.Mutex
	var wg sync.WaitGroup
	out := make(map[string]control.ProbeResult, len(ids))
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			probe, err := s.o.ctrl.Probe(ctx, id)
			if err != nil {
				log.Printf("[session] %s probe %s failed: %v", s.p.ID, id, err)
				return
			}
			mu.Lock()
			out[id] = probe
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return out
}

// partitionAndSnapshot fixes the start-of-session partition and takes the
// volume and media snapshots off the same probes. Returns the speakers that
// should be paused.
func (s *session) partitionAndSnapshot(probes map[string]control.ProbeResult) []string {
	var pauseCandidates []string
	for _, id := range s.p.SpeakerIDs {
		probe, ok := probes[id]
		if !ok || !probe.State.Usable() {
			s.skipped = append(s.skipped, id)
			metricSkippedSpeakers.Inc()
			s.emit("speaker_skipped", map[string]any{"speaker": id})
			continue
		}
		s.usable = append(s.usable, id)
		prof := platform.Classify(id, probe.Platform)
		s.profiles[id] = prof

		switch probe.State {
		case types.StateOff:
			s.wasOff[id] = true
		case types.StatePlaying:
			s.wasPlaying[id] = true
		}

		if content, ok := probe.ContentID(); ok {
			s.priorContent[id] = content
		}

		s.vol.RecordFrom(id, probe)
		if s.med.Snapshot(id, prof.Name, probe) && s.pausePlayback {
			pauseCandidates = append(pauseCandidates, id)
		}
	}
	return pauseCandidates
}

// wakeOffSpeakers powers on speakers found off, waits one settle period and
// re-records their volume, which is only readable once they are awake.
func (s *session) wakeOffSpeakers(ctx context.Context) {
	var off []string
	for id := range s.wasOff {
		off = append(off, id)
	}
	if len(off) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, id := range off {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := s.o.ctrl.TurnOn(ctx, id); err != nil {
				log.Printf("[session] %s turn_on %s failed: %v", s.p.ID, id, err)
			}
		}(id)
	}
	wg.Wait()
	s.sleep(ctx, s.o.cfg.TurnOnSettle)

	for _, id := range off {
		if _, _, err := s.vol.Record(ctx, id); err != nil {
			log.Printf("[session] %s post-wake volume record %s failed: %v", s.p.ID, id, err)
		}
	}
}

// pauseAndSetVolume runs the pause batch and the volume sets concurrently.
// Both depend on turn-on having finished; neither depends on the other.
func (s *session) pauseAndSetVolume(ctx context.Context, pauseCandidates []string) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.med.PauseAll(ctx, pauseCandidates, s.o.cfg.PauseSettle)
	}()
	if s.p.TargetVolume != nil {
		target := *s.p.TargetVolume
		for _, id := range s.usable {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if err := s.vol.Apply(ctx, id, s.profiles[id], target); err != nil {
					log.Printf("[session] %s volume set %s failed: %v", s.p.ID, id, err)
				}
			}(id)
		}
	}
	wg.Wait()
}

func (s *session) formGroups(ctx context.Context) {
	if !s.o.cfg.GroupingEnabled {
		return
	}
	gm := grouping.NewManager(s.o.ctrl)
	for _, g := range grouping.Plan(s.usable, s.profiles) {
		if err := gm.Form(ctx, g); err != nil {
			log.Printf("[session] %s %v, playing ungrouped", s.p.ID, err)
			continue
		}
		s.groups = append(s.groups, g)
		for _, id := range g.All() {
			s.grouped[id] = true
		}
	}
}

func (s *session) dissolveGroups() {
	if len(s.groups) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	gm := grouping.NewManager(s.o.ctrl)
	for _, g := range s.groups {
		gm.Dissolve(ctx, g)
	}
}

// playTargets is the speaker list handed to the synthesizer: group
// coordinators stand in for their members.
func (s *session) playTargets() []string {
	member := make(map[string]bool)
	for _, g := range s.groups {
		for _, id := range g.Members {
			member[id] = true
		}
	}
	var targets []string
	for _, id := range s.usable {
		if !member[id] {
			targets = append(targets, id)
		}
	}
	return targets
}

func (s *session) speakWithRetry(ctx context.Context) error {
	delay := s.o.cfg.SpeakRetryDelay
	var err error
	for attempt := 1; attempt <= s.o.cfg.MaxSpeakRetries; attempt++ {
		err = s.o.synth.Speak(ctx, s.p.SynthEntity, s.playTargets(), s.p.Message, s.p.Language, s.p.Options)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		log.Printf("[session] %s speak attempt %d/%d failed: %v", s.p.ID, attempt, s.o.cfg.MaxSpeakRetries, err)
		if attempt < s.o.cfg.MaxSpeakRetries {
			metricSpeakRetries.Inc()
			s.sleep(ctx, delay)
			delay *= 2
		}
	}
	return err
}

// findMediaURL scans play targets for the announcement clip's content
// reference, feeding the resolver's media probe tier. The resolver only
// calls it once the cheaper tiers have failed. The scan polls for a bounded
// window because the clip takes a moment to show up in reported state, and a
// speaker still reporting its pre-announcement content is playing ambient
// media, not the clip.
func (s *session) findMediaURL(ctx context.Context) string {
	deadline := time.Now().Add(s.o.cfg.MediaScanWindow)
	for {
		for _, id := range s.playTargets() {
			probe, err := s.o.ctrl.Probe(ctx, id)
			if err != nil || probe.State != types.StatePlaying {
				continue
			}
			content, ok := probe.ContentID()
			if !ok || content == s.priorContent[id] {
				continue
			}
			typ := probe.ContentType()
			if typ == "music" || typ == "audio" || strings.HasSuffix(content, ".mp3") {
				return content
			}
		}
		if time.Now().After(deadline) {
			return ""
		}
		if !s.sleep(ctx, s.o.cfg.StatePollInterval) {
			return ""
		}
	}
}

// restoreWorker handles one speaker's restoration. Originally-playing
// speakers wait a fixed timer from playback start; originally off or idle
// speakers wait for their observed state to come back down instead, since a
// freshly woken speaker starts playing at an unpredictable offset.
func (s *session) restoreWorker(ctx context.Context, id string, remaining time.Duration) {
	prof := s.profiles[id]
	if s.wasPlaying[id] {
		buf := prof.RestorationBuffer
		if s.grouped[id] {
			buf = platform.GroupedRestorationBuffer
		}
		if !s.sleep(ctx, remaining+buf) {
			s.restoreSpeaker(id, "immediate")
			return
		}
		s.restoreSpeaker(id, "timer")
		return
	}
	path := s.awaitIdle(ctx, id, remaining, prof)
	s.restoreSpeaker(id, path)
}

// awaitIdle polls an originally off/idle speaker until the announcement is
// observed to have finished on it. Bounded: past the estimate plus buffer
// plus grace it gives up and restores anyway.
func (s *session) awaitIdle(ctx context.Context, id string, remaining time.Duration, prof platform.Profile) string {
	start := time.Now()
	deadline := start.Add(remaining + prof.RestorationBuffer + s.o.cfg.RestoreGrace)
	seenPlaying := false
	for {
		if !s.sleep(ctx, s.o.cfg.StatePollInterval) {
			return "immediate"
		}
		probe, err := s.o.ctrl.Probe(ctx, id)
		if err == nil {
			switch {
			case probe.State == types.StatePlaying:
				seenPlaying = true
			case seenPlaying:
				return "state"
			case time.Since(start) >= remaining:
				// Never caught it playing but the clip must be over by now.
				return "state"
			}
		}
		if time.Now().After(deadline) {
			log.Printf("[session] %s %s never settled, restoring on deadline", s.p.ID, id)
			return "deadline"
		}
	}
}

// restoreSpeaker puts one speaker back. The tracker guarantees this runs at
// most once per speaker no matter which path got here first.
func (s *session) restoreSpeaker(id, path string) {
	if !s.tracker.claim(id) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.o.cfg.RestoreVolume {
		if err := s.vol.Restore(ctx, id, s.profiles[id]); err != nil {
			log.Printf("[session] %s volume restore %s failed: %v", s.p.ID, id, err)
		}
	}
	if s.pausePlayback {
		if err := s.med.Resume(ctx, id); err != nil {
			log.Printf("[session] %s resume %s failed: %v", s.p.ID, id, err)
		}
	}
	metricRestores.WithLabelValues(path).Inc()
	s.emit("speaker_restored", map[string]any{"speaker": id, "path": path})
}

// bailOut is the degraded exit: restore everything snapshotted right now,
// then report the session failed. Restoration is prioritized over clean
// shutdown, so this runs even when ctx is already cancelled.
func (s *session) bailOut(ctx context.Context, reason string) Result {
	var wg sync.WaitGroup
	for _, id := range s.usable {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.restoreSpeaker(id, "immediate")
		}(id)
	}
	wg.Wait()
	s.dissolveGroups()
	s.setState(StateFailed)
	s.emit("session_failed", map[string]any{"reason": reason})
	return Result{Status: string(StateFailed), Targets: s.usable, Skipped: s.skipped}
}

// sleep waits d, returning false if the session was cancelled first.
func (s *session) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
