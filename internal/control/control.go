// Package control defines the collaborator contracts the orchestrator
// consumes: the speaker control surface exposed by the hub and the speech
// synthesizer. Implementations live in internal/hass; tests use in-package
// fakes.
package control

import (
	"context"
	"errors"

	"herald/announcer/internal/types"
)

// ErrUnavailable is returned by control calls against a speaker the hub
// cannot currently reach.
var ErrUnavailable = errors.New("speaker unavailable")

// ProbeResult is one fresh read of a speaker's reported state. Results are
// never cached across orchestration phases.
type ProbeResult struct {
	State      types.SpeakerState
	Platform   string
	Attributes map[string]any
}

// VolumeLevel returns the reported volume (0.0-1.0) and whether the speaker
// exposes one at all.
func (p ProbeResult) VolumeLevel() (float64, bool) {
	v, ok := p.Attributes["volume_level"]
	if !ok {
		return 0, false
	}
	f, ok := toFloat(v)
	return f, ok
}

// ContentID returns the now-playing content identifier, if any.
func (p ProbeResult) ContentID() (string, bool) {
	s, ok := p.Attributes["media_content_id"].(string)
	return s, ok && s != ""
}

func (p ProbeResult) ContentType() string {
	s, _ := p.Attributes["media_content_type"].(string)
	return s
}

// PositionSecs returns the reported playback position in seconds.
func (p ProbeResult) PositionSecs() float64 {
	f, _ := toFloat(p.Attributes["media_position"])
	return f
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

// SpeakerController is the hub's per-speaker control surface. All calls may
// block on the hub and honor ctx cancellation.
type SpeakerController interface {
	Probe(ctx context.Context, speakerID string) (ProbeResult, error)
	SetVolume(ctx context.Context, speakerID string, level float64) error
	Pause(ctx context.Context, speakerID string) error
	Play(ctx context.Context, speakerID string) error
	TurnOn(ctx context.Context, speakerID string) error
	Join(ctx context.Context, coordinatorID string, memberIDs []string) error
	Unjoin(ctx context.Context, speakerIDs []string) error
}

// SynthStatus is one read of the synthesizer's reported state. DurationMS is
// only meaningful once Active has flipped back to false.
type SynthStatus struct {
	Active     bool
	DurationMS int64
}

// Synthesizer triggers speech playback. Speak is fire-and-forget: its side
// effects are observable only through Status polling and speaker probes.
type Synthesizer interface {
	Speak(ctx context.Context, synthEntity string, speakerIDs []string, message, language string, opts types.SpeakOptions) error
	Status(ctx context.Context, synthEntity string) (SynthStatus, error)
}
