package types

import "time"

// SpeakerState is the playback state a speaker reports to the hub.
type SpeakerState string

const (
	StateOff         SpeakerState = "off"
	StateIdle        SpeakerState = "idle"
	StatePlaying     SpeakerState = "playing"
	StatePaused      SpeakerState = "paused"
	StateUnavailable SpeakerState = "unavailable"
	StateUnknown     SpeakerState = "unknown"
)

// Usable reports whether a speaker in this state can take part in an
// announcement session. Unavailable/unknown speakers are skipped, not retried.
func (s SpeakerState) Usable() bool {
	return s != StateUnavailable && s != StateUnknown && s != ""
}

// SpeakOptions are the synthesis options forwarded to the speak service.
// All fields are optional; zero values mean "engine default".
type SpeakOptions struct {
	Voice          string  `json:"voice,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
	Instructions   string  `json:"instructions,omitempty"`
	Chime          bool    `json:"chime,omitempty"`
	ChimeSound     string  `json:"chime_sound,omitempty"`
	NormalizeAudio bool    `json:"normalize_audio,omitempty"`
}

// AnnounceRequest is a single announcement call against a set of speakers.
type AnnounceRequest struct {
	SynthEntity   string       `json:"synth_entity"`
	SpeakerIDs    []string     `json:"speaker_ids"`
	Message       string       `json:"message"`
	Language      string       `json:"language,omitempty"`
	Options       SpeakOptions `json:"options,omitempty"`
	TargetVolume  *float64     `json:"target_volume,omitempty"`
	PausePlayback *bool        `json:"pause_playback,omitempty"`
}

type Event struct {
	Type    string         `json:"type"`
	Ts      time.Time      `json:"timestamp"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Announcement is the stored record of one orchestration session.
type Announcement struct {
	ID         string    `json:"announcement_id"`
	Message    string    `json:"message"`
	SpeakerIDs []string  `json:"speaker_ids"`
	CreatedAt  time.Time `json:"created_at"`
	Status     string    `json:"status"`

	DurationMS     int64      `json:"duration_ms,omitempty"`
	DurationSource string     `json:"duration_source,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}
