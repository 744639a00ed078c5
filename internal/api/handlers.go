package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"herald/announcer/internal/config"
	"herald/announcer/internal/orchestrator"
	"herald/announcer/internal/store"
	"herald/announcer/internal/types"
)

// Announcer is the session entry point the handlers drive.
type Announcer interface {
	Announce(ctx context.Context, p orchestrator.Params) (orchestrator.Result, error)
}

type Handlers struct {
	cfg   config.Config
	store *store.Store
	ann   Announcer
}

func NewHandlers(cfg config.Config, st *store.Store, ann Announcer) *Handlers {
	return &Handlers{cfg: cfg, store: st, ann: ann}
}

func (h *Handlers) HandleCreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	var req types.AnnounceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	if len(req.SpeakerIDs) == 0 {
		http.Error(w, "speaker_ids is required", http.StatusBadRequest)
		return
	}

	id := uuid.New().String()
	ann := &types.Announcement{
		ID:         id,
		Message:    req.Message,
		SpeakerIDs: req.SpeakerIDs,
		CreatedAt:  time.Now().UTC(),
		Status:     "accepted",
	}
	_ = h.store.Create(ann)
	h.store.AppendEvent(id, "announcement_accepted", map[string]any{"speakers": req.SpeakerIDs})

	params := orchestrator.Params{
		ID:            id,
		SynthEntity:   req.SynthEntity,
		SpeakerIDs:    req.SpeakerIDs,
		Message:       req.Message,
		Language:      req.Language,
		Options:       req.Options,
		TargetVolume:  req.TargetVolume,
		PausePlayback: req.PausePlayback,
	}

	timeout := time.Duration(h.cfg.Announce.SessionTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	run := func() (orchestrator.Result, error) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := h.ann.Announce(ctx, params)
		if err != nil {
			log.Printf("[api] announcement %s: %v", id, err)
		}
		return res, err
	}

	// With ?wait=true the call blocks until restoration finished, matching
	// the programmatic entry point. Default is accept-and-poll.
	if r.URL.Query().Get("wait") == "true" {
		res, err := run()
		if errors.Is(err, orchestrator.ErrNoUsableSpeakers) {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"announcement_id": id,
				"status":          res.Status,
				"error":           err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"announcement_id": id,
			"status":          res.Status,
			"duration_ms":     res.Duration.Milliseconds(),
			"duration_source": string(res.DurationSource),
			"targets":         res.Targets,
			"skipped":         res.Skipped,
		})
		return
	}

	go func() { _, _ = run() }()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"announcement_id": id,
		"status":          "accepted",
	})
}

func (h *Handlers) HandleGetAnnouncement(w http.ResponseWriter, r *http.Request, id string) {
	ann := h.store.Get(id)
	if ann == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, ann)
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request, id string) {
	if h.store.Get(id) == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"announcement_id": id,
		"events":          h.store.ListEvents(id),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
