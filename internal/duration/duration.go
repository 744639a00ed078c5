// Package duration estimates how long an announcement will play. Four tiers,
// tried in order: a cache of previously resolved messages (honored only while
// the engine is idle), the engine's own report, a probe of the rendered audio
// file, and a fixed fallback.
package duration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"herald/announcer/internal/control"
)

// Source names the tier that produced an estimate.
type Source string

const (
	SourceEngine   Source = "engine"
	SourceCache    Source = "cache"
	SourceProbe    Source = "probe"
	SourceFallback Source = "fallback"
)

// MediaProber estimates a duration from the rendered audio resource itself.
type MediaProber interface {
	Estimate(ctx context.Context, mediaURL string) (time.Duration, error)
}

// Key derives the cache key for a message rendered with the given voice
// parameters. Same text with a different voice or speed is a different clip.
func Key(message, language, voice string, speed float64) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%.3f", message, language, voice, speed)))
	return hex.EncodeToString(h[:])
}

// Resolver runs the tier cascade. Fields are wired once at startup; the
// resolver itself is stateless apart from the injected cache.
type Resolver struct {
	Synth control.Synthesizer
	Cache *Cache
	Prob  MediaProber

	// EngineTimeout bounds tier 1 polling; PollInterval is the poll cadence.
	EngineTimeout time.Duration
	PollInterval  time.Duration
	// ProbeTimeout bounds the tier 3 media fetch.
	ProbeTimeout time.Duration
	// Fallback is the tier 4 constant.
	Fallback time.Duration
}

// Resolve returns the total playback duration and which tier produced it.
// It never fails: the fallback tier always answers. The caller accounts for
// the wall time Resolve itself consumed.
//
// A cache hit is the fast path, but only while the engine is not actively
// regenerating the clip; a busy engine means the cached measurement may be
// about to be superseded, so the engine tier runs instead.
//
// mediaURL locates the rendered clip for the probe tier. It is a callback
// because finding the clip means scanning live speaker state, which is only
// worth doing once the first two tiers have already failed. nil disables the
// tier.
func (r *Resolver) Resolve(ctx context.Context, synthEntity, cacheKey string, mediaURL func(context.Context) string) (time.Duration, Source) {
	if r.Cache != nil && cacheKey != "" {
		if d, ok := r.Cache.Get(cacheKey); ok && r.engineIdle(ctx, synthEntity) {
			log.Printf("[duration] cache hit: %v", d)
			metricDurationSource.WithLabelValues(string(SourceCache)).Inc()
			return d, SourceCache
		}
	}
	if d, ok := r.fromEngine(ctx, synthEntity); ok {
		if r.Cache != nil && cacheKey != "" {
			r.Cache.Put(cacheKey, d)
		}
		metricDurationSource.WithLabelValues(string(SourceEngine)).Inc()
		return d, SourceEngine
	}
	if r.Prob != nil && mediaURL != nil {
		if url := mediaURL(ctx); url != "" {
			pctx, cancel := context.WithTimeout(ctx, r.probeTimeout())
			d, err := r.Prob.Estimate(pctx, url)
			cancel()
			if err == nil && d > 0 {
				if r.Cache != nil && cacheKey != "" {
					r.Cache.Put(cacheKey, d)
				}
				log.Printf("[duration] media probe: %v", d)
				metricDurationSource.WithLabelValues(string(SourceProbe)).Inc()
				return d, SourceProbe
			}
			if err != nil {
				log.Printf("[duration] media probe failed: %v", err)
			}
		}
	}
	log.Printf("[duration] falling back to %v", r.Fallback)
	metricDurationSource.WithLabelValues(string(SourceFallback)).Inc()
	return r.Fallback, SourceFallback
}

// engineIdle is a single status check. Errors count as idle so a dead hub
// does not block the cache fast path.
func (r *Resolver) engineIdle(ctx context.Context, synthEntity string) bool {
	if r.Synth == nil {
		return true
	}
	st, err := r.Synth.Status(ctx, synthEntity)
	if err != nil {
		return true
	}
	return !st.Active
}

// fromEngine polls the synthesizer until it reports inactive, then trusts
// its duration if it gave one. A still-active engine at deadline means the
// report can't be trusted and the tier fails.
func (r *Resolver) fromEngine(ctx context.Context, synthEntity string) (time.Duration, bool) {
	if r.Synth == nil {
		return 0, false
	}
	deadline := time.Now().Add(r.engineTimeout())
	interval := r.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	for {
		st, err := r.Synth.Status(ctx, synthEntity)
		if err != nil {
			log.Printf("[duration] engine status failed: %v", err)
			return 0, false
		}
		if !st.Active {
			if st.DurationMS > 0 {
				return time.Duration(st.DurationMS) * time.Millisecond, true
			}
			return 0, false
		}
		if time.Now().After(deadline) {
			log.Printf("[duration] engine still active at deadline, abandoning tier")
			return 0, false
		}
		select {
		case <-ctx.Done():
			return 0, false
		case <-time.After(interval):
		}
	}
}

func (r *Resolver) engineTimeout() time.Duration {
	if r.EngineTimeout > 0 {
		return r.EngineTimeout
	}
	return 5 * time.Second
}

func (r *Resolver) probeTimeout() time.Duration {
	if r.ProbeTimeout > 0 {
		return r.ProbeTimeout
	}
	return 3 * time.Second
}
