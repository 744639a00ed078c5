package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"herald/announcer/internal/api"
	"herald/announcer/internal/config"
	"herald/announcer/internal/duration"
	"herald/announcer/internal/eventws"
	"herald/announcer/internal/hass"
	"herald/announcer/internal/orchestrator"
	"herald/announcer/internal/store"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	st := store.New()

	hub := hass.NewClient(rootCtx, hass.Options{
		URL:             cfg.Hub.URL,
		Token:           cfg.Hub.Token,
		CallTimeoutSecs: cfg.Hub.CallTimeoutSecs,
	})
	hub.Start()

	fetcher := hass.NewMediaFetcher(httpBaseFromWS(cfg.Hub.URL), cfg.Hub.Token)

	resolver := &duration.Resolver{
		Synth:         hub,
		Cache:         duration.NewCache(cfg.Announce.CacheCapacity),
		Prob:          fetcher,
		EngineTimeout: time.Duration(cfg.Synth.SpeakTimeoutSecs) * time.Second,
		PollInterval:  time.Duration(cfg.Synth.PollIntervalMs) * time.Millisecond,
		Fallback:      time.Duration(cfg.Announce.FallbackDurationMs) * time.Millisecond,
	}

	reg := eventws.NewRegistry()
	sink := &api.Sink{Store: st, Reg: reg}

	orch := orchestrator.New(hub, hub, resolver, orchestrator.Config{
		SynthEntity:     cfg.Synth.Entity,
		PausePlatforms:  cfg.Announce.PausePlatforms,
		GroupingEnabled: cfg.Announce.GroupingEnabled,
		RestoreVolume:   cfg.Announce.RestoreVolume,
		PausePlayback:   cfg.Announce.PausePlayback,
		MaxSpeakRetries: cfg.Synth.MaxRetries,
		SpeakRetryDelay: time.Duration(cfg.Synth.RetryDelayMs) * time.Millisecond,
	}, sink)

	h := api.NewHandlers(cfg, st, orch)
	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(h))
	wss := eventws.NewServer(cfg, st, reg)
	mux.HandleFunc("/ws/announcements", wss.HandleObserverWS)
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("shutdown signal received; stopping server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		hub.Close()
	}()

	log.Printf("server starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
}

// httpBaseFromWS maps the hub websocket URL to its HTTP origin for media
// fetches: ws://host:port/api/websocket -> http://host:port
func httpBaseFromWS(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return wsURL
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	case "ws":
		u.Scheme = "http"
	}
	u.Path = ""
	return u.String()
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
