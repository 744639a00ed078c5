package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Clear relevant envs
	os.Unsetenv("PORT")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("HUB_WS_URL")
	os.Unsetenv("ANNOUNCE_FALLBACK_DURATION_MS")
	os.Unsetenv("ANNOUNCE_PAUSE_PLATFORMS")

	c := Load()

	if c.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", c.Server.Port)
	}
	if c.Server.LogLevel != "info" {
		t.Fatalf("expected default log level info, got %q", c.Server.LogLevel)
	}
	if c.Announce.FallbackDurationMs != 10000 {
		t.Fatalf("expected 10s fallback duration, got %d", c.Announce.FallbackDurationMs)
	}
	if c.Synth.MaxRetries != 3 {
		t.Fatalf("expected 3 speak retries, got %d", c.Synth.MaxRetries)
	}
	want := []string{"sonos", "cast", "default"}
	if len(c.Announce.PausePlatforms) != len(want) {
		t.Fatalf("pause platforms = %v, want %v", c.Announce.PausePlatforms, want)
	}
	for i, p := range want {
		if c.Announce.PausePlatforms[i] != p {
			t.Fatalf("pause platforms = %v, want %v", c.Announce.PausePlatforms, want)
		}
	}
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("ANNOUNCE_PAUSE_PLATFORMS", "sonos, alexa")
	os.Setenv("ANNOUNCE_FALLBACK_DURATION_MS", "5000")
	defer os.Unsetenv("ANNOUNCE_PAUSE_PLATFORMS")
	defer os.Unsetenv("ANNOUNCE_FALLBACK_DURATION_MS")

	c := Load()

	if c.Announce.FallbackDurationMs != 5000 {
		t.Fatalf("expected 5000, got %d", c.Announce.FallbackDurationMs)
	}
	if len(c.Announce.PausePlatforms) != 2 || c.Announce.PausePlatforms[1] != "alexa" {
		t.Fatalf("pause platforms = %v", c.Announce.PausePlatforms)
	}
}
