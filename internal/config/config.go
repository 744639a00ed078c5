package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port     string
		LogLevel string
	}
	Hub struct {
		URL             string
		Token           string
		CallTimeoutSecs int
	}
	Synth struct {
		Entity           string
		SpeakTimeoutSecs int
		PollIntervalMs   int
		MaxRetries       int
		RetryDelayMs     int
	}
	Announce struct {
		FallbackDurationMs int
		CacheCapacity      int
		PausePlatforms     []string
		GroupingEnabled    bool
		RestoreVolume      bool
		PausePlayback      bool
		SessionTimeoutSecs int
	}
	API struct {
		TokenSecret   string
		TokenSkewSecs int
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("hub.url", "ws://localhost:8123/api/websocket")
	v.SetDefault("hub.call_timeout_secs", 10)

	v.SetDefault("synth.entity", "tts.announcer")
	v.SetDefault("synth.speak_timeout_secs", 30)
	v.SetDefault("synth.poll_interval_ms", 100)
	v.SetDefault("synth.max_retries", 3)
	v.SetDefault("synth.retry_delay_ms", 500)

	v.SetDefault("announce.fallback_duration_ms", 10000)
	v.SetDefault("announce.cache_capacity", 128)
	v.SetDefault("announce.pause_platforms", "sonos,cast,default")
	v.SetDefault("announce.grouping_enabled", true)
	v.SetDefault("announce.restore_volume", true)
	v.SetDefault("announce.pause_playback", false)
	v.SetDefault("announce.session_timeout_secs", 120)

	v.SetDefault("api.token_skew_secs", 30)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")

	v.BindEnv("hub.url", "HUB_WS_URL")
	v.BindEnv("hub.token", "HUB_TOKEN")
	v.BindEnv("hub.call_timeout_secs", "HUB_CALL_TIMEOUT_SECS")

	v.BindEnv("synth.entity", "SYNTH_ENTITY")
	v.BindEnv("synth.speak_timeout_secs", "SYNTH_SPEAK_TIMEOUT_SECS")
	v.BindEnv("synth.poll_interval_ms", "SYNTH_POLL_INTERVAL_MS")
	v.BindEnv("synth.max_retries", "SYNTH_MAX_RETRIES")
	v.BindEnv("synth.retry_delay_ms", "SYNTH_RETRY_DELAY_MS")

	v.BindEnv("announce.fallback_duration_ms", "ANNOUNCE_FALLBACK_DURATION_MS")
	v.BindEnv("announce.cache_capacity", "ANNOUNCE_CACHE_CAPACITY")
	v.BindEnv("announce.pause_platforms", "ANNOUNCE_PAUSE_PLATFORMS")
	v.BindEnv("announce.grouping_enabled", "ANNOUNCE_GROUPING_ENABLED")
	v.BindEnv("announce.restore_volume", "ANNOUNCE_RESTORE_VOLUME")
	v.BindEnv("announce.pause_playback", "ANNOUNCE_PAUSE_PLAYBACK")
	v.BindEnv("announce.session_timeout_secs", "ANNOUNCE_SESSION_TIMEOUT_SECS")

	v.BindEnv("api.token_secret", "API_TOKEN_SECRET")
	v.BindEnv("api.token_skew_secs", "API_TOKEN_SKEW_SECS")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")

	c.Hub.URL = v.GetString("hub.url")
	c.Hub.Token = v.GetString("hub.token")
	c.Hub.CallTimeoutSecs = v.GetInt("hub.call_timeout_secs")

	c.Synth.Entity = v.GetString("synth.entity")
	c.Synth.SpeakTimeoutSecs = v.GetInt("synth.speak_timeout_secs")
	c.Synth.PollIntervalMs = v.GetInt("synth.poll_interval_ms")
	c.Synth.MaxRetries = v.GetInt("synth.max_retries")
	c.Synth.RetryDelayMs = v.GetInt("synth.retry_delay_ms")

	c.Announce.FallbackDurationMs = v.GetInt("announce.fallback_duration_ms")
	c.Announce.CacheCapacity = v.GetInt("announce.cache_capacity")
	c.Announce.PausePlatforms = splitCSV(v.GetString("announce.pause_platforms"))
	c.Announce.GroupingEnabled = v.GetBool("announce.grouping_enabled")
	c.Announce.RestoreVolume = v.GetBool("announce.restore_volume")
	c.Announce.PausePlayback = v.GetBool("announce.pause_playback")
	c.Announce.SessionTimeoutSecs = v.GetInt("announce.session_timeout_secs")

	c.API.TokenSecret = v.GetString("api.token_secret")
	c.API.TokenSkewSecs = v.GetInt("api.token_skew_secs")

	log.Printf("config loaded: port=%s hub=%s synth=%s", c.Server.Port, c.Hub.URL, c.Synth.Entity)
	return c
}

func toString(v any) string { return fmt.Sprint(v) }

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
