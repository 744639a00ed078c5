package health

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	ws "nhooyr.io/websocket"

	"herald/announcer/internal/config"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// CheckAll runs all health checks and returns combined status
func CheckAll(ctx context.Context, cfg config.Config) HealthStatus {
	checks := []CheckResult{
		checkHub(ctx, cfg),
	}
	// The synth check reuses the hub connection path; only run it when the
	// hub itself answered.
	if checks[0].OK {
		checks = append(checks, checkSynth(ctx, cfg))
	}

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}

	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

// checkHub dials the hub websocket and completes the auth handshake.
func checkHub(ctx context.Context, cfg config.Config) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "hub"}

	if cfg.Hub.Token == "" {
		result.Error = "HUB_TOKEN not set"
		result.Latency = time.Since(start)
		return result
	}

	c, _, cancel, err := dialAndAuth(ctx, cfg)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer cancel()
	_ = c.Close(ws.StatusNormalClosure, "healthcheck")
	result.OK = true
	return result
}

// checkSynth verifies the configured synthesizer entity exists on the hub.
func checkSynth(ctx context.Context, cfg config.Config) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "synth"}

	if cfg.Synth.Entity == "" {
		result.Error = "SYNTH_ENTITY not set"
		result.Latency = time.Since(start)
		return result
	}

	c, cctx, cancel, err := dialAndAuth(ctx, cfg)
	if err != nil {
		result.Error = err.Error()
		result.Latency = time.Since(start)
		return result
	}
	defer cancel()
	defer c.Close(ws.StatusNormalClosure, "healthcheck")

	cmd, _ := json.Marshal(map[string]any{"id": 1, "type": "get_states"})
	if err := c.Write(cctx, ws.MessageText, cmd); err != nil {
		result.Error = fmt.Sprintf("get_states write: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	_, data, err := c.Read(cctx)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = fmt.Sprintf("get_states read: %v", err)
		return result
	}
	var resp struct {
		Success bool `json:"success"`
		Result  []struct {
			EntityID string `json:"entity_id"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil || !resp.Success {
		result.Error = "get_states failed"
		return result
	}
	for _, e := range resp.Result {
		if e.EntityID == cfg.Synth.Entity {
			result.OK = true
			return result
		}
	}
	result.Error = fmt.Sprintf("entity %q not found", cfg.Synth.Entity)
	return result
}

func dialAndAuth(ctx context.Context, cfg config.Config) (*ws.Conn, context.Context, context.CancelFunc, error) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, _, err := ws.Dial(cctx, cfg.Hub.URL, nil)
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("dial failed: %v", err)
	}
	c.SetReadLimit(4 << 20)

	cleanup := func(msg string) (*ws.Conn, context.Context, context.CancelFunc, error) {
		_ = c.Close(ws.StatusPolicyViolation, "auth")
		cancel()
		return nil, nil, nil, fmt.Errorf("%s", msg)
	}

	_, data, err := c.Read(cctx)
	if err != nil {
		return cleanup(fmt.Sprintf("hello read: %v", err))
	}
	var hello struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(data, &hello) != nil || hello.Type != "auth_required" {
		return cleanup("unexpected hello frame")
	}
	authMsg, _ := json.Marshal(map[string]any{"type": "auth", "access_token": cfg.Hub.Token})
	if err := c.Write(cctx, ws.MessageText, authMsg); err != nil {
		return cleanup(fmt.Sprintf("auth write: %v", err))
	}
	_, data, err = c.Read(cctx)
	if err != nil {
		return cleanup(fmt.Sprintf("auth read: %v", err))
	}
	var resp struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(data, &resp) != nil || resp.Type != "auth_ok" {
		return cleanup("auth rejected")
	}
	return c, cctx, cancel, nil
}
