// Package hass is the hub client. It speaks the hub's websocket command API
// (auth handshake, id-correlated commands) and implements the speaker control
// and synthesizer contracts from internal/control.
package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"herald/announcer/internal/control"
	"herald/announcer/internal/types"
)

// Client maintains a single live websocket connection to the hub, sending
// id-correlated commands and matching result frames back to callers.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	url   string
	token string

	mu      sync.Mutex
	ws      *websocket.Conn
	ready   chan struct{}
	nextID  int64
	pending map[int64]chan resultFrame

	// Backoff/circuit
	fails   []time.Time
	circuit time.Time

	callTimeout time.Duration
}

type resultFrame struct {
	Success bool
	Result  json.RawMessage
	ErrMsg  string
}

type Options struct {
	URL             string
	Token           string
	CallTimeoutSecs int
}

func NewClient(parent context.Context, opts Options) *Client {
	ctx, cancel := context.WithCancel(parent)
	url := opts.URL
	if url == "" {
		url = "ws://localhost:8123/api/websocket"
	}
	ct := time.Duration(opts.CallTimeoutSecs) * time.Second
	if ct <= 0 {
		ct = 10 * time.Second
	}
	return &Client{
		ctx:         ctx,
		cancel:      cancel,
		url:         url,
		token:       opts.Token,
		ready:       make(chan struct{}),
		pending:     make(map[int64]chan resultFrame),
		callTimeout: ct,
	}
}

func (c *Client) Start() {
	go c.run()
}

func (c *Client) Close() { c.cancel() }

func (c *Client) run() {
	for {
		if err := c.connectAndPump(); err != nil {
			c.addFailure()
			log.Printf("[hass] connection lost: %v", err)
		} else {
			c.resetFailures()
		}
		if c.ctx.Err() != nil {
			return
		}
		time.Sleep(c.nextBackoff())
	}
}

func (c *Client) connectAndPump() error {
	if time.Now().Before(c.circuit) {
		time.Sleep(500 * time.Millisecond)
		return fmt.Errorf("circuit open")
	}

	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()
	start := time.Now()
	log.Printf("[hass] connecting to %s", c.url)
	ws, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: make(http.Header)})
	if err != nil {
		log.Printf("[hass] connect error: %v", err)
		return err
	}
	// The hub accepts command frames up to its own limit; raise ours so
	// large get_states responses fit.
	ws.SetReadLimit(4 << 20)

	if err := c.authenticate(ctx, ws); err != nil {
		_ = ws.Close(websocket.StatusPolicyViolation, "auth")
		log.Printf("[hass] auth error: %v", err)
		return err
	}
	log.Printf("[hass] connected and authenticated in %dms", time.Since(start).Milliseconds())
	metricHubConnectMS.Observe(float64(time.Since(start).Milliseconds()))
	metricHubReconnects.Inc()

	c.mu.Lock()
	c.ws = ws
	close(c.ready)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.ws = nil
		c.ready = make(chan struct{})
		// Fail every in-flight call; the session treats it as a hub error.
		for id, ch := range c.pending {
			select {
			case ch <- resultFrame{Success: false, ErrMsg: "connection lost"}:
			default:
			}
			delete(c.pending, id)
		}
		c.mu.Unlock()
		_ = ws.Close(websocket.StatusNormalClosure, "bye")
	}()

	for {
		if c.ctx.Err() != nil {
			return nil
		}
		_, data, err := ws.Read(c.ctx)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			continue
		}
		var m struct {
			ID      int64           `json:"id"`
			Type    string          `json:"type"`
			Success bool            `json:"success"`
			Result  json.RawMessage `json:"result"`
			Error   struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(data, &m); err != nil {
			log.Printf("[hass] JSON parse error: %v", err)
			continue
		}
		if m.Type != "result" {
			continue
		}
		c.mu.Lock()
		ch, ok := c.pending[m.ID]
		if ok {
			delete(c.pending, m.ID)
		}
		c.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case ch <- resultFrame{Success: m.Success, Result: m.Result, ErrMsg: m.Error.Message}:
		default:
		}
	}
}

// authenticate runs the hub's auth_required/auth/auth_ok handshake on a fresh
// socket before any commands flow.
func (c *Client) authenticate(ctx context.Context, ws *websocket.Conn) error {
	_, data, err := ws.Read(ctx)
	if err != nil {
		return err
	}
	var hello struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &hello); err != nil {
		return err
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("unexpected hello frame %q", hello.Type)
	}
	auth, _ := json.Marshal(map[string]any{"type": "auth", "access_token": c.token})
	if err := ws.Write(ctx, websocket.MessageText, auth); err != nil {
		return err
	}
	_, data, err = ws.Read(ctx)
	if err != nil {
		return err
	}
	var resp struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return err
	}
	if resp.Type != "auth_ok" {
		return fmt.Errorf("auth rejected: %s", resp.Message)
	}
	return nil
}

// call sends one command frame and waits for its correlated result.
func (c *Client) call(ctx context.Context, cmd map[string]any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	c.mu.Lock()
	ready := c.ready
	c.mu.Unlock()
	select {
	case <-ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("hub not connected: %w", ctx.Err())
	case <-c.ctx.Done():
		return nil, fmt.Errorf("hub client closed")
	}

	c.mu.Lock()
	ws := c.ws
	if ws == nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("hub not connected")
	}
	c.nextID++
	id := c.nextID
	cmd["id"] = id
	ch := make(chan resultFrame, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case r := <-ch:
		if !r.Success {
			if r.ErrMsg == "" {
				r.ErrMsg = "command failed"
			}
			return nil, fmt.Errorf("hub: %s", r.ErrMsg)
		}
		return r.Result, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *Client) callService(ctx context.Context, domain, service string, target []string, data map[string]any) error {
	cmd := map[string]any{
		"type":    "call_service",
		"domain":  domain,
		"service": service,
	}
	if len(target) > 0 {
		cmd["target"] = map[string]any{"entity_id": target}
	}
	if len(data) > 0 {
		cmd["service_data"] = data
	}
	start := time.Now()
	_, err := c.call(ctx, cmd)
	metricHubCallMS.WithLabelValues(domain + "." + service).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metricHubCallErrors.WithLabelValues(domain + "." + service).Inc()
	}
	return err
}

type entityState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

func (c *Client) getState(ctx context.Context, entityID string) (entityState, error) {
	raw, err := c.call(ctx, map[string]any{"type": "get_states"})
	if err != nil {
		return entityState{}, err
	}
	var states []entityState
	if err := json.Unmarshal(raw, &states); err != nil {
		return entityState{}, fmt.Errorf("get_states decode: %w", err)
	}
	for _, s := range states {
		if s.EntityID == entityID {
			return s, nil
		}
	}
	return entityState{}, fmt.Errorf("%w: %s", control.ErrUnavailable, entityID)
}

// Probe reads a speaker's current state fresh from the hub.
func (c *Client) Probe(ctx context.Context, speakerID string) (control.ProbeResult, error) {
	s, err := c.getState(ctx, speakerID)
	if err != nil {
		return control.ProbeResult{}, err
	}
	platform, _ := s.Attributes["platform"].(string)
	return control.ProbeResult{
		State:      types.SpeakerState(s.State),
		Platform:   platform,
		Attributes: s.Attributes,
	}, nil
}

func (c *Client) SetVolume(ctx context.Context, speakerID string, level float64) error {
	return c.callService(ctx, "media_player", "volume_set", []string{speakerID},
		map[string]any{"volume_level": level})
}

func (c *Client) Pause(ctx context.Context, speakerID string) error {
	return c.callService(ctx, "media_player", "media_pause", []string{speakerID}, nil)
}

func (c *Client) Play(ctx context.Context, speakerID string) error {
	return c.callService(ctx, "media_player", "media_play", []string{speakerID}, nil)
}

func (c *Client) TurnOn(ctx context.Context, speakerID string) error {
	return c.callService(ctx, "media_player", "turn_on", []string{speakerID}, nil)
}

func (c *Client) Join(ctx context.Context, coordinatorID string, memberIDs []string) error {
	return c.callService(ctx, "media_player", "join", []string{coordinatorID},
		map[string]any{"group_members": memberIDs})
}

func (c *Client) Unjoin(ctx context.Context, speakerIDs []string) error {
	return c.callService(ctx, "media_player", "unjoin", speakerIDs, nil)
}

// Speak asks the synthesizer entity to render and play the message on the
// given speakers. One attempt; retry policy belongs to the session.
func (c *Client) Speak(ctx context.Context, synthEntity string, speakerIDs []string, message, language string, opts types.SpeakOptions) error {
	data := map[string]any{
		"media_player_entity_id": speakerIDs,
		"message":                message,
	}
	if language != "" {
		data["language"] = language
	}
	svcOpts := map[string]any{}
	if opts.Voice != "" {
		svcOpts["voice"] = opts.Voice
	}
	if opts.Speed != 0 {
		svcOpts["speed"] = opts.Speed
	}
	if opts.Instructions != "" {
		svcOpts["instructions"] = opts.Instructions
	}
	if opts.Chime {
		svcOpts["chime"] = true
		if opts.ChimeSound != "" {
			svcOpts["chime_sound"] = opts.ChimeSound
		}
	}
	if opts.NormalizeAudio {
		svcOpts["normalize_audio"] = true
	}
	if len(svcOpts) > 0 {
		data["options"] = svcOpts
	}
	return c.callService(ctx, "tts", "speak", []string{synthEntity}, data)
}

// Status reads the synthesizer entity's engine state. The reported duration
// is only trustworthy once the engine has gone inactive.
func (c *Client) Status(ctx context.Context, synthEntity string) (control.SynthStatus, error) {
	s, err := c.getState(ctx, synthEntity)
	if err != nil {
		return control.SynthStatus{}, err
	}
	st := control.SynthStatus{}
	if v, ok := s.Attributes["engine_active"].(bool); ok {
		st.Active = v
	} else {
		st.Active = strings.EqualFold(s.State, "running")
	}
	switch d := s.Attributes["last_duration_ms"].(type) {
	case float64:
		st.DurationMS = int64(d)
	case int64:
		st.DurationMS = d
	case int:
		st.DurationMS = int64(d)
	}
	return st, nil
}

func (c *Client) addFailure() {
	c.fails = append(c.fails, time.Now())
	cutoff := time.Now().Add(-60 * time.Second)
	j := 0
	for _, t := range c.fails {
		if t.After(cutoff) {
			c.fails[j] = t
			j++
		}
	}
	c.fails = c.fails[:j]
	if len(c.fails) >= 3 {
		c.circuit = time.Now().Add(30 * time.Second)
		metricHubCircuitOpens.Inc()
	}
}

func (c *Client) resetFailures() { c.fails = nil }

func (c *Client) nextBackoff() time.Duration {
	n := len(c.fails)
	if n <= 0 {
		return time.Second
	}
	if n > 5 {
		n = 5
	}
	base := time.Duration(1<<uint(n-1)) * time.Second
	if base > 30*time.Second {
		base = 30 * time.Second
	}
	return base
}
