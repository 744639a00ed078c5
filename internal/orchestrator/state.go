package orchestrator

// State is the session's phase in the announcement lifecycle.
type State string

const (
	StateIdle              State = "idle"
	StatePreparing         State = "preparing"
	StatePlaying           State = "playing"
	StateResolvingDuration State = "resolving_duration"
	StateRestoring         State = "restoring"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

func (s *session) setState(next State) {
	prev := s.state
	s.state = next
	metricStateTransitions.WithLabelValues(string(prev), string(next)).Inc()
	s.emit("state", map[string]any{"from": string(prev), "to": string(next)})
}
