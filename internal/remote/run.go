package remote

import "fmt"

// RunState is the supervision state of one dispatched run.
type RunState string

const (
	StateUnknown    RunState = "unknown"
	StateDiscovered RunState = "discovered"
	StateRunning    RunState = "running"
	StateSucceeded  RunState = "succeeded"
	StateFailed     RunState = "failed"
	StateLost       RunState = "lost"
)

// stateRank orders states for the monotonic-transition check. Terminal
// states share a rank; only one of them can ever be reached.
var stateRank = map[RunState]int{
	StateUnknown:    0,
	StateDiscovered: 1,
	StateRunning:    2,
	StateSucceeded:  3,
	StateFailed:     3,
	StateLost:       3,
}

// Run tracks one dispatched job from token to terminal state. It lives for
// the duration of a single orchestration and is not safe for concurrent
// use; the monitor loop is strictly sequential.
type Run struct {
	token string
	id    string
	state RunState
	step  string
	polls int
}

// NewRun starts supervision for a correlation token.
func NewRun(token string) *Run {
	return &Run{token: token, state: StateUnknown}
}

func (r *Run) Token() string   { return r.token }
func (r *Run) ID() string      { return r.id }
func (r *Run) State() RunState { return r.state }
func (r *Run) Step() string    { return r.step }
func (r *Run) Polls() int      { return r.polls }

// Discover binds the resolved run ID. The ID is write-once: a run that
// already has one cannot be re-discovered.
func (r *Run) Discover(id string) error {
	if r.id != "" {
		return fmt.Errorf("run already discovered as %s", r.id)
	}
	if id == "" {
		return fmt.Errorf("discovering run: empty run ID")
	}
	if err := r.Transition(StateDiscovered); err != nil {
		return err
	}
	r.id = id
	return nil
}

// Transition moves the run to a new state. States only move forward;
// running may re-enter itself on each poll, terminal states never change.
func (r *Run) Transition(to RunState) error {
	toRank, ok := stateRank[to]
	if !ok {
		return fmt.Errorf("unknown run state %q", to)
	}
	fromRank := stateRank[r.state]

	if r.state == to && to == StateRunning {
		return nil
	}
	if toRank <= fromRank {
		return fmt.Errorf("invalid run transition %s -> %s", r.state, to)
	}
	r.state = to
	return nil
}

// Terminal reports whether the run reached a final state.
func (r *Run) Terminal() bool {
	return stateRank[r.state] == stateRank[StateSucceeded]
}

// ObserveStep records the current remote step name and counts the poll.
func (r *Run) ObserveStep(step string) {
	if step != "" {
		r.step = step
	}
	r.polls++
}
