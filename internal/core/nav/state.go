package nav

import "fmt"

// Phase is a stage of the navigation state machine.
type Phase string

const (
	PhaseStart         Phase = "start"
	PhaseSearching     Phase = "searching"
	PhaseResultsListed Phase = "results_listed"
	PhaseProductPage   Phase = "product_page"
	PhaseExtracted     Phase = "extracted"
	PhaseFailed        Phase = "failed"
)

var phaseRank = map[Phase]int{
	PhaseStart:         0,
	PhaseSearching:     1,
	PhaseResultsListed: 2,
	PhaseProductPage:   3,
	PhaseExtracted:     4,
}

// Terminal reports whether no further action can be planned.
func (p Phase) Terminal() bool { return p == PhaseExtracted || p == PhaseFailed }

// State is the per-run navigation state. It belongs to exactly one agent run
// and changes only through the methods below.
type State struct {
	Site       string   `json:"site"`
	Phase      Phase    `json:"phase"`
	Steps      int      `json:"steps"`
	LastAction *Action  `json:"last_action,omitempty"`
	LastError  *Failure `json:"last_error,omitempty"`
	// Ready is set once the product page showed its price element.
	Ready bool `json:"ready"`
}

func NewState(site string) *State {
	return &State{Site: site, Phase: PhaseStart}
}

// Begin records an attempted action. Every attempt counts as a step,
// retries included, so the step budget bounds the whole run.
func (s *State) Begin(a Action) {
	s.Steps++
	s.LastAction = &a
}

// Succeed clears the last error and moves to next. Staying in the current
// phase is allowed; moving backwards is not.
func (s *State) Succeed(next Phase) error {
	s.LastError = nil
	if s.LastAction != nil && s.LastAction.Kind == ActionWaitFor {
		s.Ready = true
	}
	return s.Advance(next)
}

// Advance moves the phase forward, or keeps it when next equals the current one.
func (s *State) Advance(next Phase) error {
	if s.Phase.Terminal() {
		return fmt.Errorf("state already terminal in %s", s.Phase)
	}
	if next == PhaseFailed {
		s.Phase = PhaseFailed
		return nil
	}
	cur, ok := phaseRank[s.Phase]
	nxt, ok2 := phaseRank[next]
	if !ok || !ok2 {
		return fmt.Errorf("unknown phase transition %s -> %s", s.Phase, next)
	}
	if nxt < cur {
		return fmt.Errorf("illegal backward transition %s -> %s", s.Phase, next)
	}
	s.Phase = next
	return nil
}

// Retry records a transient failure; the phase stays where it is.
func (s *State) Retry(f *Failure) {
	s.LastError = f
}

// Fail moves the state to Failed and keeps the failure, stamped with the
// phase it happened in.
func (s *State) Fail(f *Failure) *Failure {
	f = f.In(s.Phase)
	s.LastError = f
	if s.Phase != PhaseFailed {
		s.Phase = PhaseFailed
	}
	return f
}
