package planner

import (
	"strings"

	"navigator/internal/core/nav"
	"navigator/internal/core/sites"
)

// Kind says whether the run should act, stop with success, or stop with a failure.
type Kind int

const (
	Act Kind = iota
	Done
	Abort
)

// Decision is the planner's answer for one step. Next is the phase the run
// moves to once Action succeeds.
type Decision struct {
	Kind    Kind
	Action  nav.Action
	Next    nav.Phase
	Failure *nav.Failure
}

func act(a nav.Action, next nav.Phase) Decision {
	return Decision{Kind: Act, Action: a, Next: next}
}

func abort(f *nav.Failure) Decision {
	return Decision{Kind: Abort, Failure: f}
}

// Planner chooses the next action from the navigation state and the latest
// snapshot. It holds no per-run state and never touches the browser.
type Planner struct {
	catalog *sites.Catalog
	scorer  Scorer
}

// New builds a planner. A nil scorer uses Dice.
func New(catalog *sites.Catalog, scorer Scorer) *Planner {
	if scorer == nil {
		scorer = Dice{}
	}
	return &Planner{catalog: catalog, scorer: scorer}
}

// Next is the state machine:
//
//	Start         -> Navigate(entry)           -> Searching
//	Searching     -> Search(query)             -> ResultsListed
//	ResultsListed -> Click(best result)        -> ProductPage
//	ProductPage   -> WaitFor(price), Extract   -> Extracted
//	Extracted     -> Done
//
// Any phase aborts with StepBudget once the step budget is spent.
func (p *Planner) Next(st *nav.State, goal nav.Goal, snap *nav.PageSnapshot) Decision {
	switch st.Phase {
	case nav.PhaseExtracted:
		return Decision{Kind: Done}
	case nav.PhaseFailed:
		f := st.LastError
		if f == nil {
			f = nav.Fail(nav.FailureActionError, "run failed without a reason")
		}
		return abort(f)
	}
	if st.Steps >= goal.MaxSteps {
		return abort(nav.Fail(nav.FailureStepBudget, "used %d of %d steps", st.Steps, goal.MaxSteps).In(st.Phase))
	}

	target, err := p.catalog.Resolve(st.Site)
	if err != nil {
		return abort(nav.Fail(nav.FailureMalformedGoal, "%v", err))
	}

	switch st.Phase {
	case nav.PhaseStart:
		return act(nav.Navigate(target.Entry, target.Dismiss...), nav.PhaseSearching)
	case nav.PhaseSearching:
		return act(nav.Search(goal.Query, target.SearchInput, target.SearchPage(goal.Query)), nav.PhaseResultsListed)
	case nav.PhaseResultsListed:
		return p.pickResult(target, goal, snap)
	case nav.PhaseProductPage:
		switch {
		case !st.Ready:
			return act(nav.WaitFor(target.PriceSelector()), nav.PhaseProductPage)
		case st.LastError != nil && st.LastError.Kind == nav.FailureExtractionMismatch &&
			st.LastAction != nil && st.LastAction.Kind == nav.ActionExtract:
			// Lazy-loaded prices often appear only after the page scrolls.
			return act(nav.Scroll(), nav.PhaseProductPage)
		default:
			return act(nav.Extract(), nav.PhaseExtracted)
		}
	}
	return abort(nav.Fail(nav.FailureActionError, "no plan for phase %s", st.Phase))
}

func (p *Planner) pickResult(target sites.Target, goal nav.Goal, snap *nav.PageSnapshot) Decision {
	if snap == nil {
		return abort(nav.Fail(nav.FailureNoCandidate, "no results page to choose from").In(nav.PhaseResultsListed))
	}
	best, ok := p.Best(goal, snap.Links(target.Results))
	if !ok {
		return abort(nav.Fail(nav.FailureNoCandidate, "no result matched %q", goal.Query).In(nav.PhaseResultsListed))
	}
	return act(nav.Click(target.Results, best.Position, best.Text, best.Href), nav.PhaseProductPage)
}

// Best returns the link whose text scores highest against the goal query.
// Ties go to the earliest link. Links mentioning an excluded keyword are
// skipped and a zero score never wins.
func (p *Planner) Best(goal nav.Goal, links []nav.Link) (nav.Link, bool) {
	var best nav.Link
	bestScore := 0.0
	for _, l := range links {
		if excluded(l.Text, goal.Constraints.Exclude) {
			continue
		}
		if s := p.scorer.Score(goal.Query, l.Text); s > bestScore {
			best, bestScore = l, s
		}
	}
	return best, bestScore > 0
}

func excluded(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" && strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Outline lists the actions a run takes for each target before it has seen
// any page. It backs dry runs and does not count steps.
func (p *Planner) Outline(goal nav.Goal) (map[string][]nav.Action, error) {
	out := map[string][]nav.Action{}
	for _, site := range goal.Targets() {
		target, err := p.catalog.Resolve(site)
		if err != nil {
			return nil, nav.Fail(nav.FailureMalformedGoal, "%v", err)
		}
		out[site] = []nav.Action{
			nav.Navigate(target.Entry, target.Dismiss...),
			nav.Search(goal.Query, target.SearchInput, target.SearchPage(goal.Query)),
			nav.Click(target.Results, 0, "best match for "+goal.Query, ""),
			nav.WaitFor(target.PriceSelector()),
			nav.Extract(),
		}
	}
	return out, nil
}
