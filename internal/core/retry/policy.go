package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"navigator/internal/core/nav"
)

// Verdict is the classifier's answer for one failure.
type Verdict int

const (
	Fatal Verdict = iota
	Transient
)

func (v Verdict) String() string {
	if v == Transient {
		return "transient"
	}
	return "fatal"
}

// Policy decides which failures are retried and how long to wait between
// attempts. The zero value retries nothing.
type Policy struct {
	// Budget is the number of retries allowed per phase.
	Budget int
	// Base is the delay before the first retry.
	Base time.Duration
	// Multiplier grows the delay for each further attempt.
	Multiplier float64
	// Max caps a single delay.
	Max time.Duration
	// Jitter spreads each delay by up to this fraction in either direction.
	Jitter float64
	// AntiBotFactor stretches delays after a challenge page.
	AntiBotFactor float64
	// AntiBotBudget caps challenge retries across the whole run.
	AntiBotBudget int

	// Rand returns values in [0,1). Nil uses math/rand.
	Rand func() float64
}

// Default returns the engine's backoff schedule with the given per-phase budget.
func Default(budget int) Policy {
	return Policy{
		Budget:        budget,
		Base:          time.Second,
		Multiplier:    1.6,
		Max:           6 * time.Second,
		Jitter:        0.2,
		AntiBotFactor: 4,
		AntiBotBudget: 2,
	}
}

// Classify reports whether a failure is worth another attempt at the same phase.
func (p Policy) Classify(f *nav.Failure) Verdict {
	if f == nil {
		return Fatal
	}
	switch f.Kind {
	case nav.FailureTimeout,
		nav.FailureNetwork,
		nav.FailureActionError,
		nav.FailureAntiBotBlock,
		nav.FailureExtractionMismatch:
		return Transient
	default:
		return Fatal
	}
}

// NextDelay is the wait before retry number attempt (1-based).
func (p Policy) NextDelay(attempt int) time.Duration {
	return p.delay(attempt, 1)
}

func (p Policy) delay(attempt int, factor float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.Base) * math.Pow(mult, float64(attempt-1)) * factor
	limit := float64(p.Max) * factor
	if limit > 0 && (d > limit || math.IsInf(d, 0)) {
		d = limit
	}
	if p.Jitter > 0 && d > 0 {
		r := p.Rand
		if r == nil {
			r = rand.Float64
		}
		d *= 1 + p.Jitter*(2*r()-1)
		if limit > 0 && d > limit {
			d = limit
		}
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// Tracker holds the retry accounting for one run. Per-phase budgets restart
// with each site (see NextSite); the extraction mismatch rule and the
// challenge cap count across the whole run. It is not safe for concurrent
// use; each run owns its own.
type Tracker struct {
	policy     Policy
	used       map[nav.Phase]int
	byPhase    map[nav.Phase]int
	antiBot    int
	mismatches int
	total      int
}

func (p Policy) NewTracker() *Tracker {
	return &Tracker{policy: p, used: make(map[nav.Phase]int), byPhase: make(map[nav.Phase]int)}
}

// NextSite restarts the per-phase budgets for the next target site.
func (t *Tracker) NextSite() {
	t.used = make(map[nav.Phase]int)
}

// Next records a failure seen in phase and returns the verdict. For a
// transient verdict it also returns the delay to wait before the retry. A
// fatal verdict comes with the failure to surface, which keeps the original
// kind so callers can tell what finally broke the run.
//
// An empty extraction is retried once per run whatever the phase budget.
func (t *Tracker) Next(phase nav.Phase, f *nav.Failure) (Verdict, time.Duration, *nav.Failure) {
	f = f.In(phase)
	if t.policy.Classify(f) == Fatal {
		return Fatal, 0, f
	}
	used := t.used[phase]
	factor := 1.0
	switch f.Kind {
	case nav.FailureExtractionMismatch:
		if t.mismatches > 0 {
			return Fatal, 0, exhausted(f, "extraction came back empty twice")
		}
		t.mismatches++
		return t.grant(phase, used, factor)
	case nav.FailureAntiBotBlock:
		if used >= t.policy.Budget {
			break
		}
		if t.antiBot >= t.policy.AntiBotBudget {
			return Fatal, 0, exhausted(f, "challenge page persisted after %d retries", t.antiBot)
		}
		t.antiBot++
		if t.policy.AntiBotFactor > 1 {
			factor = t.policy.AntiBotFactor
		}
	}
	if used >= t.policy.Budget {
		return Fatal, 0, exhausted(f, "retry budget of %d exhausted in %s", t.policy.Budget, phase)
	}
	return t.grant(phase, used, factor)
}

func (t *Tracker) grant(phase nav.Phase, used int, factor float64) (Verdict, time.Duration, *nav.Failure) {
	t.used[phase] = used + 1
	t.byPhase[phase]++
	t.total++
	return Transient, t.policy.delay(used+1, factor), nil
}

// Total is the number of retries granted so far.
func (t *Tracker) Total() int { return t.total }

// ByPhase returns a copy of the per-phase retry counts for the whole run.
func (t *Tracker) ByPhase() map[nav.Phase]int {
	out := make(map[nav.Phase]int, len(t.byPhase))
	for k, v := range t.byPhase {
		out[k] = v
	}
	return out
}

func exhausted(f *nav.Failure, format string, args ...any) *nav.Failure {
	out := nav.Fail(f.Kind, format, args...).In(f.Phase)
	if f.Detail != "" {
		out.Detail += ": " + f.Detail
	}
	return out
}

// Wait sleeps for d or until ctx is done, whichever comes first.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
