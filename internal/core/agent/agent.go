package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"navigator/internal/core/artifact"
	"navigator/internal/core/cache"
	"navigator/internal/core/executor"
	"navigator/internal/core/extract"
	"navigator/internal/core/nav"
	"navigator/internal/core/planner"
	"navigator/internal/core/retry"
	"navigator/internal/core/session"
	"navigator/internal/core/sites"
	"navigator/internal/logger"
)

// Leaser hands out browser sessions. *session.Pool implements it.
type Leaser interface {
	Lease(ctx context.Context) (*session.Handle, error)
}

// Deps are the collaborators of an Agent. Sink may be nil, which disables
// screenshots.
type Deps struct {
	Pool      Leaser
	Catalog   *sites.Catalog
	Planner   *planner.Planner
	Executor  *executor.Executor
	Extractor *extract.Extractor
	Cache     *cache.Cache
	Sink      artifact.Sink
}

type Options struct {
	MaxSteps int
	Timeout  time.Duration
	Retry    retry.Policy
	// ActionTimeout bounds each browser action; zero uses the executor default.
	ActionTimeout time.Duration
}

// Agent turns goals into results. It is safe for concurrent use; every run
// owns its state, tracker and session handle.
type Agent struct {
	deps    Deps
	opts    Options
	log     *logger.Logger
	metrics *Metrics
}

func New(deps Deps, opts Options) *Agent {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = nav.DefaultMaxSteps
	}
	if opts.Timeout <= 0 {
		opts.Timeout = nav.DefaultTimeout
	}
	if deps.Planner == nil {
		deps.Planner = planner.New(deps.Catalog, nil)
	}
	if deps.Executor == nil {
		deps.Executor = executor.New(executor.Options{})
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.New()
	}
	if deps.Cache == nil {
		deps.Cache = cache.New(cache.Options{})
	}
	return &Agent{deps: deps, opts: opts, log: logger.New("Agent"), metrics: &Metrics{}}
}

func (a *Agent) Metrics() *Metrics { return a.metrics }

// Run executes goal and always returns a result, successful or not.
// Equivalent goals running at the same time share one navigation; a
// result served from the cache comes back with Cached set. Cancelling ctx
// only stops this caller from waiting. The navigation itself is bounded
// by the goal's timeout.
func (a *Agent) Run(ctx context.Context, goal nav.Goal) *nav.Result {
	goal = goal.WithDefaults(a.opts.MaxSteps, a.opts.Timeout)
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	a.metrics.started.Add(1)
	log := a.log.With("goal", goal.ID)

	if f := a.validate(goal); f != nil {
		log.Warn().Str("kind", string(f.Kind)).Msg(f.Detail)
		return a.finish(nav.Failed(goal, "", f))
	}

	fp := nav.Fingerprint(goal)
	res, src := a.deps.Cache.GetOrCompute(ctx, fp, func(cctx context.Context) *nav.Result {
		return a.navigate(cctx, goal, fp)
	})
	a.metrics.lookup(src)

	switch src {
	case cache.SourceCache, cache.SourceShared, cache.SourceStore:
		res.Cached = true
		res.GoalID = goal.ID
		log.Debug().Str("source", string(src)).Str("status", string(res.Status)).Msg("served without navigating")
	case cache.SourceNone:
		res.GoalID = goal.ID
	}
	return a.finish(res)
}

func (a *Agent) validate(goal nav.Goal) *nav.Failure {
	if err := goal.Validate(); err != nil {
		return nav.AsFailure(err)
	}
	for _, s := range goal.Targets() {
		if _, err := a.deps.Catalog.Resolve(s); err != nil {
			return nav.Fail(nav.FailureMalformedGoal, "%v", err)
		}
	}
	return nil
}

func (a *Agent) finish(r *nav.Result) *nav.Result {
	if r.Succeeded() {
		a.metrics.succeeded.Add(1)
	} else {
		a.metrics.failed.Add(1)
	}
	return r
}

// navigate is the cache computation: lease, visit each target site in turn,
// post-process, release.
func (a *Agent) navigate(ctx context.Context, goal nav.Goal, fp string) *nav.Result {
	ctx, cancel := context.WithTimeout(ctx, goal.Timeout)
	defer cancel()
	log := a.log.With("goal", goal.ID)
	start := time.Now()

	res := &nav.Result{GoalID: goal.ID, Fingerprint: fp, RetriesByPhase: map[nav.Phase]int{}}
	h, err := a.deps.Pool.Lease(ctx)
	if err != nil {
		res.Status = nav.StatusFailed
		res.Failure = nav.AsFailure(err)
		res.CompletedAt = time.Now()
		log.Warn().Err(res.Failure).Msg("no browser session")
		return res
	}
	defer h.Release()
	log.Debug().Str("session", h.ID).Msg("session leased")

	var records []nav.ExtractedRecord
	var last *nav.Failure
	visited := 0
	tracker := a.opts.Retry.NewTracker()
	for _, site := range goal.Targets() {
		tracker.NextSite()
		r := &run{agent: a, goal: goal, handle: h, result: res, tracker: tracker, log: log.With("site", site)}
		recs, f := r.visit(ctx, site)
		visited++
		records = append(records, recs...)
		if f != nil {
			last = f
			if stopsRun(f.Kind) {
				break
			}
		}
	}
	res.Retries = tracker.Total()
	res.RetriesByPhase = tracker.ByPhase()
	a.metrics.retries.Add(int64(res.Retries))
	a.metrics.steps.Add(int64(res.Steps))

	res.CompletedAt = time.Now()
	if len(records) == 0 {
		if last == nil {
			last = nav.Fail(nav.FailureNoCandidate, "no site produced a record")
		}
		res.Status = nav.StatusFailed
		res.Failure = last
		log.Warn().Str("kind", string(last.Kind)).Str("phase", string(last.Phase)).Int("steps", res.Steps).
			Dur("took", time.Since(start)).Msg(last.Detail)
		return res
	}
	res.Status = nav.StatusSucceeded
	res.Records = Refine(records, goal.Constraints)
	log.Info().Int("records", len(res.Records)).Int("extracted", len(records)).Int("sites", visited).
		Int("steps", res.Steps).Int("retries", res.Retries).Dur("took", time.Since(start)).Msg("navigation finished")
	return res
}

// stopsRun lists failures after which trying the next site is pointless.
func stopsRun(k nav.FailureKind) bool {
	switch k {
	case nav.FailureRunTimeout, nav.FailureCanceled, nav.FailureSessionLost, nav.FailureStepBudget:
		return true
	}
	return false
}

// run is one site visit inside a navigation. The step count lives on the
// shared result so the budget spans all sites.
type run struct {
	agent   *Agent
	goal    nav.Goal
	handle  *session.Handle
	result  *nav.Result
	tracker *retry.Tracker
	log     *logger.Logger
}

func (r *run) visit(ctx context.Context, site string) ([]nav.ExtractedRecord, *nav.Failure) {
	a := r.agent
	st := nav.NewState(site)
	st.Steps = r.result.Steps
	defer func() { r.result.Steps = st.Steps }()

	target, _ := a.deps.Catalog.Resolve(site)
	// Bare amounts on a site page are in the site's currency.
	scoped := r.goal
	if scoped.Constraints.Currency == "" {
		scoped.Constraints.Currency = target.Currency
	}

	var snap *nav.PageSnapshot
	var records []nav.ExtractedRecord
	for {
		if f := interrupted(ctx); f != nil {
			return nil, r.fail(ctx, st, f)
		}
		d := a.deps.Planner.Next(st, r.goal, snap)
		switch d.Kind {
		case planner.Done:
			return records, nil
		case planner.Abort:
			return nil, r.fail(ctx, st, d.Failure)
		}

		st.Begin(d.Action)
		next, err := a.deps.Executor.Run(ctx, r.handle, d.Action, a.opts.ActionTimeout)
		if err == nil && d.Action.Kind == nav.ActionExtract {
			records = a.deps.Extractor.Extract(next, scoped)
			if len(records) == 0 {
				err = nav.Fail(nav.FailureExtractionMismatch, "no plausible price on %s", next.URL)
			}
		}

		if err != nil {
			f := nav.AsFailure(err)
			if f.Kind == nav.FailureRunTimeout || f.Kind == nav.FailureCanceled {
				r.emit(ctx, st, d.Action, f, false, 0)
				return nil, r.fail(ctx, st, f)
			}
			verdict, delay, fatal := r.tracker.Next(st.Phase, f)
			if verdict == retry.Fatal {
				r.emit(ctx, st, d.Action, fatal, false, 0)
				return nil, r.fail(ctx, st, fatal)
			}
			st.Retry(f.In(st.Phase))
			r.emit(ctx, st, d.Action, st.LastError, true, delay)
			r.log.Debug().Str("action", d.Action.String()).Str("kind", string(f.Kind)).Dur("delay", delay).Msg("retrying")
			if werr := retry.Wait(ctx, delay); werr != nil {
				return nil, r.fail(ctx, st, interrupted(ctx))
			}
			continue
		}

		snap = next
		if err := st.Succeed(d.Next); err != nil {
			return nil, r.fail(ctx, st, nav.Fail(nav.FailureActionError, "%v", err))
		}
		r.emit(ctx, st, d.Action, nil, false, 0)
		if st.Phase == nav.PhaseExtracted {
			r.capture(ctx, fmt.Sprintf("%s-extracted.png", site))
		}
	}
}

func (r *run) fail(ctx context.Context, st *nav.State, f *nav.Failure) *nav.Failure {
	if f == nil {
		f = nav.Fail(nav.FailureActionError, "run stopped without a reason")
	}
	phase := st.Phase
	if phase != nav.PhaseFailed {
		f = st.Fail(f)
	}
	if f.Kind != nav.FailureCanceled && r.handle.Healthy() {
		r.capture(ctx, fmt.Sprintf("%s-failed-%s.png", st.Site, f.Phase))
	}
	return f
}

// capture stores a screenshot of the current page. The run deadline may have
// passed already, so it gets a short budget of its own.
func (r *run) capture(ctx context.Context, name string) {
	sink := r.agent.deps.Sink
	if sink == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	png, err := r.agent.deps.Executor.Screenshot(sctx, r.handle)
	if err != nil {
		r.log.Debug().Err(err).Msg("screenshot failed")
		return
	}
	loc, err := sink.Save(sctx, r.goal.ID, name, png)
	if err != nil {
		r.log.Warn().Err(err).Str("name", name).Msg("failed to store screenshot")
		return
	}
	if loc != "" {
		r.result.Artifacts = append(r.result.Artifacts, loc)
	}
}

func interrupted(ctx context.Context) *nav.Failure {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return nav.Fail(nav.FailureRunTimeout, "run deadline passed")
	default:
		return nav.Fail(nav.FailureCanceled, "run canceled")
	}
}
