package navigate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"navigator/internal/core/agent"
	"navigator/internal/core/cache"
	"navigator/internal/core/job"
	"navigator/internal/core/nav"
	"navigator/internal/core/planner"
	"navigator/internal/core/session"
	"navigator/internal/core/sites"
	"navigator/internal/logger"
	tasks "navigator/internal/platform/tasks"
)

// Runner executes goals. *agent.Agent implements it.
type Runner interface {
	Run(ctx context.Context, goal nav.Goal) *nav.Result
	Metrics() *agent.Metrics
}

type Enqueuer interface {
	Enqueue(task *asynq.Task, queue string, maxRetries int) error
}

// History is the capped run log. The redis service implements it.
type History interface {
	PushHistory(ctx context.Context, entry interface{}, limit int) error
	History(ctx context.Context, limit int) ([][]byte, error)
	ClearHistory(ctx context.Context) error
}

type Deps struct {
	Agent   Runner
	Catalog *sites.Catalog
	Planner *planner.Planner
	Jobs    *job.JobService
	Tasks   Enqueuer
	History History

	HistoryLimit int
	MaxSteps     int
	Timeout      time.Duration

	PoolStats  func() session.Stats
	CacheStats func() cache.Stats
}

type Service struct {
	deps Deps
	log  *logger.Logger
}

func NewService(deps Deps) *Service {
	if deps.Planner == nil {
		deps.Planner = planner.New(deps.Catalog, nil)
	}
	if deps.MaxSteps <= 0 {
		deps.MaxSteps = nav.DefaultMaxSteps
	}
	if deps.Timeout <= 0 {
		deps.Timeout = nav.DefaultTimeout
	}
	return &Service{deps: deps, log: logger.New("NavigateService")}
}

// Request is the submit body. Text is free-form ("top 3 laptops under 50k
// on flipkart") and is parsed when Query is empty. Explicit fields win over
// whatever the text implies.
type Request struct {
	Query          string          `json:"query,omitempty"`
	Text           string          `json:"text,omitempty"`
	Sites          []string        `json:"sites,omitempty"`
	Constraints    nav.Constraints `json:"constraints"`
	MaxSteps       int             `json:"max_steps,omitempty"`
	TimeoutSeconds int             `json:"timeout_seconds,omitempty"`
	// Sync runs the navigation inside the request instead of queueing it.
	Sync bool `json:"sync,omitempty"`
}

// Goal builds and validates the goal for req.
func (s *Service) Goal(req Request) (nav.Goal, error) {
	var g nav.Goal
	if req.Query == "" && req.Text != "" {
		g = nav.ParseQuery(req.Text, s.deps.Catalog.Names(), nav.QueryDefaults{})
	} else {
		g.Query = req.Query
	}
	if len(req.Sites) > 0 {
		g.Sites = req.Sites
	}
	merge(&g.Constraints, req.Constraints)
	g.MaxSteps = req.MaxSteps
	if req.TimeoutSeconds > 0 {
		g.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	g = g.WithDefaults(s.deps.MaxSteps, s.deps.Timeout)
	if err := g.Validate(); err != nil {
		return nav.Goal{}, err
	}
	for _, site := range g.Targets() {
		if _, err := s.deps.Catalog.Resolve(site); err != nil {
			return nav.Goal{}, nav.Fail(nav.FailureMalformedGoal, "%v", err)
		}
	}
	return g, nil
}

func merge(dst *nav.Constraints, src nav.Constraints) {
	if src.MaxPrice != nil {
		dst.MaxPrice = src.MaxPrice
	}
	if src.MinPrice != nil {
		dst.MinPrice = src.MinPrice
	}
	if src.Currency != "" {
		dst.Currency = src.Currency
	}
	if src.InStockOnly {
		dst.InStockOnly = true
	}
	if len(src.Include) > 0 {
		dst.Include = src.Include
	}
	if len(src.Exclude) > 0 {
		dst.Exclude = src.Exclude
	}
	if src.MaxResults > 0 {
		dst.MaxResults = src.MaxResults
	}
}

type Payload struct {
	JobID string   `json:"job_id"`
	Goal  nav.Goal `json:"goal"`
}

// Enqueue stores a pending job and queues the navigation. Navigations are
// not retried by the queue; the agent has its own retry policy.
func (s *Service) Enqueue(ctx context.Context, goal nav.Goal) (string, error) {
	jobID := uuid.NewString()
	goal.ID = jobID
	if err := s.deps.Jobs.InitPending(ctx, jobID, goal); err != nil {
		return "", fmt.Errorf("store job: %w", err)
	}
	payload, err := json.Marshal(Payload{JobID: jobID, Goal: goal})
	if err != nil {
		return "", err
	}
	task := asynq.NewTask(tasks.TaskTypeNavigate, payload)
	if err := s.deps.Tasks.Enqueue(task, "default", 0); err != nil {
		return "", fmt.Errorf("enqueue navigation: %w", err)
	}
	s.log.Info().Str("job", jobID).Str("query", goal.Query).Strs("sites", goal.Targets()).Msg("navigation queued")
	return jobID, nil
}

// HandleTask runs a queued navigation. A failed navigation completes the
// job as failed; only storage errors fail the task.
func (s *Service) HandleTask(ctx context.Context, task *asynq.Task) error {
	var p Payload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return err
	}
	if err := s.deps.Jobs.SetProcessing(ctx, p.JobID); err != nil {
		return err
	}
	res := s.Run(ctx, p.JobID, p.Goal)
	return s.deps.Jobs.Complete(ctx, p.JobID, res)
}

// Run executes goal now, publishing step traces on the job channel and
// appending the outcome to the history.
func (s *Service) Run(ctx context.Context, jobID string, goal nav.Goal) *nav.Result {
	goal.ID = jobID
	ctx = agent.WithObserver(ctx, func(e agent.Event) {
		_ = s.deps.Jobs.PublishJobTrace(context.WithoutCancel(ctx), jobID, e)
	})
	res := s.deps.Agent.Run(ctx, goal)
	if s.deps.History != nil {
		if err := s.deps.History.PushHistory(context.WithoutCancel(ctx), NewHistoryEntry(jobID, goal, res), s.deps.HistoryLimit); err != nil {
			s.log.LogWarnf("failed to record history for job %s: %v", jobID, err)
		}
	}
	return res
}

// Plan lists the actions each target site would start with.
func (s *Service) Plan(goal nav.Goal) (map[string][]nav.Action, error) {
	return s.deps.Planner.Outline(goal)
}

// HistoryEntry is one line of the run log.
type HistoryEntry struct {
	JobID       string               `json:"job_id"`
	Query       string               `json:"query"`
	Sites       []string             `json:"sites"`
	Status      nav.Status           `json:"status"`
	Records     int                  `json:"records"`
	Best        *nav.ExtractedRecord `json:"best,omitempty"`
	Failure     *nav.Failure         `json:"failure,omitempty"`
	Cached      bool                 `json:"cached"`
	Steps       int                  `json:"steps"`
	CompletedAt time.Time            `json:"completed_at"`
}

func NewHistoryEntry(jobID string, goal nav.Goal, res *nav.Result) HistoryEntry {
	e := HistoryEntry{
		JobID:       jobID,
		Query:       goal.Query,
		Sites:       goal.Targets(),
		Status:      res.Status,
		Records:     len(res.Records),
		Failure:     res.Failure,
		Cached:      res.Cached,
		Steps:       res.Steps,
		CompletedAt: res.CompletedAt,
	}
	if len(res.Records) > 0 {
		best := res.Records[0]
		e.Best = &best
	}
	return e
}

func (s *Service) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if s.deps.History == nil {
		return nil, nil
	}
	raw, err := s.deps.History.History(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(raw))
	for _, b := range raw {
		var e HistoryEntry
		if err := json.Unmarshal(b, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Service) ClearHistory(ctx context.Context) error {
	if s.deps.History == nil {
		return nil
	}
	return s.deps.History.ClearHistory(ctx)
}

// Metrics gathers agent, pool and cache counters.
type Metrics struct {
	Agent agent.MetricsSnapshot `json:"agent"`
	Pool  *session.Stats        `json:"pool,omitempty"`
	Cache *cache.Stats          `json:"cache,omitempty"`
}

func (s *Service) Metrics() Metrics {
	m := Metrics{Agent: s.deps.Agent.Metrics().Snapshot()}
	if s.deps.PoolStats != nil {
		st := s.deps.PoolStats()
		m.Pool = &st
	}
	if s.deps.CacheStats != nil {
		st := s.deps.CacheStats()
		m.Cache = &st
	}
	return m
}
