package agent

import (
	"context"
	"sync/atomic"
	"time"

	"navigator/internal/core/cache"
	"navigator/internal/core/nav"
)

// Event describes one attempted action.
type Event struct {
	GoalID  string        `json:"goal_id"`
	Site    string        `json:"site"`
	Step    int           `json:"step"`
	Phase   nav.Phase     `json:"phase"`
	Action  nav.Action    `json:"action"`
	Failure *nav.Failure  `json:"failure,omitempty"`
	Retry   bool          `json:"retry,omitempty"`
	Delay   time.Duration `json:"delay,omitempty"`
	At      time.Time     `json:"at"`
}

// Observer receives step events. It is called on the run's goroutine and
// must not block.
type Observer func(Event)

type observerKey struct{}

// WithObserver attaches obs to runs started with ctx. When several callers
// share one navigation only the one that started it is observed.
func WithObserver(ctx context.Context, obs Observer) context.Context {
	return context.WithValue(ctx, observerKey{}, obs)
}

func observerFrom(ctx context.Context) Observer {
	obs, _ := ctx.Value(observerKey{}).(Observer)
	return obs
}

func (r *run) emit(ctx context.Context, st *nav.State, a nav.Action, f *nav.Failure, retried bool, delay time.Duration) {
	obs := observerFrom(ctx)
	if obs == nil {
		return
	}
	obs(Event{
		GoalID:  r.goal.ID,
		Site:    st.Site,
		Step:    st.Steps,
		Phase:   st.Phase,
		Action:  a,
		Failure: f,
		Retry:   retried,
		Delay:   delay,
		At:      time.Now(),
	})
}

// Metrics are process-wide run counters.
type Metrics struct {
	started   atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	retries   atomic.Int64
	steps     atomic.Int64
	hits      atomic.Int64
	misses    atomic.Int64
	shared    atomic.Int64
}

type MetricsSnapshot struct {
	RunsStarted   int64   `json:"runs_started"`
	RunsSucceeded int64   `json:"runs_succeeded"`
	RunsFailed    int64   `json:"runs_failed"`
	Retries       int64   `json:"retries"`
	Steps         int64   `json:"steps"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	CacheShared   int64   `json:"cache_shared"`
	HitRate       float64 `json:"hit_rate"`
}

func (m *Metrics) lookup(src cache.Source) {
	switch src {
	case cache.SourceCache, cache.SourceStore:
		m.hits.Add(1)
	case cache.SourceShared:
		m.shared.Add(1)
	case cache.SourceComputed:
		m.misses.Add(1)
	}
}

// Snapshot reads the counters. HitRate counts shared computations as hits.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		RunsStarted:   m.started.Load(),
		RunsSucceeded: m.succeeded.Load(),
		RunsFailed:    m.failed.Load(),
		Retries:       m.retries.Load(),
		Steps:         m.steps.Load(),
		CacheHits:     m.hits.Load(),
		CacheMisses:   m.misses.Load(),
		CacheShared:   m.shared.Load(),
	}
	if total := s.CacheHits + s.CacheShared + s.CacheMisses; total > 0 {
		s.HitRate = float64(s.CacheHits+s.CacheShared) / float64(total)
	}
	return s
}
