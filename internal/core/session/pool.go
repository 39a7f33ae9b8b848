package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"navigator/internal/core/nav"
	"navigator/internal/logger"
)

// Options bounds the pool.
type Options struct {
	// Size is the number of sessions that may be leased at once.
	Size int
	// LeaseTimeout is how long Lease waits for a free slot.
	LeaseTimeout time.Duration
	Strategy     Strategy
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Size      int   `json:"size"`
	InUse     int   `json:"in_use"`
	Idle      int   `json:"idle"`
	Launched  int64 `json:"launched"`
	Discarded int64 `json:"discarded"`
}

// Pool hands out isolated sessions, at most Size at a time. Each slot keeps
// a warm browser process; every lease gets a fresh context on it so cookies
// and storage never leak between runs.
type Pool struct {
	launcher Launcher
	opts     Options
	slots    *semaphore.Weighted
	log      *logger.Logger

	mu        sync.Mutex
	idle      []Browser
	leased    map[string]*Handle
	closed    bool
	launched  int64
	discarded int64
}

func NewPool(l Launcher, opts Options) *Pool {
	if opts.Size < 1 {
		opts.Size = 1
	}
	if opts.LeaseTimeout <= 0 {
		opts.LeaseTimeout = 30 * time.Second
	}
	return &Pool{
		launcher: l,
		opts:     opts,
		slots:    semaphore.NewWeighted(int64(opts.Size)),
		log:      logger.New("SessionPool"),
		leased:   make(map[string]*Handle),
	}
}

var errPoolClosed = errors.New("session pool closed")

// Lease blocks until a slot is free. It fails with PoolExhausted when the
// lease timeout elapses first, and with Canceled or RunTimeout when ctx ends.
func (p *Pool) Lease(ctx context.Context) (*Handle, error) {
	if p.isClosed() {
		return nil, nav.Fail(nav.FailureSessionLost, "%v", errPoolClosed)
	}
	wait, cancel := context.WithTimeout(ctx, p.opts.LeaseTimeout)
	defer cancel()
	start := time.Now()
	if err := p.slots.Acquire(wait, 1); err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return nil, nav.Fail(nav.FailureRunTimeout, "run deadline passed while waiting for a session")
		case ctx.Err() != nil:
			return nil, nav.Fail(nav.FailureCanceled, "canceled while waiting for a session")
		}
		return nil, nav.Fail(nav.FailurePoolExhausted, "no session free after %s (pool size %d)", p.opts.LeaseTimeout, p.opts.Size)
	}
	if waited := time.Since(start); waited > time.Second {
		p.log.Debug().Dur("waited", waited).Msg("lease acquired after wait")
	}

	b, err := p.browser(ctx)
	if err != nil {
		p.slots.Release(1)
		return nil, nav.Fail(nav.FailureSessionLost, "launch browser: %v", err)
	}
	d, err := b.NewSession(PickProfile(p.opts.Strategy))
	if err != nil {
		p.discard(b)
		p.slots.Release(1)
		return nil, nav.Fail(nav.FailureSessionLost, "new browser context: %v", err)
	}

	h := &Handle{ID: uuid.NewString(), LeasedAt: time.Now(), driver: d, browser: b, pool: p}
	p.mu.Lock()
	p.leased[h.ID] = h
	p.mu.Unlock()
	return h, nil
}

// browser pops a connected idle browser or launches a new one.
func (p *Pool) browser(ctx context.Context) (Browser, error) {
	var stale []Browser
	defer func() {
		for _, b := range stale {
			p.discard(b)
		}
	}()

	p.mu.Lock()
	for len(p.idle) > 0 {
		b := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if b.Connected() {
			p.mu.Unlock()
			return b, nil
		}
		stale = append(stale, b)
	}
	p.mu.Unlock()

	b, err := p.launcher.Launch(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.launched++
	p.mu.Unlock()
	p.log.Info().Msg("browser launched")
	return b, nil
}

// Release closes the lease's browser context and frees its slot. Unhealthy
// browsers are closed and replaced on a later lease.
func (p *Pool) Release(h *Handle) {
	if h == nil {
		return
	}
	h.release.Do(func() {
		if err := h.driver.Close(); err != nil {
			p.log.Debug().Str("handle", h.ID).Err(err).Msg("close session")
			h.MarkUnhealthy()
		}
		p.mu.Lock()
		delete(p.leased, h.ID)
		keep := !p.closed && h.Healthy()
		if keep {
			p.idle = append(p.idle, h.browser)
		}
		p.mu.Unlock()
		if !keep {
			p.discard(h.browser)
		}
		p.slots.Release(1)
	})
}

func (p *Pool) discard(b Browser) {
	p.mu.Lock()
	p.discarded++
	p.mu.Unlock()
	if err := b.Close(); err != nil {
		p.log.Debug().Err(err).Msg("close browser")
	}
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Size:      p.opts.Size,
		InUse:     len(p.leased),
		Idle:      len(p.idle),
		Launched:  p.launched,
		Discarded: p.discarded,
	}
}

// HealthCheck reports a closed pool or a pool whose idle browsers have all
// disconnected. An empty pool is healthy; browsers start on demand.
func (p *Pool) HealthCheck(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPoolClosed
	}
	if len(p.idle) == 0 {
		return nil
	}
	for _, b := range p.idle {
		if b.Connected() {
			return nil
		}
	}
	return fmt.Errorf("%d idle browsers disconnected", len(p.idle))
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close shuts idle browsers and the launcher. Leased sessions keep working
// until released; their browsers are closed on release.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, b := range idle {
		_ = b.Close()
	}
	return p.launcher.Close()
}
