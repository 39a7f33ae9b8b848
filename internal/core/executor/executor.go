package executor

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"navigator/internal/core/nav"
	"navigator/internal/core/session"
	"navigator/internal/logger"
)

// Options configures an Executor.
type Options struct {
	// ActionTimeout applies when Run is called without a timeout.
	ActionTimeout time.Duration
	// NavRate limits page loads per host, in requests per second. Zero disables it.
	NavRate float64
	// Detector flags challenge pages. Nil uses ChallengeDetector.
	Detector Detector
}

// Executor performs exactly one action per call. It never retries.
type Executor struct {
	opts Options
	log  *logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(opts Options) *Executor {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 15 * time.Second
	}
	if opts.Detector == nil {
		opts.Detector = ChallengeDetector{}
	}
	return &Executor{opts: opts, log: logger.New("Executor"), limiters: map[string]*rate.Limiter{}}
}

type outcome struct {
	snap *nav.PageSnapshot
	png  []byte
	err  error
}

// Run drives the handle's session through action a and returns the page as
// it looks afterwards. The call returns when the browser answers, when
// timeout elapses (Timeout), or when ctx ends (RunTimeout or Canceled),
// whichever happens first. Every error is a *nav.Failure.
func (e *Executor) Run(ctx context.Context, h *session.Handle, a nav.Action, timeout time.Duration) (*nav.PageSnapshot, error) {
	if err := a.Validate(); err != nil {
		return nil, nav.Fail(nav.FailureActionError, "%v", err)
	}
	if timeout <= 0 {
		timeout = e.opts.ActionTimeout
	}
	if err := e.throttle(ctx, a); err != nil {
		return nil, err
	}

	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		snap, err := e.perform(h.Driver(), a, timeout)
		done <- outcome{snap: snap, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			f := classify(o.err)
			if f.Kind == nav.FailureSessionLost {
				h.MarkUnhealthy()
			}
			return nil, f
		}
		if reason, blocked := e.opts.Detector.Blocked(o.snap); blocked {
			return o.snap, nav.Fail(nav.FailureAntiBotBlock, "%s at %s", reason, o.snap.URL)
		}
		return o.snap, nil
	case <-actx.Done():
		// The browser call keeps running; its result lands in the buffered
		// channel and is dropped.
		if f := contextFailure(ctx); f != nil {
			return nil, f
		}
		return nil, nav.Fail(nav.FailureTimeout, "%s did not finish within %s", a, timeout)
	}
}

func contextFailure(ctx context.Context) *nav.Failure {
	switch {
	case ctx.Err() == nil:
		return nil
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nav.Fail(nav.FailureRunTimeout, "run deadline passed")
	default:
		return nav.Fail(nav.FailureCanceled, "run canceled")
	}
}

func (e *Executor) perform(d session.Driver, a nav.Action, timeout time.Duration) (*nav.PageSnapshot, error) {
	var err error
	switch a.Kind {
	case nav.ActionNavigate:
		if err = d.Goto(a.URL, timeout); err == nil {
			for _, sel := range a.Dismiss {
				d.TryClick(sel, 2*time.Second)
			}
		}
	case nav.ActionSearch:
		if a.URL != "" {
			err = d.Goto(a.URL, timeout)
		} else {
			err = d.Submit(a.Selector, a.Text, timeout)
		}
	case nav.ActionClick:
		err = d.Click(a.Selector, a.Index, timeout)
		if err != nil && a.URL != "" {
			e.log.Debug().Str("href", a.URL).Err(err).Msg("click failed, following href")
			err = d.Goto(a.URL, timeout)
		}
	case nav.ActionScroll:
		if err = d.Scroll(); err == nil {
			_ = d.WaitLoad(timeout / 4)
		}
	case nav.ActionWaitFor:
		err = d.WaitVisible(a.Selector, timeout)
	case nav.ActionExtract:
		// reads the current page as is
	default:
		err = fmt.Errorf("unsupported action kind %q", a.Kind)
	}
	if err != nil {
		return nil, err
	}
	return capture(d)
}

func capture(d session.Driver) (*nav.PageSnapshot, error) {
	html, err := d.Content()
	if err != nil {
		return nil, fmt.Errorf("read page content: %w", err)
	}
	title, _ := d.Title()
	return nav.NewSnapshot(d.URL(), title, html)
}

// Snapshot captures the current page without acting on it.
func (e *Executor) Snapshot(ctx context.Context, h *session.Handle) (*nav.PageSnapshot, error) {
	return e.Run(ctx, h, nav.Extract(), 0)
}

// Screenshot grabs the visible viewport for diagnostics.
func (e *Executor) Screenshot(ctx context.Context, h *session.Handle) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.ActionTimeout)
	defer cancel()
	done := make(chan outcome, 1)
	go func() {
		b, err := h.Driver().Screenshot()
		done <- outcome{png: b, err: err}
	}()
	select {
	case o := <-done:
		if o.err != nil {
			return nil, classify(o.err)
		}
		return o.png, nil
	case <-ctx.Done():
		return nil, nav.Fail(nav.FailureTimeout, "screenshot did not finish")
	}
}

// throttle applies the per-host page load limit to navigating actions.
func (e *Executor) throttle(ctx context.Context, a nav.Action) error {
	if e.opts.NavRate <= 0 || a.URL == "" || (a.Kind != nav.ActionNavigate && a.Kind != nav.ActionSearch) {
		return nil
	}
	u, err := url.Parse(a.URL)
	if err != nil || u.Host == "" {
		return nil
	}
	if err := e.limiter(u.Host).Wait(ctx); err != nil {
		if f := contextFailure(ctx); f != nil {
			return f
		}
		// Wait refuses up front when the deadline is closer than the next token.
		return nav.Fail(nav.FailureRunTimeout, "no time left for another request to %s", u.Host)
	}
	return nil
}

func (e *Executor) limiter(host string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(e.opts.NavRate), 1)
		e.limiters[host] = l
	}
	return l
}

// classify maps driver errors onto failure kinds by their message, which is
// all Playwright exposes.
func classify(err error) *nav.Failure {
	var f *nav.Failure
	if errors.As(err, &f) {
		return f
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "timeout"):
		return nav.Fail(nav.FailureTimeout, "%s", msg)
	case strings.Contains(lower, "net::"),
		strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "connection reset"),
		strings.Contains(lower, "no such host"):
		return nav.Fail(nav.FailureNetwork, "%s", msg)
	case strings.Contains(lower, "has been closed"),
		strings.Contains(lower, "target closed"),
		strings.Contains(lower, "browser closed"),
		strings.Contains(lower, "crashed"):
		return nav.Fail(nav.FailureSessionLost, "%s", msg)
	default:
		return nav.Fail(nav.FailureActionError, "%s", msg)
	}
}
