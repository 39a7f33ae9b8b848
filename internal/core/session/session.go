package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Driver is one isolated browser context with a single page. All calls block
// until the browser answers; the executor owns timeouts and cancellation.
type Driver interface {
	Goto(url string, timeout time.Duration) error
	// Submit fills the first input matching selector and presses Enter.
	Submit(selector, text string, timeout time.Duration) error
	// Click clicks the nth element matching selector.
	Click(selector string, nth int, timeout time.Duration) error
	// TryClick clicks selector if it is visible. Used for popups and banners.
	TryClick(selector string, timeout time.Duration) bool
	Scroll() error
	WaitVisible(selector string, timeout time.Duration) error
	WaitLoad(timeout time.Duration) error
	Content() (string, error)
	Title() (string, error)
	URL() string
	Screenshot() ([]byte, error)
	Close() error
}

// Browser is one launched browser process.
type Browser interface {
	NewSession(p Profile) (Driver, error)
	Connected() bool
	Close() error
}

// Launcher starts browser processes.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
	Close() error
}

// Handle is a lease on one isolated session. It belongs to exactly one run
// and must be released when the run ends.
type Handle struct {
	ID       string
	LeasedAt time.Time

	driver    Driver
	browser   Browser
	pool      *Pool
	unhealthy atomic.Bool
	release   sync.Once
}

// Driver is the session's page. Only the executor should call it.
func (h *Handle) Driver() Driver { return h.driver }

// MarkUnhealthy makes Release discard the browser instead of pooling it.
func (h *Handle) MarkUnhealthy() { h.unhealthy.Store(true) }

func (h *Handle) Healthy() bool {
	return !h.unhealthy.Load() && h.browser.Connected()
}

// Release returns the lease to its pool. Calling it more than once is safe.
func (h *Handle) Release() { h.pool.Release(h) }
