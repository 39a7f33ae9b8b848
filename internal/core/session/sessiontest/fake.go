// Package sessiontest provides an in-memory browser for tests. Pages are
// plain HTML keyed by URL; clicks follow the href of the matched anchor.
package sessiontest

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"

	"navigator/internal/core/session"
)

// Call names accepted by Driver.FailNext and Driver.Stall.
const (
	CallGoto    = "goto"
	CallSubmit  = "submit"
	CallClick   = "click"
	CallScroll  = "scroll"
	CallWait    = "wait"
	CallLoad    = "load"
	CallContent = "content"
)

// ErrTimeout mimics the error text Playwright returns on a locator timeout.
var ErrTimeout = errors.New("Timeout 1000ms exceeded while waiting for locator")

// Site is a set of pages shared by every driver a launcher creates.
type Site struct {
	mu    sync.Mutex
	pages map[string]string
	// scrolled replaces a page's HTML after the first scroll.
	scrolled map[string]string
	// submits maps a search text to the URL the search lands on.
	submits map[string]string
}

func NewSite() *Site {
	return &Site{pages: map[string]string{}, scrolled: map[string]string{}, submits: map[string]string{}}
}

// Page registers html at u.
func (s *Site) Page(u, html string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[u] = html
	return s
}

// AfterScroll makes u show html once the page has been scrolled.
func (s *Site) AfterScroll(u, html string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrolled[u] = html
	return s
}

// OnSubmit makes a form search for text land on u.
func (s *Site) OnSubmit(text, u string) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits[text] = u
	return s
}

func (s *Site) lookup(u string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	html, ok := s.pages[u]
	return html, ok
}

// Driver is a scriptable session.Driver.
type Driver struct {
	site *Site

	mu       sync.Mutex
	current  string
	html     string
	fail     map[string][]error
	stall    map[string]time.Duration
	calls    []string
	scrolled bool
	closed   bool
}

func NewDriver(site *Site) *Driver {
	return &Driver{site: site, fail: map[string][]error{}, stall: map[string]time.Duration{}}
}

// FailNext queues errors returned by the next calls named call.
func (d *Driver) FailNext(call string, errs ...error) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[call] = append(d.fail[call], errs...)
	return d
}

// Stall makes every call named call sleep for delay before answering.
func (d *Driver) Stall(call string, delay time.Duration) *Driver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stall[call] = delay
	return d
}

// Calls lists the calls made so far, in order.
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// enter records a call and returns its queued error, if any.
func (d *Driver) enter(call, detail string) error {
	d.mu.Lock()
	d.calls = append(d.calls, strings.TrimSpace(call+" "+detail))
	delay := d.stall[call]
	var err error
	if q := d.fail[call]; len(q) > 0 {
		err, d.fail[call] = q[0], q[1:]
	}
	closed := d.closed
	d.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if closed {
		return errors.New("Target page, context or browser has been closed")
	}
	return err
}

func (d *Driver) load(u string) error {
	html, ok := d.site.lookup(u)
	if !ok {
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED at %s", u)
	}
	d.mu.Lock()
	d.current, d.html, d.scrolled = u, html, false
	d.mu.Unlock()
	return nil
}

func (d *Driver) doc() (*goquery.Document, string, error) {
	d.mu.Lock()
	html, cur := d.html, d.current
	d.mu.Unlock()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	return doc, cur, err
}

func (d *Driver) Goto(u string, _ time.Duration) error {
	if err := d.enter(CallGoto, u); err != nil {
		return err
	}
	return d.load(u)
}

func (d *Driver) Submit(selector, text string, _ time.Duration) error {
	if err := d.enter(CallSubmit, text); err != nil {
		return err
	}
	doc, _, err := d.doc()
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return ErrTimeout
	}
	d.site.mu.Lock()
	u, ok := d.site.submits[text]
	d.site.mu.Unlock()
	if !ok {
		return fmt.Errorf("no search result page for %q", text)
	}
	return d.load(u)
}

func (d *Driver) Click(selector string, nth int, _ time.Duration) error {
	if err := d.enter(CallClick, fmt.Sprintf("%s#%d", selector, nth)); err != nil {
		return err
	}
	doc, cur, err := d.doc()
	if err != nil {
		return err
	}
	el := doc.Find(selector).Eq(nth)
	if el.Length() == 0 {
		return ErrTimeout
	}
	href, ok := el.Attr("href")
	if !ok {
		href, ok = el.Find("a[href]").First().Attr("href")
	}
	if !ok {
		return nil
	}
	base, _ := url.Parse(cur)
	if base != nil {
		if ref, err := base.Parse(href); err == nil {
			href = ref.String()
		}
	}
	return d.load(href)
}

func (d *Driver) TryClick(selector string, _ time.Duration) bool {
	if d.enter("dismiss", selector) != nil {
		return false
	}
	doc, _, err := d.doc()
	return err == nil && doc.Find(selector).Length() > 0
}

func (d *Driver) Scroll() error {
	if err := d.enter(CallScroll, ""); err != nil {
		return err
	}
	d.site.mu.Lock()
	d.mu.Lock()
	if html, ok := d.site.scrolled[d.current]; ok && !d.scrolled {
		d.html = html
	}
	d.scrolled = true
	d.mu.Unlock()
	d.site.mu.Unlock()
	return nil
}

func (d *Driver) WaitVisible(selector string, _ time.Duration) error {
	if err := d.enter(CallWait, selector); err != nil {
		return err
	}
	doc, _, err := d.doc()
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return ErrTimeout
	}
	return nil
}

func (d *Driver) WaitLoad(_ time.Duration) error { return d.enter(CallLoad, "") }

func (d *Driver) Content() (string, error) {
	if err := d.enter(CallContent, ""); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.html, nil
}

func (d *Driver) Title() (string, error) { return "", nil }

func (d *Driver) URL() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

func (d *Driver) Screenshot() ([]byte, error) {
	return []byte("\x89PNG fake"), nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Browser is a fake browser process.
type Browser struct {
	launcher  *Launcher
	connected atomic.Bool
	sessions  atomic.Int32
}

func (b *Browser) NewSession(session.Profile) (session.Driver, error) {
	if !b.connected.Load() {
		return nil, errors.New("browser has been closed")
	}
	b.sessions.Add(1)
	return b.launcher.newDriver(), nil
}

func (b *Browser) Connected() bool { return b.connected.Load() }

// Crash disconnects the browser as if its process died.
func (b *Browser) Crash() { b.connected.Store(false) }

func (b *Browser) Close() error {
	b.connected.Store(false)
	return nil
}

// Sessions is the number of contexts opened on this browser.
func (b *Browser) Sessions() int { return int(b.sessions.Load()) }

// Launcher is a fake session.Launcher. NewDriver, when set, builds the
// driver for each new session; otherwise a plain driver on Site is used.
type Launcher struct {
	Site      *Site
	NewDriver func() *Driver
	LaunchErr error

	mu       sync.Mutex
	browsers []*Browser
	drivers  []*Driver
	closed   bool
}

func NewLauncher(site *Site) *Launcher {
	if site == nil {
		site = NewSite()
	}
	return &Launcher{Site: site}
}

func (l *Launcher) Launch(ctx context.Context) (session.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.LaunchErr != nil {
		return nil, l.LaunchErr
	}
	b := &Browser{launcher: l}
	b.connected.Store(true)
	l.mu.Lock()
	l.browsers = append(l.browsers, b)
	l.mu.Unlock()
	return b, nil
}

func (l *Launcher) newDriver() *Driver {
	var d *Driver
	if l.NewDriver != nil {
		d = l.NewDriver()
	} else {
		d = NewDriver(l.Site)
	}
	l.mu.Lock()
	l.drivers = append(l.drivers, d)
	l.mu.Unlock()
	return d
}

func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Browsers returns every browser launched so far.
func (l *Launcher) Browsers() []*Browser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Browser(nil), l.browsers...)
}

// Drivers returns every driver handed out so far.
func (l *Launcher) Drivers() []*Driver {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Driver(nil), l.drivers...)
}

func (l *Launcher) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
