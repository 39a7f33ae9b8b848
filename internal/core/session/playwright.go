package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"navigator/internal/logger"
)

// PlaywrightOptions configures the Chromium launcher.
type PlaywrightOptions struct {
	Headless bool
	// SlowMo delays every browser operation, useful when watching a headed run.
	SlowMo time.Duration
	// BlockTrackers aborts requests to ad, tracker and chat widget hosts.
	BlockTrackers bool
}

var launchArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-blink-features=AutomationControlled",
	"--disable-features=VizDisplayCompositor",
	"--no-first-run",
	"--disable-default-apps",
	"--disable-extensions",
}

// PlaywrightLauncher starts the Playwright driver once and launches one
// Chromium process per pool slot.
type PlaywrightLauncher struct {
	opts PlaywrightOptions
	log  *logger.Logger

	mu     sync.Mutex
	pw     *playwright.Playwright
	closed bool
}

func NewPlaywrightLauncher(opts PlaywrightOptions) *PlaywrightLauncher {
	return &PlaywrightLauncher{opts: opts, log: logger.New("Playwright")}
}

var errLauncherClosed = errors.New("playwright launcher closed")

// start runs the Playwright driver on first use. A failed start is retried
// by the next Launch.
func (l *PlaywrightLauncher) start() (*playwright.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errLauncherClosed
	}
	if l.pw != nil {
		return l.pw, nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("playwright run: %w", err)
	}
	l.pw = pw
	return pw, nil
}

func (l *PlaywrightLauncher) Launch(ctx context.Context) (Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := l.start()
	if err != nil {
		return nil, err
	}
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(l.opts.Headless),
		Args:     launchArgs,
	}
	if l.opts.SlowMo > 0 {
		opts.SlowMo = playwright.Float(float64(l.opts.SlowMo.Milliseconds()))
	}
	b, err := pw.Chromium.Launch(opts)
	if err != nil {
		return nil, fmt.Errorf("launch: %w", err)
	}
	return &pwBrowser{browser: b, blockTrackers: l.opts.BlockTrackers, log: l.log}, nil
}

// Close stops the driver. Launch fails afterwards.
func (l *PlaywrightLauncher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.pw == nil {
		return nil
	}
	pw := l.pw
	l.pw = nil
	return pw.Stop()
}

type pwBrowser struct {
	browser       playwright.Browser
	blockTrackers bool
	log           *logger.Logger
}

func (b *pwBrowser) NewSession(p Profile) (Driver, error) {
	opts := playwright.BrowserNewContextOptions{
		UserAgent:        playwright.String(p.UserAgent),
		ExtraHttpHeaders: p.Headers(),
		Locale:           playwright.String("en-US"),
		IsMobile:         playwright.Bool(p.Mobile),
		HasTouch:         playwright.Bool(p.Mobile),
	}
	if p.Width > 0 && p.Height > 0 {
		opts.Viewport = &playwright.Size{Width: p.Width, Height: p.Height}
	}
	ctx, err := b.browser.NewContext(opts)
	if err != nil {
		return nil, err
	}
	if b.blockTrackers {
		if err := ctx.Route("**/*", func(route playwright.Route) {
			if blockedURL(route.Request().URL()) {
				_ = route.Abort("blockedbyclient")
				return
			}
			_ = route.Continue()
		}); err != nil {
			b.log.LogWarnf("Failed to set up request blocking: %v", err)
		}
	}
	page, err := ctx.NewPage()
	if err != nil {
		_ = ctx.Close()
		return nil, err
	}
	return &pwDriver{ctx: ctx, page: page}, nil
}

func (b *pwBrowser) Connected() bool { return b.browser.IsConnected() }
func (b *pwBrowser) Close() error    { return b.browser.Close() }

type pwDriver struct {
	ctx  playwright.BrowserContext
	page playwright.Page
}

func ms(d time.Duration) *float64 { return playwright.Float(float64(d.Milliseconds())) }

func (d *pwDriver) Goto(url string, timeout time.Duration) error {
	_, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   ms(timeout),
	})
	return err
}

func (d *pwDriver) Submit(selector, text string, timeout time.Duration) error {
	input := d.page.Locator(selector).First()
	if err := input.Fill(text, playwright.LocatorFillOptions{Timeout: ms(timeout)}); err != nil {
		return err
	}
	if err := input.Press("Enter", playwright.LocatorPressOptions{Timeout: ms(timeout)}); err != nil {
		return err
	}
	return d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: ms(timeout),
	})
}

// Click keeps navigation in the same page: shops open results in new tabs,
// which would leave the session looking at the results list.
func (d *pwDriver) Click(selector string, nth int, timeout time.Duration) error {
	target := d.page.Locator(selector).Nth(nth)
	_, _ = target.Evaluate(`el => { const a = el.closest('a') || el.querySelector('a'); if (a) a.removeAttribute('target'); }`, nil)
	if err := target.Click(playwright.LocatorClickOptions{Timeout: ms(timeout)}); err != nil {
		return err
	}
	return d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: ms(timeout),
	})
}

func (d *pwDriver) TryClick(selector string, timeout time.Duration) bool {
	el := d.page.Locator(selector).First()
	if visible, err := el.IsVisible(); err != nil || !visible {
		return false
	}
	return el.Click(playwright.LocatorClickOptions{Timeout: ms(timeout)}) == nil
}

func (d *pwDriver) Scroll() error {
	_, err := d.page.Evaluate(`() => window.scrollBy(0, Math.round(window.innerHeight * 0.9))`)
	return err
}

func (d *pwDriver) WaitVisible(selector string, timeout time.Duration) error {
	return d.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: ms(timeout),
	})
}

func (d *pwDriver) WaitLoad(timeout time.Duration) error {
	return d.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: ms(timeout),
	})
}

func (d *pwDriver) Content() (string, error) { return d.page.Content() }
func (d *pwDriver) Title() (string, error)   { return d.page.Title() }
func (d *pwDriver) URL() string              { return d.page.URL() }

func (d *pwDriver) Screenshot() ([]byte, error) {
	return d.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(false),
		Type:     playwright.ScreenshotTypePng,
	})
}

func (d *pwDriver) Close() error {
	if err := d.page.Close(); err != nil && !strings.Contains(err.Error(), "closed") {
		_ = d.ctx.Close()
		return err
	}
	return d.ctx.Close()
}
