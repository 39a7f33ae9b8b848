package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"navigator/internal/core/cache"
	"navigator/internal/core/executor"
	"navigator/internal/core/nav"
	"navigator/internal/core/retry"
	"navigator/internal/core/session"
	"navigator/internal/core/session/sessiontest"
	"navigator/internal/core/sites"
)

func TestMain(m *testing.M) {
	// opencensus, reached through the genai client, starts a worker in init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

const catalogYAML = `
engines:
  duckduckgo:
    entry: https://search.example/
    search_url: https://search.example/?q={query}
    results: a.result
sites:
  shop:
    entry: https://shop.example/
    search_input: input[name="q"]
    search_url: https://shop.example/search?q={query}
    results: a.hit
    price: span.price
    currency: USD
  outlet:
    entry: https://outlet.example/
    search_url: https://outlet.example/find?q={query}
    results: a.hit
    price: span.price
    currency: USD
  guarded:
    entry: https://guarded.example/
    search_url: https://guarded.example/s?q={query}
    results: a.hit
`

const (
	home    = "https://shop.example/"
	results = "https://shop.example/search?q=Widget+4000"
	product = "https://shop.example/p/widget-4000"
)

const productHTML = `<html><body>
<div itemscope itemtype="https://schema.org/Product">
  <h1 itemprop="name">Widget 4000</h1>
  <span class="price" itemprop="price">$19.99</span>
  <link itemprop="availability" href="https://schema.org/InStock">
</div></body></html>`

const noPriceHTML = `<html><body><h1>Widget 4000</h1><span class="price">Price unavailable</span></body></html>`

func shop(productPage string) *sessiontest.Site {
	return sessiontest.NewSite().
		Page(home, `<html><body><input name="q"></body></html>`).
		Page(results, `<html><body><a class="hit" href="/p/gadget">Gadget Pro</a><a class="hit" href="/p/widget-4000">Widget 4000</a></body></html>`).
		Page(product, productPage)
}

type memSink struct {
	mu    sync.Mutex
	names []string
}

func (s *memSink) Save(_ context.Context, jobID, name string, _ []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	return "mem://" + jobID + "/" + name, nil
}

func (s *memSink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

type harness struct {
	launcher *sessiontest.Launcher
	sink     *memSink
	agent    *Agent
}

func newHarness(t *testing.T, site *sessiontest.Site, driver func() *sessiontest.Driver) *harness {
	t.Helper()
	catalog, err := sites.Parse([]byte(catalogYAML), "duckduckgo")
	require.NoError(t, err)

	l := sessiontest.NewLauncher(site)
	l.NewDriver = driver
	pool := session.NewPool(l, session.Options{Size: 1, LeaseTimeout: time.Second})
	t.Cleanup(func() { _ = pool.Close() })

	sink := &memSink{}
	a := New(Deps{
		Pool:     pool,
		Catalog:  catalog,
		Executor: executor.New(executor.Options{ActionTimeout: time.Second}),
		Cache:    cache.New(cache.Options{}),
		Sink:     sink,
	}, Options{
		MaxSteps: 20,
		Timeout:  5 * time.Second,
		Retry: retry.Policy{
			Budget:        3,
			Base:          time.Millisecond,
			Multiplier:    2,
			Max:           4 * time.Millisecond,
			AntiBotFactor: 1,
			AntiBotBudget: 2,
		},
	})
	return &harness{launcher: l, sink: sink, agent: a}
}

func widget() nav.Goal {
	return nav.Goal{Query: "Widget 4000", Sites: []string{"shop"}}
}

// A product page with a structured $19.99 price yields exactly one record.
func TestHappyPathExtractsStructuredPrice(t *testing.T) {
	h := newHarness(t, shop(productHTML), nil)

	res := h.agent.Run(context.Background(), widget())
	require.True(t, res.Succeeded(), "%v", res.Failure)

	want := []nav.ExtractedRecord{{
		Name:         "Widget 4000",
		Price:        19.99,
		Currency:     "USD",
		Availability: nav.AvailabilityInStock,
		SourceURL:    product,
		Confidence:   nav.ConfidenceHigh,
		Strategy:     "structured",
	}}
	if diff := cmp.Diff(want, res.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 5, res.Steps)
	assert.Zero(t, res.Retries)
	assert.False(t, res.Cached)
	assert.Equal(t, []string{"shop-extracted.png"}, h.sink.Names())
	require.Len(t, res.Artifacts, 1)
	assert.Contains(t, res.Artifacts[0], "shop-extracted.png")
}

func TestRepeatedGoalIsServedFromCache(t *testing.T) {
	h := newHarness(t, shop(productHTML), nil)
	first := h.agent.Run(context.Background(), widget())
	require.True(t, first.Succeeded())

	g := widget()
	g.ID = "second"
	g.Query = "  widget   4000 "
	again := h.agent.Run(context.Background(), g)
	require.True(t, again.Succeeded())
	assert.True(t, again.Cached)
	assert.Equal(t, "second", again.GoalID)
	assert.Equal(t, first.Records, again.Records)
	assert.Len(t, h.launcher.Drivers(), 1, "no second navigation")

	m := h.agent.Metrics().Snapshot()
	assert.Equal(t, int64(1), m.CacheMisses)
	assert.Equal(t, int64(1), m.CacheHits)
	assert.InDelta(t, 0.5, m.HitRate, 1e-9)
}

// The price element times out twice before showing up; two retries in the
// product phase and the run still succeeds.
func TestTransientWaitFailuresAreRetried(t *testing.T) {
	site := shop(productHTML)
	h := newHarness(t, site, func() *sessiontest.Driver {
		return sessiontest.NewDriver(site).FailNext(sessiontest.CallWait, sessiontest.ErrTimeout, sessiontest.ErrTimeout)
	})

	var mu sync.Mutex
	var events []Event
	ctx := WithObserver(context.Background(), func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	res := h.agent.Run(ctx, widget())
	require.True(t, res.Succeeded(), "%v", res.Failure)
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, map[nav.Phase]int{nav.PhaseProductPage: 2}, res.RetriesByPhase)
	assert.Equal(t, 7, res.Steps)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 7)
	retried := 0
	for _, e := range events {
		if e.Retry {
			retried++
			assert.Equal(t, nav.ActionWaitFor, e.Action.Kind)
			assert.Equal(t, nav.FailureTimeout, e.Failure.Kind)
		}
	}
	assert.Equal(t, 2, retried)
	assert.Equal(t, nav.PhaseExtracted, events[len(events)-1].Phase)
}

func TestRetryBudgetExhaustionKeepsKind(t *testing.T) {
	site := shop(productHTML)
	h := newHarness(t, site, func() *sessiontest.Driver {
		return sessiontest.NewDriver(site).FailNext(sessiontest.CallWait,
			sessiontest.ErrTimeout, sessiontest.ErrTimeout, sessiontest.ErrTimeout, sessiontest.ErrTimeout)
	})

	res := h.agent.Run(context.Background(), widget())
	require.False(t, res.Succeeded())
	assert.Equal(t, nav.FailureTimeout, res.Failure.Kind)
	assert.Equal(t, nav.PhaseProductPage, res.Failure.Phase)
	assert.Equal(t, 3, res.Retries)
	assert.Equal(t, 7, res.Steps)
	assert.Contains(t, h.sink.Names(), "shop-failed-product_page.png")
}

// Extraction comes back empty, the page is scrolled, and it comes back empty
// again: the run fails with ExtractionMismatch in the product phase.
func TestEmptyExtractionTwiceFails(t *testing.T) {
	h := newHarness(t, shop(noPriceHTML), nil)

	res := h.agent.Run(context.Background(), widget())
	require.False(t, res.Succeeded())
	assert.Equal(t, nav.FailureExtractionMismatch, res.Failure.Kind)
	assert.Equal(t, nav.PhaseProductPage, res.Failure.Phase)
	assert.Empty(t, res.Records)
	assert.Equal(t, 7, res.Steps)

	calls := h.launcher.Drivers()[0].Calls()
	assert.Contains(t, calls, "scroll")
}

func TestLazyPriceAppearsAfterScroll(t *testing.T) {
	site := shop(noPriceHTML).AfterScroll(product, productHTML)
	h := newHarness(t, site, nil)

	res := h.agent.Run(context.Background(), widget())
	require.True(t, res.Succeeded(), "%v", res.Failure)
	assert.Equal(t, 19.99, res.Records[0].Price)
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, 7, res.Steps)
}

func TestStepBudgetStopsTheRun(t *testing.T) {
	h := newHarness(t, shop(productHTML), nil)
	g := widget()
	g.MaxSteps = 3

	res := h.agent.Run(context.Background(), g)
	require.False(t, res.Succeeded())
	assert.Equal(t, nav.FailureStepBudget, res.Failure.Kind)
	assert.Equal(t, 3, res.Steps)
}

func TestChallengePageRetriesAreCapped(t *testing.T) {
	site := sessiontest.NewSite().
		Page("https://guarded.example/", `<html><head><title>Just a moment...</title></head><body>Checking your browser</body></html>`)
	h := newHarness(t, site, nil)

	res := h.agent.Run(context.Background(), nav.Goal{Query: "Widget 4000", Sites: []string{"guarded"}})
	require.False(t, res.Succeeded())
	assert.Equal(t, nav.FailureAntiBotBlock, res.Failure.Kind)
	assert.Equal(t, nav.PhaseStart, res.Failure.Phase)
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, 3, res.Steps)
}

func TestNoMatchingResultIsNoCandidate(t *testing.T) {
	site := shop(productHTML).
		Page(results, `<html><body><a class="hit" href="/p/toaster">Chrome Toaster</a></body></html>`)
	h := newHarness(t, site, nil)

	res := h.agent.Run(context.Background(), widget())
	require.False(t, res.Succeeded())
	assert.Equal(t, nav.FailureNoCandidate, res.Failure.Kind)
	assert.Equal(t, nav.PhaseResultsListed, res.Failure.Phase)
	assert.Equal(t, 2, res.Steps)
}

func TestSitesShareStepsAndRecordsAreMerged(t *testing.T) {
	site := shop(productHTML).
		Page("https://outlet.example/", `<html><body></body></html>`).
		Page("https://outlet.example/find?q=Widget+4000", `<html><body><a class="hit" href="/item/1">Widget 4000 refurbished</a></body></html>`).
		Page("https://outlet.example/item/1", `<html><body><h1>Widget 4000 refurbished</h1><span class="price">$17.50</span></body></html>`)
	h := newHarness(t, site, nil)

	res := h.agent.Run(context.Background(), nav.Goal{Query: "Widget 4000", Sites: []string{"shop", "outlet"}})
	require.True(t, res.Succeeded(), "%v", res.Failure)
	require.Len(t, res.Records, 2)
	assert.Equal(t, 17.50, res.Records[0].Price, "cheapest first")
	assert.Equal(t, "labeled", res.Records[0].Strategy)
	assert.Equal(t, 19.99, res.Records[1].Price)
	assert.Equal(t, 10, res.Steps)
}

// The second empty extraction is fatal even when it happens on another site.
func TestEmptyExtractionIsRetriedOncePerRun(t *testing.T) {
	site := shop(noPriceHTML).AfterScroll(product, productHTML).
		Page("https://outlet.example/", `<html><body></body></html>`).
		Page("https://outlet.example/find?q=Widget+4000", `<html><body><a class="hit" href="/item/1">Widget 4000 refurbished</a></body></html>`).
		Page("https://outlet.example/item/1", `<html><body><h1>Widget 4000 refurbished</h1><span class="price">Price unavailable</span></body></html>`).
		AfterScroll("https://outlet.example/item/1", `<html><body><h1>Widget 4000 refurbished</h1><span class="price">$17.50</span></body></html>`)
	h := newHarness(t, site, nil)

	res := h.agent.Run(context.Background(), nav.Goal{Query: "Widget 4000", Sites: []string{"shop", "outlet"}})
	require.True(t, res.Succeeded(), "%v", res.Failure)
	require.Len(t, res.Records, 1, "outlet gets no second chance")
	assert.Equal(t, 19.99, res.Records[0].Price)
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, map[nav.Phase]int{nav.PhaseProductPage: 1}, res.RetriesByPhase)
	assert.Equal(t, 12, res.Steps)

	order := []string{"outlet", "shop"}
	h = newHarness(t, site, nil)
	res = h.agent.Run(context.Background(), nav.Goal{Query: "Widget 4000", Sites: order})
	require.True(t, res.Succeeded(), "%v", res.Failure)
	require.Len(t, res.Records, 1)
	assert.Equal(t, 17.50, res.Records[0].Price)
}

func TestConcurrentEquivalentGoalsNavigateOnce(t *testing.T) {
	site := shop(productHTML)
	h := newHarness(t, site, func() *sessiontest.Driver {
		return sessiontest.NewDriver(site).Stall(sessiontest.CallGoto, 20*time.Millisecond)
	})

	const callers = 5
	out := make([]*nav.Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out[i] = h.agent.Run(context.Background(), widget())
		}(i)
	}
	wg.Wait()

	fresh := 0
	for _, r := range out {
		require.True(t, r.Succeeded(), "%v", r.Failure)
		if !r.Cached {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Len(t, h.launcher.Drivers(), 1)
	m := h.agent.Metrics().Snapshot()
	assert.Equal(t, int64(1), m.CacheMisses)
	assert.Equal(t, int64(callers-1), m.CacheHits+m.CacheShared)
}

func TestMalformedGoalsNeverNavigate(t *testing.T) {
	h := newHarness(t, shop(productHTML), nil)

	for _, g := range []nav.Goal{
		{Query: "   "},
		{Query: "Widget 4000", Sites: []string{"nowhere"}},
		{Query: "Widget 4000", Constraints: nav.Constraints{Currency: "XYZ"}},
	} {
		res := h.agent.Run(context.Background(), g)
		require.False(t, res.Succeeded())
		assert.Equal(t, nav.FailureMalformedGoal, res.Failure.Kind)
	}
	assert.Empty(t, h.launcher.Drivers())
	assert.Equal(t, int64(3), h.agent.Metrics().Snapshot().RunsFailed)
}

func TestGoalTimeoutEndsTheRun(t *testing.T) {
	site := shop(productHTML)
	h := newHarness(t, site, func() *sessiontest.Driver {
		return sessiontest.NewDriver(site).Stall(sessiontest.CallGoto, 150*time.Millisecond)
	})
	g := widget()
	g.Timeout = 40 * time.Millisecond

	start := time.Now()
	res := h.agent.Run(context.Background(), g)
	assert.Less(t, time.Since(start), 140*time.Millisecond)
	require.False(t, res.Succeeded())
	assert.Equal(t, nav.FailureRunTimeout, res.Failure.Kind)

	// Let the stalled browser call finish before the leak check.
	time.Sleep(150 * time.Millisecond)
}
