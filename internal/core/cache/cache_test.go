package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"navigator/internal/core/nav"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *clock { return &clock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)} }

func ok(price float64) *nav.Result {
	return &nav.Result{Status: nav.StatusSucceeded, Records: []nav.ExtractedRecord{{Name: "Widget", Price: price, Currency: "USD"}}}
}

func failed(kind nav.FailureKind) *nav.Result {
	return &nav.Result{Status: nav.StatusFailed, Failure: &nav.Failure{Kind: kind}}
}

// Concurrent callers with one fingerprint share a single computation.
func TestSingleComputationPerFingerprint(t *testing.T) {
	c := New(Options{})
	var runs atomic.Int32
	release := make(chan struct{})

	const callers = 8
	results := make([]*nav.Result, callers)
	sources := make([]Source, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], sources[i] = c.GetOrCompute(context.Background(), "fp", func(context.Context) *nav.Result {
				runs.Add(1)
				<-release
				return ok(19.99)
			})
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	computed := 0
	for i := range results {
		assert.Equal(t, 19.99, results[i].Records[0].Price)
		if sources[i] == SourceComputed {
			computed++
		}
	}
	assert.Equal(t, 1, computed)
	st := c.Stats()
	assert.Equal(t, int64(1), st.Misses)
	assert.Equal(t, int64(callers-1), st.Shared+st.Hits)
}

func TestFreshnessBound(t *testing.T) {
	clk := newClock()
	c := New(Options{TTL: time.Minute, FailureTTL: 10 * time.Second, Now: clk.Now})

	c.Put("good", ok(10))
	c.Put("bad", failed(nav.FailureAntiBotBlock))

	clk.Advance(9 * time.Second)
	_, hit := c.Get("bad")
	assert.True(t, hit)

	clk.Advance(time.Second)
	_, hit = c.Get("bad")
	assert.False(t, hit, "failures expire after the failure ttl")
	_, hit = c.Get("good")
	assert.True(t, hit)

	clk.Advance(50 * time.Second)
	_, hit = c.Get("good")
	assert.False(t, hit, "an entry exactly ttl old is stale")
	assert.Equal(t, int64(2), c.Stats().Expired)

	var runs int
	r, src := c.GetOrCompute(context.Background(), "good", func(context.Context) *nav.Result {
		runs++
		return ok(11)
	})
	assert.Equal(t, SourceComputed, src)
	assert.Equal(t, 11.0, r.Records[0].Price)
	assert.Equal(t, 1, runs)
}

func TestLRUEviction(t *testing.T) {
	c := New(Options{Capacity: 2})
	c.Put("a", ok(1))
	c.Put("b", ok(2))
	_, _ = c.Get("a")
	c.Put("c", ok(3))

	_, hitA := c.Get("a")
	_, hitB := c.Get("b")
	_, hitC := c.Get("c")
	assert.True(t, hitA)
	assert.False(t, hitB, "least recently used entry goes first")
	assert.True(t, hitC)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int64(1), c.Stats().Evicted)
}

func TestUncacheableResultsAreNotStored(t *testing.T) {
	c := New(Options{})
	c.Put("canceled", failed(nav.FailureCanceled))
	c.Put("malformed", failed(nav.FailureMalformedGoal))
	c.Put("nil", nil)
	assert.Equal(t, 0, c.Len())

	c.Put("timeout", failed(nav.FailureRunTimeout))
	assert.Equal(t, 1, c.Len())
}

func TestCanceledWaiterIsUnblocked(t *testing.T) {
	c := New(Options{})
	release := make(chan struct{})
	leaderDone := make(chan struct{})

	go func() {
		defer close(leaderDone)
		c.GetOrCompute(context.Background(), "fp", func(context.Context) *nav.Result {
			<-release
			return ok(5)
		})
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	r, src := c.GetOrCompute(ctx, "fp", func(context.Context) *nav.Result {
		t.Error("follower must not compute")
		return nil
	})
	assert.Equal(t, SourceNone, src)
	assert.Equal(t, nav.FailureCanceled, r.Failure.Kind)

	close(release)
	<-leaderDone
	r, src = c.GetOrCompute(context.Background(), "fp", nil)
	assert.Equal(t, SourceCache, src)
	assert.True(t, r.Succeeded())
}

func TestComputeIsDetachedFromCallerCancel(t *testing.T) {
	c := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	var computeErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.GetOrCompute(ctx, "fp", func(cctx context.Context) *nav.Result {
			cancel()
			time.Sleep(10 * time.Millisecond)
			computeErr = cctx.Err()
			return ok(1)
		})
	}()
	<-done
	// The leader returned early; wait for the flight to land in the cache.
	require.Eventually(t, func() bool { return c.Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, computeErr)
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func (m *memStore) CacheGet(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return errors.New("redis: nil")
	}
	return json.Unmarshal(b, dest)
}

func (m *memStore) CacheSet(_ context.Context, key string, val interface{}, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	m.ttls[key] = ttl
	return nil
}

func TestSecondTierIsSharedBetweenCaches(t *testing.T) {
	store := &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
	a := New(Options{Store: store, TTL: time.Minute})
	b := New(Options{Store: store, TTL: time.Minute})

	r, src := a.GetOrCompute(context.Background(), "fp", func(context.Context) *nav.Result {
		res := ok(42)
		res.CompletedAt = time.Now()
		return res
	})
	require.Equal(t, SourceComputed, src)
	assert.Equal(t, time.Minute, store.ttls["navcache:fp"])

	r, src = b.GetOrCompute(context.Background(), "fp", func(context.Context) *nav.Result {
		t.Error("second process must read the shared tier")
		return nil
	})
	assert.Equal(t, SourceStore, src)
	assert.Equal(t, 42.0, r.Records[0].Price)
	assert.Equal(t, 1, b.Len())
}
