package job

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navigator/internal/core/nav"
)

type memStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	ttls     map[string]time.Duration
	messages []string
}

func newMemStore() *memStore {
	return &memStore{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
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
	m.data[key], m.ttls[key] = b, ttl
	return nil
}

func (m *memStore) Publish(_ context.Context, channel, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, channel+" "+payload)
	return nil
}

func TestJobLifecycle(t *testing.T) {
	store := newMemStore()
	s := NewJobService(store)
	ctx := context.Background()

	require.NoError(t, s.InitPending(ctx, "j1", nav.Goal{ID: "j1", Query: "Widget 4000"}))
	j, err := s.GetJobStatus(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, j.Status)
	assert.Equal(t, TypeNavigate, j.Type)
	assert.Equal(t, "Widget 4000", j.Goal.Query)
	assert.Equal(t, 10*time.Minute, store.ttls["job:j1"])

	require.NoError(t, s.SetProcessing(ctx, "j1"))
	require.NoError(t, s.Complete(ctx, "j1", &nav.Result{Status: nav.StatusFailed, Failure: &nav.Failure{Kind: nav.FailureNoCandidate}}))

	j, err = s.GetJobStatus(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, j.Status)
	assert.Equal(t, nav.FailureNoCandidate, j.Result.Failure.Kind)
	assert.Equal(t, "Widget 4000", j.Goal.Query, "goal survives updates")
	assert.Equal(t, time.Hour, store.ttls["job:j1"])
	assert.Len(t, store.messages, 3)
}

func TestUnknownJob(t *testing.T) {
	_, err := NewJobService(newMemStore()).GetJobStatus(context.Background(), "missing")
	assert.Error(t, err)
}

func TestPublishJobTrace(t *testing.T) {
	store := newMemStore()
	s := NewJobService(store)
	require.NoError(t, s.PublishJobTrace(context.Background(), "j2", map[string]int{"step": 3}))
	require.Len(t, store.messages, 1)
	assert.True(t, strings.HasPrefix(store.messages[0], `job:j2 trace:{"step":3}`))
}
