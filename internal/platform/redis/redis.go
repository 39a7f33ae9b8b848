package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv8 "github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"

	"navigator/internal/logger"
)

type Options struct {
	Addr     string
	Password string
	// HistoryKey names the capped run history list.
	HistoryKey string
}

type Service struct {
	client     *redisv8.Client
	log        *logger.Logger
	historyKey string
}

func New(opts Options) (*Service, error) {
	c := redisv8.NewClient(&redisv8.Options{Addr: opts.Addr, Password: opts.Password})
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	key := opts.HistoryKey
	if key == "" {
		key = "navigate:history"
	}
	return &Service{client: c, log: logger.New("Redis"), historyKey: key}, nil
}

func (s *Service) Close() error            { return s.client.Close() }
func (s *Service) Client() *redisv8.Client { return s.client }

func (s *Service) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.log.LogErrorf("Redis health check failed: %v", err)
		return fmt.Errorf("redis ping failed: %v", err)
	}

	// Round-trip a short-lived key to make sure writes work too.
	testKey := "health:test:" + time.Now().Format("20060102150405")
	if err := s.client.Set(ctx, testKey, "ok", 10*time.Second).Err(); err != nil {
		return fmt.Errorf("redis write test failed: %v", err)
	}
	val, err := s.client.Get(ctx, testKey).Result()
	if err != nil {
		return fmt.Errorf("redis read test failed: %v", err)
	}
	if val != "ok" {
		return fmt.Errorf("redis value mismatch: got %s, want ok", val)
	}
	_ = s.client.Del(ctx, testKey).Err()
	return nil
}

func (s *Service) AsynqRedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: s.client.Options().Addr, Password: s.client.Options().Password}
}

// Cache helpers
func (s *Service) CacheGet(ctx context.Context, key string, dest interface{}) error {
	b, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dest)
}

func (s *Service) CacheSet(ctx context.Context, key string, val interface{}, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, b, ttl).Err()
}

func (s *Service) Publish(ctx context.Context, channel, payload string) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

// PushHistory prepends entry to the history list and trims it to limit.
func (s *Service) PushHistory(ctx context.Context, entry interface{}, limit int) error {
	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.historyKey, b)
	if limit > 0 {
		pipe.LTrim(ctx, s.historyKey, 0, int64(limit-1))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// History returns up to limit raw entries, newest first.
func (s *Service) History(ctx context.Context, limit int) ([][]byte, error) {
	if limit <= 0 {
		limit = 20
	}
	vals, err := s.client.LRange(ctx, s.historyKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *Service) ClearHistory(ctx context.Context) error {
	return s.client.Del(ctx, s.historyKey).Err()
}
