package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv        string
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string
	DataDir       string

	SupabaseURL        string
	SupabaseServiceKey string
	SupabaseBucket     string

	LLMProvider     string
	GeminiAPIKey    string
	DefaultLLMModel string
	LLMExtraction   bool

	// Browser sessions
	Headless      bool
	SlowMo        time.Duration
	PoolSize      int
	LeaseTimeout  time.Duration
	ActionTimeout time.Duration
	NavRatePerSec float64
	SearchEngine  string

	// Navigation runs
	RunTimeout  time.Duration
	MaxSteps    int
	RetryBudget int

	// Result cache
	CacheTTL        time.Duration
	CacheFailureTTL time.Duration
	CacheCapacity   int

	WorkerConcurrency int
	HistoryLimit      int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getenvSeconds reads an integer number of seconds. A bare Go duration
// string ("750ms", "2m") is accepted too.
func getenvSeconds(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}

func getenvMillis(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(n) * time.Millisecond
}

func Load() Config {
	cfg := Config{
		AppEnv:        getenv("APP_ENV", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8081"),
		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DataDir:       getenv("DATA_DIR", "./data"),

		SupabaseURL:        os.Getenv("NEXT_PUBLIC_SUPABASE_URL"),
		SupabaseServiceKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:     getenv("SUPABASE_STORAGE_BUCKET", "navigation-runs"),

		LLMProvider:     getenv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		DefaultLLMModel: getenv("DEFAULT_LLM_MODEL", "gemini-1.5-flash"),
		LLMExtraction:   getenvBool("LLM_EXTRACTION", false),

		Headless:      getenvBool("HEADLESS", true),
		SlowMo:        getenvMillis("SLOW_MO_MS", 0),
		PoolSize:      getenvInt("POOL_SIZE", 2),
		LeaseTimeout:  getenvSeconds("LEASE_TIMEOUT_SEC", 30*time.Second),
		ActionTimeout: getenvSeconds("ACTION_TIMEOUT_SEC", 15*time.Second),
		NavRatePerSec: getenvFloat("NAV_RATE_PER_SEC", 1),
		SearchEngine:  getenv("SEARCH_ENGINE", "duckduckgo"),

		RunTimeout:  getenvSeconds("RUN_TIMEOUT_SEC", 120*time.Second),
		MaxSteps:    getenvInt("MAX_STEPS", 20),
		RetryBudget: getenvInt("RETRY_BUDGET", 3),

		CacheTTL:        getenvSeconds("CACHE_TTL_SEC", 15*time.Minute),
		CacheFailureTTL: getenvSeconds("CACHE_FAILURE_TTL_SEC", 2*time.Minute),
		CacheCapacity:   getenvInt("CACHE_CAPACITY", 512),

		WorkerConcurrency: getenvInt("WORKER_CONCURRENCY", 4),
		HistoryLimit:      getenvInt("HISTORY_LIMIT", 100),
	}
	if cfg.RedisAddr == "" {
		panic(fmt.Errorf("REDIS_ADDR is required"))
	}
	if cfg.PoolSize < 1 {
		cfg.PoolSize = 1
	}
	return cfg
}

func (c Config) IsProduction() bool { return c.AppEnv == "production" }
