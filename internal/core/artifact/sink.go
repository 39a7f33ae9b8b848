package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"navigator/internal/config"
	"navigator/internal/logger"
)

// Sink stores diagnostic files for a run, keyed by job ID, and returns a
// path or URL the caller can hand out.
type Sink interface {
	Save(ctx context.Context, jobID, name string, data []byte) (string, error)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Save(context.Context, string, string, []byte) (string, error) { return "", nil }

// LocalSink writes under Dir/runs/<jobID>/ and returns the URL the HTTP
// server exposes the file at.
type LocalSink struct {
	Dir       string
	URLPrefix string
}

func (s LocalSink) Save(_ context.Context, jobID, name string, data []byte) (string, error) {
	dir := filepath.Join(s.Dir, "runs", sanitize(jobID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run directory: %w", err)
	}
	name = sanitize(name)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	prefix := s.URLPrefix
	if prefix == "" {
		prefix = "/files"
	}
	return strings.TrimRight(prefix, "/") + "/runs/" + sanitize(jobID) + "/" + name, nil
}

// New picks Supabase storage when configured and local files otherwise.
// Production refuses to start without Supabase.
func New(cfg config.Config) (Sink, error) {
	log := logger.New("Artifacts")
	local := LocalSink{Dir: cfg.DataDir, URLPrefix: "/files"}
	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" || cfg.SupabaseBucket == "" {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("production environment requires Supabase configuration: NEXT_PUBLIC_SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY, and SUPABASE_STORAGE_BUCKET must be set")
		}
		log.LogWarnf("Supabase not configured, storing artifacts under %s", cfg.DataDir)
		return local, nil
	}
	s, err := NewSupabaseSink(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket)
	if err != nil {
		if cfg.IsProduction() {
			return nil, fmt.Errorf("failed to initialize Supabase client in production: %w", err)
		}
		log.LogWarnf("failed to initialize Supabase client: %v", err)
		return local, nil
	}
	if !cfg.IsProduction() {
		s.Fallback = local
	}
	return s, nil
}

func sanitize(u string) string {
	replacer := strings.NewReplacer(":", "-", "/", "-", "\\", "-", "?", "-", "&", "-", "=", "-", "#", "-", "%", "", "..", "-")
	out := replacer.Replace(u)
	if len(out) > 96 {
		out = out[:96]
	}
	return out
}
