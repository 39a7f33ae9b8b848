package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/antoineross/supabase-go"
	storage_go "github.com/supabase-community/storage-go"

	"navigator/internal/logger"
)

// SupabaseSink uploads artifacts to a storage bucket and returns a signed
// URL valid for SignedURLTTL.
type SupabaseSink struct {
	client       *supabase.Client
	baseURL      string
	serviceKey   string
	bucket       string
	http         *http.Client
	log          *logger.Logger
	SignedURLTTL time.Duration
	// Fallback receives the artifact when the upload fails. Nil surfaces the error.
	Fallback Sink
}

func NewSupabaseSink(url, serviceKey, bucket string) (*SupabaseSink, error) {
	client, err := supabase.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, err
	}
	return &SupabaseSink{
		client:       client,
		baseURL:      strings.TrimRight(url, "/"),
		serviceKey:   serviceKey,
		bucket:       bucket,
		http:         &http.Client{Timeout: 15 * time.Second},
		log:          logger.New("SupabaseArtifacts"),
		SignedURLTTL: 24 * time.Hour,
	}, nil
}

func (s *SupabaseSink) Save(ctx context.Context, jobID, name string, data []byte) (string, error) {
	objectPath := path.Join("runs", sanitize(jobID), sanitize(name))
	mimeType := mime.TypeByExtension(filepath.Ext(objectPath))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if _, err := s.client.Storage.UploadFile(s.bucket, objectPath, bytes.NewReader(data), storage_go.FileOptions{ContentType: &mimeType}); err != nil {
		return s.fallback(ctx, jobID, name, data, fmt.Errorf("upload to Supabase storage: %w", err))
	}
	signed, err := s.sign(ctx, objectPath)
	if err != nil {
		return s.fallback(ctx, jobID, name, data, err)
	}
	return signed, nil
}

func (s *SupabaseSink) fallback(ctx context.Context, jobID, name string, data []byte, cause error) (string, error) {
	if s.Fallback == nil {
		return "", cause
	}
	s.log.LogWarnf("%v; storing %s locally", cause, name)
	return s.Fallback.Save(ctx, jobID, name, data)
}

// sign calls the storage REST API directly; the storage client caches
// headers from construction time, which breaks signing with rotated keys.
func (s *SupabaseSink) sign(ctx context.Context, objectPath string) (string, error) {
	signURL := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.baseURL, s.bucket, objectPath)
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(map[string]int{"expiresIn": int(s.SignedURLTTL.Seconds())}); err != nil {
		return "", fmt.Errorf("failed to encode sign body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, signURL, buf)
	if err != nil {
		return "", fmt.Errorf("failed to build sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to request signed URL: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to create signed URL: status %d", resp.StatusCode)
	}
	var signed struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", fmt.Errorf("failed to decode signed URL response: %w", err)
	}
	p := signed.SignedURL
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasPrefix(p, "/storage/v1/") {
		p = "/storage/v1" + p
	}
	return s.baseURL + p, nil
}
