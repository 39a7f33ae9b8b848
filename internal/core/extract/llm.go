package extract

import (
	"context"
	"strings"
	"time"

	"navigator/internal/core/nav"
	"navigator/internal/platform/eino"
)

// ProductModel is the slice of the LLM service the strategy needs.
type ProductModel interface {
	ExtractProduct(ctx context.Context, req eino.PageRequest) (*eino.Product, error)
}

// LLM asks a chat model to read the page. It is opt-in, runs last, and is
// the one strategy whose output may differ between identical snapshots.
type LLM struct {
	Model   ProductModel
	Timeout time.Duration
}

func (LLM) Name() string { return "llm" }

func (l LLM) Matches(snap *nav.PageSnapshot) bool {
	return l.Model != nil && len(snap.Text()) > 0
}

func (l LLM) Extract(snap *nav.PageSnapshot, goal nav.Goal) []nav.ExtractedRecord {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	p, err := l.Model.ExtractProduct(ctx, eino.PageRequest{
		Query:    goal.Query,
		URL:      snap.URL,
		Text:     strings.Join(snap.Text(), "\n"),
		Currency: goal.Constraints.Currency,
	})
	if err != nil || p == nil {
		return nil
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = productName(snap)
	}
	return []nav.ExtractedRecord{{
		Name:         name,
		Price:        p.Price,
		Currency:     p.Currency,
		Availability: normalizeAvailability(p.Availability),
		SourceURL:    snap.URL,
		Confidence:   nav.ConfidenceLow,
		Strategy:     "llm",
	}}
}
