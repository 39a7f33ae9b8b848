package nav

import (
	"strings"
	"time"
)

// Availability values normalized from schema.org and page text.
const (
	AvailabilityInStock    = "InStock"
	AvailabilityOutOfStock = "OutOfStock"
	AvailabilityPreOrder   = "PreOrder"
)

// Confidence levels by extraction strategy.
const (
	ConfidenceHigh   = 0.95
	ConfidenceMedium = 0.7
	ConfidenceLow    = 0.4
)

// ExtractedRecord is one product observation. Immutable once produced.
type ExtractedRecord struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	Currency     string  `json:"currency"`
	Availability string  `json:"availability,omitempty"`
	SourceURL    string  `json:"source_url"`
	Confidence   float64 `json:"confidence"`
	Strategy     string  `json:"strategy"`
}

// Plausible is the acceptance bar for any strategy: a positive price in a
// currency we recognize.
func (r ExtractedRecord) Plausible() bool {
	return r.Price > 0 && KnownCurrency(r.Currency)
}

var currencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "INR": true, "JPY": true,
	"CAD": true, "AUD": true, "CHF": true, "CNY": true, "SGD": true,
}

// KnownCurrency reports whether code is an ISO 4217 code the engine handles.
func KnownCurrency(code string) bool {
	return currencies[strings.ToUpper(strings.TrimSpace(code))]
}

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Result is the outcome of one navigation run, success or terminal failure.
// Results are shared between cache waiters and must be treated as read-only.
type Result struct {
	GoalID         string            `json:"goal_id"`
	Fingerprint    string            `json:"fingerprint"`
	Status         Status            `json:"status"`
	Records        []ExtractedRecord `json:"records"`
	Failure        *Failure          `json:"failure,omitempty"`
	Steps          int               `json:"steps"`
	Retries        int               `json:"retries"`
	RetriesByPhase map[Phase]int     `json:"retries_by_phase,omitempty"`
	Cached         bool              `json:"cached"`
	Artifacts      []string          `json:"artifacts,omitempty"`
	CompletedAt    time.Time         `json:"completed_at"`
}

func (r *Result) Succeeded() bool { return r != nil && r.Status == StatusSucceeded }

// Failed builds a failed result.
func Failed(goal Goal, fingerprint string, f *Failure) *Result {
	return &Result{
		GoalID:      goal.ID,
		Fingerprint: fingerprint,
		Status:      StatusFailed,
		Failure:     f,
		CompletedAt: time.Now(),
	}
}

// Cacheable reports whether the outcome may be stored. Canceled runs say
// nothing about the site and malformed goals never reach navigation.
func (r *Result) Cacheable() bool {
	if r == nil {
		return false
	}
	if r.Failure == nil {
		return true
	}
	return r.Failure.Kind != FailureCanceled && r.Failure.Kind != FailureMalformedGoal
}
