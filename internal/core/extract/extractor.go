package extract

import (
	"navigator/internal/core/nav"
	"navigator/internal/logger"
)

// Strategy is one way of reading product data off a page. Implementations
// must be deterministic for a given snapshot and goal.
type Strategy interface {
	Name() string
	Matches(snap *nav.PageSnapshot) bool
	Extract(snap *nav.PageSnapshot, goal nav.Goal) []nav.ExtractedRecord
}

// Extractor applies strategies in order and stops at the first one that
// yields a plausible record.
type Extractor struct {
	strategies []Strategy
	log        *logger.Logger
}

// New builds an extractor. With no strategies the default chain is used.
func New(strategies ...Strategy) *Extractor {
	if len(strategies) == 0 {
		strategies = Default()
	}
	return &Extractor{strategies: strategies, log: logger.New("Extractor")}
}

// Default is structured metadata, then labeled text, then position.
func Default() []Strategy {
	return []Strategy{Structured{}, Labeled{}, Positional{}}
}

// Extract returns nil when no strategy produced a plausible record. Empty is
// not an error here; the agent decides what it means for the run.
func (e *Extractor) Extract(snap *nav.PageSnapshot, goal nav.Goal) []nav.ExtractedRecord {
	if snap == nil {
		return nil
	}
	for _, s := range e.strategies {
		if !s.Matches(snap) {
			continue
		}
		var out []nav.ExtractedRecord
		for _, rec := range s.Extract(snap, goal) {
			if rec.Plausible() {
				out = append(out, rec)
			}
		}
		if len(out) > 0 {
			e.log.Debug().Str("strategy", s.Name()).Int("records", len(out)).Str("url", snap.URL).Msg("extracted")
			return out
		}
	}
	e.log.Debug().Str("url", snap.URL).Msg("no strategy matched")
	return nil
}

// Names lists the strategy chain in order.
func (e *Extractor) Names() []string {
	out := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		out[i] = s.Name()
	}
	return out
}
