// Package badge derives the single-priority OS indicator from the set of
// statuses currently in the queue.
package badge

import (
	"sync"

	"slotwatch/internal/domain"
	"slotwatch/internal/models"

	"github.com/rs/zerolog"
)

// Aggregator picks the top-priority status and pushes its glyph to the
// Indicator, suppressing redundant OS calls.
type Aggregator struct {
	indicator domain.Indicator
	logger    zerolog.Logger

	mu          sync.Mutex
	lastApplied string
}

func NewAggregator(indicator domain.Indicator, logger zerolog.Logger) *Aggregator {
	return &Aggregator{indicator: indicator, logger: logger}
}

// rank returns the priority index of a status; statuses outside the
// known ranking sort first.
func rank(status string) int {
	for i, s := range models.BadgePriority {
		if s == status {
			return i
		}
	}
	return -1
}

// Update recomputes the badge from the given statuses. An empty set
// clears it.
func (a *Aggregator) Update(statuses []string) {
	if len(statuses) == 0 {
		a.Clear()
		return
	}

	top := statuses[0]
	for _, s := range statuses[1:] {
		if rank(s) < rank(top) {
			top = s
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if top == a.lastApplied {
		return
	}

	glyph, ok := models.BadgeGlyphs[top]
	if !ok {
		glyph = "?"
	}
	if err := a.indicator.SetText(glyph); err != nil {
		a.logger.Warn().Err(err).Str("status", top).Msg("badge update failed")
		return
	}
	a.lastApplied = top
}

// Clear blanks the indicator; no-op when already blank.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastApplied == "" {
		return
	}
	if err := a.indicator.Clear(); err != nil {
		a.logger.Warn().Err(err).Msg("badge clear failed")
		return
	}
	a.lastApplied = ""
}
