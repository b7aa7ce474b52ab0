package retrieval

import (
	"log/slog"
	"sync"
)

// accumulator owns the token budget and the accepted items. All access goes
// through its lock, so checking the budget and appending an item happen as
// one step.
type accumulator struct {
	mu        sync.Mutex
	limit     int
	remaining int
	closed    bool
	accepted  []ContentItem
}

func newAccumulator(limit int) *accumulator {
	return &accumulator{limit: limit, remaining: limit}
}

// offer charges tokens against the budget and records item if it fits.
// It returns false once the budget is exhausted; the item that overdraws
// the budget is discarded and every later offer is ignored.
func (a *accumulator) offer(item ContentItem, tokens int) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return false
	}
	if a.remaining-tokens < 0 {
		a.closed = true
		slog.Info("token limit reached", "limit", a.limit, "dropped_url", item.URL, "dropped_tokens", tokens)
		return false
	}
	a.remaining -= tokens
	a.accepted = append(a.accepted, item)
	return true
}

func (a *accumulator) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

func (a *accumulator) remainingTokens() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remaining
}

// items returns a copy of the accepted items in acceptance order.
func (a *accumulator) items() []ContentItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ContentItem, len(a.accepted))
	copy(out, a.accepted)
	return out
}
