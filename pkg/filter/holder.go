package filter

import "sync"

// Holder carries the active filter and skip-word lists. Both can be swapped
// while a session runs; readers always see a consistent snapshot.
type Holder struct {
	mu        sync.RWMutex
	filters   []Filter
	skipWords []string
}

// NewHolder creates a holder with initial filter entries and skip words
func NewHolder(entries, skipWords []string) *Holder {
	h := &Holder{}
	h.SetFilters(entries)
	h.SetSkipWords(skipWords)
	return h
}

// Filters returns a snapshot of the current filter list
func (h *Holder) Filters() []Filter {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Filter, len(h.filters))
	copy(out, h.filters)
	return out
}

// SkipWords returns a snapshot of the current skip-word list
func (h *Holder) SkipWords() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, len(h.skipWords))
	copy(out, h.skipWords)
	return out
}

// SetFilters replaces the filter list with parsed entries
func (h *Holder) SetFilters(entries []string) {
	parsed := Parse(entries)
	h.mu.Lock()
	h.filters = parsed
	h.mu.Unlock()
}

// SetSkipWords replaces the skip-word list
func (h *Holder) SetSkipWords(words []string) {
	out := make([]string, len(words))
	copy(out, words)
	h.mu.Lock()
	h.skipWords = out
	h.mu.Unlock()
}
