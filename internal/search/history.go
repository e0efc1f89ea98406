package search

import (
	"strings"
	"sync"

	"layai/searchservice/internal/domain"
)

// searchHistory remembers the ranked results of recent searches so feedback
// can be resolved against what the caller was actually shown.
type searchHistory struct {
	mu    sync.Mutex
	max   int
	order []string
	items map[string]historyEntry
}

// historyEntry keeps the brand searched for next to the results; the scorer
// needs it to re-derive the brand-handle signal on feedback.
type historyEntry struct {
	brandName string
	results   []domain.RankedCandidate
}

func newSearchHistory(capacity int) *searchHistory {
	return &searchHistory{
		max:   capacity,
		items: make(map[string]historyEntry, capacity),
	}
}

func (h *searchHistory) add(searchID, brandName string, results []domain.RankedCandidate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.items[searchID]; !exists {
		h.order = append(h.order, searchID)
	}
	h.items[searchID] = historyEntry{brandName: brandName, results: results}
	for len(h.order) > h.max {
		delete(h.items, h.order[0])
		h.order = h.order[1:]
	}
}

// lookup finds the candidate in a past search by URL or, failing that, by
// platform handle. It also returns the brand name that search was run for.
func (h *searchHistory) lookup(searchID string, candidate domain.Profile) (domain.RankedCandidate, string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.items[searchID]
	if !ok {
		return domain.RankedCandidate{}, "", domain.ErrUnknownSearch
	}
	results := entry.results
	wantURL := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(candidate.URL)), "/")
	wantHandle := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(candidate.Username), "@"))
	for _, result := range results {
		if wantURL != "" && strings.TrimSuffix(strings.ToLower(result.URL), "/") == wantURL {
			return result, entry.brandName, nil
		}
	}
	if wantHandle != "" {
		for _, result := range results {
			if strings.ToLower(result.Username) == wantHandle && (candidate.Platform == "" || candidate.Platform == result.Platform) {
				return result, entry.brandName, nil
			}
		}
	}
	return domain.RankedCandidate{}, "", domain.ErrNoCandidate
}

func (h *searchHistory) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.order)
}
