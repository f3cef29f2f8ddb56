package research

import (
	"encoding/json"
	"os"
	"sync"
)

// History is the set-membership store for already-used topics, persisted as
// a JSON list of ids
type History struct {
	mu   sync.Mutex
	path string
	used map[string]bool
}

// NewHistory loads the used-topic log (missing file means nothing used yet)
func NewHistory(path string) *History {
	used := make(map[string]bool)
	if data, err := os.ReadFile(path); err == nil {
		var ids []string
		if json.Unmarshal(data, &ids) == nil {
			for _, id := range ids {
				used[id] = true
			}
		}
	}
	return &History{path: path, used: used}
}

// Used reports whether a topic id has already been produced
func (h *History) Used(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used[id]
}

// MarkUsed records a topic id and persists the log
func (h *History) MarkUsed(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.used[id] = true
	h.save()
}

// Reset forgets all used topics
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.used = make(map[string]bool)
	h.save()
}

func (h *History) save() {
	ids := make([]string, 0, len(h.used))
	for id := range h.used {
		ids = append(ids, id)
	}
	data, _ := json.MarshalIndent(ids, "", "  ")
	_ = os.WriteFile(h.path, data, 0644)
}
