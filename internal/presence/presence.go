package presence

import (
	"sort"
	"sync"

	"github.com/ageniuscoder/mmchat/client/internal/models"
)

// Tracker holds the set of online user ids. Each snapshot from the server
// replaces the whole set.
type Tracker struct {
	mu     sync.RWMutex
	online map[models.ID]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{online: make(map[models.ID]struct{})}
}

func (t *Tracker) Replace(ids []models.ID) {
	next := make(map[models.ID]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		next[id] = struct{}{}
	}
	t.mu.Lock()
	t.online = next
	t.mu.Unlock()
}

func (t *Tracker) IsOnline(id models.ID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[id]
	return ok
}

// Online returns a sorted copy of the current set.
func (t *Tracker) Online() []models.ID {
	t.mu.RLock()
	out := make([]models.ID, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
