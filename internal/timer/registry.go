package timer

import (
	"sync"
	"time"
)

// Registry is the exclusive owner of every timer record in the process.
// All lifecycle operations go through it; state lives only for the lifetime
// of the process.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Record
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Record),
	}
}

// Create inserts a zero-state record under a fresh readable id and returns
// it. Ids are regenerated until one is unused.
func (g *Registry) Create(now time.Time) *Record {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := readableID()
	for _, exists := g.rooms[id]; exists; _, exists = g.rooms[id] {
		id = readableID()
	}

	rec := &Record{
		ID:           id,
		LastActivity: now,
	}
	g.rooms[id] = rec
	return rec
}

func (g *Registry) Get(id string) (*Record, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rec, ok := g.rooms[id]
	return rec, ok
}

func (g *Registry) Delete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, id)
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Each calls fn for every record. The map lock is released before fn runs,
// so fn may delete records through the registry.
func (g *Registry) Each(fn func(*Record)) {
	g.mu.RLock()
	records := make([]*Record, 0, len(g.rooms))
	for _, rec := range g.rooms {
		records = append(records, rec)
	}
	g.mu.RUnlock()

	for _, rec := range records {
		fn(rec)
	}
}
