package channel

import (
	"sync"
	"weak"
)

// Registry is the global, shared map of game_id → live *GameChannel (spec
// §9 "Global registry with weak references", grounded on
// original_source/network/src/game_channel/registry.rs's
// GameChannelRegistry/RegistryStats). Entries hold only weak references so
// a channel with no remaining strong holders is garbage-collected normally;
// the registry never keeps a channel alive on its own behalf.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]weak.Pointer[GameChannel]
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]weak.Pointer[GameChannel])}
}

// Register records a weak reference to ch under gameID, replacing any
// previous entry for the same id.
func (r *Registry) Register(gameID string, ch *GameChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[gameID] = weak.Make(ch)
}

// Get upgrades the weak reference for gameID, returning (nil, false) if no
// entry exists or the channel has already been collected.
func (r *Registry) Get(gameID string) (*GameChannel, bool) {
	r.mu.RLock()
	ptr, ok := r.entries[gameID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	ch := ptr.Value()
	return ch, ch != nil
}

// Unregister removes the entry for gameID unconditionally.
func (r *Registry) Unregister(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, gameID)
}

// ListActive returns the game ids whose channel is still live, cleaning up
// any dead references it encounters along the way.
func (r *Registry) ListActive() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := make([]string, 0, len(r.entries))
	for gameID, ptr := range r.entries {
		if ptr.Value() != nil {
			active = append(active, gameID)
		} else {
			delete(r.entries, gameID)
		}
	}
	return active
}

// Stats reports registry occupancy (original_source's RegistryStats).
type Stats struct {
	TotalEntries   int
	ActiveChannels int
	DeadReferences int
}

// Stats computes occupancy without mutating the registry.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{TotalEntries: len(r.entries)}
	for _, ptr := range r.entries {
		if ptr.Value() != nil {
			stats.ActiveChannels++
		}
	}
	stats.DeadReferences = stats.TotalEntries - stats.ActiveChannels
	return stats
}

// Cleanup removes every dead weak reference and returns how many were
// removed (original_source's cleanup_dead_references). Callers typically
// invoke this periodically rather than on every lookup.
func (r *Registry) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for gameID, ptr := range r.entries {
		if ptr.Value() == nil {
			delete(r.entries, gameID)
			removed++
		}
	}
	return removed
}
