package room

import (
	"slices"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/metrics"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/domain"
)

// DefaultRoomKey names the room that vote events are broadcast to.
const DefaultRoomKey = domain.DefaultRoomKey

// Registry maps room keys to rooms, creating each one on first access.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	clock   clockwork.Clock
	metrics *metrics.RoomMetrics
}

func NewRegistry(clock clockwork.Clock, m *metrics.RoomMetrics) *Registry {
	return &Registry{
		rooms:   make(map[string]*Room),
		clock:   clock,
		metrics: m,
	}
}

// Get returns the room for key. Concurrent first calls for the same key
// observe a single instance.
func (reg *Registry) Get(key string) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if r, ok := reg.rooms[key]; ok {
		return r
	}
	r := New(key, reg.clock, reg.metrics)
	reg.rooms[key] = r
	return r
}

// Broadcaster satisfies domain.RoomResolver.
func (reg *Registry) Broadcaster(key string) domain.Broadcaster {
	return reg.Get(key)
}

// Keys returns the keys of every room created so far, sorted.
func (reg *Registry) Keys() []string {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	keys := make([]string, 0, len(reg.rooms))
	for k := range reg.rooms {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Stop stops every room concurrently and waits for all of them.
func (reg *Registry) Stop() {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range rooms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Stop()
		}()
	}
	wg.Wait()
}
