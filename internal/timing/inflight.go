package timing

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	DefaultInFlightTTL      = 5 * time.Second
	DefaultInFlightCapacity = 256
)

// InFlight is a bounded set of alarm ids with a dispatch underway. A marker
// expires after the TTL whatever the outcome of the dispatch; expired
// markers are swept on every acquire.
type InFlight struct {
	clock    clock.Clock
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	markers map[string]time.Time
}

func NewInFlight(clk clock.Clock, ttl time.Duration, capacity int) *InFlight {
	if ttl <= 0 {
		ttl = DefaultInFlightTTL
	}
	if capacity <= 0 {
		capacity = DefaultInFlightCapacity
	}
	return &InFlight{
		clock:    clk,
		ttl:      ttl,
		capacity: capacity,
		markers:  make(map[string]time.Time),
	}
}

// TryAcquire places a marker for id and reports false if one is already live.
func (f *InFlight) TryAcquire(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()
	f.sweep(now)

	if _, ok := f.markers[id]; ok {
		return false
	}
	if len(f.markers) >= f.capacity {
		f.evictOldest()
	}
	f.markers[id] = now
	return true
}

func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.markers)
}

func (f *InFlight) sweep(now time.Time) {
	for id, at := range f.markers {
		if now.Sub(at) >= f.ttl {
			delete(f.markers, id)
		}
	}
}

func (f *InFlight) evictOldest() {
	var (
		oldest   string
		oldestAt time.Time
	)
	for id, at := range f.markers {
		if oldest == "" || at.Before(oldestAt) {
			oldest, oldestAt = id, at
		}
	}
	delete(f.markers, oldest)
}
