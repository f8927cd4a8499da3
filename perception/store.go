// Package perception holds the assistant's timestamped view of its environment.
// Producers overwrite signals; planners read copies.
package perception

import (
	"sort"
	"sync"
	"time"
)

// UserInput is the signal updated with the raw text of every turn.
const UserInput = "user.input"

type Entry struct {
	Value     any
	Timestamp time.Time
}

// Reading is an Entry as seen at snapshot time.
type Reading struct {
	Value any
	Age   time.Duration
}

// Snapshot is a detached copy of the store. Mutating it never touches the live store.
type Snapshot map[string]Reading

// Keys returns the snapshot keys in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type Store struct {
	mu      sync.Mutex
	entries map[string]Entry
	now     func() time.Time
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

func NewStoreWithClock(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{entries: map[string]Entry{}, now: now}
}

func (s *Store) Update(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = Entry{Value: value, Timestamp: s.now()}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	out := make(Snapshot, len(s.entries))
	for k, e := range s.entries {
		out[k] = Reading{Value: e.Value, Age: now.Sub(e.Timestamp)}
	}
	return out
}
