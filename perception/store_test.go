package perception

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestStore_SnapshotReportsAge(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	s := NewStoreWithClock(clock.Now)

	s.Update(UserInput, "hello")
	clock.Advance(1500 * time.Millisecond)

	snap := s.Snapshot()
	require.Contains(t, snap, UserInput)
	assert.Equal(t, "hello", snap[UserInput].Value)
	assert.Equal(t, 1500*time.Millisecond, snap[UserInput].Age)
}

func TestStore_UpdateOverwrites(t *testing.T) {
	s := NewStore()
	s.Update("location", "kitchen")
	s.Update("location", "office")

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "office", snap["location"].Value)
}

func TestStore_SnapshotIsDetached(t *testing.T) {
	s := NewStore()
	s.Update("a", 1)

	snap := s.Snapshot()
	snap["b"] = Reading{Value: 2}
	delete(snap, "a")

	again := s.Snapshot()
	assert.Contains(t, again, "a")
	assert.NotContains(t, again, "b")

	s.Update("c", 3)
	assert.NotContains(t, snap, "c", "later writes must not leak into an earlier snapshot")
}

func TestSnapshot_KeysSorted(t *testing.T) {
	snap := Snapshot{"z": {}, "a": {}, "m": {}}
	assert.Equal(t, []string{"a", "m", "z"}, snap.Keys())
}

func TestStore_ConcurrentUpdateAndSnapshot(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Update(fmt.Sprintf("k%d", i), j)
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, s.Snapshot(), 8)
}
