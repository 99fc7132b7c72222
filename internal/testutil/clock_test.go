package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock_Generations(t *testing.T) {
	c := NewDeterministicClock()
	assert.Zero(t, c.Current(), "no generation issued yet")

	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())

	c.Reset()
	assert.Zero(t, c.Current())
	assert.Equal(t, int64(1), c.Next())
}

func TestDeterministicClock_StartsAt(t *testing.T) {
	c := NewDeterministicClockAt(41)
	assert.Equal(t, int64(41), c.Current())
	assert.Equal(t, int64(42), c.Next())
}

func TestDeterministicClock_ConcurrentNextIsUnique(t *testing.T) {
	c := NewDeterministicClock()
	const workers, perWorker = 8, 50

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < perWorker; k++ {
				g := c.Next()
				mu.Lock()
				seen[g] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, int64(workers*perWorker), c.Current())
}
