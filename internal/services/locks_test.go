package services

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestKeyedMutex(t *testing.T) {
	t.Run("serializes same key", func(t *testing.T) {
		k := newKeyedMutex()
		var inside, maxInside atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				unlock := k.Lock("budget|2024-03")
				n := inside.Add(1)
				for {
					m := maxInside.Load()
					if n <= m || maxInside.CompareAndSwap(m, n) {
						break
					}
				}
				inside.Add(-1)
				unlock()
			}()
		}
		wg.Wait()
		if maxInside.Load() != 1 {
			t.Errorf("expected at most one holder, saw %d", maxInside.Load())
		}
	})

	t.Run("different keys do not block", func(t *testing.T) {
		k := newKeyedMutex()
		unlockA := k.Lock("a")
		unlockB := k.Lock("b")
		unlockB()
		unlockA()
	})

	t.Run("drops released entries", func(t *testing.T) {
		k := newKeyedMutex()
		k.Lock("a")()
		k.Lock("b")()
		if len(k.locks) != 0 {
			t.Errorf("expected no retained entries, got %d", len(k.locks))
		}
	})
}
