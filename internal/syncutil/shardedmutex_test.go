package syncutil

import (
	"sync"
	"testing"
)

func TestShardedMutexSerializesSameKey(t *testing.T) {
	var sm ShardedMutex
	var counter int

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := sm.Lock("trf_same")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("counter = %d, want 100", counter)
	}
}

func TestShardedMutexDifferentKeysDoNotDeadlock(t *testing.T) {
	var sm ShardedMutex
	unlockA := sm.Lock("a")
	// "b" may share a shard with "a"; release A first to keep the test honest.
	unlockA()
	unlockB := sm.Lock("b")
	unlockB()
}
