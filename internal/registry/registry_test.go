package registry

import (
	"sync"
	"testing"
)

func TestGet_SameSeatSameLock(t *testing.T) {
	r := NewSeatLocks()

	a := r.Get(5, 12)
	b := r.Get(5, 12)
	if a != b {
		t.Error("same seat returned different locks")
	}
	if c := r.Get(5, 13); c == a {
		t.Error("different seats share a lock")
	}
	if r.Size() != 2 {
		t.Errorf("Size() = %d, want 2", r.Size())
	}
}

func TestGet_ConcurrentCreation(t *testing.T) {
	r := NewSeatLocks()

	locks := make([]*sync.Mutex, 32)
	var wg sync.WaitGroup
	for i := range locks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locks[i] = r.Get(5, 12)
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(locks); i++ {
		if locks[i] != locks[0] {
			t.Fatal("concurrent Get created more than one lock for the seat")
		}
	}
	if r.Size() != 1 {
		t.Errorf("Size() = %d, want 1", r.Size())
	}
}
