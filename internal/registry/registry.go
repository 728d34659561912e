// Package registry serializes booking submissions per seat. Two concurrent
// callers (an acquisition worker and a stale rescue task, say) must never
// have booking requests for the same seat in flight at once; the loser of
// the lock is expected to re-check seat availability before resubmitting.
package registry

import "sync"

type lockKey struct {
	wagonID int64
	seatID  int64
}

// SeatLocks hands out one mutex per (wagon, seat) pair, created lazily on
// first use. Locks are never evicted; the upstream fleet bounds the key
// space, so the map growing with every seat ever touched is an accepted
// resource-accounting tradeoff.
type SeatLocks struct {
	mu    sync.Mutex
	locks map[lockKey]*sync.Mutex
}

func NewSeatLocks() *SeatLocks {
	return &SeatLocks{locks: make(map[lockKey]*sync.Mutex)}
}

// Get returns the mutex guarding the given seat, creating it if needed.
func (r *SeatLocks) Get(wagonID, seatID int64) *sync.Mutex {
	key := lockKey{wagonID: wagonID, seatID: seatID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	r.locks[key] = l
	return l
}

// Size reports how many seat locks have been created, for diagnostics.
func (r *SeatLocks) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
