// Package store is the shared collection of held leases. All mutation goes
// through one lock; uniqueness is enforced per (trip, wagon, seat) key among
// leases not in error state, so inserts and removals are O(1) map operations
// rather than list scans.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"holdfast/pkg/model"
)

var (
	ErrNotFound       = errors.New("lease not found")
	ErrAlreadyHeld    = errors.New("seat already held by another lease")
	ErrBeingPurchased = errors.New("seat is being purchased by someone else")
)

type LeaseStore struct {
	mu     sync.RWMutex
	bySeat map[model.SeatKey]*model.Lease
	byID   map[string]*model.Lease
}

func NewLeaseStore() *LeaseStore {
	return &LeaseStore{
		bySeat: make(map[model.SeatKey]*model.Lease),
		byID:   make(map[string]*model.Lease),
	}
}

// Insert adds a freshly booked lease. A live (non-error) lease already
// holding the same seat rejects the insert; a leftover error-state lease at
// the key is evicted, since uniqueness only binds live leases.
func (s *LeaseStore) Insert(lease *model.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := lease.Key()
	if existing, ok := s.bySeat[key]; ok {
		if existing.Status != model.StatusError {
			return ErrAlreadyHeld
		}
		delete(s.byID, existing.ID)
	}

	cp := *lease
	s.bySeat[key] = &cp
	s.byID[cp.ID] = &cp
	return nil
}

// Get returns a copy of the lease with the given ID.
func (s *LeaseStore) Get(id string) (model.Lease, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.byID[id]
	if !ok {
		return model.Lease{}, false
	}
	return *l, true
}

// Holds reports whether a live lease occupies the given seat. Acquisition
// loops use it to skip seats already represented in the store.
func (s *LeaseStore) Holds(key model.SeatKey) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.bySeat[key]
	return ok && l.Status != model.StatusError
}

// Contains reports whether the lease with the given ID is still a member.
// Rescue tasks use it as their cancellation checkpoint after a re-booking.
func (s *LeaseStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID[id]
	return ok
}

// Snapshot returns copies of every lease, error-state ones included. Quota
// counting works on these copies; admission stays approximate because
// counts keep moving while a worker batch is in flight, but the staleness
// window is bounded by the batch width.
func (s *LeaseStore) Snapshot() []model.Lease {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Lease, 0, len(s.byID))
	for _, l := range s.byID {
		out = append(out, *l)
	}
	return out
}

// Renew records a successful re-booking: expiration extended, booking ID
// replaced, status back to booked, any previous error cleared. Expiration
// only ever moves forward; a renewal computed from a stale clock cannot
// shorten a hold. A lease claimed for purchase refuses renewal: a rescue
// booking that was already in flight when the claim landed must not pull
// the lease back out of reserved_for_user.
func (s *LeaseStore) Renew(id string, expiresAt time.Time, bookingID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if l.Status == model.StatusReservedForUser {
		return ErrBeingPurchased
	}
	if expiresAt.After(l.ExpiresAt) {
		l.ExpiresAt = expiresAt
	}
	l.BookingID = bookingID
	l.Status = model.StatusBooked
	l.ErrorMessage = ""
	return nil
}

// Remove deletes a lease outright (operator cancel, age-out). The removed
// copy is returned so the caller can cancel its rescue task.
func (s *LeaseStore) Remove(id string) (model.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.byID[id]
	if !ok {
		return model.Lease{}, ErrNotFound
	}
	delete(s.byID, id)
	delete(s.bySeat, l.Key())
	return *l, nil
}

// RemoveWithError drops a lease whose rescue has been exhausted. The lease
// leaves every quota count immediately.
func (s *LeaseStore) RemoveWithError(id, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.byID[id]
	if !ok {
		return
	}
	l.Status = model.StatusError
	l.ErrorMessage = message
	l.UserProfile = nil
	delete(s.byID, id)
	delete(s.bySeat, l.Key())
}

// ClaimForUser marks a lease as being purchased and attaches the operator's
// real profile. Exactly one concurrent claim can win; later claims fail
// until the purchase attempt resolves.
func (s *LeaseStore) ClaimForUser(id string, profile model.PassengerProfile) (model.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.byID[id]
	if !ok {
		return model.Lease{}, ErrNotFound
	}
	if l.Status == model.StatusReservedForUser {
		return model.Lease{}, ErrBeingPurchased
	}
	l.Status = model.StatusReservedForUser
	p := profile
	l.UserProfile = &p
	return *l, nil
}

// CompletePurchase records a successful finalization: the operator profile
// becomes the lease's booking payload (the rescue scheduler will resubmit
// it from now on) and the transient user-profile field is dropped.
func (s *LeaseStore) CompletePurchase(id string, expiresAt time.Time, bookingID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if l.UserProfile != nil {
		l.Profile = *l.UserProfile
		l.UserProfile = nil
	}
	if expiresAt.After(l.ExpiresAt) {
		l.ExpiresAt = expiresAt
	}
	l.BookingID = bookingID
	l.Status = model.StatusBooked
	l.ErrorMessage = ""
	return nil
}

// FailPurchase marks a purchase attempt as failed. The lease stays in the
// store in error state for operator visibility instead of being silently
// removed, but it stops counting against any quota.
func (s *LeaseStore) FailPurchase(id, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.byID[id]
	if !ok {
		return
	}
	l.Status = model.StatusError
	l.ErrorMessage = message
	l.UserProfile = nil
}

// ByWindow returns date-sorted copies of the recent and future leases.
func (s *LeaseStore) ByWindow() (recent, future []model.Lease) {
	for _, l := range s.Snapshot() {
		if l.Recent {
			recent = append(recent, l)
		} else {
			future = append(future, l)
		}
	}
	sortByDate(recent)
	sortByDate(future)
	return recent, future
}

// AgedFuture lists future-window leases created more than maxAge ago, due
// for the age-out sweeper.
func (s *LeaseStore) AgedFuture(maxAge time.Duration, now time.Time) []model.Lease {
	var out []model.Lease
	for _, l := range s.Snapshot() {
		if !l.Recent && now.Sub(l.CreatedAt) > maxAge {
			out = append(out, l)
		}
	}
	return out
}

// Len reports the number of leases currently in the store.
func (s *LeaseStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func sortByDate(leases []model.Lease) {
	sort.Slice(leases, func(i, j int) bool {
		if leases[i].Date != leases[j].Date {
			return leases[i].Date < leases[j].Date
		}
		return leases[i].CreatedAt.Before(leases[j].CreatedAt)
	})
}
