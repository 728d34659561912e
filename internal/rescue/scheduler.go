// Package rescue keeps held leases alive. Each lease gets one long-lived
// background task that sleeps until just before the upstream hold lapses,
// then re-books the seat with the lease's last submitted profile. The task
// loops indefinitely across renewals and stops only when cancelled, when
// the lease leaves the store, or when a whole iteration budget fails.
package rescue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"holdfast/internal/booking"
	"holdfast/internal/faults"
	"holdfast/internal/gateway"
	"holdfast/internal/store"
	"holdfast/pkg/config"
	"holdfast/pkg/logger"
	"holdfast/pkg/model"
)

type Scheduler struct {
	store  *store.LeaseStore
	gw     gateway.Client
	booker *booking.Booker
	sink   *faults.Sink
	log    *logger.Logger

	holdTimeout time.Duration
	lead        time.Duration
	budget      int
	delay       time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu    sync.Mutex
	tasks map[string]*task
}

type task struct {
	cancel context.CancelFunc
}

func NewScheduler(st *store.LeaseStore, gw gateway.Client, booker *booking.Booker, sink *faults.Sink, cfg *config.Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:       st,
		gw:          gw,
		booker:      booker,
		sink:        sink,
		log:         cfg.Log,
		holdTimeout: cfg.HoldTimeout,
		lead:        cfg.RescueLead,
		budget:      cfg.ConfirmRetryBudget,
		delay:       cfg.ConfirmRetryDelay,
		baseCtx:     ctx,
		cancel:      cancel,
		tasks:       make(map[string]*task),
	}
}

// Start launches (or relaunches) the renewal task for a lease. An existing
// task for the same lease is cancelled first, so a finalized purchase can
// hand its lease back to a fresh rescue cycle without racing the old one.
func (s *Scheduler) Start(lease model.Lease) {
	ctx, cancel := context.WithCancel(s.baseCtx)
	t := &task{cancel: cancel}

	s.mu.Lock()
	if old, ok := s.tasks[lease.ID]; ok {
		old.cancel()
	}
	s.tasks[lease.ID] = t
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish(lease.ID, t)
		s.run(ctx, lease)
	}()

	s.log.Debug("rescue task started",
		"lease_id", lease.ID,
		"seat_label", lease.SeatLabel,
		"expires_at", lease.ExpiresAt,
	)
}

// Cancel stops the renewal task for one lease, if any is running.
func (s *Scheduler) Cancel(leaseID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[leaseID]; ok {
		t.cancel()
		delete(s.tasks, leaseID)
	}
}

// Stop cancels every task and waits for them to unwind.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

// Active reports the number of running renewal tasks.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

func (s *Scheduler) finish(leaseID string, t *task) {
	t.cancel()
	s.mu.Lock()
	// Only clear the slot if it still belongs to this task; a restart may
	// have replaced it already.
	if current, ok := s.tasks[leaseID]; ok && current == t {
		delete(s.tasks, leaseID)
	}
	s.mu.Unlock()
}

func (s *Scheduler) run(ctx context.Context, lease model.Lease) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("rescue task panic: %v", r)
			s.log.Error("rescue task panic", "lease_id", lease.ID, "panic", r)
			s.store.RemoveWithError(lease.ID, msg)
			s.sink.Report("rescue", msg)
		}
	}()

	target := booking.Target{
		TripID:      lease.TripID,
		JourneyID:   lease.JourneyID,
		WagonID:     lease.WagonID,
		SeatID:      lease.SeatID,
		WagonTypeID: lease.WagonTypeID,
	}

	for {
		current, ok := s.store.Get(lease.ID)
		if !ok {
			return // cancelled or removed elsewhere
		}
		if current.Status == model.StatusReservedForUser {
			// A purchase claimed the seat; the finalizer takes over once
			// the current hold lapses and restarts rescue on success.
			return
		}

		if until := time.Until(current.ExpiresAt) - s.lead; until > 0 {
			if err := wait(ctx, until); err != nil {
				return
			}
		}

		renewed, err := s.renewOnce(ctx, lease.ID, target)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			msg := fmt.Sprintf("all %d rescue attempts failed for seat %s: %v", s.budget, lease.SeatLabel, err)
			s.store.RemoveWithError(lease.ID, msg)
			s.sink.Report("rescue", msg)
			s.log.Warn("lease abandoned after rescue exhaustion",
				"lease_id", lease.ID,
				"seat_label", lease.SeatLabel,
			)
			return
		}
		if !renewed {
			return // lease left the store mid-cycle
		}
	}
}

// renewOnce drives one renewal cycle: confirm availability and re-book, up
// to the iteration budget. It returns (true, nil) after a successful
// renewal, (false, nil) when the lease is gone from the store (the
// cancellation checkpoint), and a terminal error when the budget runs out.
func (s *Scheduler) renewOnce(ctx context.Context, leaseID string, target booking.Target) (bool, error) {
	var lastErr error

	for attempt := 0; attempt < s.budget; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, s.delay); err != nil {
				return false, err
			}
		}

		current, ok := s.store.Get(leaseID)
		if !ok || current.Status == model.StatusReservedForUser {
			return false, nil
		}

		seats, err := s.gw.AvailableSeats(ctx, target.TripID, target.WagonTypeID)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			lastErr = err
			continue
		}
		if !seatListed(seats, target) {
			s.log.Debug("seat not yet available for rescue",
				"lease_id", leaseID,
				"attempt", attempt+1,
			)
			lastErr = booking.ErrSeatGone
			continue
		}

		res, err := s.booker.Book(ctx, target, current.Profile)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			lastErr = err
			s.log.Debug("rescue booking attempt failed",
				"lease_id", leaseID,
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if err := s.store.Renew(leaseID, time.Now().Add(s.holdTimeout), res.BookingID); err != nil {
			// Lease was cancelled or claimed for purchase while we were
			// booking, so this task stands down. The upstream hold we just
			// created will lapse on its own; a claimed lease's finalizer
			// re-books with the operator profile anyway.
			return false, nil
		}
		s.log.Info("lease rescued",
			"lease_id", leaseID,
			"booking_id", res.BookingID,
			"next_expiry", time.Now().Add(s.holdTimeout),
		)
		return true, nil
	}

	if lastErr == nil {
		lastErr = booking.ErrExhausted
	}
	return false, lastErr
}

func seatListed(seats []model.SeatRef, target booking.Target) bool {
	for _, s := range seats {
		if s.SeatID == target.SeatID && s.WagonID == target.WagonID {
			return true
		}
	}
	return false
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
