// Package booking implements the attempt-and-retry booking primitive shared
// by the acquisition loops, the rescue scheduler and the purchase finalizer.
// The upstream hold fails transiently all the time (contention, timing), so
// a failed submission is re-confirmed against seat availability and retried
// on a short cadence; a definitive conflict means another party won the
// seat, and retrying then is wasted work that risks double-submission.
package booking

import (
	"context"
	"errors"
	"time"

	"holdfast/internal/gateway"
	"holdfast/internal/registry"
	"holdfast/pkg/config"
	"holdfast/pkg/logger"
	"holdfast/pkg/model"
)

var (
	// ErrSeatGone reports that the target seat stopped being listed as
	// available mid-attempt.
	ErrSeatGone = errors.New("seat no longer available")
	// ErrExhausted reports that every confirm-then-book iteration failed.
	ErrExhausted = errors.New("booking did not succeed")
)

// Target identifies the seat being booked plus the trip coordinates needed
// to re-confirm its availability.
type Target struct {
	TripID      int64
	JourneyID   int64
	WagonID     int64
	SeatID      int64
	WagonTypeID int64
}

type Booker struct {
	gw    gateway.Client
	locks *registry.SeatLocks
	log   *logger.Logger

	retryBudget int
	retryDelay  time.Duration
}

func NewBooker(gw gateway.Client, locks *registry.SeatLocks, cfg *config.Config) *Booker {
	return &Booker{
		gw:          gw,
		locks:       locks,
		log:         cfg.Log,
		retryBudget: cfg.ConfirmRetryBudget,
		retryDelay:  cfg.ConfirmRetryDelay,
	}
}

// Book serializes on the seat's lock, submits the booking, and on transient
// failure loops confirm-then-book until it succeeds, the seat disappears, a
// conflict arrives, or the iteration budget runs out. The seat lock is held
// for the whole attempt so no two callers ever submit for the same seat
// concurrently; the caller that waited must go through the availability
// re-check inside this loop rather than blindly resubmitting.
func (b *Booker) Book(ctx context.Context, target Target, profile model.PassengerProfile) (*gateway.BookingResult, error) {
	lock := b.locks.Get(target.WagonID, target.SeatID)
	lock.Lock()
	defer lock.Unlock()

	req := gateway.BookingRequest{
		JourneyID: target.JourneyID,
		WagonID:   target.WagonID,
		SeatID:    target.SeatID,
		Profile:   profile,
	}

	res, err := b.gw.SubmitBooking(ctx, req)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, gateway.ErrConflict) {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	for attempt := 0; attempt < b.retryBudget; attempt++ {
		if err := wait(ctx, b.retryDelay); err != nil {
			return nil, err
		}

		seats, err := b.gw.AvailableSeats(ctx, target.TripID, target.WagonTypeID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			b.log.Debug("availability re-check failed",
				"trip_id", target.TripID,
				"seat_id", target.SeatID,
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}
		if !listed(seats, target) {
			return nil, ErrSeatGone
		}

		res, err = b.gw.SubmitBooking(ctx, req)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, gateway.ErrConflict) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		b.log.Debug("booking retry failed",
			"trip_id", target.TripID,
			"seat_id", target.SeatID,
			"attempt", attempt+1,
			"error", err,
		)
	}

	return nil, ErrExhausted
}

func listed(seats []model.SeatRef, target Target) bool {
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
