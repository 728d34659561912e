package purchase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"holdfast/internal/booking"
	"holdfast/internal/gateway"
	"holdfast/internal/identity"
	"holdfast/internal/rescue"
	"holdfast/internal/store"
	"holdfast/pkg/config"
	"holdfast/pkg/logger"
	"holdfast/pkg/model"
)

var ErrAlreadyClaimed = errors.New("seat is being purchased by someone else")

// Finalizer re-books a held seat under an operator-supplied profile. The
// actual re-booking happens on a background task because the current
// upstream hold must lapse first, which can take minutes.
type Finalizer struct {
	store   *store.LeaseStore
	gw      gateway.Client
	booker  *booking.Booker
	rescue  *rescue.Scheduler
	journal *Journal
	log     *logger.Logger

	holdTimeout time.Duration
	lead        time.Duration
	budget      int
	delay       time.Duration

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewFinalizer(st *store.LeaseStore, gw gateway.Client, booker *booking.Booker, sched *rescue.Scheduler, journal *Journal, cfg *config.Config) *Finalizer {
	ctx, cancel := context.WithCancel(context.Background())
	return &Finalizer{
		store:       st,
		gw:          gw,
		booker:      booker,
		rescue:      sched,
		journal:     journal,
		log:         cfg.Log,
		holdTimeout: cfg.HoldTimeout,
		lead:        cfg.RescueLead,
		budget:      cfg.ConfirmRetryBudget,
		delay:       cfg.ConfirmRetryDelay,
		baseCtx:     ctx,
		cancel:      cancel,
	}
}

// Stop cancels in-flight finalizations and waits for their tasks.
func (f *Finalizer) Stop() {
	f.cancel()
	f.wg.Wait()
}

// Finalize claims the lease for the operator and dispatches the re-booking
// task. It returns the freshly created journal record; the record's status
// moves on asynchronously.
func (f *Finalizer) Finalize(leaseID string, req model.PurchaseRequest) (model.PurchaseRecord, error) {
	profile := ProfileFromRequest(req)

	lease, err := f.store.ClaimForUser(leaseID, profile)
	if err != nil {
		if errors.Is(err, store.ErrBeingPurchased) {
			return model.PurchaseRecord{}, ErrAlreadyClaimed
		}
		return model.PurchaseRecord{}, err
	}

	now := time.Now()
	status := model.PurchaseQueued
	if !lease.ExpiresAt.After(now) {
		status = model.PurchaseSearching
	}
	rec := model.PurchaseRecord{
		ID:          uuid.NewString(),
		LeaseID:     lease.ID,
		TripID:      lease.TripID,
		WagonID:     lease.WagonID,
		SeatLabel:   lease.SeatLabel,
		Date:        lease.Date,
		MainContact: profile.MainContact(),
		Status:      status,
		CreatedAt:   now,
	}
	f.journal.Append(rec)

	// The claim makes the rescue task stand down: its next store check sees
	// reserved_for_user, and the store refuses a renewal from a booking that
	// was already in flight. Rescue is restarted fresh when the purchase
	// succeeds.
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.run(f.baseCtx, lease, rec.ID, profile)
	}()

	f.log.Info("purchase dispatched",
		"lease_id", lease.ID,
		"record_id", rec.ID,
		"seat_label", lease.SeatLabel,
		"status", status,
	)
	return rec, nil
}

func (f *Finalizer) run(ctx context.Context, lease model.Lease, recordID string, profile model.PassengerProfile) {
	defer func() {
		if r := recover(); r != nil {
			f.fail(lease.ID, recordID, fmt.Sprintf("purchase task panic: %v", r))
		}
	}()

	// Let the current hold lapse before competing for the seat; the rescue
	// task owns the seat until then.
	if until := time.Until(lease.ExpiresAt) + f.lead; until > 0 {
		if err := wait(ctx, until); err != nil {
			f.fail(lease.ID, recordID, "purchase cancelled during shutdown")
			return
		}
	}
	f.journal.Update(recordID, func(r *model.PurchaseRecord) {
		if r.Status == model.PurchaseQueued {
			r.Status = model.PurchaseSearching
		}
	})

	target := booking.Target{
		TripID:      lease.TripID,
		JourneyID:   lease.JourneyID,
		WagonID:     lease.WagonID,
		SeatID:      lease.SeatID,
		WagonTypeID: lease.WagonTypeID,
	}

	res, err := f.rebook(ctx, target, profile)
	if err != nil {
		f.fail(lease.ID, recordID, fmt.Sprintf("purchase failed for seat %s: %v", lease.SeatLabel, err))
		return
	}

	expiresAt := time.Now().Add(f.holdTimeout)
	if err := f.store.CompletePurchase(lease.ID, expiresAt, res.BookingID); err != nil {
		f.fail(lease.ID, recordID, fmt.Sprintf("lease disappeared before completion: %v", err))
		return
	}
	f.journal.Update(recordID, func(r *model.PurchaseRecord) {
		r.Status = model.PurchaseFound
		r.BookingID = res.BookingID
		r.PaymentURL = res.PaymentURL
	})

	// The upstream hold still lapses on its own schedule until the external
	// payment completes, so the seat goes back under rescue.
	if updated, ok := f.store.Get(lease.ID); ok {
		f.rescue.Start(updated)
	}

	f.log.Info("purchase finalized",
		"lease_id", lease.ID,
		"record_id", recordID,
		"booking_id", res.BookingID,
	)
}

// rebook runs the bounded confirm-then-book loop with the operator profile.
func (f *Finalizer) rebook(ctx context.Context, target booking.Target, profile model.PassengerProfile) (*gateway.BookingResult, error) {
	var lastErr error

	for attempt := 0; attempt < f.budget; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, f.delay); err != nil {
				return nil, err
			}
		}

		seats, err := f.gw.AvailableSeats(ctx, target.TripID, target.WagonTypeID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		if !seatListed(seats, target) {
			lastErr = booking.ErrSeatGone
			continue
		}

		res, err := f.booker.Book(ctx, target, profile)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		return res, nil
	}

	if lastErr == nil {
		lastErr = booking.ErrExhausted
	}
	return nil, lastErr
}

func (f *Finalizer) fail(leaseID, recordID, msg string) {
	f.store.FailPurchase(leaseID, msg)
	f.journal.Update(recordID, func(r *model.PurchaseRecord) {
		r.Status = model.PurchaseError
		r.Error = msg
	})
	f.log.Warn("purchase failed", "lease_id", leaseID, "record_id", recordID, "error", msg)
}

// ProfileFromRequest builds the booking payload for the operator's details,
// mirroring the shape the synthetic generator produces.
func ProfileFromRequest(req model.PurchaseRequest) model.PassengerProfile {
	return model.PassengerProfile{
		HasMediaWiFi: req.HasMediaWiFi,
		BeddingType:  "default",
		APIClient:    "web",
		Contact: model.Contact{
			Mobile:      req.Mobile,
			Email:       req.Email,
			MainContact: req.Name + " " + req.Surname,
		},
		Passengers: []model.Passenger{{
			Name:           req.Name,
			Surname:        req.Surname,
			DOB:            req.DOB,
			Tariff:         "adult",
			Gender:         identity.GenderForSurname(req.Surname),
			IdentityType:   "passport",
			IdentityNumber: req.IdentityNumber,
		}},
	}
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
