// Package acquire runs the two polling loops that discover available seats
// and claim them. The future loop scans departures two weeks out and takes
// lower-berth seats only; the recent loop scans the next 48 hours and takes
// everything the layered quota admits. Both loops funnel claims through a
// bounded worker pool so one slow booking cannot stall a whole batch.
package acquire

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"holdfast/internal/booking"
	"holdfast/internal/gateway"
	"holdfast/internal/identity"
	"holdfast/internal/quota"
	"holdfast/internal/rescue"
	"holdfast/internal/settings"
	"holdfast/internal/store"
	"holdfast/pkg/config"
	"holdfast/pkg/logger"
	"holdfast/pkg/model"
)

// Admission checks run against a snapshot taken just before each claim, so
// concurrent claims inside one batch can overshoot a cap by at most the
// batch width. That slack is accepted; the caps are hoarding bounds, not
// hard reservations.
type Monitor struct {
	store    *store.LeaseStore
	gw       gateway.Client
	booker   *booking.Booker
	rescue   *rescue.Scheduler
	settings *settings.Settings
	log      *logger.Logger

	holdTimeout time.Duration
	batchSize   int
	poolSize    int
	futureTier  int
	wagonTypes  []int64

	maxHeld       int
	maxFutureHeld int
	perTrip       int
	perWagon      int

	futureInterval time.Duration
	recentInterval time.Duration

	genMu sync.Mutex
	gen   *identity.Generator

	// Manual one-shot passes run detached from the console request but
	// inside this lifecycle, so shutdown cancels and waits for them.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	dispatches sync.WaitGroup
}

func NewMonitor(st *store.LeaseStore, gw gateway.Client, booker *booking.Booker, sched *rescue.Scheduler, sts *settings.Settings, gen *identity.Generator, cfg *config.Config) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		store:          st,
		gw:             gw,
		booker:         booker,
		rescue:         sched,
		settings:       sts,
		log:            cfg.Log,
		holdTimeout:    cfg.HoldTimeout,
		batchSize:      cfg.BatchSize,
		poolSize:       cfg.WorkerPoolSize,
		futureTier:     cfg.FutureTier,
		wagonTypes:     cfg.WagonTypes,
		maxHeld:        cfg.MaxHeld,
		maxFutureHeld:  cfg.MaxFutureHeld,
		perTrip:        cfg.MaxRecentPerTrip,
		perWagon:       cfg.MaxRecentPerWagon,
		futureInterval: cfg.FuturePollInterval,
		recentInterval: cfg.RecentPollInterval,
		gen:            gen,
		baseCtx:        ctx,
		cancelBase:     cancel,
	}
}

// Stop cancels any detached one-shot passes and waits for them to unwind.
func (m *Monitor) Stop() {
	m.cancelBase()
	m.dispatches.Wait()
}

// FutureLoop is the Runner for the 14-15 day horizon.
type FutureLoop struct {
	M *Monitor
}

func (l FutureLoop) Run(ctx context.Context) {
	l.M.log.Info("future acquisition loop started", "interval", l.M.futureInterval)
	l.M.poll(ctx, l.M.futureInterval, l.M.futurePass)
	l.M.log.Info("future acquisition loop stopped")
}

// RecentLoop is the Runner for the 0-48 hour horizon.
type RecentLoop struct {
	M *Monitor
}

func (l RecentLoop) Run(ctx context.Context) {
	l.M.log.Info("recent acquisition loop started", "interval", l.M.recentInterval)
	l.M.poll(ctx, l.M.recentInterval, l.M.recentPass)
	l.M.log.Info("recent acquisition loop stopped")
}

func (m *Monitor) poll(ctx context.Context, interval time.Duration, pass func(ctx context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pass(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pass(ctx)
		}
	}
}

func (m *Monitor) futurePass(ctx context.Context) {
	now := time.Now()
	for _, days := range []int{14, 15} {
		if ctx.Err() != nil {
			return
		}
		date := now.AddDate(0, 0, days).Format(quota.DateLayout)
		m.acquireFutureDate(ctx, date)
	}
}

// AcquireFutureDate runs one future-window pass for a single date and
// reports how many leases it claimed.
func (m *Monitor) AcquireFutureDate(ctx context.Context, date string) int {
	return m.acquireFutureDate(ctx, date)
}

// DispatchFutureDate runs a manual out-of-horizon pass in the background so
// a slow upstream does not hold the console connection open. The pass is
// bounded and dies with the monitor's lifecycle rather than outliving
// shutdown.
func (m *Monitor) DispatchFutureDate(date string) {
	m.dispatches.Add(1)
	go func() {
		defer m.dispatches.Done()
		ctx, cancel := context.WithTimeout(m.baseCtx, 5*time.Minute)
		defer cancel()
		claimed := m.AcquireFutureDate(ctx, date)
		m.log.Info("manual acquisition pass finished", "date", date, "claimed", claimed)
	}()
}

func (m *Monitor) acquireFutureDate(ctx context.Context, date string) int {
	trips, err := m.gw.SearchTrips(ctx, date)
	if err != nil {
		m.log.Debug("trip search failed", "date", date, "error", err)
		return 0
	}

	claimed := 0
	for _, trip := range trips {
		for _, wagonTypeID := range m.wagonTypes {
			if ctx.Err() != nil {
				return claimed
			}
			if !trip.HasSeatsFor(wagonTypeID) {
				continue
			}
			if d := quota.CheckFuture(m.store.Snapshot(), m.maxHeld, m.maxFutureHeld); d != nil {
				m.log.Debug("future admission denied", "date", date, "reason", d.String())
				return claimed
			}

			seats, err := m.gw.AvailableSeats(ctx, trip.ID, wagonTypeID)
			if err != nil {
				m.log.Debug("seat listing failed", "trip_id", trip.ID, "error", err)
				continue
			}

			batch := m.buildBatch(seats, trip, func() *quota.Denial {
				return quota.CheckFuture(m.store.Snapshot(), m.maxHeld, m.maxFutureHeld)
			}, func(seat model.SeatRef) bool {
				return seat.Tier() == m.futureTier
			})
			claimed += m.dispatch(ctx, batch, date, trip, wagonTypeID, false)
		}
	}
	return claimed
}

func (m *Monitor) recentPass(ctx context.Context) {
	now := time.Now()
	firstLimit, secondLimit, err := quota.SplitRecent(m.settings.MaxRecentHeld())
	if err != nil {
		m.log.Error("recent quota split failed", "error", err)
		return
	}
	limits := [2]int{firstLimit, secondLimit}

	for period := 0; period < 2; period++ {
		if ctx.Err() != nil {
			return
		}
		date := now.AddDate(0, 0, period).Format(quota.DateLayout)
		m.recentDatePass(ctx, date, period, limits[period])
	}
}

func (m *Monitor) recentDatePass(ctx context.Context, date string, period, periodLimit int) {
	trips, err := m.gw.SearchTrips(ctx, date)
	if err != nil {
		m.log.Debug("trip search failed", "date", date, "error", err)
		return
	}

	for _, trip := range trips {
		for _, wagonTypeID := range m.wagonTypes {
			if ctx.Err() != nil {
				return
			}
			if !trip.HasSeatsFor(wagonTypeID) {
				continue
			}
			if d := quota.CheckRecentTrip(m.store.Snapshot(), period, trip.ID, time.Now(), m.maxHeld, periodLimit, m.perTrip); d != nil {
				m.log.Debug("recent admission denied",
					"date", date,
					"trip_id", trip.ID,
					"reason", d.String(),
				)
				continue
			}

			seats, err := m.gw.AvailableSeats(ctx, trip.ID, wagonTypeID)
			if err != nil {
				m.log.Debug("seat listing failed", "trip_id", trip.ID, "error", err)
				continue
			}

			batch := m.buildBatch(seats, trip, nil, nil)
			claimed := m.dispatchRecent(ctx, batch, date, trip, wagonTypeID, period, periodLimit)
			if claimed > 0 {
				m.log.Info("recent batch claimed",
					"date", date,
					"trip_id", trip.ID,
					"count", claimed,
				)
			}
		}
	}
}

type candidate struct {
	seat    model.SeatRef
	profile model.PassengerProfile
}

// buildBatch picks up to batchSize seats that no live lease covers yet,
// generating a synthetic profile for each. admit (optional) is re-evaluated
// per seat so a cap reached mid-batch cuts the batch short; eligible
// (optional) filters seats, e.g. by berth tier.
func (m *Monitor) buildBatch(seats []model.SeatRef, trip model.Trip, admit func() *quota.Denial, eligible func(model.SeatRef) bool) []candidate {
	var batch []candidate
	for _, seat := range seats {
		if len(batch) >= m.batchSize {
			break
		}
		if eligible != nil && !eligible(seat) {
			continue
		}
		key := model.SeatKey{TripID: trip.ID, WagonID: seat.WagonID, SeatID: seat.SeatID}
		if m.store.Holds(key) {
			continue
		}
		if admit != nil {
			if d := admit(); d != nil {
				m.log.Debug("batch cut short", "reason", d.String())
				break
			}
		}
		batch = append(batch, candidate{seat: seat, profile: m.profile()})
	}
	return batch
}

func (m *Monitor) profile() model.PassengerProfile {
	m.genMu.Lock()
	defer m.genMu.Unlock()
	return m.gen.Random()
}

// dispatch books a future-window batch through the worker pool.
func (m *Monitor) dispatch(ctx context.Context, batch []candidate, date string, trip model.Trip, wagonTypeID int64, recent bool) int {
	return m.runPool(ctx, batch, func(ctx context.Context, c candidate) bool {
		return m.claim(ctx, c, date, trip, wagonTypeID, recent, 0)
	})
}

// dispatchRecent books a recent-window batch, re-checking the full cap
// stack (including the per-wagon cap) just before each booking attempt.
func (m *Monitor) dispatchRecent(ctx context.Context, batch []candidate, date string, trip model.Trip, wagonTypeID int64, period, periodLimit int) int {
	return m.runPool(ctx, batch, func(ctx context.Context, c candidate) bool {
		if d := quota.CheckRecentSeat(m.store.Snapshot(), period, trip.ID, c.seat.WagonID, time.Now(), m.maxHeld, periodLimit, m.perTrip, m.perWagon); d != nil {
			m.log.Debug("recent claim denied",
				"trip_id", trip.ID,
				"wagon_id", c.seat.WagonID,
				"reason", d.String(),
			)
			return false
		}
		return m.claim(ctx, c, date, trip, wagonTypeID, true, period)
	})
}

func (m *Monitor) runPool(ctx context.Context, batch []candidate, work func(ctx context.Context, c candidate) bool) int {
	if len(batch) == 0 {
		return 0
	}

	sem := make(chan struct{}, m.poolSize)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for _, c := range batch {
		sem <- struct{}{}
		wg.Add(1)
		go func(c candidate) {
			defer wg.Done()
			defer func() { <-sem }()
			if work(ctx, c) {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()
	return claimed
}

func (m *Monitor) claim(ctx context.Context, c candidate, date string, trip model.Trip, wagonTypeID int64, recent bool, period int) bool {
	target := booking.Target{
		TripID:      trip.ID,
		JourneyID:   trip.JourneyID,
		WagonID:     c.seat.WagonID,
		SeatID:      c.seat.SeatID,
		WagonTypeID: wagonTypeID,
	}
	res, err := m.booker.Book(ctx, target, c.profile)
	if err != nil {
		m.log.Debug("claim failed",
			"trip_id", trip.ID,
			"seat_label", c.seat.Label,
			"error", err,
		)
		return false
	}

	now := time.Now()
	lease := &model.Lease{
		ID:            uuid.NewString(),
		Date:          date,
		TripID:        trip.ID,
		JourneyID:     trip.JourneyID,
		WagonID:       c.seat.WagonID,
		SeatID:        c.seat.SeatID,
		SeatLabel:     c.seat.Label,
		WagonTypeID:   wagonTypeID,
		Recent:        recent,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.holdTimeout),
		DepartureTime: trip.DepartureTime,
		Status:        model.StatusBooked,
		BookingID:     res.BookingID,
		Profile:       c.profile,
	}
	if err := m.store.Insert(lease); err != nil {
		// Another claimant won the seat between dedupe and booking. The
		// duplicate upstream hold lapses on its own.
		m.log.Warn("discarding duplicate claim",
			"seat_key", lease.Key().String(),
			"error", err,
		)
		return false
	}
	m.rescue.Start(*lease)

	m.log.Info("lease acquired",
		"lease_id", lease.ID,
		"date", date,
		"trip_id", trip.ID,
		"seat_label", c.seat.Label,
		"recent", recent,
		"period", period,
		"expires_at", lease.ExpiresAt,
	)
	return true
}
