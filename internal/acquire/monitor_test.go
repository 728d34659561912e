package acquire

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"holdfast/internal/booking"
	"holdfast/internal/faults"
	"holdfast/internal/gateway"
	"holdfast/internal/identity"
	"holdfast/internal/registry"
	"holdfast/internal/rescue"
	"holdfast/internal/settings"
	"holdfast/internal/store"
	"holdfast/pkg/config"
	"holdfast/pkg/logger"
	"holdfast/pkg/model"
)

type mockGateway struct {
	searchFunc func(ctx context.Context, date string) ([]model.Trip, error)
	seatsFunc  func(ctx context.Context, tripID, wagonTypeID int64) ([]model.SeatRef, error)
	bookFunc   func(ctx context.Context, req gateway.BookingRequest) (*gateway.BookingResult, error)
}

func (m *mockGateway) SearchTrips(ctx context.Context, date string) ([]model.Trip, error) {
	return m.searchFunc(ctx, date)
}

func (m *mockGateway) AvailableSeats(ctx context.Context, tripID, wagonTypeID int64) ([]model.SeatRef, error) {
	return m.seatsFunc(ctx, tripID, wagonTypeID)
}

func (m *mockGateway) SubmitBooking(ctx context.Context, req gateway.BookingRequest) (*gateway.BookingResult, error) {
	return m.bookFunc(ctx, req)
}

func testConfig() *config.Config {
	return &config.Config{
		// A long hold keeps rescue tasks asleep for the whole test.
		HoldTimeout:        10 * time.Minute,
		RescueLead:         10 * time.Millisecond,
		ConfirmRetryBudget: 2,
		ConfirmRetryDelay:  time.Millisecond,
		MaxHeld:            300,
		MaxFutureHeld:      50,
		MaxRecentHeld:      50,
		MaxRecentPerTrip:   25,
		MaxRecentPerWagon:  5,
		BatchSize:          10,
		WorkerPoolSize:     10,
		FutureTier:         1,
		WagonTypes:         []int64{3},
		Log: logger.New(logger.Config{
			Level:  logger.ERROR,
			Format: logger.TEXT,
			Output: io.Discard,
		}),
	}
}

func newMonitor(t *testing.T, gw gateway.Client) (*Monitor, *store.LeaseStore) {
	t.Helper()
	cfg := testConfig()
	sink := faults.New(cfg.Log, nil, "test")
	t.Cleanup(sink.Close)

	st := store.NewLeaseStore()
	booker := booking.NewBooker(gw, registry.NewSeatLocks(), cfg)
	sched := rescue.NewScheduler(st, gw, booker, sink, cfg)
	t.Cleanup(sched.Stop)

	sts := settings.New(cfg.MaxRecentHeld, "17", "27")
	m := NewMonitor(st, gw, booker, sched, sts, identity.NewGenerator(1), cfg)
	t.Cleanup(m.Stop)
	return m, st
}

func singleTrip() []model.Trip {
	return []model.Trip{{
		ID:            100,
		JourneyID:     900,
		DepartureTime: "08:15",
		WagonTypes:    []model.TripWagonType{{WagonTypeID: 3, HasSeats: true}},
	}}
}

func TestRecentPass_AcquiresAvailableSeat(t *testing.T) {
	var bookings atomic.Int32
	gw := &mockGateway{
		searchFunc: func(context.Context, string) ([]model.Trip, error) {
			return singleTrip(), nil
		},
		seatsFunc: func(context.Context, int64, int64) ([]model.SeatRef, error) {
			return []model.SeatRef{{WagonID: 5, SeatID: 12, Label: "12"}}, nil
		},
		bookFunc: func(context.Context, gateway.BookingRequest) (*gateway.BookingResult, error) {
			return &gateway.BookingResult{BookingID: int64(1000 + bookings.Add(1))}, nil
		},
	}
	m, st := newMonitor(t, gw)

	before := time.Now()
	m.recentPass(context.Background())

	if st.Len() != 1 {
		t.Fatalf("store holds %d leases, want 1 (same seat on both horizon dates must dedupe)", st.Len())
	}
	recent, future := st.ByWindow()
	if len(recent) != 1 || len(future) != 0 {
		t.Fatalf("windows = %d recent / %d future, want 1/0", len(recent), len(future))
	}
	lease := recent[0]
	if lease.TripID != 100 || lease.WagonID != 5 || lease.SeatID != 12 {
		t.Errorf("lease = %+v", lease)
	}
	if lease.Status != model.StatusBooked {
		t.Errorf("status = %q, want booked", lease.Status)
	}
	if len(lease.Profile.Passengers) != 1 {
		t.Error("lease has no synthetic passenger profile")
	}
	wantExpiry := before.Add(10 * time.Minute)
	if lease.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) || lease.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("expiry %v not near now+hold timeout", lease.ExpiresAt)
	}

	// A second pass over the same availability claims nothing new.
	m.recentPass(context.Background())
	if st.Len() != 1 {
		t.Errorf("second pass grew the store to %d leases", st.Len())
	}
}

func TestFuturePass_BooksOnlyLowerBerths(t *testing.T) {
	gw := &mockGateway{
		searchFunc: func(context.Context, string) ([]model.Trip, error) {
			return singleTrip(), nil
		},
		seatsFunc: func(context.Context, int64, int64) ([]model.SeatRef, error) {
			return []model.SeatRef{
				{WagonID: 5, SeatID: 1, Label: "1"}, // tier 1
				{WagonID: 5, SeatID: 2, Label: "2"}, // tier 2
				{WagonID: 5, SeatID: 3, Label: "3"}, // tier 3
				{WagonID: 5, SeatID: 4, Label: "4"}, // tier 1
			}, nil
		},
		bookFunc: func(context.Context, gateway.BookingRequest) (*gateway.BookingResult, error) {
			return &gateway.BookingResult{BookingID: 1}, nil
		},
	}
	m, st := newMonitor(t, gw)

	m.futurePass(context.Background())

	recent, future := st.ByWindow()
	if len(recent) != 0 {
		t.Errorf("future pass created %d recent leases", len(recent))
	}
	if len(future) != 2 {
		t.Fatalf("got %d future leases, want the 2 tier-1 seats", len(future))
	}
	for _, l := range future {
		if tier := model.TierForLabel(l.SeatLabel); tier != 1 {
			t.Errorf("booked seat %q of tier %d, future loop must only take tier 1", l.SeatLabel, tier)
		}
	}
}

func TestRecentPass_WagonCapBlocksClaims(t *testing.T) {
	today := time.Now().Format("2006-01-02")
	gw := &mockGateway{
		searchFunc: func(_ context.Context, date string) ([]model.Trip, error) {
			if date != today {
				return nil, nil
			}
			return singleTrip(), nil
		},
		seatsFunc: func(context.Context, int64, int64) ([]model.SeatRef, error) {
			return []model.SeatRef{{WagonID: 5, SeatID: 40, Label: "40"}}, nil
		},
		bookFunc: func(context.Context, gateway.BookingRequest) (*gateway.BookingResult, error) {
			t.Error("booking attempted past the wagon cap")
			return &gateway.BookingResult{BookingID: 1}, nil
		},
	}
	m, st := newMonitor(t, gw)

	// Fill the per-wagon cap for (trip 100, wagon 5).
	for i := int64(0); i < 5; i++ {
		lease := &model.Lease{
			ID:        fmt.Sprintf("seed-%d", i),
			Date:      today,
			TripID:    100,
			WagonID:   5,
			SeatID:    i + 1,
			SeatLabel: fmt.Sprintf("%d", i+1),
			Recent:    true,
			CreatedAt: time.Now(),
			ExpiresAt: time.Now().Add(time.Hour),
			Status:    model.StatusBooked,
		}
		if err := st.Insert(lease); err != nil {
			t.Fatal(err)
		}
	}

	m.recentPass(context.Background())

	if st.Len() != 5 {
		t.Errorf("store grew to %d leases past the wagon cap", st.Len())
	}
}

func TestRecentPass_BatchBounded(t *testing.T) {
	seats := make([]model.SeatRef, 0, 15)
	for i := int64(1); i <= 15; i++ {
		seats = append(seats, model.SeatRef{WagonID: 5, SeatID: i, Label: fmt.Sprintf("%d", i)})
	}

	gw := &mockGateway{
		searchFunc: func(context.Context, string) ([]model.Trip, error) {
			return singleTrip(), nil
		},
		seatsFunc: func(context.Context, int64, int64) ([]model.SeatRef, error) {
			return seats, nil
		},
		bookFunc: func(context.Context, gateway.BookingRequest) (*gateway.BookingResult, error) {
			return &gateway.BookingResult{BookingID: 1}, nil
		},
	}
	m, st := newMonitor(t, gw)
	m.perWagon = 100 // cap off for this test; only the batch bound applies
	m.perTrip = 100

	m.recentDatePass(context.Background(), time.Now().Format("2006-01-02"), 0, 25)

	if st.Len() != 10 {
		t.Errorf("one batch claimed %d seats, want the batch bound of 10", st.Len())
	}
}

func TestAcquireFutureDate_ReportsClaimCount(t *testing.T) {
	gw := &mockGateway{
		searchFunc: func(_ context.Context, date string) ([]model.Trip, error) {
			if date != "2026-06-01" {
				t.Errorf("searched %q, want the requested date", date)
			}
			return singleTrip(), nil
		},
		seatsFunc: func(context.Context, int64, int64) ([]model.SeatRef, error) {
			return []model.SeatRef{{WagonID: 5, SeatID: 1, Label: "1"}}, nil
		},
		bookFunc: func(context.Context, gateway.BookingRequest) (*gateway.BookingResult, error) {
			return &gateway.BookingResult{BookingID: 1}, nil
		},
	}
	m, st := newMonitor(t, gw)

	claimed := m.AcquireFutureDate(context.Background(), "2026-06-01")
	if claimed != 1 {
		t.Errorf("claimed = %d, want 1", claimed)
	}
	if st.Len() != 1 {
		t.Errorf("store holds %d leases, want 1", st.Len())
	}
	if _, future := st.ByWindow(); len(future) != 1 || future[0].Date != "2026-06-01" {
		t.Errorf("future window = %+v, want the manual date", future)
	}
}

func TestDispatchFutureDate_RunsDetached(t *testing.T) {
	gw := &mockGateway{
		searchFunc: func(context.Context, string) ([]model.Trip, error) {
			return singleTrip(), nil
		},
		seatsFunc: func(context.Context, int64, int64) ([]model.SeatRef, error) {
			return []model.SeatRef{{WagonID: 5, SeatID: 1, Label: "1"}}, nil
		},
		bookFunc: func(context.Context, gateway.BookingRequest) (*gateway.BookingResult, error) {
			return &gateway.BookingResult{BookingID: 1}, nil
		},
	}
	m, st := newMonitor(t, gw)

	m.DispatchFutureDate("2026-06-01")

	deadline := time.Now().Add(2 * time.Second)
	for st.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if st.Len() != 1 {
		t.Fatalf("store holds %d leases after dispatch, want 1", st.Len())
	}
}

func TestDispatchFutureDate_StopCancelsInFlight(t *testing.T) {
	entered := make(chan struct{})
	gw := &mockGateway{
		searchFunc: func(ctx context.Context, _ string) ([]model.Trip, error) {
			close(entered)
			<-ctx.Done()
			return nil, ctx.Err()
		},
		seatsFunc: func(context.Context, int64, int64) ([]model.SeatRef, error) {
			t.Error("seat listing must not run after cancellation")
			return nil, nil
		},
		bookFunc: func(context.Context, gateway.BookingRequest) (*gateway.BookingResult, error) {
			t.Error("booking must not run after cancellation")
			return nil, gateway.ErrRejected
		},
	}
	m, st := newMonitor(t, gw)

	m.DispatchFutureDate("2026-06-01")
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatched pass never reached the gateway")
	}

	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not cancel the in-flight pass")
	}
	if st.Len() != 0 {
		t.Errorf("cancelled pass still claimed %d leases", st.Len())
	}
}
