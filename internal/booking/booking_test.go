package booking

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"holdfast/internal/gateway"
	"holdfast/internal/registry"
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
		ConfirmRetryBudget: 3,
		ConfirmRetryDelay:  time.Millisecond,
		Log: logger.New(logger.Config{
			Level:  logger.ERROR,
			Format: logger.TEXT,
			Output: io.Discard,
		}),
	}
}

var testTarget = Target{TripID: 100, JourneyID: 900, WagonID: 5, SeatID: 12, WagonTypeID: 3}

func TestBook_FirstSubmissionWins(t *testing.T) {
	gw := &mockGateway{
		bookFunc: func(_ context.Context, req gateway.BookingRequest) (*gateway.BookingResult, error) {
			if req.JourneyID != 900 || req.WagonID != 5 || req.SeatID != 12 {
				t.Errorf("request = %+v", req)
			}
			return &gateway.BookingResult{BookingID: 1, PaymentURL: "https://pay.example/1"}, nil
		},
	}
	b := NewBooker(gw, registry.NewSeatLocks(), testConfig())

	res, err := b.Book(context.Background(), testTarget, model.PassengerProfile{})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if res.BookingID != 1 {
		t.Errorf("booking id = %d, want 1", res.BookingID)
	}
}

func TestBook_ConflictNeverRetries(t *testing.T) {
	var submissions atomic.Int32
	gw := &mockGateway{
		bookFunc: func(context.Context, gateway.BookingRequest) (*gateway.BookingResult, error) {
			submissions.Add(1)
			return nil, gateway.ErrConflict
		},
	}
	b := NewBooker(gw, registry.NewSeatLocks(), testConfig())

	_, err := b.Book(context.Background(), testTarget, model.PassengerProfile{})
	if !errors.Is(err, gateway.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
	if n := submissions.Load(); n != 1 {
		t.Errorf("submitted %d times after a conflict, want exactly 1", n)
	}
}

func TestBook_SeatGoneDuringReconfirm(t *testing.T) {
	gw := &mockGateway{
		bookFunc: func(context.Context, gateway.BookingRequest) (*gateway.BookingResult, error) {
			return nil, gateway.ErrRejected
		},
		seatsFunc: func(context.Context, int64, int64) ([]model.SeatRef, error) {
			return nil, nil // nobody home
		},
	}
	b := NewBooker(gw, registry.NewSeatLocks(), testConfig())

	_, err := b.Book(context.Background(), testTarget, model.PassengerProfile{})
	if !errors.Is(err, ErrSeatGone) {
		t.Fatalf("got %v, want ErrSeatGone", err)
	}
}

func TestBook_RecoversAfterTransientFailure(t *testing.T) {
	var submissions atomic.Int32
	gw := &mockGateway{
		bookFunc: func(context.Context, gateway.BookingRequest) (*gateway.BookingResult, error) {
			if submissions.Add(1) < 3 {
				return nil, gateway.ErrRejected
			}
			return &gateway.BookingResult{BookingID: 2}, nil
		},
		seatsFunc: func(context.Context, int64, int64) ([]model.SeatRef, error) {
			return []model.SeatRef{{WagonID: 5, SeatID: 12, Label: "12"}}, nil
		},
	}
	b := NewBooker(gw, registry.NewSeatLocks(), testConfig())

	res, err := b.Book(context.Background(), testTarget, model.PassengerProfile{})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if res.BookingID != 2 {
		t.Errorf("booking id = %d, want 2", res.BookingID)
	}
	if n := submissions.Load(); n != 3 {
		t.Errorf("submitted %d times, want 3", n)
	}
}

func TestBook_ExhaustsBudget(t *testing.T) {
	var submissions atomic.Int32
	gw := &mockGateway{
		bookFunc: func(context.Context, gateway.BookingRequest) (*gateway.BookingResult, error) {
			submissions.Add(1)
			return nil, gateway.ErrRejected
		},
		seatsFunc: func(context.Context, int64, int64) ([]model.SeatRef, error) {
			return []model.SeatRef{{WagonID: 5, SeatID: 12, Label: "12"}}, nil
		},
	}
	b := NewBooker(gw, registry.NewSeatLocks(), testConfig())

	_, err := b.Book(context.Background(), testTarget, model.PassengerProfile{})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("got %v, want ErrExhausted", err)
	}
	// 1 initial submission + one per confirm-then-book iteration.
	if n := submissions.Load(); n != 4 {
		t.Errorf("submitted %d times, want 4", n)
	}
}

func TestBook_SerializesOnSeatLock(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	gw := &mockGateway{
		bookFunc: func(ctx context.Context, _ gateway.BookingRequest) (*gateway.BookingResult, error) {
			cur := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				prev := maxInFlight.Load()
				if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return &gateway.BookingResult{BookingID: 1}, nil
		},
	}
	b := NewBooker(gw, registry.NewSeatLocks(), testConfig())

	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			_, _ = b.Book(context.Background(), testTarget, model.PassengerProfile{})
		}()
	}
	for i := 0; i < 4; i++ {
		<-done
	}

	if maxInFlight.Load() != 1 {
		t.Errorf("max concurrent submissions for one seat = %d, want 1", maxInFlight.Load())
	}
}
