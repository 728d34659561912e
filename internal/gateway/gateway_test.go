package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"holdfast/internal/faults"
	"holdfast/internal/settings"
	"holdfast/pkg/config"
	"holdfast/pkg/logger"
	"holdfast/pkg/model"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		UpstreamBaseURL:      baseURL,
		UpstreamTimeout:      2 * time.Second,
		RetryBudget:          3,
		RetryBaseDelay:       time.Millisecond,
		RateLimitBackoffBase: time.Millisecond,
		ServerErrorBackoff:   time.Millisecond,
		TripAdults:           1,
		Log: logger.New(logger.Config{
			Level:  logger.ERROR,
			Format: logger.TEXT,
			Output: io.Discard,
		}),
	}
}

func newTestGateway(t *testing.T, handler http.HandlerFunc) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	sink := faults.New(cfg.Log, nil, "test")
	t.Cleanup(sink.Close)

	sts := settings.New(50, "17", "27")
	return NewHTTPGateway(cfg, sts, sink)
}

func tripsResponse() string {
	return `{"success":true,"data":{"trips":[
		{"id":100,"departure_time":"08:15","journeys":[{"id":900}],
		 "wagon_types":[{"wagon_type_id":3,"has_seats":true}]}
	]}}`
}

func TestSearchTrips(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/railway-api/trips" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		fmt.Fprint(w, tripsResponse())
	})

	trips, err := gw.SearchTrips(context.Background(), "2026-03-10")
	if err != nil {
		t.Fatalf("SearchTrips: %v", err)
	}
	if len(trips) != 1 {
		t.Fatalf("got %d trips, want 1", len(trips))
	}
	trip := trips[0]
	if trip.ID != 100 || trip.JourneyID != 900 || trip.DepartureTime != "08:15" {
		t.Errorf("trip = %+v", trip)
	}
	if !trip.HasSeatsFor(3) {
		t.Error("wagon type 3 should report seats")
	}
}

func TestAvailableSeats(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/railway-api/trips/100" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"success":true,"data":{"outbound":{"journeys":[
			{"train_wagons":[{"id":5,"seats":[
				{"id":12,"label":"12","available":true},
				{"id":13,"label":"13","available":false}
			]}]}
		]}}}`)
	})

	seats, err := gw.AvailableSeats(context.Background(), 100, 3)
	if err != nil {
		t.Fatalf("AvailableSeats: %v", err)
	}
	if len(seats) != 1 {
		t.Fatalf("got %d seats, want only the available one", len(seats))
	}
	if seats[0].WagonID != 5 || seats[0].SeatID != 12 || seats[0].Label != "12" {
		t.Errorf("seat = %+v", seats[0])
	}
}

func TestSubmitBooking_ConflictIsTerminal(t *testing.T) {
	var calls atomic.Int32
	gw := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
	})

	_, err := gw.SubmitBooking(context.Background(), BookingRequest{JourneyID: 900, WagonID: 5, SeatID: 12})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("conflict retried: %d calls, want exactly 1", n)
	}
}

func TestPost_RateLimitThenSuccess(t *testing.T) {
	var calls atomic.Int32
	gw := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, tripsResponse())
	})

	trips, err := gw.SearchTrips(context.Background(), "2026-03-10")
	if err != nil {
		t.Fatalf("SearchTrips after rate limit: %v", err)
	}
	if len(trips) != 1 || calls.Load() != 2 {
		t.Errorf("trips=%d calls=%d, want 1 trip on 2nd call", len(trips), calls.Load())
	}
}

func TestPost_ServerErrorsRetryUntilBudget(t *testing.T) {
	var calls atomic.Int32
	gw := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := gw.SearchTrips(context.Background(), "2026-03-10")
	if !errors.Is(err, ErrRetryBudgetExhausted) {
		t.Fatalf("got %v, want ErrRetryBudgetExhausted", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("made %d calls, want the full budget of 3", n)
	}
}

func TestPost_UnexpectedStatusExhaustsBudget(t *testing.T) {
	var calls atomic.Int32
	gw := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTeapot)
	})

	_, err := gw.SearchTrips(context.Background(), "2026-03-10")
	if !errors.Is(err, ErrRetryBudgetExhausted) {
		t.Fatalf("got %v, want ErrRetryBudgetExhausted", err)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("made %d calls, want the full budget of 3", n)
	}
}

func TestDecode_UnsuccessfulEnvelope(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"success":false,"data":{}}`)
	})

	_, err := gw.SearchTrips(context.Background(), "2026-03-10")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("got %v, want ErrRejected", err)
	}
}

func TestSubmitBooking_Success(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/railway-api/bookings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"success":true,"data":{"booking":{"formUrl":"https://pay.example/f/1","id":555}}}`)
	})

	res, err := gw.SubmitBooking(context.Background(), BookingRequest{
		JourneyID: 900,
		WagonID:   5,
		SeatID:    12,
		Profile:   model.PassengerProfile{},
	})
	if err != nil {
		t.Fatalf("SubmitBooking: %v", err)
	}
	if res.BookingID != 555 || res.PaymentURL != "https://pay.example/f/1" {
		t.Errorf("result = %+v", res)
	}
}

func TestSubmitBooking_MissingPaymentURL(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":{"booking":{"id":555}}}`)
	})

	_, err := gw.SubmitBooking(context.Background(), BookingRequest{JourneyID: 900})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("got %v, want ErrRejected", err)
	}
}

func TestRedirect_FollowedExactlyOnce(t *testing.T) {
	var finalCalls, hopCalls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/railway-api/trips", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/hop", http.StatusTemporaryRedirect)
	})
	mux.HandleFunc("/hop", func(w http.ResponseWriter, r *http.Request) {
		hopCalls.Add(1)
		http.Redirect(w, r, "/final", http.StatusTemporaryRedirect)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, _ *http.Request) {
		finalCalls.Add(1)
		fmt.Fprint(w, tripsResponse())
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	cfg := testConfig(srv.URL)
	cfg.RetryBudget = 1
	sink := faults.New(cfg.Log, nil, "test")
	t.Cleanup(sink.Close)
	gw := NewHTTPGateway(cfg, settings.New(50, "17", "27"), sink)

	// The first redirect is followed, the second is returned as-is; it
	// lands in the default status branch and burns the retry budget.
	_, err := gw.SearchTrips(context.Background(), "2026-03-10")
	if err == nil {
		t.Fatal("expected failure, the second redirect must not be followed")
	}
	if hopCalls.Load() != 1 {
		t.Errorf("first redirect hop called %d times, want 1", hopCalls.Load())
	}
	if finalCalls.Load() != 0 {
		t.Errorf("second redirect was followed: /final called %d times", finalCalls.Load())
	}
}
