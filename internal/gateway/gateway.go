// Package gateway talks to the upstream booking service. Every call runs
// under the shared retry policy: rate limits back off exponentially, server
// errors linearly, anything else is reported to the fault sink and retried
// on a short delay until the attempt budget runs out. A 409 on a booking
// submission is the one terminal response; it means another party won the
// seat and retrying would only risk double-submission.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"holdfast/internal/faults"
	"holdfast/internal/settings"
	"holdfast/pkg/client"
	"holdfast/pkg/config"
	"holdfast/pkg/logger"
	"holdfast/pkg/model"
)

const (
	tripsPath    = "/railway-api/trips"
	bookingsPath = "/railway-api/bookings"
)

var (
	// ErrConflict reports a 409: the seat is already taken by someone else.
	ErrConflict = errors.New("seat already taken")
	// ErrRetryBudgetExhausted reports that every attempt of one call failed.
	// It does not mean the resource is gone, only that this call failed.
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
	// ErrRejected reports a well-formed upstream response without success;
	// callers may retry through the confirm-then-book loop.
	ErrRejected = errors.New("upstream rejected request")
)

// Client is the upstream surface the engine depends on. The HTTP
// implementation below is swapped for a func-field mock in tests.
type Client interface {
	SearchTrips(ctx context.Context, date string) ([]model.Trip, error)
	AvailableSeats(ctx context.Context, tripID, wagonTypeID int64) ([]model.SeatRef, error)
	SubmitBooking(ctx context.Context, req BookingRequest) (*BookingResult, error)
}

type BookingRequest struct {
	JourneyID int64
	WagonID   int64
	SeatID    int64
	Profile   model.PassengerProfile
}

type BookingResult struct {
	PaymentURL string
	BookingID  int64
}

type HTTPGateway struct {
	http     *client.HTTPClient
	settings *settings.Settings
	sink     *faults.Sink
	log      *logger.Logger

	retryBudget          int
	retryBaseDelay       time.Duration
	rateLimitBackoffBase time.Duration
	serverErrorBackoff   time.Duration

	adults   int
	children int
}

func NewHTTPGateway(cfg *config.Config, sts *settings.Settings, sink *faults.Sink) *HTTPGateway {
	headers := map[string]string{
		"Accept":     "application/json, text/plain, */*",
		"User-Agent": "Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Mobile Safari/537.36",
	}
	if cfg.UpstreamCookie != "" {
		headers["Cookie"] = cfg.UpstreamCookie
	}

	return &HTTPGateway{
		http:                 client.New(cfg.UpstreamBaseURL, cfg.UpstreamTimeout, headers),
		settings:             sts,
		sink:                 sink,
		log:                  cfg.Log,
		retryBudget:          cfg.RetryBudget,
		retryBaseDelay:       cfg.RetryBaseDelay,
		rateLimitBackoffBase: cfg.RateLimitBackoffBase,
		serverErrorBackoff:   cfg.ServerErrorBackoff,
		adults:               cfg.TripAdults,
		children:             cfg.TripChildren,
	}
}

func (g *HTTPGateway) SearchTrips(ctx context.Context, date string) ([]model.Trip, error) {
	source, destination := g.settings.Route()
	payload := searchRequest{
		Source:      source,
		Destination: destination,
		Adult:       g.adults,
		Child:       g.children,
		Date:        date,
	}

	var data tripsData
	if err := g.post(ctx, tripsPath, payload, false, &data); err != nil {
		return nil, err
	}

	trips := make([]model.Trip, 0, len(data.Trips))
	for _, t := range data.Trips {
		trips = append(trips, t.toModel())
	}
	return trips, nil
}

func (g *HTTPGateway) AvailableSeats(ctx context.Context, tripID, wagonTypeID int64) ([]model.SeatRef, error) {
	payload := seatsRequest{
		Adult:               g.adults,
		Child:               g.children,
		OutboundWagonTypeID: wagonTypeID,
	}

	var data seatsData
	if err := g.post(ctx, fmt.Sprintf("%s/%d", tripsPath, tripID), payload, false, &data); err != nil {
		return nil, err
	}
	return data.availableSeats(), nil
}

func (g *HTTPGateway) SubmitBooking(ctx context.Context, req BookingRequest) (*BookingResult, error) {
	payload := bookingPayload{
		PassengerProfile: req.Profile,
		Outbound: outboundSelection{
			SelectedJourneys: []selectedJourney{{
				ID: req.JourneyID,
				Seats: []selectedSeat{{
					ID:           req.SeatID,
					TrainWagonID: req.WagonID,
				}},
			}},
		},
	}

	var data bookingData
	if err := g.post(ctx, bookingsPath, payload, true, &data); err != nil {
		return nil, err
	}
	if data.Booking.FormURL == "" {
		return nil, fmt.Errorf("%w: booking response has no payment URL", ErrRejected)
	}
	return &BookingResult{
		PaymentURL: data.Booking.FormURL,
		BookingID:  data.Booking.ID,
	}, nil
}

// post runs one upstream call under the retry policy and decodes the data
// portion of a successful envelope into out. bookingCall enables conflict
// detection; only booking submissions can 409 meaningfully.
func (g *HTTPGateway) post(ctx context.Context, path string, payload any, bookingCall bool, out decodable) error {
	var lastErr error

	for attempt := 0; attempt < g.retryBudget; attempt++ {
		resp, err := g.http.Post(ctx, path, payload)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			g.sink.Report(path, fmt.Sprintf("transport failure (attempt %d/%d): %v", attempt+1, g.retryBudget, err))
			if err := sleep(ctx, g.retryBaseDelay*time.Duration(attempt+1)); err != nil {
				return err
			}
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return g.decode(resp, out)

		case resp.StatusCode == http.StatusConflict && bookingCall:
			return ErrConflict

		case resp.StatusCode == http.StatusTooManyRequests:
			delay := g.rateLimitBackoffBase << attempt
			g.log.Warn("rate limited by upstream", "path", path, "backoff", delay)
			if err := sleep(ctx, delay); err != nil {
				return err
			}

		case resp.StatusCode == http.StatusBadGateway,
			resp.StatusCode == http.StatusServiceUnavailable,
			resp.StatusCode == http.StatusGatewayTimeout:
			lastErr = fmt.Errorf("upstream unavailable: status %d", resp.StatusCode)
			g.log.Warn("upstream unavailable", "path", path, "status", resp.StatusCode, "attempt", attempt+1)
			if err := sleep(ctx, g.serverErrorBackoff*time.Duration(attempt+1)); err != nil {
				return err
			}

		default:
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			g.sink.Report(path, fmt.Sprintf("status %d: %s", resp.StatusCode, truncate(resp.Body, 500)))
			if err := sleep(ctx, g.retryBaseDelay); err != nil {
				return err
			}
		}
	}

	g.sink.Report(path, fmt.Sprintf("call failed after %d attempts: %v", g.retryBudget, lastErr))
	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrRetryBudgetExhausted, lastErr)
	}
	return ErrRetryBudgetExhausted
}

func (g *HTTPGateway) decode(resp *client.Response, out decodable) error {
	var env envelope
	if err := resp.DecodeJSON(&env); err != nil {
		return fmt.Errorf("malformed upstream response: %w", err)
	}
	if !env.Success {
		return ErrRejected
	}
	if err := out.decode(env.Data); err != nil {
		return fmt.Errorf("malformed upstream data: %w", err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
