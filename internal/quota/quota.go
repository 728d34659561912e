// Package quota computes the layered admission limits that bound how many
// leases the process may hold: a global cap, a future-window cap, two
// 24-hour period caps inside the recent window, and per-trip / per-wagon
// caps that apply only to recent leases. All checks are pure functions over
// a lease snapshot; callers re-evaluate them immediately before every claim
// because counts move while a worker pool is in flight.
package quota

import (
	"fmt"
	"time"

	"holdfast/pkg/model"
)

const DateLayout = "2006-01-02"

// SplitRecent divides the operator-configured recent-window total between
// the two 24-hour periods. Odd totals give the larger half to the nearer
// period: 7 splits as (4, 3).
func SplitRecent(total int) (first, second int, err error) {
	if total < 0 {
		return 0, 0, fmt.Errorf("recent-window total cannot be negative, got %d", total)
	}
	first = (total + 1) / 2
	second = total - first
	return first, second, nil
}

// PeriodForDate maps a travel date onto one of the two 24-hour periods of
// the recent window: 0 for today, 1 for tomorrow. Dates outside the 48-hour
// horizon report ok=false.
func PeriodForDate(date string, now time.Time) (period int, ok bool) {
	target, err := time.ParseInLocation(DateLayout, date, now.Location())
	if err != nil {
		return 0, false
	}
	// Compare calendar days, not elapsed hours: a DST-shortened day must
	// not pull tomorrow into period 0.
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch {
	case target.Equal(today):
		return 0, true
	case target.Equal(today.AddDate(0, 0, 1)):
		return 1, true
	default:
		return 0, false
	}
}

// Denial names the cap that blocked an admission, for debug logging.
type Denial struct {
	Cap   string
	Count int
	Limit int
}

func (d *Denial) String() string {
	return fmt.Sprintf("%s cap reached (%d/%d)", d.Cap, d.Count, d.Limit)
}

func countable(l *model.Lease) bool {
	return l.Status != model.StatusError
}

// CountHeld counts every lease that occupies quota headroom, i.e. all
// leases not in error state.
func CountHeld(leases []model.Lease) int {
	n := 0
	for i := range leases {
		if countable(&leases[i]) {
			n++
		}
	}
	return n
}

// CountFuture counts held future-window leases.
func CountFuture(leases []model.Lease) int {
	n := 0
	for i := range leases {
		if countable(&leases[i]) && !leases[i].Recent {
			n++
		}
	}
	return n
}

// CountRecentPeriod counts held recent leases whose travel date falls in the
// given 24-hour period.
func CountRecentPeriod(leases []model.Lease, period int, now time.Time) int {
	n := 0
	for i := range leases {
		l := &leases[i]
		if !countable(l) || !l.Recent {
			continue
		}
		if p, ok := PeriodForDate(l.Date, now); ok && p == period {
			n++
		}
	}
	return n
}

// CountRecentTrip counts held recent leases for one trip within a period.
func CountRecentTrip(leases []model.Lease, period int, tripID int64, now time.Time) int {
	n := 0
	for i := range leases {
		l := &leases[i]
		if !countable(l) || !l.Recent || l.TripID != tripID {
			continue
		}
		if p, ok := PeriodForDate(l.Date, now); ok && p == period {
			n++
		}
	}
	return n
}

// CountRecentWagon counts held recent leases for one wagon of one trip
// within a period. Leases mid-purchase are excluded: a seat an operator is
// buying no longer competes for automated wagon headroom.
func CountRecentWagon(leases []model.Lease, period int, tripID, wagonID int64, now time.Time) int {
	n := 0
	for i := range leases {
		l := &leases[i]
		if !countable(l) || !l.Recent || l.TripID != tripID || l.WagonID != wagonID {
			continue
		}
		if l.Status == model.StatusReservedForUser {
			continue
		}
		if p, ok := PeriodForDate(l.Date, now); ok && p == period {
			n++
		}
	}
	return n
}

// CheckFuture verifies the global and future-window caps for one new
// future-window claim. Returns nil when admission is allowed.
func CheckFuture(leases []model.Lease, maxHeld, maxFuture int) *Denial {
	if held := CountHeld(leases); held >= maxHeld {
		return &Denial{Cap: "global", Count: held, Limit: maxHeld}
	}
	if future := CountFuture(leases); future >= maxFuture {
		return &Denial{Cap: "future", Count: future, Limit: maxFuture}
	}
	return nil
}

// CheckRecentTrip verifies the caps that can be decided before a concrete
// seat is known: global, period and per-trip, in that nesting order.
func CheckRecentTrip(leases []model.Lease, period int, tripID int64, now time.Time, maxHeld, periodLimit, perTrip int) *Denial {
	if held := CountHeld(leases); held >= maxHeld {
		return &Denial{Cap: "global", Count: held, Limit: maxHeld}
	}
	if n := CountRecentPeriod(leases, period, now); n >= periodLimit {
		return &Denial{Cap: fmt.Sprintf("period-%d", period), Count: n, Limit: periodLimit}
	}
	if n := CountRecentTrip(leases, period, tripID, now); n >= perTrip {
		return &Denial{Cap: "trip", Count: n, Limit: perTrip}
	}
	return nil
}

// CheckRecentSeat re-verifies the trip-level caps and adds the per-wagon
// cap for one candidate seat.
func CheckRecentSeat(leases []model.Lease, period int, tripID, wagonID int64, now time.Time, maxHeld, periodLimit, perTrip, perWagon int) *Denial {
	if d := CheckRecentTrip(leases, period, tripID, now, maxHeld, periodLimit, perTrip); d != nil {
		return d
	}
	if n := CountRecentWagon(leases, period, tripID, wagonID, now); n >= perWagon {
		return &Denial{Cap: "wagon", Count: n, Limit: perWagon}
	}
	return nil
}
