package acquire

import (
	"context"
	"time"

	"holdfast/internal/rescue"
	"holdfast/internal/store"
	"holdfast/pkg/config"
	"holdfast/pkg/logger"
)

// Sweeper drops future-window leases whose age has outlived their
// usefulness. Expiration-based rescue and age-out are independent removal
// paths; removal from the store is the single decision point, so a rescue
// racing a sweep finds the lease gone at its next checkpoint and unwinds.
type Sweeper struct {
	store    *store.LeaseStore
	rescue   *rescue.Scheduler
	log      *logger.Logger
	interval time.Duration
	maxAge   time.Duration
}

func NewSweeper(st *store.LeaseStore, sched *rescue.Scheduler, cfg *config.Config) *Sweeper {
	return &Sweeper{
		store:    st,
		rescue:   sched,
		log:      cfg.Log,
		interval: cfg.SweepInterval,
		maxAge:   cfg.FutureMaxAge,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("age-out sweeper started", "interval", s.interval, "max_age", s.maxAge)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("age-out sweeper stopped")
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	aged := s.store.AgedFuture(s.maxAge, time.Now())
	for _, lease := range aged {
		s.rescue.Cancel(lease.ID)
		if _, err := s.store.Remove(lease.ID); err != nil {
			continue // already gone
		}
		s.log.Info("aged-out future lease removed",
			"lease_id", lease.ID,
			"date", lease.Date,
			"seat_label", lease.SeatLabel,
			"age", time.Since(lease.CreatedAt),
		)
	}
}
