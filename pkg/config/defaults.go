package config

import "time"

const (
	DefaultUpstreamBaseURL = "https://railway.gov.tm"
	DefaultUpstreamTimeout = 20 * time.Second

	DefaultRetryBudget          = 10
	DefaultRetryBaseDelay       = 2 * time.Second
	DefaultRateLimitBackoffBase = 5 * time.Second
	DefaultServerErrorBackoff   = 5 * time.Second

	DefaultConfirmRetryBudget = 60
	DefaultConfirmRetryDelay  = 500 * time.Millisecond

	DefaultHoldTimeout = 4*time.Minute + 30*time.Second
	DefaultRescueLead  = 100 * time.Millisecond

	DefaultMaxHeld           = 300
	DefaultMaxFutureHeld     = 50
	DefaultMaxRecentHeld     = 50
	DefaultMaxRecentPerTrip  = 25
	DefaultMaxRecentPerWagon = 5

	DefaultFuturePollInterval = 60 * time.Second
	DefaultRecentPollInterval = 1 * time.Second
	DefaultBatchSize          = 10
	DefaultWorkerPoolSize     = 10
	DefaultFutureTier         = 1

	DefaultSweepInterval = 60 * time.Second
	DefaultFutureMaxAge  = 15 * 24 * time.Hour

	DefaultTripSource      = "17"
	DefaultTripDestination = "27"
	DefaultTripAdults      = 1
	DefaultTripChildren    = 0

	DefaultPort = "8080"

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute
	DefaultMaxRequestSize    = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultFaultTopic = "fault-events"

	DefaultLogLevel = "info"
)

// DefaultWagonTypes lists the upstream wagon type IDs tracked by the
// acquisition loops when WAGON_TYPES is not set.
var DefaultWagonTypes = []int64{3}
