package config

const (
	EnvUpstreamBaseURL = "UPSTREAM_BASE_URL"
	EnvUpstreamTimeout = "UPSTREAM_TIMEOUT"
	EnvUpstreamCookie  = "UPSTREAM_COOKIE"

	EnvRetryBudget          = "RETRY_BUDGET"
	EnvRetryBaseDelay       = "RETRY_BASE_DELAY"
	EnvRateLimitBackoffBase = "RATE_LIMIT_BACKOFF_BASE"
	EnvServerErrorBackoff   = "SERVER_ERROR_BACKOFF_BASE"

	EnvConfirmRetryBudget = "CONFIRM_RETRY_BUDGET"
	EnvConfirmRetryDelay  = "CONFIRM_RETRY_DELAY"

	EnvHoldTimeout = "HOLD_TIMEOUT"
	EnvRescueLead  = "RESCUE_LEAD"

	EnvMaxHeld           = "MAX_HELD"
	EnvMaxFutureHeld     = "MAX_FUTURE_HELD"
	EnvMaxRecentHeld     = "MAX_RECENT_HELD"
	EnvMaxRecentPerTrip  = "MAX_RECENT_PER_TRIP"
	EnvMaxRecentPerWagon = "MAX_RECENT_PER_WAGON"

	EnvFuturePollInterval = "FUTURE_POLL_INTERVAL"
	EnvRecentPollInterval = "RECENT_POLL_INTERVAL"
	EnvBatchSize          = "BATCH_SIZE"
	EnvWorkerPoolSize     = "WORKER_POOL_SIZE"
	EnvFutureTier         = "FUTURE_TIER"
	EnvWagonTypes         = "WAGON_TYPES"

	EnvSweepInterval = "SWEEP_INTERVAL"
	EnvFutureMaxAge  = "FUTURE_MAX_AGE"

	EnvTripSource      = "TRIP_SOURCE"
	EnvTripDestination = "TRIP_DESTINATION"
	EnvTripAdults      = "TRIP_ADULTS"
	EnvTripChildren    = "TRIP_CHILDREN"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"
	EnvMaxRequestSize    = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvKafkaBrokers = "KAFKA_BROKERS"
	EnvFaultTopic   = "FAULT_TOPIC"
)
