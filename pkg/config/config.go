package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"holdfast/pkg/logger"
)

// Config carries every tunable of the process, resolved once at startup.
// Values an operator may change at runtime (recent quota, route) are seeded
// from here into the settings handle and never read from Config again.
type Config struct {
	UpstreamBaseURL string
	UpstreamTimeout time.Duration
	UpstreamCookie  string

	RetryBudget          int
	RetryBaseDelay       time.Duration
	RateLimitBackoffBase time.Duration
	ServerErrorBackoff   time.Duration

	ConfirmRetryBudget int
	ConfirmRetryDelay  time.Duration

	HoldTimeout time.Duration
	RescueLead  time.Duration

	MaxHeld           int
	MaxFutureHeld     int
	MaxRecentHeld     int
	MaxRecentPerTrip  int
	MaxRecentPerWagon int

	FuturePollInterval time.Duration
	RecentPollInterval time.Duration
	BatchSize          int
	WorkerPoolSize     int
	FutureTier         int
	WagonTypes         []int64

	SweepInterval time.Duration
	FutureMaxAge  time.Duration

	TripSource      string
	TripDestination string
	TripAdults      int
	TripChildren    int

	Port string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	MaxRequestSize    int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	KafkaBrokers []string
	FaultTopic   string

	Log *logger.Logger
}

func Load(serviceName string) *Config {
	cfg := &Config{
		UpstreamBaseURL: getEnvStr(EnvUpstreamBaseURL, DefaultUpstreamBaseURL),
		UpstreamTimeout: getEnvDuration(EnvUpstreamTimeout, DefaultUpstreamTimeout),
		UpstreamCookie:  getEnvStr(EnvUpstreamCookie, ""),

		RetryBudget:          getEnvNum(EnvRetryBudget, DefaultRetryBudget),
		RetryBaseDelay:       getEnvDuration(EnvRetryBaseDelay, DefaultRetryBaseDelay),
		RateLimitBackoffBase: getEnvDuration(EnvRateLimitBackoffBase, DefaultRateLimitBackoffBase),
		ServerErrorBackoff:   getEnvDuration(EnvServerErrorBackoff, DefaultServerErrorBackoff),

		ConfirmRetryBudget: getEnvNum(EnvConfirmRetryBudget, DefaultConfirmRetryBudget),
		ConfirmRetryDelay:  getEnvDuration(EnvConfirmRetryDelay, DefaultConfirmRetryDelay),

		HoldTimeout: getEnvDuration(EnvHoldTimeout, DefaultHoldTimeout),
		RescueLead:  getEnvDuration(EnvRescueLead, DefaultRescueLead),

		MaxHeld:           getEnvNum(EnvMaxHeld, DefaultMaxHeld),
		MaxFutureHeld:     getEnvNum(EnvMaxFutureHeld, DefaultMaxFutureHeld),
		MaxRecentHeld:     getEnvNum(EnvMaxRecentHeld, DefaultMaxRecentHeld),
		MaxRecentPerTrip:  getEnvNum(EnvMaxRecentPerTrip, DefaultMaxRecentPerTrip),
		MaxRecentPerWagon: getEnvNum(EnvMaxRecentPerWagon, DefaultMaxRecentPerWagon),

		FuturePollInterval: getEnvDuration(EnvFuturePollInterval, DefaultFuturePollInterval),
		RecentPollInterval: getEnvDuration(EnvRecentPollInterval, DefaultRecentPollInterval),
		BatchSize:          getEnvNum(EnvBatchSize, DefaultBatchSize),
		WorkerPoolSize:     getEnvNum(EnvWorkerPoolSize, DefaultWorkerPoolSize),
		FutureTier:         getEnvNum(EnvFutureTier, DefaultFutureTier),
		WagonTypes:         getEnvInt64List(EnvWagonTypes, DefaultWagonTypes),

		SweepInterval: getEnvDuration(EnvSweepInterval, DefaultSweepInterval),
		FutureMaxAge:  getEnvDuration(EnvFutureMaxAge, DefaultFutureMaxAge),

		TripSource:      getEnvStr(EnvTripSource, DefaultTripSource),
		TripDestination: getEnvStr(EnvTripDestination, DefaultTripDestination),
		TripAdults:      getEnvNum(EnvTripAdults, DefaultTripAdults),
		TripChildren:    getEnvNum(EnvTripChildren, DefaultTripChildren),

		Port: getEnvStr(EnvPort, DefaultPort),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),
		MaxRequestSize:    getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		KafkaBrokers: getEnvStrList(EnvKafkaBrokers, nil),
		FaultTopic:   getEnvStr(EnvFaultTopic, DefaultFaultTopic),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}
	if !strings.HasPrefix(cfg.UpstreamBaseURL, "http://") && !strings.HasPrefix(cfg.UpstreamBaseURL, "https://") {
		errs = append(errs, fmt.Sprintf("UpstreamBaseURL must start with http:// or https://, got: %s", cfg.UpstreamBaseURL))
	}
	if cfg.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("UpstreamTimeout must be positive, got: %s", cfg.UpstreamTimeout))
	}
	if cfg.RetryBudget < 1 {
		errs = append(errs, fmt.Sprintf("RetryBudget must be at least 1, got: %d", cfg.RetryBudget))
	}
	if cfg.ConfirmRetryBudget < 1 {
		errs = append(errs, fmt.Sprintf("ConfirmRetryBudget must be at least 1, got: %d", cfg.ConfirmRetryBudget))
	}
	if cfg.HoldTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("HoldTimeout must be positive, got: %s", cfg.HoldTimeout))
	}
	if cfg.RescueLead < 0 {
		errs = append(errs, fmt.Sprintf("RescueLead cannot be negative, got: %s", cfg.RescueLead))
	}
	if cfg.MaxHeld < 0 {
		errs = append(errs, fmt.Sprintf("MaxHeld cannot be negative, got: %d", cfg.MaxHeld))
	}
	if cfg.MaxFutureHeld < 0 {
		errs = append(errs, fmt.Sprintf("MaxFutureHeld cannot be negative, got: %d", cfg.MaxFutureHeld))
	}
	if cfg.MaxRecentHeld < 0 {
		errs = append(errs, fmt.Sprintf("MaxRecentHeld cannot be negative, got: %d", cfg.MaxRecentHeld))
	}
	if cfg.MaxRecentPerTrip < 0 {
		errs = append(errs, fmt.Sprintf("MaxRecentPerTrip cannot be negative, got: %d", cfg.MaxRecentPerTrip))
	}
	if cfg.MaxRecentPerWagon < 0 {
		errs = append(errs, fmt.Sprintf("MaxRecentPerWagon cannot be negative, got: %d", cfg.MaxRecentPerWagon))
	}
	if cfg.FuturePollInterval <= 0 {
		errs = append(errs, fmt.Sprintf("FuturePollInterval must be positive, got: %s", cfg.FuturePollInterval))
	}
	if cfg.RecentPollInterval <= 0 {
		errs = append(errs, fmt.Sprintf("RecentPollInterval must be positive, got: %s", cfg.RecentPollInterval))
	}
	if cfg.BatchSize < 1 {
		errs = append(errs, fmt.Sprintf("BatchSize must be at least 1, got: %d", cfg.BatchSize))
	}
	if cfg.WorkerPoolSize < 1 {
		errs = append(errs, fmt.Sprintf("WorkerPoolSize must be at least 1, got: %d", cfg.WorkerPoolSize))
	}
	if cfg.FutureTier < 1 || cfg.FutureTier > 3 {
		errs = append(errs, fmt.Sprintf("FutureTier must be 1, 2 or 3, got: %d", cfg.FutureTier))
	}
	if len(cfg.WagonTypes) == 0 {
		errs = append(errs, "WagonTypes cannot be empty")
	}
	if cfg.SweepInterval <= 0 {
		errs = append(errs, fmt.Sprintf("SweepInterval must be positive, got: %s", cfg.SweepInterval))
	}
	if cfg.FutureMaxAge <= 0 {
		errs = append(errs, fmt.Sprintf("FutureMaxAge must be positive, got: %s", cfg.FutureMaxAge))
	}
	if cfg.TripSource == "" || cfg.TripDestination == "" {
		errs = append(errs, "TripSource and TripDestination cannot be empty")
	}
	if cfg.TripAdults < 1 {
		errs = append(errs, fmt.Sprintf("TripAdults must be at least 1, got: %d", cfg.TripAdults))
	}
	if cfg.RateLimitRequests <= 0 {
		errs = append(errs, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.RateLimitWindow <= 0 {
		errs = append(errs, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.MaxRequestSize <= 0 {
		errs = append(errs, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.FaultTopic == "" {
		errs = append(errs, "FaultTopic cannot be empty when KafkaBrokers is set")
	}

	if len(errs) > 0 {
		msg := "Configuration validation failed:\n"
		for i, e := range errs {
			msg += fmt.Sprintf("  %d. %s\n", i+1, e)
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"upstream_base_url", cfg.UpstreamBaseURL,
		"upstream_timeout", cfg.UpstreamTimeout,
		"upstream_cookie_set", cfg.UpstreamCookie != "",
		"retry_budget", cfg.RetryBudget,
		"confirm_retry_budget", cfg.ConfirmRetryBudget,
		"confirm_retry_delay", cfg.ConfirmRetryDelay,
		"hold_timeout", cfg.HoldTimeout,
		"rescue_lead", cfg.RescueLead,
		"max_held", cfg.MaxHeld,
		"max_future_held", cfg.MaxFutureHeld,
		"max_recent_held", cfg.MaxRecentHeld,
		"max_recent_per_trip", cfg.MaxRecentPerTrip,
		"max_recent_per_wagon", cfg.MaxRecentPerWagon,
		"future_poll_interval", cfg.FuturePollInterval,
		"recent_poll_interval", cfg.RecentPollInterval,
		"batch_size", cfg.BatchSize,
		"worker_pool_size", cfg.WorkerPoolSize,
		"future_tier", cfg.FutureTier,
		"wagon_types", cfg.WagonTypes,
		"sweep_interval", cfg.SweepInterval,
		"future_max_age", cfg.FutureMaxAge,
		"trip_source", cfg.TripSource,
		"trip_destination", cfg.TripDestination,
		"port", cfg.Port,
		"kafka_enabled", len(cfg.KafkaBrokers) > 0,
		"fault_topic", cfg.FaultTopic,
	)
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvStrList(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}

func getEnvInt64List(key string, fallback []int64) []int64 {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]int64, 0, len(parts))
		for _, p := range parts {
			if n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64); err == nil {
				out = append(out, n)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}
