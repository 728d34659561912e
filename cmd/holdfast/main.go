package main

import (
	"time"

	"github.com/joho/godotenv"

	"holdfast/internal/acquire"
	"holdfast/internal/booking"
	"holdfast/internal/console"
	"holdfast/internal/faults"
	"holdfast/internal/gateway"
	"holdfast/internal/identity"
	"holdfast/internal/purchase"
	"holdfast/internal/purchase/validator"
	"holdfast/internal/registry"
	"holdfast/internal/rescue"
	"holdfast/internal/settings"
	"holdfast/internal/store"
	"holdfast/pkg/app"
	"holdfast/pkg/config"
	"holdfast/pkg/kafka"
)

const ServiceName = "holdfast"

func main() {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting holdfast service")

	sts := settings.New(cfg.MaxRecentHeld, cfg.TripSource, cfg.TripDestination)

	var pub faults.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.FaultTopic)
		if err != nil {
			cfg.Log.Fatal("Failed to initialize kafka producer", "error", err)
		}
		defer producer.Close()
		pub = producer
		cfg.Log.Info("Fault events publishing to kafka", "topic", cfg.FaultTopic)
	}
	sink := faults.New(cfg.Log, pub, ServiceName)

	leaseStore := store.NewLeaseStore()
	seatLocks := registry.NewSeatLocks()
	gw := gateway.NewHTTPGateway(cfg, sts, sink)
	booker := booking.NewBooker(gw, seatLocks, cfg)
	scheduler := rescue.NewScheduler(leaseStore, gw, booker, sink, cfg)
	generator := identity.NewGenerator(time.Now().UnixNano())
	monitor := acquire.NewMonitor(leaseStore, gw, booker, scheduler, sts, generator, cfg)
	sweeper := acquire.NewSweeper(leaseStore, scheduler, cfg)
	journal := purchase.NewJournal()
	finalizer := purchase.NewFinalizer(leaseStore, gw, booker, scheduler, journal, cfg)
	purchaseValidator := validator.NewPurchaseValidator(cfg.Log)

	serverApp := app.NewApplication(cfg)
	serverApp.SetHandler(console.NewHandler(
		leaseStore,
		scheduler,
		finalizer,
		journal,
		monitor,
		sts,
		purchaseValidator,
		cfg.Log,
	))
	serverApp.AddRunner(acquire.FutureLoop{M: monitor})
	serverApp.AddRunner(acquire.RecentLoop{M: monitor})
	serverApp.AddRunner(sweeper)
	serverApp.AddStopper(monitor)
	serverApp.AddStopper(finalizer)
	serverApp.AddStopper(scheduler)
	serverApp.AddStopper(stopFunc(sink.Close))

	serverApp.Run()
}

// stopFunc adapts a plain cleanup func to the app.Stopper interface.
type stopFunc func()

func (f stopFunc) Stop() { f() }
