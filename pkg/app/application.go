package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/julienschmidt/httprouter"

	"holdfast/pkg/config"
	"holdfast/pkg/contracts"
	"holdfast/pkg/middleware"
)

// Runner is a background loop that runs until its context is cancelled.
// The acquisition loops and the age-out sweeper satisfy it.
type Runner interface {
	Run(ctx context.Context)
}

// Stopper is a component with cleanup that must happen after the runners
// have drained (monitor dispatches, purchase finalizer, rescue scheduler,
// fault sink).
type Stopper interface {
	Stop()
}

type Application struct {
	cfg         *config.Config
	server      *http.Server
	rateLimiter *middleware.IPRateLimiter
	runners     []Runner
	stoppers    []Stopper
	wg          sync.WaitGroup
}

func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg}
}

func (a *Application) SetHandler(h contracts.Handler) {
	router := httprouter.New()
	h.RegisterRoutes(router)

	a.rateLimiter = middleware.NewIPRateLimiter(a.cfg.RateLimitRequests, a.cfg.RateLimitWindow, a.cfg.Log)

	var handler http.Handler = router
	handler = middleware.ContentTypeValidation(a.cfg.Log)(handler)
	handler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(handler)
	handler = middleware.IPRateLimit(a.rateLimiter)(handler)
	handler = middleware.RequestLogging(a.cfg.Log)(handler)
	handler = middleware.Recovery(a.cfg.Log)(handler)

	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      handler,
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) AddRunner(r Runner) {
	a.runners = append(a.runners, r)
}

func (a *Application) AddStopper(s Stopper) {
	a.stoppers = append(a.stoppers, s)
}

// Run starts the background runners and the HTTP server, then blocks until
// a shutdown signal arrives or the server fails.
func (a *Application) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, r := range a.runners {
		a.wg.Add(1)
		go func(r Runner) {
			defer a.wg.Done()
			r.Run(ctx)
		}(r)
	}

	serverErrors := make(chan error, 1)
	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		a.cfg.Log.Error("HTTP server failed", "error", err)
	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig.String())
	}

	a.gracefulShutdown(cancel)
}

func (a *Application) gracefulShutdown(cancel context.CancelFunc) {
	a.cfg.Log.Info("Starting graceful shutdown")

	cancel()
	a.wg.Wait()
	a.cfg.Log.Info("Background loops stopped")

	if a.rateLimiter != nil {
		a.rateLimiter.Stop()
	}
	for _, s := range a.stoppers {
		s.Stop()
	}

	ctx, cancelTimeout := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancelTimeout()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Error("Could not stop server", "error", err)
		}
	}

	a.cfg.Log.Info("Server stopped gracefully")
}
