// Package service provides the shared lifecycle, health and routing
// infrastructure of frame HTTP services.
package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/R3E-Network/frame_layer/pkg/logger"
)

const healthCheckTimeout = 5 * time.Second

// Probe checks one dependency. A nil error means healthy.
type Probe func(ctx context.Context) error

// HealthChecker is implemented by services with a custom health status.
type HealthChecker interface {
	HealthStatus() string
}

// BaseConfig contains shared configuration for all services.
type BaseConfig struct {
	ID      string
	Name    string
	Version string
	Logger  *logger.Logger
}

// BaseService provides a consistent foundation for services with:
// - Safe stop channel management (sync.Once prevents double-close panic)
// - Optional hydration hook for loading state on startup
// - Background and cron-scheduled worker management
// - Dependency probes for /health and a statistics provider for /info
type BaseService struct {
	id      string
	name    string
	version string
	router  *mux.Router
	log     *logger.Logger

	// Lifecycle management
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Extensibility hooks
	hydrate func(context.Context) error
	statsFn func() map[string]any

	// Worker management
	workers []func(context.Context)
	cron    *cron.Cron
	jobs    int

	// Health tracking
	probes          map[string]Probe
	healthMu        sync.RWMutex
	probeResults    map[string]string
	lastHealthCheck time.Time
	startTime       time.Time
}

// NewBase constructs a BaseService from shared config.
func NewBase(cfg BaseConfig) *BaseService {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault(cfg.Name)
	}
	return &BaseService{
		id:           cfg.ID,
		name:         cfg.Name,
		version:      cfg.Version,
		router:       mux.NewRouter(),
		log:          log,
		stopCh:       make(chan struct{}),
		cron:         cron.New(),
		probes:       make(map[string]Probe),
		probeResults: make(map[string]string),
	}
}

// ID returns the service identifier.
func (b *BaseService) ID() string { return b.id }

// Name returns the service name.
func (b *BaseService) Name() string { return b.name }

// Version returns the service version.
func (b *BaseService) Version() string { return b.version }

// Router returns the service router.
func (b *BaseService) Router() *mux.Router { return b.router }

// Logger returns the service logger.
func (b *BaseService) Logger() *logger.Logger { return b.log }

// WithHydrate sets an optional hydrate hook executed during Start, before
// background workers are launched.
func (b *BaseService) WithHydrate(fn func(context.Context) error) *BaseService {
	b.hydrate = fn
	return b
}

// WithStats sets a statistics provider function for the /info endpoint.
func (b *BaseService) WithStats(fn func() map[string]any) *BaseService {
	b.statsFn = fn
	return b
}

// AddProbe registers a dependency probe consulted by CheckHealth.
func (b *BaseService) AddProbe(name string, probe Probe) *BaseService {
	b.probes[name] = probe
	return b
}

// AddWorker registers a background worker started after hydrate completes.
// Workers should return when ctx is done or StopChan is closed.
func (b *BaseService) AddWorker(fn func(context.Context)) *BaseService {
	b.workers = append(b.workers, fn)
	return b
}

// AddTickerWorker registers a periodic background worker.
func (b *BaseService) AddTickerWorker(interval time.Duration, fn func(context.Context) error) *BaseService {
	worker := func(ctx context.Context) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stopCh:
				return
			case <-ticker.C:
				if err := fn(ctx); err != nil {
					b.log.WithError(err).Warn("Worker error")
				}
			}
		}
	}
	b.workers = append(b.workers, worker)
	return b
}

// AddCronWorker schedules fn with a cron spec such as "@every 5m" or
// "*/5 * * * *". The schedule starts with the service.
func (b *BaseService) AddCronWorker(spec string, fn func(context.Context) error) error {
	_, err := b.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-b.stopCh:
				cancel()
			case <-ctx.Done():
			}
		}()
		if err := fn(ctx); err != nil {
			b.log.WithError(err).WithField("schedule", spec).Warn("Scheduled job error")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	b.jobs++
	return nil
}

// StopChan exposes the stop channel for worker goroutines.
func (b *BaseService) StopChan() <-chan struct{} {
	return b.stopCh
}

// Start runs hydrate once, then spins workers and the cron scheduler.
func (b *BaseService) Start(ctx context.Context) error {
	b.healthMu.Lock()
	if b.startTime.IsZero() {
		b.startTime = time.Now()
	}
	b.healthMu.Unlock()

	if b.hydrate != nil {
		if err := b.hydrate(ctx); err != nil {
			return fmt.Errorf("hydrate: %w", err)
		}
	}

	for _, w := range b.workers {
		worker := w
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			worker(ctx)
		}()
	}
	if b.jobs > 0 {
		b.cron.Start()
	}
	b.log.WithField("workers", len(b.workers)).WithField("jobs", b.jobs).Info("Service started")
	return nil
}

// Stop signals workers, stops the scheduler and waits for workers to return.
// It is idempotent.
func (b *BaseService) Stop() error {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		<-b.cron.Stop().Done()
		b.wg.Wait()
		b.log.Info("Service stopped")
	})
	return nil
}

// WorkerCount returns the number of registered workers.
func (b *BaseService) WorkerCount() int {
	return len(b.workers)
}

// CheckHealth refreshes the cached health state by running every probe.
func (b *BaseService) CheckHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	results := make(map[string]string, len(b.probes))
	for name, probe := range b.probes {
		if err := probe(ctx); err != nil {
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	b.healthMu.Lock()
	b.probeResults = results
	b.lastHealthCheck = time.Now()
	b.healthMu.Unlock()
}

// HealthStatus returns "healthy", or "unhealthy" if any probe fails.
func (b *BaseService) HealthStatus() string {
	b.CheckHealth()
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()
	return b.healthStatusLocked()
}

// HealthDetails returns a map describing the most recent health state.
func (b *BaseService) HealthDetails() map[string]any {
	b.healthMu.RLock()
	defer b.healthMu.RUnlock()

	names := make([]string, 0, len(b.probeResults))
	for name := range b.probeResults {
		names = append(names, name)
	}
	sort.Strings(names)
	checks := make(map[string]string, len(names))
	for _, name := range names {
		checks[name] = b.probeResults[name]
	}

	details := map[string]any{
		"checks": checks,
	}
	if !b.lastHealthCheck.IsZero() {
		details["last_check"] = b.lastHealthCheck.Format(time.RFC3339)
	} else {
		details["last_check"] = ""
	}

	uptime := time.Duration(0)
	if !b.startTime.IsZero() {
		uptime = time.Since(b.startTime)
	}
	details["uptime"] = uptime.String()

	return details
}

func (b *BaseService) healthStatusLocked() string {
	for _, result := range b.probeResults {
		if result != "ok" {
			return "unhealthy"
		}
	}
	return "healthy"
}

var _ HealthChecker = (*BaseService)(nil)
