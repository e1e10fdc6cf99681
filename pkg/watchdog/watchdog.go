// Package watchdog periodically probes the browsy server the bridge spawned
// and reports failed health checks. It never changes the server state: an
// unhealthy server keeps running until an operator or hook acts on it.
package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/harun/browsy/internal/observability"
	"github.com/harun/browsy/pkg/browsy"
	"github.com/harun/browsy/pkg/hooks"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	DefaultSchedule     = "@every 30s"
	defaultProbeTimeout = 5 * time.Second
)

// Target is the server being watched
type Target interface {
	Status() browsy.ServerInfo
	CheckHealth(ctx context.Context) error
}

// Notifier receives unhealthy events; *hooks.Manager satisfies it
type Notifier interface {
	TriggerAsync(event string, data map[string]interface{})
}

// Config configures a Watchdog
type Config struct {
	Schedule     string
	ProbeTimeout time.Duration
	Logger       zerolog.Logger
}

// Watchdog runs a health probe on a cron schedule
type Watchdog struct {
	target   Target
	notifier Notifier
	schedule string
	timeout  time.Duration
	logger   zerolog.Logger
	cron     *cron.Cron

	mu       sync.Mutex
	failures int
	lastErr  string
	lastRun  time.Time
	started  bool
}

// New creates a watchdog for target. notifier may be nil.
func New(target Target, notifier Notifier, cfg Config) (*Watchdog, error) {
	if target == nil {
		return nil, fmt.Errorf("watchdog target is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}

	w := &Watchdog{
		target:   target,
		notifier: notifier,
		schedule: cfg.Schedule,
		timeout:  cfg.ProbeTimeout,
		logger:   cfg.Logger.With().Str("component", "watchdog").Logger(),
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}

	if _, err := w.cron.AddFunc(cfg.Schedule, w.tick); err != nil {
		return nil, fmt.Errorf("invalid watchdog schedule %q: %w", cfg.Schedule, err)
	}
	return w, nil
}

// Start begins probing on the schedule
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	w.cron.Start()
	w.logger.Info().Str("schedule", w.schedule).Msg("Health watchdog started")
}

// Stop halts the schedule and waits for a running probe
func (w *Watchdog) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	w.mu.Unlock()

	select {
	case <-w.cron.Stop().Done():
		w.logger.Info().Msg("Health watchdog stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Watchdog) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	_, _ = w.Probe(ctx)
}

// Probe runs one health check. It reports false without probing when the
// server is not running or was not spawned by the bridge.
func (w *Watchdog) Probe(ctx context.Context) (bool, error) {
	info := w.target.Status()
	if info.Status != browsy.StatusRunning || !info.Owned {
		return false, nil
	}

	err := w.target.CheckHealth(ctx)
	observability.RecordHealthCheck(err == nil)

	w.mu.Lock()
	w.lastRun = time.Now()
	if err == nil {
		recovered := w.failures > 0
		w.failures = 0
		w.lastErr = ""
		w.mu.Unlock()
		if recovered {
			w.logger.Info().Int("port", info.Port).Msg("browsy server healthy again")
		}
		return true, nil
	}

	w.failures++
	failures := w.failures
	w.lastErr = err.Error()
	w.mu.Unlock()

	w.logger.Warn().
		Err(err).
		Int("port", info.Port).
		Int("pid", info.PID).
		Int("consecutive_failures", failures).
		Msg("browsy health check failed")

	if w.notifier != nil {
		w.notifier.TriggerAsync(hooks.EventServerUnhealthy, map[string]interface{}{
			"port":     info.Port,
			"pid":      info.PID,
			"error":    err.Error(),
			"failures": failures,
		})
	}
	return true, err
}

// State is a snapshot of the last probes
type State struct {
	Schedule            string    `json:"schedule"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastError           string    `json:"lastError,omitempty"`
	LastRun             time.Time `json:"lastRun,omitempty"`
}

// State returns the probe history summary
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{
		Schedule:            w.schedule,
		ConsecutiveFailures: w.failures,
		LastError:           w.lastErr,
		LastRun:             w.lastRun,
	}
}

type contextTarget struct {
	bc *browsy.BrowsyContext
}

// ContextTarget watches whichever server manager bc currently holds, so a
// reconfigured port is followed
func ContextTarget(bc *browsy.BrowsyContext) Target {
	return contextTarget{bc: bc}
}

func (t contextTarget) Status() browsy.ServerInfo {
	return t.bc.Status()
}

func (t contextTarget) CheckHealth(ctx context.Context) error {
	return t.bc.Server().CheckHealth(ctx)
}
