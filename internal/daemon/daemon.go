package daemon

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/harun/browsy/internal/config"
	"github.com/harun/browsy/internal/logger"
	"github.com/harun/browsy/internal/observability"
	"github.com/harun/browsy/internal/tracing"
	"github.com/harun/browsy/pkg/browsy"
	"github.com/harun/browsy/pkg/gateway"
	"github.com/harun/browsy/pkg/hooks"
	"github.com/harun/browsy/pkg/plugin"
	"github.com/harun/browsy/pkg/toolexecutor"
	"github.com/harun/browsy/pkg/watchdog"
)

const stopTimeout = 15 * time.Second

// Daemon runs the bridge: the browsy context, its plugin registration, the
// gateway, the health watchdog and the config watcher
type Daemon struct {
	config     *config.Config
	configPath string
	logger     *logger.Logger

	browsy        *browsy.BrowsyContext
	toolExecutor  *toolexecutor.ToolExecutor
	registry      *plugin.Registry
	hookManager   *hooks.Manager
	gatewayServer *gateway.Server
	watchdog      *watchdog.Watchdog
	watcher       *config.Watcher
	lifecycle     *LifecycleManager

	startTime time.Time
	running   bool
	mu        sync.RWMutex

	tracingEnabled bool
	auditEnabled   bool
}

// Status is a point-in-time view of the daemon
type Status struct {
	Running   bool              `json:"running"`
	StartTime time.Time         `json:"startTime,omitempty"`
	Uptime    time.Duration     `json:"uptime,omitempty"`
	Server    browsy.ServerInfo `json:"server"`
	Sessions  int               `json:"sessions"`
	Gateway   string            `json:"gateway,omitempty"`
}

// New builds every component from cfg. configPath enables hot reload when set.
func New(cfg *config.Config, configPath string, log *logger.Logger) (*Daemon, error) {
	observability.EnsureRegistered()

	d := &Daemon{
		config:     cfg,
		configPath: configPath,
		logger:     log,
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing, continuing without distributed tracing")
		} else {
			d.tracingEnabled = true
		}
	}

	if cfg.Audit.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Audit.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
		if err := observability.InitAuditLogger(cfg.Audit.Path); err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
		d.auditEnabled = true
	}

	if err := d.initializeCoreModules(); err != nil {
		d.releaseObservability()
		return nil, fmt.Errorf("failed to initialize core modules: %w", err)
	}
	if err := d.initializeServices(); err != nil {
		_ = d.browsy.Close(context.Background())
		d.releaseObservability()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	d.lifecycle = NewLifecycleManager(d)
	return d, nil
}

func (d *Daemon) initializeCoreModules() error {
	browsyCfg, err := d.config.BrowsyConfig()
	if err != nil {
		return err
	}

	browsyLogger := d.logger.Component("browsy")
	bc, err := browsy.New(browsyCfg, browsy.Options{Logger: &browsyLogger})
	if err != nil {
		return err
	}
	d.browsy = bc

	hookManager, err := newHookManager(d.config.Hooks, d.logger.Component("hooks"))
	if err != nil {
		_ = bc.Close(context.Background())
		return fmt.Errorf("failed to create hook manager: %w", err)
	}
	hookManager.Attach(bc)
	d.hookManager = hookManager

	d.toolExecutor = toolexecutor.New()
	d.toolExecutor.SetMaxOutput(d.config.Tools.MaxOutputBytes)
	if err := browsy.RegisterBrowsyTools(d.toolExecutor, bc); err != nil {
		_ = bc.Close(context.Background())
		return err
	}

	d.registry = plugin.NewRegistry(d.logger.Component("plugin"))
	if err := plugin.Register(d.registry, bc); err != nil {
		_ = bc.Close(context.Background())
		return fmt.Errorf("failed to register browsy plugin: %w", err)
	}

	d.logger.Info().
		Int("port", browsyCfg.Port).
		Int("tools", d.toolExecutor.GetToolCount()).
		Strs("commands", d.registry.CommandNames()).
		Msg("Browsy bridge initialized")
	return nil
}

func (d *Daemon) initializeServices() error {
	if d.config.Gateway.Enabled {
		server, err := gateway.NewServer(gateway.Config{
			Host:           d.config.Gateway.Host,
			Port:           d.config.Gateway.Port,
			SharedSecret:   d.config.Gateway.SharedSecret,
			TickInterval:   30 * time.Second,
			MetricsEnabled: d.config.Metrics.Enabled,
			Logger:         d.logger.GetZerolog(),
		})
		if err != nil {
			return err
		}
		if err := server.RegisterPluginMethods(d.registry.Methods()); err != nil {
			return err
		}
		d.registerRuntimeMethods(server)
		d.browsy.OnServerStateChange(server.Broadcaster().ServerStateListener())
		d.gatewayServer = server
	}

	if d.config.Watchdog.Enabled {
		wd, err := watchdog.New(watchdog.ContextTarget(d.browsy), d.hookManager, watchdog.Config{
			Schedule: d.config.Watchdog.Schedule,
			Logger:   d.logger.GetZerolog(),
		})
		if err != nil {
			return err
		}
		d.watchdog = wd
	}

	if d.configPath != "" {
		watcher, err := config.NewWatcher(config.NewLoader(d.configPath), 0, d.Reload)
		if err != nil {
			return err
		}
		d.watcher = watcher
	}

	return nil
}

// Start runs the services. A browsy start failure is logged, not fatal: the
// next operation retries it.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	ctx = tracing.NewRequestContext(ctx)
	logger := tracing.LoggerFromContext(ctx, d.logger.GetZerolog())
	logger.Info().Msg("Starting browsy bridge")

	if err := d.lifecycle.Start(); err != nil {
		return fmt.Errorf("failed to start lifecycle manager: %w", err)
	}

	if err := d.registry.StartServices(ctx); err != nil {
		logger.Warn().Err(err).Msg("browsy server did not start, operations will retry")
	}

	if d.gatewayServer != nil {
		if err := d.gatewayServer.Start(); err != nil {
			return fmt.Errorf("failed to start gateway server: %w", err)
		}
		logger.Info().Str("addr", d.gatewayServer.Addr()).Msg("Gateway server started")
	}

	if d.watchdog != nil {
		d.watchdog.Start()
	}

	if d.watcher != nil {
		if err := d.watcher.Start(); err != nil {
			logger.Warn().Err(err).Msg("Config hot reload disabled")
		}
	}

	observability.RecordServerAudit(ctx, "bridge.start", "ok", nil)
	logger.Info().Msg("Browsy bridge started")
	return nil
}

// Stop shuts everything down in reverse order
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is not running")
	}
	d.running = false
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	logger := d.logger.GetZerolog()
	logger.Info().Msg("Stopping browsy bridge")

	if d.watcher != nil {
		if err := d.watcher.Stop(); err != nil {
			logger.Error().Err(err).Msg("Failed to stop config watcher")
		}
	}

	if d.watchdog != nil {
		if err := d.watchdog.Stop(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop watchdog")
		}
	}

	if d.gatewayServer != nil {
		if err := d.gatewayServer.Stop(ctx); err != nil {
			logger.Error().Err(err).Msg("Failed to stop gateway server")
		}
	}

	if err := d.registry.StopServices(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to stop services")
	}

	if err := d.browsy.Close(ctx); err != nil {
		logger.Error().Err(err).Msg("Failed to close browsy context")
	}

	d.hookManager.Wait()

	if err := d.lifecycle.Stop(); err != nil {
		logger.Error().Err(err).Msg("Failed to stop lifecycle manager")
	}

	observability.RecordServerAudit(ctx, "bridge.stop", "ok", nil)
	d.releaseObservability()

	logger.Info().Msg("Browsy bridge stopped")
	return nil
}

func (d *Daemon) releaseObservability() {
	if d.tracingEnabled {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := tracing.ShutdownOpenTelemetry(shutdownCtx); err != nil {
			d.logger.Error().Err(err).Msg("Failed to shutdown tracing")
		}
		cancel()
		d.tracingEnabled = false
	}

	if d.auditEnabled {
		if err := observability.GetAuditLogger().Close(); err != nil {
			d.logger.Error().Err(err).Msg("Failed to close audit logger")
		}
		d.auditEnabled = false
	}
}

// Status returns the daemon status
func (d *Daemon) Status() Status {
	d.mu.RLock()
	status := Status{Running: d.running}
	if d.running {
		status.StartTime = d.startTime
		status.Uptime = time.Since(d.startTime)
	}
	d.mu.RUnlock()

	status.Server = d.browsy.Status()
	status.Sessions = d.browsy.Sessions().Count()
	if d.gatewayServer != nil {
		status.Gateway = d.gatewayServer.Addr()
	}
	return status
}

// Wait blocks until SIGINT or SIGTERM, then stops the daemon
func (d *Daemon) Wait() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sig := <-sigChan
	d.logger.Info().Str("signal", sig.String()).Msg("Received signal")

	if err := d.Stop(); err != nil {
		d.logger.Error().Err(err).Msg("Failed to stop daemon")
	}
}

// GetConfig returns the daemon configuration
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Browsy returns the browsy context
func (d *Daemon) Browsy() *browsy.BrowsyContext {
	return d.browsy
}

// Registry returns the plugin registry the bridge registered on
func (d *Daemon) Registry() *plugin.Registry {
	return d.registry
}

// ToolExecutor returns the executor holding the browsy tools
func (d *Daemon) ToolExecutor() *toolexecutor.ToolExecutor {
	return d.toolExecutor
}

// Gateway returns the gateway server, nil when disabled
func (d *Daemon) Gateway() *gateway.Server {
	return d.gatewayServer
}
