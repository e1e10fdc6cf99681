package browsy

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/harun/browsy/internal/observability"
	"github.com/harun/browsy/internal/tracing"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

const (
	healthPollInterval = 200 * time.Millisecond
	adoptProbeTimeout  = 2 * time.Second
	stopGracePeriod    = 5 * time.Second
)

// StateChangeFunc observes server status transitions
type StateChangeFunc func(from, to ServerStatus, info ServerInfo)

// ServerManager owns the lifecycle of a `browsy serve` child process.
//
// A server found already listening on the configured port is adopted: it is
// reported as running but never signalled. Only a process this manager
// spawned is ever terminated by Stop.
type ServerManager struct {
	config Config
	client *Client
	logger zerolog.Logger

	mu      sync.RWMutex
	status  ServerStatus
	errMsg  string
	cmd     *exec.Cmd
	exited  chan struct{}
	stderr  *outputLogger
	adopted bool

	startGroup   singleflight.Group
	pollInterval time.Duration

	listenersMu sync.RWMutex
	listeners   []StateChangeFunc
}

// NewServerManager creates a manager in the stopped state
func NewServerManager(config Config, logger zerolog.Logger) *ServerManager {
	return &ServerManager{
		config:       config,
		client:       NewClient(config.Port),
		logger:       logger.With().Str("component", "browsy.server").Int("port", config.Port).Logger(),
		status:       StatusStopped,
		pollInterval: healthPollInterval,
	}
}

// OnStateChange registers a listener called after every status transition
func (sm *ServerManager) OnStateChange(fn StateChangeFunc) {
	sm.listenersMu.Lock()
	defer sm.listenersMu.Unlock()
	sm.listeners = append(sm.listeners, fn)
}

// Start makes sure a healthy browsy server is listening on the configured
// port, spawning one if needed. It is a no-op when already running.
//
// Concurrent calls share a single start attempt. A caller whose ctx is
// cancelled stops waiting, but the shared attempt keeps running until it
// succeeds or its readiness deadline passes.
func (sm *ServerManager) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if sm.IsRunning() {
		return nil
	}

	attemptCtx := context.WithoutCancel(ctx)
	ch := sm.startGroup.DoChan("start", func() (interface{}, error) {
		return nil, sm.start(attemptCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (sm *ServerManager) start(ctx context.Context) error {
	ctx, span := tracing.StartSpan(
		ctx,
		"browsy.server",
		"server.start",
		attribute.Int("port", sm.config.Port),
	)
	defer span.End()

	if sm.IsRunning() {
		return nil
	}

	began := time.Now()
	err := sm.launch(ctx, began.Add(sm.config.ServerTimeout()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		result := ErrorCode(err)
		if result == "" {
			result = "error"
		}
		observability.RecordServerStart(result, time.Since(began))
		return err
	}

	observability.RecordServerStart("ok", time.Since(began))
	return nil
}

func (sm *ServerManager) launch(ctx context.Context, deadline time.Time) error {
	port := sm.config.Port

	// A child left over from a timed-out start is still ours: keep waiting on
	// it instead of spawning a second one
	sm.mu.RLock()
	pending, pendingExited := sm.cmd, sm.exited
	sm.mu.RUnlock()
	if pending != nil {
		sm.transition(StatusStarting, "", true)
		sm.logger.Info().
			Int("pid", pending.Process.Pid).
			Msg("Waiting on browsy server from an earlier start")
		return sm.waitForReady(ctx, pending, deadline, pendingExited)
	}

	// Something already listens: adopt it if it is browsy, refuse otherwise
	if IsPortInUse(ctx, port) {
		probeCtx, cancel := context.WithTimeout(ctx, adoptProbeTimeout)
		res, err := sm.client.Health(probeCtx)
		cancel()
		if err == nil && res.OK {
			sm.mu.Lock()
			sm.adopted = true
			sm.mu.Unlock()
			sm.transition(StatusRunning, "", false)
			sm.logger.Info().Msg("Adopted browsy server already running on port")
			return nil
		}

		return sm.fail(&Error{
			Code:    ErrCodePortConflict,
			Message: fmt.Sprintf("Port %d is already in use by another process", port),
		})
	}

	binary, err := FindBinary(sm.config.BinaryPath)
	if err != nil {
		if e, ok := err.(*Error); ok {
			return sm.fail(e)
		}
		return sm.fail(&Error{Code: ErrCodeBinaryNotFound, Message: err.Error(), Err: err})
	}

	sm.transition(StatusStarting, "", true)

	args := ServeArgs(sm.config)
	cmd := exec.Command(binary, args...)
	stdout := newOutputLogger(sm.logger, "stdout")
	stderr := newOutputLogger(sm.logger, "stderr")
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = stopGracePeriod

	sm.logger.Info().
		Str("binary", binary).
		Strs("args", args).
		Msg("Spawning browsy server")

	if err := cmd.Start(); err != nil {
		return sm.fail(&Error{Code: ErrCodeSpawnFailed, Message: err.Error(), Err: err})
	}

	exited := make(chan struct{})
	sm.mu.Lock()
	sm.cmd = cmd
	sm.exited = exited
	sm.stderr = stderr
	sm.adopted = false
	sm.mu.Unlock()

	go sm.monitor(cmd, exited)

	return sm.waitForReady(ctx, cmd, deadline, exited)
}

// monitor reaps the child and records unexpected exits
func (sm *ServerManager) monitor(cmd *exec.Cmd, exited chan struct{}) {
	waitErr := cmd.Wait()
	defer close(exited)

	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}

	sm.mu.Lock()
	if sm.cmd != cmd {
		// Stopped on purpose
		sm.mu.Unlock()
		return
	}
	sm.cmd = nil
	current := sm.status
	sm.mu.Unlock()

	event := sm.logger.Warn().Int("exit_code", code)
	if waitErr != nil {
		event = event.Err(waitErr)
	}
	event.Msg("browsy server exited")

	if current == StatusError {
		return
	}
	if code > 0 {
		sm.transition(StatusError, fmt.Sprintf("browsy exited with code %d", code), false)
		return
	}
	sm.transition(StatusStopped, "", false)
}

// waitForReady polls /health until it answers or the deadline passes
func (sm *ServerManager) waitForReady(ctx context.Context, cmd *exec.Cmd, deadline time.Time, exited <-chan struct{}) error {
	ticker := time.NewTicker(sm.pollInterval)
	defer ticker.Stop()
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case <-exited:
			return sm.exitedDuringStartup()
		default:
		}

		reqCtx, cancel := context.WithDeadline(ctx, deadline)
		res, err := sm.client.Health(reqCtx)
		cancel()
		if err == nil && res.OK {
			return sm.markReady(cmd)
		}

		select {
		case <-exited:
			return sm.exitedDuringStartup()
		case <-ticker.C:
		case <-timer.C:
			return sm.fail(&Error{
				Code:    ErrCodeStartupTimeout,
				Message: fmt.Sprintf("browsy server did not become ready within %dms", sm.config.ServerTimeoutMs),
			})
		}
	}
}

func (sm *ServerManager) markReady(cmd *exec.Cmd) error {
	sm.mu.RLock()
	current := sm.status
	owned := sm.cmd == cmd
	sm.mu.RUnlock()

	if current != StatusStarting || !owned {
		return &Error{
			Code:    ErrCodeProcessExit,
			Message: "browsy server was stopped before it became ready",
		}
	}

	sm.transition(StatusRunning, "", false)
	sm.logger.Info().Int("pid", cmd.Process.Pid).Msg("browsy server ready")
	return nil
}

func (sm *ServerManager) exitedDuringStartup() error {
	sm.mu.RLock()
	current := sm.status
	msg := sm.errMsg
	var tail []string
	if sm.stderr != nil {
		tail = sm.stderr.Tail()
	}
	sm.mu.RUnlock()

	if current != StatusError || msg == "" {
		msg = "browsy exited before becoming ready"
	}
	if len(tail) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, tail[len(tail)-1])
	}

	return sm.fail(&Error{Code: ErrCodeProcessExit, Message: msg})
}

// fail moves the manager to the error state and returns e
func (sm *ServerManager) fail(e *Error) error {
	sm.transition(StatusError, e.Message, false)
	sm.logger.Error().Str("code", e.Code).Msg(e.Message)
	return e
}

// transition sets the status. The error message is replaced when the new
// status is an error or when clearError is set.
func (sm *ServerManager) transition(to ServerStatus, errMsg string, clearError bool) {
	sm.mu.Lock()
	from := sm.status
	sm.status = to
	if to == StatusError {
		sm.errMsg = errMsg
	} else if clearError {
		sm.errMsg = ""
	}
	sm.mu.Unlock()

	observability.SetServerStatus(string(to))

	if from == to {
		return
	}

	info := sm.Status()
	sm.listenersMu.RLock()
	listeners := append([]StateChangeFunc(nil), sm.listeners...)
	sm.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(from, to, info)
	}
}

// Stop terminates the server if this manager spawned it. An adopted server is
// left alone and only the local state is reset.
func (sm *ServerManager) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	sm.mu.Lock()
	cmd := sm.cmd
	exited := sm.exited
	sm.cmd = nil
	sm.adopted = false
	sm.mu.Unlock()

	if cmd == nil {
		sm.transition(StatusStopped, "", false)
		return nil
	}

	sm.logger.Info().Int("pid", cmd.Process.Pid).Msg("Stopping browsy server")

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
	}

	timer := time.NewTimer(stopGracePeriod)
	defer timer.Stop()
	select {
	case <-exited:
	case <-timer.C:
		sm.logger.Warn().Int("pid", cmd.Process.Pid).Msg("browsy server ignored SIGTERM, killing")
		_ = cmd.Process.Kill()
		<-exited
	case <-ctx.Done():
		_ = cmd.Process.Kill()
	}

	sm.transition(StatusStopped, "", true)
	return nil
}

// Restart stops then starts the server and returns the resulting status
func (sm *ServerManager) Restart(ctx context.Context) (ServerInfo, error) {
	if err := sm.Stop(ctx); err != nil {
		return sm.Status(), err
	}
	err := sm.Start(ctx)
	return sm.Status(), err
}

// IsRunning reports whether the server is in the running state
func (sm *ServerManager) IsRunning() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.status == StatusRunning
}

// Status returns a snapshot of the manager state
func (sm *ServerManager) Status() ServerInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	info := ServerInfo{
		Status: sm.status,
		Port:   sm.config.Port,
		Error:  sm.errMsg,
		Owned:  sm.cmd != nil,
	}
	if sm.cmd != nil && sm.cmd.Process != nil {
		info.PID = sm.cmd.Process.Pid
	}
	return info
}

// Adopted reports whether the running server was found rather than spawned
func (sm *ServerManager) Adopted() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.adopted
}

// CheckHealth probes /health once. It does not change the manager state.
func (sm *ServerManager) CheckHealth(ctx context.Context) error {
	if !sm.IsRunning() {
		return &Error{
			Code:    ErrCodeProcessExit,
			Message: "browsy server not running",
		}
	}

	res, err := sm.client.Health(ctx)
	if err != nil {
		return err
	}
	if !res.OK {
		return fmt.Errorf("browsy health check returned %d: %s", res.Status, strings.TrimSpace(res.Body))
	}
	return nil
}
