package browsy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/harun/browsy/internal/observability"
	"github.com/harun/browsy/internal/tracing"
	"github.com/harun/browsy/pkg/commandqueue"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Options configures optional collaborators of a BrowsyContext
type Options struct {
	// Logger defaults to the global zerolog logger
	Logger *zerolog.Logger
	// Queue runs per-agent lanes. A private queue is created when nil.
	Queue *commandqueue.CommandQueue
}

// BrowsyContext is the single entry point for driving browsy. It ties the
// server manager, the REST client and the session store together.
//
// Construct one with New, hold on to it, and call Close when done. There is
// no package-level instance.
type BrowsyContext struct {
	mu        sync.RWMutex
	config    Config
	client    *Client
	server    *ServerManager
	sessions  *SessionStore
	listeners []StateChangeFunc
	closed    bool

	// generation changes whenever the server is replaced
	generation uint64

	queue     *commandqueue.CommandQueue
	ownsQueue bool
	logger    zerolog.Logger
}

// New validates cfg and builds a context. Nothing is started yet.
func New(cfg Config, opts Options) (*BrowsyContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	logger = logger.With().Str("component", "browsy").Logger()

	bc := &BrowsyContext{
		config:   cfg,
		client:   NewClient(cfg.Port),
		sessions: NewSessionStore(),
		queue:    opts.Queue,
		logger:   logger,
	}
	if bc.queue == nil {
		bc.queue = commandqueue.New()
		bc.ownsQueue = true
	}
	bc.server = bc.newServerManager(cfg)

	return bc, nil
}

func (bc *BrowsyContext) newServerManager(cfg Config) *ServerManager {
	sm := NewServerManager(cfg, bc.logger)
	sm.OnStateChange(bc.dispatchStateChange)
	return sm
}

func (bc *BrowsyContext) dispatchStateChange(from, to ServerStatus, info ServerInfo) {
	bc.mu.RLock()
	listeners := append([]StateChangeFunc(nil), bc.listeners...)
	bc.mu.RUnlock()

	for _, fn := range listeners {
		fn(from, to, info)
	}
}

// OnServerStateChange registers a listener that survives Reconfigure
func (bc *BrowsyContext) OnServerStateChange(fn StateChangeFunc) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	bc.listeners = append(bc.listeners, fn)
}

// Config returns the active configuration
func (bc *BrowsyContext) Config() Config {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.config
}

// Server returns the active server manager
func (bc *BrowsyContext) Server() *ServerManager {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.server
}

// Sessions returns the session store
func (bc *BrowsyContext) Sessions() *SessionStore {
	return bc.sessions
}

// Queue returns the command queue used for per-agent lanes
func (bc *BrowsyContext) Queue() *commandqueue.CommandQueue {
	return bc.queue
}

// Status returns the server status snapshot
func (bc *BrowsyContext) Status() ServerInfo {
	return bc.Server().Status()
}

// Reconfigure applies a new configuration. When the port, private-network
// policy or binary path change, the owned server is stopped and every session
// is dropped because its token belongs to the old server.
func (bc *BrowsyContext) Reconfigure(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	bc.mu.Lock()
	if bc.closed {
		bc.mu.Unlock()
		return ErrClosed
	}
	old := bc.config
	oldServer := bc.server
	bc.config = cfg

	restart := old.Port != cfg.Port ||
		old.AllowPrivateNetwork != cfg.AllowPrivateNetwork ||
		old.BinaryPath != cfg.BinaryPath ||
		old.ServerTimeoutMs != cfg.ServerTimeoutMs
	if restart {
		bc.client = NewClient(cfg.Port)
		bc.server = bc.newServerManager(cfg)
		bc.generation++
	}
	bc.mu.Unlock()

	observability.RecordConfigAudit(ctx, "browsy.reconfigure", "bridge", map[string]interface{}{
		"port":           cfg.Port,
		"restart_server": restart,
	})

	if !restart {
		bc.logger.Info().Msg("browsy configuration updated")
		return nil
	}

	bc.logger.Info().
		Int("old_port", old.Port).
		Int("new_port", cfg.Port).
		Msg("browsy configuration changed, replacing server manager")

	bc.sessions.Clear()
	observability.SetActiveSessions(0)

	return oldServer.Stop(ctx)
}

// EnsureServer starts the server unless it is already running
func (bc *BrowsyContext) EnsureServer(ctx context.Context) error {
	bc.mu.RLock()
	closed := bc.closed
	server := bc.server
	bc.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if server.IsRunning() {
		return nil
	}
	return server.Start(ctx)
}

// ExecuteOperation runs a named operation for an agent and returns the text
// the agent should see. Upstream failures come back as text. Only bridge
// failures are returned as errors: an unknown operation, bad parameters, a
// transport error or a server that could not be started.
func (bc *BrowsyContext) ExecuteOperation(ctx context.Context, name string, params map[string]any, agentID string) (string, error) {
	return bc.executeNamed(ctx, name, params, agentID, "")
}

// ExecuteIdempotent is ExecuteOperation for callers that may retry. A repeat
// call with the same agent and key inside the dedup window returns the first
// result without contacting browsy again.
func (bc *BrowsyContext) ExecuteIdempotent(ctx context.Context, name string, params map[string]any, agentID, key string) (string, error) {
	return bc.executeNamed(ctx, name, params, agentID, key)
}

func (bc *BrowsyContext) executeNamed(ctx context.Context, name string, params map[string]any, agentID, dedupKey string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !IsKnownOperation(name) {
		observability.RecordOperation(name, ErrCodeUnknownOperation, 0)
		return "", &Error{
			Code:    ErrCodeUnknownOperation,
			Message: "Unknown browsy method: " + name,
		}
	}

	op, err := ParseOperation(name, params)
	if err != nil {
		observability.RecordOperation(name, statusFor(err), 0)
		return "", err
	}

	if err := bc.EnsureServer(ctx); err != nil {
		observability.RecordOperation(name, statusFor(err), 0)
		return "", err
	}

	return bc.run(ctx, op, agentID, dedupKey)
}

// Execute runs a typed operation for an agent
func (bc *BrowsyContext) Execute(ctx context.Context, op Operation, agentID string) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := bc.EnsureServer(ctx); err != nil {
		observability.RecordOperation(string(op.Name()), statusFor(err), 0)
		return "", err
	}
	return bc.run(ctx, op, agentID, "")
}

// run serializes the request on the agent's lane so each request carries the
// token returned by the previous one.
func (bc *BrowsyContext) run(ctx context.Context, op Operation, agentID, dedupKey string) (string, error) {
	if agentID == "" {
		agentID = DefaultAgentID
	}
	name := string(op.Name())
	lane := laneFor(agentID)

	var opts *commandqueue.TaskOptions
	if dedupKey != "" {
		opts = &commandqueue.TaskOptions{DedupKey: lane + ":" + dedupKey}
	}

	ctx = tracing.NewOperationContext(ctx, agentID, name)
	ctx, span := tracing.StartSpan(
		ctx,
		"browsy.context",
		"browsy.execute",
		attribute.String("operation", name),
		attribute.String("agent_id", agentID),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, bc.logger)
	started := time.Now()

	bc.mu.RLock()
	client := bc.client
	generation := bc.generation
	bc.mu.RUnlock()

	value, err := bc.queue.EnqueueWithContext(ctx, lane, func(taskCtx context.Context) (interface{}, error) {
		session := bc.sessions.GetOrCreate(agentID)
		observability.SetActiveSessions(bc.sessions.Count())

		res, err := client.Do(taskCtx, op, session.Token)
		if err != nil {
			return nil, err
		}
		if res.Session != "" && !bc.recordToken(agentID, res.Session, generation) {
			logger.Debug().Msg("Dropping session token from replaced browsy server")
		}
		return res, nil
	}, opts)

	duration := time.Since(started)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordOperation(name, statusFor(err), duration)
		observability.RecordOperationAudit(ctx, name, agentID, "failure", map[string]interface{}{
			"error": err.Error(),
		})
		logger.Error().Err(err).Dur("duration", duration).Msg("browsy operation failed")
		return "", err
	}

	res := value.(*Response)
	status := "ok"
	if !res.OK {
		status = "upstream_error"
		span.SetStatus(codes.Error, "upstream error")
	}
	observability.RecordOperation(name, status, duration)
	observability.RecordOperationAudit(ctx, name, agentID, auditStatus(res.OK), map[string]interface{}{
		"status_code": res.Status,
	})

	logger.Debug().
		Int("status_code", res.Status).
		Bool("ok", res.OK).
		Dur("duration", duration).
		Msg("browsy operation completed")

	return res.Text(), nil
}

// recordToken stores a token unless the server that issued it has been
// replaced since the request was sent
func (bc *BrowsyContext) recordToken(agentID, token string, generation uint64) bool {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	if bc.generation != generation {
		return false
	}
	bc.sessions.Update(agentID, token)
	return true
}

// Restart stops the server and starts it again
func (bc *BrowsyContext) Restart(ctx context.Context) (ServerInfo, error) {
	bc.mu.RLock()
	closed := bc.closed
	server := bc.server
	bc.mu.RUnlock()

	if closed {
		return ServerInfo{}, ErrClosed
	}
	return server.Restart(ctx)
}

// RemoveSession forgets an agent's session and drops its idle lane
func (bc *BrowsyContext) RemoveSession(agentID string) bool {
	removed := bc.sessions.Remove(agentID)
	if removed {
		bc.queue.DropLane(laneFor(agentID))
		observability.SetActiveSessions(bc.sessions.Count())
	}
	return removed
}

// Close stops an owned server and releases the queue. It is safe to call twice.
func (bc *BrowsyContext) Close(ctx context.Context) error {
	bc.mu.Lock()
	if bc.closed {
		bc.mu.Unlock()
		return nil
	}
	bc.closed = true
	server := bc.server
	bc.mu.Unlock()

	err := server.Stop(ctx)
	if bc.ownsQueue {
		err = errors.Join(err, bc.queue.Close())
	}
	return err
}

func laneFor(agentID string) string {
	return "agent:" + agentID
}

func statusFor(err error) string {
	if code := ErrorCode(err); code != "" {
		return code
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "cancelled"
	}
	return "error"
}

func auditStatus(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
