package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/agentflow/pkg/agent/tools"
	"github.com/randalmurphal/agentflow/pkg/config"
	"github.com/randalmurphal/agentflow/pkg/flowgraph"
	"github.com/randalmurphal/agentflow/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/agentflow/pkg/flowgraph/llm"
)

// Engine errors.
var (
	// ErrEmptySessionID indicates a call without a session ID.
	ErrEmptySessionID = errors.New("session ID cannot be empty")

	// ErrSessionNotFound indicates the session has no checkpoint.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoPendingApproval indicates Approve was called on a session that
	// is not awaiting approval.
	ErrNoPendingApproval = errors.New("no pending approval")
)

// GraphName labels the agent's runs in logs, metrics and traces.
const GraphName = "agent"

// Engine runs the agent graph for sessions whose state lives in a
// checkpoint store. One run per session is active at a time; distinct
// sessions run concurrently.
type Engine struct {
	graph      *flowgraph.CompiledGraph[StateRecord]
	store      checkpoint.Store
	locker     checkpoint.Locker
	logger     *slog.Logger
	stepBudget int
	runOpts    []flowgraph.RunOption
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	policy            Policy
	classifier        Classifier
	classifierTimeout time.Duration
	tools             *tools.Registry
	locker            checkpoint.Locker
	logger            *slog.Logger
	stepBudget        int
	now               func() time.Time
	runOpts           []flowgraph.RunOption
}

// WithPolicy sets retry, approval and confidence policy.
func WithPolicy(p Policy) Option {
	return func(c *engineConfig) { c.policy = p }
}

// WithClassifier sets the primary classifier. The rule table backs it up.
func WithClassifier(cl Classifier, timeout time.Duration) Option {
	return func(c *engineConfig) {
		c.classifier = cl
		c.classifierTimeout = timeout
	}
}

// WithTools sets the tool registry.
// Default: the built-in tools without a language model.
func WithTools(r *tools.Registry) Option {
	return func(c *engineConfig) { c.tools = r }
}

// WithLocker sets the per-session locker.
// Default: an in-process LocalLocker.
func WithLocker(l checkpoint.Locker) Option {
	return func(c *engineConfig) { c.locker = l }
}

// WithLogger sets the logger for runs and nodes.
func WithLogger(l *slog.Logger) Option {
	return func(c *engineConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStepBudget bounds the node executions of one run.
func WithStepBudget(n int) Option {
	return func(c *engineConfig) { c.stepBudget = n }
}

// WithClock sets the time source for tool and history timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *engineConfig) { c.now = now }
}

// WithRunOptions passes extra options to every run, such as
// flowgraph.WithMetrics or flowgraph.WithTracing.
func WithRunOptions(opts ...flowgraph.RunOption) Option {
	return func(c *engineConfig) { c.runOpts = append(c.runOpts, opts...) }
}

// OptionsFromSettings translates configuration into engine options.
// client may be nil; when set it answers questions and, with the llm
// classifier selected, classifies intents.
func OptionsFromSettings(s config.Settings, client llm.Client) []Option {
	opts := []Option{
		WithPolicy(Policy{
			MaxRetries:        s.MaxRetries,
			ApprovalThreshold: s.ApprovalThreshold,
			MinConfidence:     s.MinConfidence,
			SensitiveActions:  s.SensitiveActions,
			Interactive:       s.InteractiveApproval,
		}),
		WithStepBudget(s.StepBudget),
		WithTools(tools.NewDefaultRegistry(s.ToolTimeout, client)),
		WithRunOptions(flowgraph.WithMetrics(s.Telemetry.Metrics), flowgraph.WithTracing(s.Telemetry.Tracing)),
	}
	if client != nil && s.Classifier == config.ClassifierLLM {
		opts = append(opts, WithClassifier(NewLLMClassifier(client), s.ClassifierTimeout))
	}
	return opts
}

// New creates an engine over store.
func New(store checkpoint.Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("agent: checkpoint store is required")
	}

	cfg := engineConfig{
		policy:     DefaultPolicy(),
		logger:     slog.Default(),
		stepBudget: flowgraph.DefaultStepBudget,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.tools == nil {
		cfg.tools = tools.NewDefaultRegistry(tools.DefaultTimeout, nil)
	}
	if cfg.locker == nil {
		cfg.locker = checkpoint.NewLocalLocker()
	}

	graph, err := buildGraph(&nodes{
		policy:     cfg.policy,
		classifier: NewFallbackClassifier(cfg.classifier, nil, cfg.classifierTimeout),
		tools:      cfg.tools,
		now:        cfg.now,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: build graph: %w", err)
	}

	return &Engine{
		graph:      graph,
		store:      store,
		locker:     cfg.locker,
		logger:     cfg.logger,
		stepBudget: cfg.stepBudget,
		runOpts:    cfg.runOpts,
	}, nil
}

// Process feeds input to a session and runs it until it completes,
// suspends for approval, or fails.
//
// A session awaiting approval stays suspended, whatever the input, until
// Approve records a decision; the next Process call then resumes it.
// Empty input on a finished session returns the stored result without
// running anything. New input on a finished session starts a new run that
// keeps the session's tool results, errors and history.
//
// Fatal run failures are returned as errors together with a Result whose
// status is TERMINATED_WITH_ERROR.
func (e *Engine) Process(ctx context.Context, sessionID, input string) (Result, error) {
	if sessionID == "" {
		return Result{}, ErrEmptySessionID
	}

	unlock, err := e.locker.Lock(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("lock session %s: %w", sessionID, err)
	}
	defer e.release(ctx, sessionID, unlock)

	snap, err := flowgraph.LoadSnapshot[StateRecord](ctx, e.store, sessionID)
	if errors.Is(err, flowgraph.ErrNoCheckpoint) {
		state := NewStateRecord(sessionID)
		state.beginTurn(input)
		return e.run(ctx, state)
	}
	if err != nil {
		return Result{}, err
	}

	switch snap.Status {
	case checkpoint.StatusInterrupted:
		if snap.State.ApprovalDecision == nil {
			return resultOf(viewOf(snap)), nil
		}
		return e.resume(ctx, sessionID)
	case checkpoint.StatusRunning:
		e.logger.Info("resuming interrupted run", "session_id", sessionID, "next_node", snap.NextNode)
		return e.resume(ctx, sessionID)
	default:
		if input == "" {
			return resultOf(viewOf(snap)), nil
		}
		state := snap.State
		state.beginTurn(input)
		return e.run(ctx, state)
	}
}

func (e *Engine) options(sessionID string) []flowgraph.RunOption {
	opts := []flowgraph.RunOption{
		flowgraph.WithCheckpointing(e.store),
		flowgraph.WithRunID(sessionID),
		flowgraph.WithStepBudget(e.stepBudget),
		flowgraph.WithCheckpointFailureFatal(true),
		flowgraph.WithObservabilityLogger(e.logger),
		flowgraph.WithGraphName(GraphName),
	}
	return append(opts, e.runOpts...)
}

func (e *Engine) run(ctx context.Context, state StateRecord) (Result, error) {
	fctx := flowgraph.NewContext(ctx, flowgraph.WithLogger(e.logger), flowgraph.WithContextRunID(state.SessionID))
	final, err := e.graph.Run(fctx, state, e.options(state.SessionID)...)
	return e.settle(final, err)
}

func (e *Engine) resume(ctx context.Context, sessionID string) (Result, error) {
	fctx := flowgraph.NewContext(ctx, flowgraph.WithLogger(e.logger), flowgraph.WithContextRunID(sessionID))
	final, err := e.graph.Resume(fctx, e.store, sessionID, e.options(sessionID)...)
	return e.settle(final, err)
}

// settle turns a run outcome into a Result.
func (e *Engine) settle(final StateRecord, err error) (Result, error) {
	switch {
	case err == nil:
		return resultOf(final), nil
	case flowgraph.IsInterrupt(err):
		final.Status = StatusAwaitingApproval
		return resultOf(final), nil
	default:
		final.Status = StatusTerminated
		final.FinalResponse = ""
		return resultOf(final), fmt.Errorf("agent run %s: %w", final.SessionID, err)
	}
}

func (e *Engine) release(ctx context.Context, sessionID string, unlock checkpoint.UnlockFunc) {
	if err := unlock(context.WithoutCancel(ctx)); err != nil {
		e.logger.Warn("session unlock failed", "session_id", sessionID, "error", err)
	}
}

// Approve records a decision for a session awaiting approval. The
// decision takes effect on the next Process call.
func (e *Engine) Approve(ctx context.Context, sessionID string, granted bool) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	unlock, err := e.locker.Lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("lock session %s: %w", sessionID, err)
	}
	defer e.release(ctx, sessionID, unlock)

	_, err = flowgraph.UpdateSnapshot(ctx, e.store, sessionID, func(s *flowgraph.Snapshot[StateRecord]) error {
		if s.Status != checkpoint.StatusInterrupted {
			return fmt.Errorf("%w: session %s is %s", ErrNoPendingApproval, sessionID, viewOf(s).Status)
		}
		s.State.ApprovalDecision = &granted
		return nil
	})
	if errors.Is(err, flowgraph.ErrNoCheckpoint) {
		return fmt.Errorf("%w: %w: %s", ErrNoPendingApproval, ErrSessionNotFound, sessionID)
	}
	return err
}

// Reset discards a session's state. The next Process call starts fresh.
func (e *Engine) Reset(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}

	unlock, err := e.locker.Lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("lock session %s: %w", sessionID, err)
	}
	defer e.release(ctx, sessionID, unlock)

	return e.store.Delete(ctx, sessionID)
}

// Snapshot returns a session's persisted state, with Status reflecting
// the checkpoint.
func (e *Engine) Snapshot(ctx context.Context, sessionID string) (StateRecord, error) {
	if sessionID == "" {
		return StateRecord{}, ErrEmptySessionID
	}
	snap, err := flowgraph.LoadSnapshot[StateRecord](ctx, e.store, sessionID)
	if errors.Is(err, flowgraph.ErrNoCheckpoint) {
		return StateRecord{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return StateRecord{}, err
	}
	return viewOf(snap), nil
}

// Sessions lists every stored session.
func (e *Engine) Sessions(ctx context.Context) ([]checkpoint.Info, error) {
	return e.store.List(ctx)
}

// Graph describes the agent graph.
func (e *Engine) Graph() flowgraph.Description {
	return e.graph.Describe()
}

// viewOf derives the caller-visible status from the checkpoint envelope.
func viewOf(snap *flowgraph.Snapshot[StateRecord]) StateRecord {
	s := snap.State
	switch snap.Status {
	case checkpoint.StatusInterrupted:
		s.Status = StatusAwaitingApproval
	case checkpoint.StatusFailed, checkpoint.StatusCancelled:
		s.Status = StatusTerminated
		s.FinalResponse = ""
	case checkpoint.StatusRunning:
		s.Status = StatusRunning
	}
	return s
}
