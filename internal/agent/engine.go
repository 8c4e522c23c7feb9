package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-agent/internal/llm"
	"github.com/capitalize-ai/support-agent/internal/model"
	"github.com/capitalize-ai/support-agent/pkg/logger"
	"github.com/capitalize-ai/support-agent/pkg/metrics"
)

// Config holds workflow policy.
type Config struct {
	GenerationModel       string
	UtilityModel          string
	CacheTTL              time.Duration
	TopK                  int
	MaxChatHistory        int
	GenerationMaxAttempts int
	RunLease              time.Duration
	// RetryInitialInterval is the first generation retry delay.
	RetryInitialInterval time.Duration
}

func (c *Config) setDefaults() {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 24 * time.Hour
	}
	if c.TopK <= 0 {
		c.TopK = 4
	}
	if c.MaxChatHistory <= 0 {
		c.MaxChatHistory = 10
	}
	if c.GenerationMaxAttempts <= 0 {
		c.GenerationMaxAttempts = 3
	}
	if c.RunLease <= 0 {
		c.RunLease = 10 * time.Minute
	}
	if c.RetryInitialInterval <= 0 {
		c.RetryInitialInterval = 500 * time.Millisecond
	}
}

// Deps are the engine's collaborators. Every call through them carries the
// run's tenant ID.
type Deps struct {
	Checkpoints CheckpointStore
	History     HistoryStore
	Tickets     TicketRegistry
	Cache       CacheGateway
	Retriever   RetrievalGateway
	// Generator streams answers; Utility reformulates and assesses.
	Generator llm.Client
	Utility   llm.Client
	Logger    *logger.Logger
}

// Engine runs the support workflow over checkpointed thread state.
type Engine struct {
	deps   Deps
	cfg    Config
	logger *logger.Logger
	tracer trace.Tracer
	now    func() time.Time
	newID  func() string
}

// New creates an engine.
func New(deps Deps, cfg Config) *Engine {
	cfg.setDefaults()
	if deps.Utility == nil {
		deps.Utility = deps.Generator
	}
	log := deps.Logger
	if log == nil {
		log = logger.Global()
	}

	return &Engine{
		deps:   deps,
		cfg:    cfg,
		logger: log,
		tracer: otel.Tracer("github.com/capitalize-ai/support-agent/internal/agent"),
		now:    func() time.Time { return time.Now().UTC() },
		newID: func() string {
			if id, err := uuid.NewV7(); err == nil {
				return id.String()
			}
			return uuid.NewString()
		},
	}
}

// run is the working set of one execution on a thread.
type run struct {
	state   model.AgentState
	version int64
	out     Emitter
	log     *logger.Logger
	pending []model.Event
	// streamed is set once a token of the answer reached the emitter.
	streamed bool
}

// notify queues ev until the next checkpoint is durable.
func (r *run) notify(ev model.Event) {
	r.pending = append(r.pending, ev)
}

func (r *run) flush() {
	for _, ev := range r.pending {
		r.out.Emit(ev)
	}
	r.pending = nil
}

func (r *run) result() *RunResult {
	return &RunResult{Status: r.state.Status, Node: r.state.CurrentNode, Version: r.version}
}

// Execution is a run whose INIT checkpoint is durable.
type Execution struct {
	engine *Engine
	run    *run
	// err is a failure after the claim; Continue fails the run with it.
	err error
}

// Start validates req and performs INIT. An error means the message was not
// accepted and nothing was emitted to out; the caller reports it directly.
// On success the caller must call Continue.
func (e *Engine) Start(ctx context.Context, req Request, out Emitter) (*Execution, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	log := e.logger.ForThread(req.TenantID, req.ThreadID)

	r, err := e.start(ctx, req, out, log)
	if err != nil && r == nil {
		if errors.Is(err, model.ErrConcurrentResumeConflict) {
			log.Info("run rejected", zap.Error(err))
		} else {
			log.Error("run could not start", zap.Error(err))
			metrics.RunsTotal.WithLabelValues(req.TenantID, string(model.RunFailed)).Inc()
		}
		return nil, err
	}
	return &Execution{engine: e, run: r, err: err}, nil
}

// Continue executes the workflow from INIT to a stop node. The end event is
// always emitted last.
func (x *Execution) Continue(ctx context.Context) (*RunResult, error) {
	r := x.run
	defer r.out.Emit(model.EndEvent())

	if x.err != nil {
		return x.engine.fail(ctx, r, x.err)
	}
	if r.state.Status == model.RunPaused {
		r.log.Info("message recorded on thread awaiting human")
		return r.result(), nil
	}
	return x.engine.drive(ctx, r, model.NodeCacheCheck)
}

// Run is Start followed by Continue. A rejected message yields only the end
// event; a store failure before the claim yields an apology first.
func (e *Engine) Run(ctx context.Context, req Request, out Emitter) (*RunResult, error) {
	x, err := e.Start(ctx, req, out)
	if err != nil {
		if !Rejected(err) {
			out.Emit(model.ErrorEvent(ApologyMessage))
		}
		out.Emit(model.EndEvent())
		return nil, err
	}
	return x.Continue(ctx)
}

// Rejected reports whether err refuses the caller's input or a busy thread,
// as opposed to a failure of the service.
func Rejected(err error) bool {
	return errors.Is(err, ErrInvalidUtterance) ||
		errors.Is(err, model.ErrAuthTrustViolation) ||
		errors.Is(err, model.ErrConcurrentResumeConflict)
}

// start performs INIT: it claims the thread with a version-checked save that
// records the user message, then appends the user turn to history. A non-nil
// run with an error means the claim succeeded and the run must be failed.
func (e *Engine) start(ctx context.Context, req Request, out Emitter, log *logger.Logger) (*run, error) {
	cp, err := e.deps.Checkpoints.Load(ctx, req.TenantID, req.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	r := &run{out: out, log: log}
	if cp != nil {
		if e.leased(cp) {
			return nil, fmt.Errorf("%w: run in progress since %s", model.ErrConcurrentResumeConflict, cp.UpdatedAt.Format(time.RFC3339))
		}
		r.state = cp.State
		r.version = cp.Version
		if cp.State.ResolvedByHuman && cp.State.Status == model.RunRunning {
			log.Warn("reopening interrupted resolution", zap.Time("updated_at", cp.UpdatedAt))
			r.state = awaitingResolution(cp.State)
		}
	} else {
		r.state = model.AgentState{TenantID: req.TenantID, ThreadID: req.ThreadID}
	}

	r.state.Messages = r.state.Messages.Append(model.Message{
		ID:        e.newID(),
		Sender:    model.SenderUser,
		Content:   req.Utterance,
		CreatedAt: e.now(),
	})

	awaitingHuman := r.state.Status == model.RunPaused && r.state.CurrentNode == model.NodeEscalateWait
	if awaitingHuman {
		r.notify(model.StatusEvent("Waiting for a support agent"))
		r.notify(model.EscalationEvent(BridgeMessage))
	} else {
		resetRun(&r.state, req.Utterance)
	}

	v, err := e.deps.Checkpoints.Save(ctx, r.state, r.version)
	if err != nil {
		return nil, fmt.Errorf("failed to claim thread: %w", err)
	}
	r.version = v

	if err := e.syncHistory(ctx, r); err != nil {
		return r, fmt.Errorf("failed to record user turn: %w", err)
	}
	r.flush()

	return r, nil
}

// resetRun clears the per-run fields of a carried-over state.
func resetRun(s *model.AgentState, utterance string) {
	s.Utterance = utterance
	s.RephrasedQuestion = ""
	s.RetrievedContext = nil
	s.DraftAnswer = ""
	s.ConfidenceScore = nil
	s.CacheHit = false
	s.ResolvedByHuman = false
	s.CurrentNode = model.NodeInit
	s.Status = model.RunRunning
}

// drive executes nodes from node until a stop node is reached.
func (e *Engine) drive(ctx context.Context, r *run, node model.Node) (*RunResult, error) {
	var cause error

	for !isStop(node) {
		r.state.CurrentNode = node
		if phase, ok := phases[node]; ok {
			r.notify(model.StatusEvent(phase))
		}
		if err := e.checkpoint(ctx, r); err != nil {
			return e.fail(ctx, r, err)
		}

		o, err := e.exec(ctx, r, node)
		to, terr := next(node, o)
		if terr != nil {
			return e.fail(ctx, r, terr)
		}
		if o == outcomeError {
			cause = err
		}
		node = to
	}

	switch node {
	case model.NodeDone:
		return e.finish(ctx, r)
	case model.NodeEscalateWait:
		return e.pause(ctx, r)
	default:
		if cause == nil {
			cause = errors.New("run reached FAILED")
		}
		return e.fail(ctx, r, cause)
	}
}

// exec runs one node inside its own span and records its outcome.
func (e *Engine) exec(ctx context.Context, r *run, node model.Node) (outcome, error) {
	ctx, span := e.tracer.Start(ctx, "agent."+string(node), trace.WithAttributes(
		attribute.String("tenant_id", r.state.TenantID),
		attribute.String("thread_id", r.state.ThreadID),
	))
	defer span.End()

	start := time.Now()
	var o outcome
	var err error

	switch node {
	case model.NodeCacheCheck:
		o, err = e.cacheCheck(ctx, r)
	case model.NodeReformulate:
		o, err = e.reformulate(ctx, r)
	case model.NodeRetrieve:
		o, err = e.retrieve(ctx, r)
	case model.NodeGenerate:
		o, err = e.generate(ctx, r)
	case model.NodeAssess:
		o, err = e.assess(ctx, r)
	case model.NodeCacheUpdate:
		o, err = e.cacheUpdate(ctx, r)
	case model.NodeEscalate:
		o, err = e.escalate(ctx, r)
	default:
		o, err = outcomeError, fmt.Errorf("node %s is not executable", node)
	}

	metrics.RecordNode(string(node), string(o), time.Since(start).Seconds())
	span.SetAttributes(attribute.String("outcome", string(o)))
	if err != nil {
		span.RecordError(err)
		if o == outcomeError {
			span.SetStatus(codes.Error, err.Error())
		}
		r.log.Warn("node did not succeed",
			zap.String("node", string(node)),
			zap.String("outcome", string(o)),
			zap.Error(err),
		)
	}

	return o, err
}

// checkpoint saves the state, then appends unrecorded messages to history,
// then delivers queued events.
func (e *Engine) checkpoint(ctx context.Context, r *run) error {
	v, err := e.deps.Checkpoints.Save(ctx, r.state, r.version)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint at %s: %w", r.state.CurrentNode, err)
	}
	r.version = v

	if err := e.syncHistory(ctx, r); err != nil {
		// The next run or resume on the thread appends what is missing.
		r.log.Error("history append failed", zap.String("node", string(r.state.CurrentNode)), zap.Error(err))
	}

	r.flush()
	return nil
}

// syncHistory appends messages[Recorded:] to the History Store. Messages that
// an interrupted earlier sync already appended are skipped.
func (e *Engine) syncHistory(ctx context.Context, r *run) error {
	pending := r.state.Messages.Since(r.state.Recorded)
	if len(pending) == 0 {
		return nil
	}

	last, err := e.deps.History.Last(ctx, r.state.TenantID, r.state.ThreadID)
	if err != nil {
		return err
	}
	if last != nil {
		for i, m := range pending {
			if m.ID == last.ID {
				r.state.Recorded += i + 1
				pending = pending[i+1:]
				break
			}
		}
	}

	for _, m := range pending {
		if _, err := e.deps.History.Append(ctx, m.Turn(r.state.TenantID, r.state.ThreadID)); err != nil {
			return err
		}
		r.state.Recorded++
		metrics.TurnsTotal.WithLabelValues(r.state.TenantID, string(m.Sender)).Inc()
	}
	return nil
}

// leased reports whether another process may still be executing cp.
func (e *Engine) leased(cp *model.Checkpoint) bool {
	return cp.State.Status == model.RunRunning && e.now().Sub(cp.UpdatedAt) < e.cfg.RunLease
}

// finish performs DONE, failing the run if the terminal checkpoint is lost.
func (e *Engine) finish(ctx context.Context, r *run) (*RunResult, error) {
	if err := e.complete(ctx, r); err != nil {
		return e.fail(ctx, r, err)
	}

	metrics.RunsTotal.WithLabelValues(r.state.TenantID, string(model.RunDone)).Inc()
	r.log.Info("run done", zap.Bool("cache_hit", r.state.CacheHit), zap.Bool("resolved_by_human", r.state.ResolvedByHuman))
	return r.result(), nil
}

// complete saves the DONE checkpoint. The agent turn is recorded only once it
// is durable.
func (e *Engine) complete(ctx context.Context, r *run) error {
	r.state.CurrentNode = model.NodeDone
	r.state.Status = model.RunDone
	r.state.Messages = r.state.Messages.Append(model.Message{
		ID:        e.newID(),
		Sender:    model.SenderAgent,
		Content:   r.state.DraftAnswer,
		CreatedAt: e.now(),
	})
	if r.state.CacheHit {
		r.notify(model.TokenEvent(r.state.DraftAnswer))
	}

	return e.checkpoint(ctx, r)
}

// pause parks the run at ESCALATE_WAIT until a human resolves it.
func (e *Engine) pause(ctx context.Context, r *run) (*RunResult, error) {
	r.state.CurrentNode = model.NodeEscalateWait
	r.state.Status = model.RunPaused

	if err := e.checkpoint(ctx, r); err != nil {
		return e.fail(ctx, r, err)
	}

	metrics.RunsTotal.WithLabelValues(r.state.TenantID, string(model.RunPaused)).Inc()
	r.log.Info("run paused for human resolution")
	return r.result(), nil
}

// fail marks the run FAILED and tells the client. Undelivered events are dropped.
func (e *Engine) fail(ctx context.Context, r *run, cause error) (*RunResult, error) {
	r.log.Error("run failed", zap.String("node", string(r.state.CurrentNode)), zap.Error(cause))

	r.pending = nil
	r.state.CurrentNode = model.NodeFailed
	r.state.Status = model.RunFailed
	if v, err := e.deps.Checkpoints.Save(ctx, r.state, r.version); err != nil {
		r.log.Error("failed to persist failed run", zap.Error(err))
	} else {
		r.version = v
	}

	r.out.Emit(model.ErrorEvent(ApologyMessage))
	metrics.RunsTotal.WithLabelValues(r.state.TenantID, string(model.RunFailed)).Inc()
	return r.result(), cause
}
