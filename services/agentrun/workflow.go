package agentrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"openpaws/pkg/db/option"
	"openpaws/pkg/db/pagination"
	"openpaws/pkg/errutil"
	"openpaws/pkg/logger"
	"openpaws/pkg/metrics"
	"openpaws/pkg/repository"
	"openpaws/pkg/tenancy"
	"openpaws/services/pipeline"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	errCancelled = errors.New("agent run cancelled")
	errShutdown  = errors.New("interrupted by shutdown")
	errStopped   = errors.New("agent run is no longer running")
)

type Settings struct {
	// WaitTimeout bounds how long a task stays parked on approval. Zero
	// waits until the process stops.
	WaitTimeout time.Duration
	// ExpireOnTimeout cancels the run when the wait times out instead of
	// leaving it awaiting approval.
	ExpireOnTimeout bool
}

// snapshot is stored in output_data. While a run is parked it holds the
// state and the node to resume at; once completed Next is empty.
type snapshot struct {
	Version int            `json:"version"`
	State   pipeline.State `json:"state"`
	Next    string         `json:"next,omitempty"`
}

type task struct {
	cancel context.CancelCauseFunc
}

// Workflow drives agent runs through their lifecycle. Pipelines execute in
// detached goroutines and report back only through run and step rows.
type Workflow struct {
	db       *gorm.DB
	node     *snowflake.Node
	runs     repository.Tenanted[AgentRun]
	steps    repository.Repository[AgentRunStep]
	registry *pipeline.Registry
	bus      SignalBus
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]*task
	wg       sync.WaitGroup
	closing  atomic.Bool
}

func NewWorkflow(db *gorm.DB, node *snowflake.Node, registry *pipeline.Registry, bus SignalBus, settings Settings) *Workflow {
	return &Workflow{
		db:       db,
		node:     node,
		runs:     repository.ProvideTenanted[AgentRun](db, "agent run"),
		steps:    repository.ProvideStore[AgentRunStep](db),
		registry: registry,
		bus:      bus,
		settings: settings,
		now:      func() time.Time { return time.Now().UTC() },
		inflight: make(map[string]*task),
	}
}

// Trigger validates the input, records the run and starts its pipeline.
// It returns once the run is running; the pipeline continues detached.
func (w *Workflow) Trigger(ctx context.Context, req TriggerRequest) (*AgentRun, error) {
	scope, err := tenancy.Require(ctx)
	if err != nil {
		return nil, err
	}
	if w.closing.Load() {
		return nil, errShuttingDown()
	}

	agent, err := w.registry.Lookup(req.AgentType)
	if err != nil {
		return nil, err
	}
	st, err := agent.Decode(req.InputData)
	if err != nil {
		return nil, err
	}

	run := &AgentRun{
		ID:            w.node.Generate().String(),
		TriggeredBy:   scope.CallerID,
		AgentType:     agent.Type(),
		SchemaVersion: SchemaVersion,
		Status:        StatusPending,
		InputData:     datatypes.JSON(req.InputData),
	}
	if err := w.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	now := w.now()
	ok, err := w.runs.Transition(ctx, run.ID, "status", []string{string(StatusPending)}, map[string]any{
		"status":     StatusRunning,
		"started_at": now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, w.conflict(ctx, run.ID)
	}
	run.Status = StatusRunning
	run.StartedAt = &now

	logger.FromContext(ctx, zap.String("run_id", run.ID), zap.String("agent_type", run.AgentType)).
		Info("agent run started")

	graph := agent.Graph()
	started := w.spawn(ctx, run, func(ctx context.Context) {
		rec := w.newRecorder(run, graph, 0)
		res, err := graph.Run(ctx, st, rec)
		w.drive(ctx, run, graph, rec, res, err)
	})
	if !started {
		w.stop(ctx, run, errShutdown)
		return nil, errShuttingDown()
	}
	return run, nil
}

func errShuttingDown() error {
	return errutil.New(errutil.StatusServiceUnavailable, "agent runs are not accepted while shutting down")
}

// Approve resumes a run parked at its suspension point. Only the first
// decision on a parked run wins; later ones get Conflict.
func (w *Workflow) Approve(ctx context.Context, id, reviewer string) (*AgentRun, error) {
	run, err := w.runs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, err := w.runs.Transition(ctx, id, "status", []string{string(StatusAwaitingApproval)}, map[string]any{
		"status":      StatusApproved,
		"approved_by": reviewer,
		"approved_at": w.now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, w.conflict(ctx, id)
	}

	log := logger.FromContext(ctx, zap.String("run_id", id), zap.String("reviewer", reviewer))
	delivered, err := w.bus.Publish(ctx, id, Signal{Kind: SignalApprove, Reviewer: reviewer})
	if err != nil {
		log.Warn("failed to publish approval signal", zap.Error(err))
	}
	if !delivered {
		log.Info("no parked task for run, resuming from snapshot")
		if !w.resume(ctx, run, reviewer) {
			w.unapprove(ctx, id)
			return nil, errShuttingDown()
		}
	}
	return w.runs.Get(ctx, id)
}

func (w *Workflow) Reject(ctx context.Context, id, reviewer, feedback string) (*AgentRun, error) {
	return w.decide(ctx, id, reviewer, feedback, StatusRejected, SignalReject)
}

func (w *Workflow) RequestRevision(ctx context.Context, id, reviewer, feedback string) (*AgentRun, error) {
	return w.decide(ctx, id, reviewer, feedback, StatusRevisionRequested, SignalRevise)
}

// decide ends a parked run without resuming it and records the review as
// the run's final step. The status change and the step commit together.
func (w *Workflow) decide(ctx context.Context, id, reviewer, feedback string, status Status, kind SignalKind) (*AgentRun, error) {
	run, err := w.runs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx, zap.String("run_id", id), zap.String("reviewer", reviewer), zap.String("status", string(status)))

	stepName := pipeline.NodeReviewer
	var snap snapshot
	if err := json.Unmarshal(run.OutputData, &snap); err == nil && snap.Next != "" {
		stepName = snap.Next
	}
	output, _ := json.Marshal(map[string]any{"action": kind, "feedback": feedback})

	lost := false
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := w.now()
		ok, err := w.runs.WithTrx(tx).Transition(ctx, id, "status", []string{string(StatusAwaitingApproval)}, map[string]any{
			"status":        status,
			"error_message": feedback,
		})
		if err != nil {
			return err
		}
		if !ok {
			lost = true
			return errStopped
		}

		steps := w.steps.WithTrx(tx)
		order, err := steps.Count(ctx, &AgentRunStep{AgentRunID: id})
		if err != nil {
			return errutil.Internal("failed to count run steps", err)
		}
		zero := int64(0)
		step := &AgentRunStep{
			ID:          w.node.Generate().String(),
			AgentRunID:  id,
			StepName:    stepName,
			StepOrder:   int(order),
			Status:      status,
			OutputData:  datatypes.JSON(output),
			DurationMs:  &zero,
			ReviewedBy:  &reviewer,
			ReviewedAt:  &now,
			StartedAt:   &now,
			CompletedAt: &now,
		}
		if err := steps.Create(ctx, step); err != nil {
			log.Error("failed to record review step", zap.Error(err))
			return errutil.Internal("failed to record review step", err)
		}
		return nil
	})
	if lost {
		return nil, w.conflict(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	if _, err := w.bus.Publish(ctx, id, Signal{Kind: kind, Reviewer: reviewer, Feedback: feedback}); err != nil {
		log.Warn("failed to publish review signal", zap.Error(err))
	}
	metrics.AgentRunsTotal.WithLabelValues(run.AgentType, string(status)).Inc()
	log.Info("agent run reviewed")
	return w.runs.Get(ctx, id)
}

// Cancel stops a run that has not finished. An in-flight pipeline notices
// at its next node boundary; a local one is interrupted immediately.
func (w *Workflow) Cancel(ctx context.Context, id string) (*AgentRun, error) {
	run, err := w.runs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, err := w.runs.Transition(ctx, id, "status", cancellable, map[string]any{
		"status":       StatusCancelled,
		"completed_at": w.now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, w.conflict(ctx, id)
	}

	w.interrupt(id, errCancelled)
	if _, err := w.bus.Publish(ctx, id, Signal{Kind: SignalCancel}); err != nil {
		logger.FromContext(ctx, zap.String("run_id", id)).Warn("failed to publish cancel signal", zap.Error(err))
	}
	metrics.AgentRunsTotal.WithLabelValues(run.AgentType, string(StatusCancelled)).Inc()
	return w.runs.Get(ctx, id)
}

// Get returns the run with its steps in execution order.
func (w *Workflow) Get(ctx context.Context, id string) (*AgentRun, error) {
	run, err := w.runs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	steps, err := w.steps.Find(ctx, &AgentRunStep{AgentRunID: id}, orderBySteps)
	if err != nil {
		return nil, errutil.Internal("failed to load run steps", err)
	}
	run.Steps = steps
	return run, nil
}

var orderBySteps option.QueryOption = func(db *gorm.DB) *gorm.DB {
	return db.Order("step_order ASC")
}

func (w *Workflow) List(ctx context.Context, q ListRunsQuery, page pagination.Pagination) (*pagination.Page[AgentRun], error) {
	filter := &AgentRun{Status: Status(q.Status), AgentType: q.AgentType}
	items, total, err := w.runs.List(ctx, filter, page)
	if err != nil {
		return nil, err
	}
	return pagination.NewPage(items, total, page), nil
}

// Shutdown interrupts every local task and waits for them to settle.
// Running pipelines are marked failed; parked runs stay awaiting approval
// and resume from their snapshot when approved.
func (w *Workflow) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	w.closing.Store(true)
	for _, t := range w.inflight {
		t.cancel(errShutdown)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every detached task has returned.
func (w *Workflow) Wait() {
	w.wg.Wait()
}

func (w *Workflow) conflict(ctx context.Context, id string) error {
	run, err := w.runs.Get(ctx, id)
	if err != nil {
		return err
	}
	return errutil.Conflict(fmt.Sprintf("agent run is %s", run.Status), nil,
		errutil.WithDetails(errutil.Detail{Field: "current_status", Message: string(run.Status)}))
}

// spawn starts fn as a detached task. It refuses once Shutdown has begun
// so every task it starts is covered by Shutdown's wait.
func (w *Workflow) spawn(parent context.Context, run *AgentRun, fn func(ctx context.Context)) bool {
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))
	t := &task{cancel: cancel}

	w.mu.Lock()
	if w.closing.Load() {
		w.mu.Unlock()
		cancel(errShutdown)
		return false
	}
	w.inflight[run.ID] = t
	w.wg.Add(1)
	w.mu.Unlock()

	metrics.AgentRunsInFlight.Inc()
	go func() {
		defer w.wg.Done()
		defer metrics.AgentRunsInFlight.Dec()
		defer func() {
			w.mu.Lock()
			if w.inflight[run.ID] == t {
				delete(w.inflight, run.ID)
			}
			w.mu.Unlock()
			cancel(nil)
		}()
		defer func() {
			if r := recover(); r != nil {
				w.stop(ctx, run, fmt.Errorf("panic: %v", r))
			}
		}()
		fn(ctx)
	}()
	return true
}

func (w *Workflow) interrupt(runID string, cause error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.inflight[runID]; ok {
		t.cancel(cause)
	}
}

// drive settles the outcome of a graph run, parking and resuming at the
// suspension point until the pipeline finishes or stops.
func (w *Workflow) drive(ctx context.Context, run *AgentRun, graph *pipeline.Graph, rec *recorder, res pipeline.Result, err error) {
	for {
		if err != nil {
			w.stop(ctx, run, err)
			return
		}
		if !res.Suspended {
			w.complete(ctx, run, res.State)
			return
		}
		d, ok := w.park(ctx, run, res)
		if !ok {
			return
		}
		res, err = graph.Resume(ctx, res.State, res.Next, d, rec)
	}
}

func (w *Workflow) park(ctx context.Context, run *AgentRun, res pipeline.Result) (pipeline.Decision, bool) {
	log := logger.FromContext(ctx, zap.String("run_id", run.ID))

	// subscribe before the row is visible as awaiting_approval so an
	// approval cannot slip in between
	sub, err := w.bus.Subscribe(ctx, run.ID)
	if err != nil {
		w.stop(ctx, run, fmt.Errorf("subscribe for approval: %w", err))
		return pipeline.Decision{}, false
	}
	closed := false
	defer func() {
		if !closed {
			_ = sub.Close()
		}
	}()

	snap, err := json.Marshal(snapshot{Version: SchemaVersion, State: res.State, Next: res.Next})
	if err != nil {
		w.stop(ctx, run, err)
		return pipeline.Decision{}, false
	}
	ok, err := w.runs.Transition(ctx, run.ID, "status", []string{string(StatusRunning)}, map[string]any{
		"status":      StatusAwaitingApproval,
		"output_data": datatypes.JSON(snap),
	})
	if err != nil {
		w.stop(ctx, run, err)
		return pipeline.Decision{}, false
	}
	if !ok {
		return pipeline.Decision{}, false
	}
	log.Info("agent run awaiting approval", zap.String("next", res.Next))

	var timeout <-chan time.Time
	if w.settings.WaitTimeout > 0 {
		timer := time.NewTimer(w.settings.WaitTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case sig := <-sub.C():
		if sig.Kind != SignalApprove {
			return pipeline.Decision{}, false
		}
		return w.claim(ctx, run.ID, sig.Reviewer)
	case <-timeout:
	case <-ctx.Done():
	}

	// An approval published while the subscription was still registered
	// reports delivered, so nobody else resumes the run. After
	// unsubscribing, pick up any such approval before leaving.
	closed = true
	if err := sub.Close(); err != nil {
		log.Warn("failed to close approval subscription", zap.Error(err))
	}
	reviewer, approved := w.approvedWhileLeaving(ctx, run.ID, sub)
	if !approved {
		if ctx.Err() == nil {
			w.expire(ctx, run)
		}
		return pipeline.Decision{}, false
	}
	if ctx.Err() != nil {
		// the task is going away; settle the claimed run instead of leaving
		// it approved with nobody to resume it
		if _, ok := w.claim(context.WithoutCancel(ctx), run.ID, reviewer); ok {
			w.stop(ctx, run, context.Cause(ctx))
		}
		return pipeline.Decision{}, false
	}
	return w.claim(ctx, run.ID, reviewer)
}

// approvedWhileLeaving drains a closed subscription and re-reads the run.
// It reports the reviewer when the run was approved in the meantime.
func (w *Workflow) approvedWhileLeaving(ctx context.Context, runID string, sub Subscription) (string, bool) {
drain:
	for {
		select {
		case sig, ok := <-sub.C():
			if !ok {
				break drain
			}
			if sig.Kind == SignalApprove {
				return sig.Reviewer, true
			}
		default:
			break drain
		}
	}

	cur, err := w.runs.Get(context.WithoutCancel(ctx), runID)
	if err != nil {
		logger.FromContext(ctx, zap.String("run_id", runID)).Error("failed to re-read parked run", zap.Error(err))
		return "", false
	}
	if cur.Status != StatusApproved {
		return "", false
	}
	reviewer := ""
	if cur.ApprovedBy != nil {
		reviewer = *cur.ApprovedBy
	}
	return reviewer, true
}

// claim moves an approved run back to running. Only one task can win.
func (w *Workflow) claim(ctx context.Context, runID, reviewer string) (pipeline.Decision, bool) {
	ok, err := w.runs.Transition(ctx, runID, "status", []string{string(StatusApproved)}, map[string]any{
		"status": StatusRunning,
	})
	if err != nil {
		logger.FromContext(ctx, zap.String("run_id", runID)).Error("failed to resume approved run", zap.Error(err))
		return pipeline.Decision{}, false
	}
	if !ok {
		return pipeline.Decision{}, false
	}
	return pipeline.Decision{Action: pipeline.ActionApprove, Reviewer: reviewer}, true
}

func (w *Workflow) resume(ctx context.Context, run *AgentRun, reviewer string) bool {
	return w.spawn(ctx, run, func(ctx context.Context) {
		var snap snapshot
		if err := json.Unmarshal(run.OutputData, &snap); err != nil || snap.Next == "" {
			if _, ok := w.claim(ctx, run.ID, reviewer); ok {
				w.stop(ctx, run, fmt.Errorf("unreadable suspension snapshot: %v", err))
			}
			return
		}
		agent, err := w.registry.Lookup(run.AgentType)
		if err != nil {
			if _, ok := w.claim(ctx, run.ID, reviewer); ok {
				w.stop(ctx, run, err)
			}
			return
		}
		d, ok := w.claim(ctx, run.ID, reviewer)
		if !ok {
			return
		}
		n, err := w.steps.Count(ctx, &AgentRunStep{AgentRunID: run.ID})
		if err != nil {
			w.stop(ctx, run, err)
			return
		}

		graph := agent.Graph()
		rec := w.newRecorder(run, graph, int(n))
		res, err := graph.Resume(ctx, snap.State, snap.Next, d, rec)
		w.drive(ctx, run, graph, rec, res, err)
	})
}

// unapprove hands an approval that could not be resumed back to the
// approval queue.
func (w *Workflow) unapprove(ctx context.Context, id string) {
	ok, err := w.runs.Transition(ctx, id, "status", []string{string(StatusApproved)}, map[string]any{
		"status":      StatusAwaitingApproval,
		"approved_by": nil,
		"approved_at": nil,
	})
	if err != nil {
		logger.FromContext(ctx, zap.String("run_id", id)).Error("failed to return run to awaiting approval", zap.Error(err))
		return
	}
	if ok {
		logger.FromContext(ctx, zap.String("run_id", id)).Info("approval not resumed during shutdown")
	}
}

func (w *Workflow) expire(ctx context.Context, run *AgentRun) {
	log := logger.FromContext(ctx, zap.String("run_id", run.ID), zap.Duration("wait_timeout", w.settings.WaitTimeout))
	if !w.settings.ExpireOnTimeout {
		log.Info("approval wait timed out, run stays awaiting approval")
		return
	}
	ok, err := w.runs.Transition(ctx, run.ID, "status", []string{string(StatusAwaitingApproval)}, map[string]any{
		"status":        StatusCancelled,
		"error_message": "approval wait timed out",
		"completed_at":  w.now(),
	})
	if err != nil {
		log.Error("failed to expire run", zap.Error(err))
		return
	}
	if ok {
		metrics.AgentRunsTotal.WithLabelValues(run.AgentType, string(StatusCancelled)).Inc()
		log.Info("approval wait timed out, run cancelled")
	}
}

func (w *Workflow) complete(ctx context.Context, run *AgentRun, st pipeline.State) {
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContext(ctx, zap.String("run_id", run.ID))

	out, err := json.Marshal(snapshot{Version: SchemaVersion, State: st})
	if err != nil {
		w.stop(ctx, run, err)
		return
	}
	ok, err := w.runs.Transition(ctx, run.ID, "status", []string{string(StatusRunning)}, map[string]any{
		"status":       StatusCompleted,
		"output_data":  datatypes.JSON(out),
		"completed_at": w.now(),
	})
	if err != nil {
		log.Error("failed to complete run", zap.Error(err))
		return
	}
	if !ok {
		log.Info("run left running before completion")
		return
	}
	metrics.AgentRunsTotal.WithLabelValues(run.AgentType, string(StatusCompleted)).Inc()
	log.Info("agent run completed")
}

// stop records why a pipeline ended early. Runs stopped by Cancel are
// already terminal.
func (w *Workflow) stop(ctx context.Context, run *AgentRun, err error) {
	cause := context.Cause(ctx)
	ctx = context.WithoutCancel(ctx)
	log := logger.FromContext(ctx, zap.String("run_id", run.ID))

	if errors.Is(err, errStopped) || errors.Is(cause, errCancelled) {
		log.Info("agent run stopped", zap.Error(err))
		return
	}
	msg := err.Error()
	if errors.Is(cause, errShutdown) {
		msg = errShutdown.Error()
	}

	ok, terr := w.runs.Transition(ctx, run.ID, "status", []string{string(StatusRunning)}, map[string]any{
		"status":        StatusFailed,
		"error_message": msg,
		"completed_at":  w.now(),
	})
	if terr != nil {
		log.Error("failed to mark run failed", zap.Error(terr), zap.NamedError("cause", err))
		return
	}
	if ok {
		metrics.AgentRunsTotal.WithLabelValues(run.AgentType, string(StatusFailed)).Inc()
		log.Error("agent run failed", zap.Error(err))
	}
}
