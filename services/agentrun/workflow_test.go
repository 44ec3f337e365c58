package agentrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"openpaws/pkg/db/pagination"
	"openpaws/pkg/errutil"
	"openpaws/pkg/tenancy"
	"openpaws/services/llm"
	"openpaws/services/pipeline"
	"openpaws/services/testutil"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const launchInput = `{"topic":"Launch","platforms":["twitter"]}`

// fakeLLM answers planner and creator calls and returns verdict for the
// review call. failOn makes one operation fail; blockOn parks it until the
// context ends.
type fakeLLM struct {
	verdict string
	failOn  string
	blockOn string
	blocked chan struct{}
	calls   atomic.Int32
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.calls.Add(1)
	if req.Operation == f.blockOn {
		if f.blocked != nil {
			close(f.blocked)
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if req.Operation == f.failOn {
		return nil, errors.New("model unavailable")
	}
	switch req.Operation {
	case pipeline.NodePlanner:
		return &llm.Response{Content: "1. announce the launch"}, nil
	case pipeline.NodeCreator:
		return &llm.Response{Content: "We just launched! #Launch"}, nil
	case pipeline.NodeReviewer:
		return &llm.Response{Content: f.verdict}, nil
	}
	return nil, fmt.Errorf("unexpected operation %q", req.Operation)
}

type harness struct {
	w   *Workflow
	db  *gorm.DB
	ctx context.Context
}

func newHarness(t *testing.T, client llm.Client, gate pipeline.Gate, settings Settings) *harness {
	t.Helper()
	return newHarnessWithBus(t, client, gate, settings, NewMemoryBus())
}

func newHarnessWithBus(t *testing.T, client llm.Client, gate pipeline.Gate, settings Settings, bus SignalBus) *harness {
	t.Helper()
	db := testutil.NewTestDB(t, &AgentRun{}, &AgentRunStep{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	registry := pipeline.NewRegistry(pipeline.NewContentAgent(client, gate))
	w := NewWorkflow(db, node, registry, bus, settings)
	t.Cleanup(func() { _ = w.Shutdown(context.Background()) })

	ctx := tenancy.WithScope(context.Background(), tenancy.Scope{TenantID: "org-1", CallerID: "u-editor", Role: "editor"})
	return &harness{w: w, db: db, ctx: ctx}
}

// slowCloseBus holds every unsubscribe open for delay, widening the window
// in which a publish still finds the subscription registered.
type slowCloseBus struct {
	SignalBus
	delay time.Duration
}

func (b slowCloseBus) Subscribe(ctx context.Context, runID string) (Subscription, error) {
	sub, err := b.SignalBus.Subscribe(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &slowCloseSub{Subscription: sub, delay: b.delay}, nil
}

type slowCloseSub struct {
	Subscription
	delay time.Duration
}

func (s *slowCloseSub) Close() error {
	time.Sleep(s.delay)
	return s.Subscription.Close()
}

// lossyBus claims every publish was delivered and delivers nothing, like a
// remote subscriber that disconnects before reading.
type lossyBus struct {
	SignalBus
}

func (lossyBus) Publish(context.Context, string, Signal) (bool, error) {
	return true, nil
}

func scoreGate(t *testing.T, client llm.Client) pipeline.Gate {
	t.Helper()
	gate, err := pipeline.NewScoreGate(client, pipeline.DefaultApproveRule, nil)
	require.NoError(t, err)
	return gate
}

func (h *harness) trigger(t *testing.T, input string) *AgentRun {
	t.Helper()
	run, err := h.w.Trigger(h.ctx, TriggerRequest{AgentType: pipeline.AgentContentPipeline, InputData: json.RawMessage(input)})
	require.NoError(t, err)
	return run
}

func (h *harness) waitStatus(t *testing.T, id string, want Status) *AgentRun {
	t.Helper()
	var last *AgentRun
	require.Eventually(t, func() bool {
		run, err := h.w.Get(h.ctx, id)
		if err != nil {
			return false
		}
		last = run
		return run.Status == want
	}, 3*time.Second, 5*time.Millisecond, "run never reached %s", want)
	return last
}

func requireGapFree(t *testing.T, steps []*AgentRunStep, names ...string) {
	t.Helper()
	require.Len(t, steps, len(names))
	for i, s := range steps {
		require.Equal(t, i, s.StepOrder)
		require.Equal(t, names[i], s.StepName)
	}
}

func TestManualApprovalCompletesRun(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, pipeline.NewManualGate(), Settings{WaitTimeout: time.Minute})

	run := h.trigger(t, launchInput)
	require.Equal(t, StatusRunning, run.Status)
	require.NotNil(t, run.StartedAt)
	require.Nil(t, run.CompletedAt)

	parked := h.waitStatus(t, run.ID, StatusAwaitingApproval)
	requireGapFree(t, parked.Steps, pipeline.NodePlanner, pipeline.NodeCreator)
	for _, s := range parked.Steps {
		require.Equal(t, StatusCompleted, s.Status)
		require.NotNil(t, s.DurationMs)
		require.GreaterOrEqual(t, *s.DurationMs, int64(0))
	}

	var snap snapshot
	require.NoError(t, json.Unmarshal(parked.OutputData, &snap))
	require.Equal(t, pipeline.NodeReviewer, snap.Next)
	require.Len(t, snap.State.Drafts, 1)
	require.Equal(t, "twitter", snap.State.Drafts[0].Platform)

	_, err := h.w.Approve(h.ctx, run.ID, "u1")
	require.NoError(t, err)

	done := h.waitStatus(t, run.ID, StatusCompleted)
	require.NotNil(t, done.CompletedAt)
	require.NotNil(t, done.ApprovedBy)
	require.Equal(t, "u1", *done.ApprovedBy)
	requireGapFree(t, done.Steps, pipeline.NodePlanner, pipeline.NodeCreator, pipeline.NodeReviewer)

	last := done.Steps[2]
	require.Equal(t, StatusCompleted, last.Status)
	require.NotNil(t, last.ReviewedBy)
	require.Equal(t, "u1", *last.ReviewedBy)
	require.NotNil(t, last.ReviewedAt)
}

func TestHighScoreAutoApproves(t *testing.T) {
	client := &fakeLLM{verdict: `{"score":0.92,"feedback":"great","approved":true}`}
	h := newHarness(t, client, scoreGate(t, client), Settings{WaitTimeout: time.Minute})

	run := h.trigger(t, launchInput)
	done := h.waitStatus(t, run.ID, StatusCompleted)

	require.Nil(t, done.ApprovedBy)
	requireGapFree(t, done.Steps, pipeline.NodePlanner, pipeline.NodeCreator, pipeline.NodeReviewer)
	require.Equal(t, pipeline.AutoReviewer, *done.Steps[2].ReviewedBy)

	var snap snapshot
	require.NoError(t, json.Unmarshal(done.OutputData, &snap))
	require.Empty(t, snap.Next)
	require.NotNil(t, snap.State.ReviewResult)
	require.True(t, snap.State.ReviewResult.Auto)
}

func TestLowScoreRejectThenApproveConflicts(t *testing.T) {
	client := &fakeLLM{verdict: `{"score":0.5,"feedback":"needs work","approved":false}`}
	h := newHarness(t, client, scoreGate(t, client), Settings{WaitTimeout: time.Minute})

	run := h.trigger(t, launchInput)
	h.waitStatus(t, run.ID, StatusAwaitingApproval)

	rejected, err := h.w.Reject(h.ctx, run.ID, "u1", "too casual")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.NotNil(t, rejected.ErrorMessage)
	require.Equal(t, "too casual", *rejected.ErrorMessage)

	_, err = h.w.Approve(h.ctx, run.ID, "u1")
	require.True(t, errutil.IsCode(err, errutil.StatusConflict))
	require.Equal(t, string(StatusRejected), errutil.From(err).Details[0].Message)

	h.w.Wait()
	final, err := h.w.Get(h.ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, final.Status)
	requireGapFree(t, final.Steps, pipeline.NodePlanner, pipeline.NodeCreator, pipeline.NodeReviewer)
	require.Equal(t, StatusRejected, final.Steps[2].Status)
	require.Equal(t, "u1", *final.Steps[2].ReviewedBy)
}

func TestRequestRevisionIsTerminal(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, pipeline.NewManualGate(), Settings{WaitTimeout: time.Minute})

	run := h.trigger(t, launchInput)
	h.waitStatus(t, run.ID, StatusAwaitingApproval)

	out, err := h.w.RequestRevision(h.ctx, run.ID, "u1", "shorter please")
	require.NoError(t, err)
	require.Equal(t, StatusRevisionRequested, out.Status)
	require.Nil(t, out.CompletedAt)

	_, err = h.w.Cancel(h.ctx, run.ID)
	require.True(t, errutil.IsCode(err, errutil.StatusConflict))
}

func TestConcurrentDecisionsHaveOneWinner(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, pipeline.NewManualGate(), Settings{WaitTimeout: time.Minute})

	run := h.trigger(t, launchInput)
	h.waitStatus(t, run.ID, StatusAwaitingApproval)

	var (
		wg        sync.WaitGroup
		wins      atomic.Int32
		conflicts atomic.Int32
	)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = h.w.Approve(h.ctx, run.ID, fmt.Sprintf("u%d", i))
			} else {
				_, err = h.w.Reject(h.ctx, run.ID, fmt.Sprintf("u%d", i), "no")
			}
			switch {
			case err == nil:
				wins.Add(1)
			case errutil.IsCode(err, errutil.StatusConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
	require.Equal(t, int32(7), conflicts.Load())
}

func TestCancelLegality(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, pipeline.NewManualGate(), Settings{WaitTimeout: time.Minute})

	run := h.trigger(t, launchInput)
	h.waitStatus(t, run.ID, StatusAwaitingApproval)

	cancelled, err := h.w.Cancel(h.ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CompletedAt)

	_, err = h.w.Cancel(h.ctx, run.ID)
	require.True(t, errutil.IsCode(err, errutil.StatusConflict))

	_, err = h.w.Approve(h.ctx, run.ID, "u1")
	require.True(t, errutil.IsCode(err, errutil.StatusConflict))
}

func TestCancelCompletedRunConflicts(t *testing.T) {
	client := &fakeLLM{verdict: `{"score":0.95,"feedback":"","approved":true}`}
	h := newHarness(t, client, scoreGate(t, client), Settings{})

	run := h.trigger(t, launchInput)
	h.waitStatus(t, run.ID, StatusCompleted)

	_, err := h.w.Cancel(h.ctx, run.ID)
	require.True(t, errutil.IsCode(err, errutil.StatusConflict))
	require.Equal(t, string(StatusCompleted), errutil.From(err).Details[0].Message)
}

func TestCancelInterruptsRunningNode(t *testing.T) {
	client := &fakeLLM{blockOn: pipeline.NodeCreator, blocked: make(chan struct{})}
	h := newHarness(t, client, pipeline.NewManualGate(), Settings{})

	run := h.trigger(t, launchInput)
	<-client.blocked

	_, err := h.w.Cancel(h.ctx, run.ID)
	require.NoError(t, err)
	h.w.Wait()

	final, err := h.w.Get(h.ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, final.Status)
	requireGapFree(t, final.Steps, pipeline.NodePlanner, pipeline.NodeCreator)
	require.Equal(t, StatusCancelled, final.Steps[1].Status)
}

func TestNodeFailureMarksRunFailed(t *testing.T) {
	h := newHarness(t, &fakeLLM{failOn: pipeline.NodeCreator}, pipeline.NewManualGate(), Settings{})

	run := h.trigger(t, launchInput)
	failed := h.waitStatus(t, run.ID, StatusFailed)

	require.NotNil(t, failed.CompletedAt)
	require.Contains(t, *failed.ErrorMessage, "model unavailable")
	requireGapFree(t, failed.Steps, pipeline.NodePlanner, pipeline.NodeCreator)
	require.Equal(t, StatusFailed, failed.Steps[1].Status)
	require.Contains(t, *failed.Steps[1].ErrorMessage, "model unavailable")
}

func TestShutdownFailsRunningPipelines(t *testing.T) {
	client := &fakeLLM{blockOn: pipeline.NodePlanner, blocked: make(chan struct{})}
	h := newHarness(t, client, pipeline.NewManualGate(), Settings{})

	run := h.trigger(t, launchInput)
	<-client.blocked

	require.NoError(t, h.w.Shutdown(context.Background()))

	final, err := h.w.Get(h.ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, final.Status)
	require.Equal(t, errShutdown.Error(), *final.ErrorMessage)

	_, err = h.w.Trigger(h.ctx, TriggerRequest{AgentType: pipeline.AgentContentPipeline, InputData: json.RawMessage(launchInput)})
	require.True(t, errutil.IsCode(err, errutil.StatusServiceUnavailable))
}

func TestApproveAfterWaitTimeoutResumesFromSnapshot(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, pipeline.NewManualGate(), Settings{WaitTimeout: 20 * time.Millisecond})

	run := h.trigger(t, launchInput)
	h.waitStatus(t, run.ID, StatusAwaitingApproval)
	h.w.Wait()

	_, err := h.w.Approve(h.ctx, run.ID, "u1")
	require.NoError(t, err)

	done := h.waitStatus(t, run.ID, StatusCompleted)
	requireGapFree(t, done.Steps, pipeline.NodePlanner, pipeline.NodeCreator, pipeline.NodeReviewer)
	require.Equal(t, "u1", *done.Steps[2].ReviewedBy)
}

func TestWaitTimeoutCanExpireRun(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, pipeline.NewManualGate(), Settings{WaitTimeout: 20 * time.Millisecond, ExpireOnTimeout: true})

	run := h.trigger(t, launchInput)
	expired := h.waitStatus(t, run.ID, StatusCancelled)
	require.Equal(t, "approval wait timed out", *expired.ErrorMessage)
	require.NotNil(t, expired.CompletedAt)
}

func TestRunsAreTenantScoped(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, pipeline.NewManualGate(), Settings{WaitTimeout: time.Minute})
	run := h.trigger(t, launchInput)
	h.waitStatus(t, run.ID, StatusAwaitingApproval)

	other := tenancy.WithScope(context.Background(), tenancy.Scope{TenantID: "org-2", CallerID: "u9", Role: "owner"})
	_, err := h.w.Get(other, run.ID)
	require.True(t, errutil.IsCode(err, errutil.StatusNotFound))

	_, err = h.w.Approve(other, run.ID, "u9")
	require.True(t, errutil.IsCode(err, errutil.StatusNotFound))

	page, err := h.w.List(other, ListRunsQuery{}, pagination.Pagination{Page: 1, Size: 10})
	require.NoError(t, err)
	require.Zero(t, page.Total)
}

func TestTriggerValidatesInput(t *testing.T) {
	client := &fakeLLM{}
	h := newHarness(t, client, pipeline.NewManualGate(), Settings{})

	_, err := h.w.Trigger(h.ctx, TriggerRequest{AgentType: "unknown", InputData: json.RawMessage(launchInput)})
	require.True(t, errutil.IsCode(err, errutil.StatusBadRequest))

	_, err = h.w.Trigger(h.ctx, TriggerRequest{AgentType: pipeline.AgentContentPipeline, InputData: json.RawMessage(`{"platforms":[]}`)})
	require.True(t, errutil.IsCode(err, errutil.StatusValidationFailed))

	_, err = h.w.Trigger(context.Background(), TriggerRequest{AgentType: pipeline.AgentContentPipeline, InputData: json.RawMessage(launchInput)})
	require.True(t, errutil.IsCode(err, errutil.StatusForbidden))

	require.Zero(t, client.calls.Load())
}

func TestListFiltersByStatus(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, pipeline.NewManualGate(), Settings{WaitTimeout: time.Minute})

	first := h.trigger(t, launchInput)
	second := h.trigger(t, launchInput)
	h.waitStatus(t, first.ID, StatusAwaitingApproval)
	h.waitStatus(t, second.ID, StatusAwaitingApproval)
	_, err := h.w.Cancel(h.ctx, second.ID)
	require.NoError(t, err)

	page, err := h.w.List(h.ctx, ListRunsQuery{Status: string(StatusAwaitingApproval)}, pagination.Pagination{Page: 1, Size: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	require.Equal(t, first.ID, page.Items[0].ID)
	require.Empty(t, page.Items[0].Steps)
}

func TestApproveDuringUnsubscribeStillResumes(t *testing.T) {
	bus := slowCloseBus{SignalBus: NewMemoryBus(), delay: 300 * time.Millisecond}
	h := newHarnessWithBus(t, &fakeLLM{}, pipeline.NewManualGate(), Settings{WaitTimeout: 50 * time.Millisecond}, bus)

	run := h.trigger(t, launchInput)
	h.waitStatus(t, run.ID, StatusAwaitingApproval)
	// the wait has timed out and the task is inside Close
	time.Sleep(120 * time.Millisecond)

	_, err := h.w.Approve(h.ctx, run.ID, "u1")
	require.NoError(t, err)
	h.w.Wait()

	final, err := h.w.Get(h.ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, final.Status)
	requireGapFree(t, final.Steps, pipeline.NodePlanner, pipeline.NodeCreator, pipeline.NodeReviewer)
	require.Equal(t, "u1", *final.Steps[2].ReviewedBy)
}

func TestLostApprovalSignalIsRecoveredFromRow(t *testing.T) {
	h := newHarnessWithBus(t, &fakeLLM{}, pipeline.NewManualGate(), Settings{WaitTimeout: 100 * time.Millisecond}, lossyBus{SignalBus: NewMemoryBus()})

	run := h.trigger(t, launchInput)
	h.waitStatus(t, run.ID, StatusAwaitingApproval)

	_, err := h.w.Approve(h.ctx, run.ID, "u1")
	require.NoError(t, err)

	done := h.waitStatus(t, run.ID, StatusCompleted)
	requireGapFree(t, done.Steps, pipeline.NodePlanner, pipeline.NodeCreator, pipeline.NodeReviewer)
	require.Equal(t, "u1", *done.Steps[2].ReviewedBy)
}

func TestRejectRollsBackWhenStepInsertFails(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, pipeline.NewManualGate(), Settings{WaitTimeout: time.Minute})

	run := h.trigger(t, launchInput)
	h.waitStatus(t, run.ID, StatusAwaitingApproval)

	var failSteps atomic.Bool
	require.NoError(t, h.db.Callback().Create().Before("gorm:create").Register("test:fail_steps", func(tx *gorm.DB) {
		if failSteps.Load() && tx.Statement.Schema != nil && tx.Statement.Schema.Table == "agent_run_steps" {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))
	failSteps.Store(true)

	_, err := h.w.Reject(h.ctx, run.ID, "u1", "off brand")
	require.True(t, errutil.IsCode(err, errutil.StatusInternal))

	parked, err := h.w.Get(h.ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingApproval, parked.Status)
	require.Nil(t, parked.ErrorMessage)
	requireGapFree(t, parked.Steps, pipeline.NodePlanner, pipeline.NodeCreator)

	failSteps.Store(false)
	rejected, err := h.w.Reject(h.ctx, run.ID, "u1", "off brand")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)

	final, err := h.w.Get(h.ctx, run.ID)
	require.NoError(t, err)
	requireGapFree(t, final.Steps, pipeline.NodePlanner, pipeline.NodeCreator, pipeline.NodeReviewer)
}

func TestApproveDuringShutdownReturnsRunToQueue(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, pipeline.NewManualGate(), Settings{WaitTimeout: time.Minute})

	run := h.trigger(t, launchInput)
	h.waitStatus(t, run.ID, StatusAwaitingApproval)
	require.NoError(t, h.w.Shutdown(context.Background()))

	_, err := h.w.Approve(h.ctx, run.ID, "u1")
	require.True(t, errutil.IsCode(err, errutil.StatusServiceUnavailable))

	parked, err := h.w.Get(h.ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAwaitingApproval, parked.Status)
	require.Nil(t, parked.ApprovedBy)
	require.Nil(t, parked.ApprovedAt)
}

func TestSpawnRefusedAfterShutdown(t *testing.T) {
	h := newHarness(t, &fakeLLM{}, pipeline.NewManualGate(), Settings{})
	require.NoError(t, h.w.Shutdown(context.Background()))

	var ran atomic.Bool
	started := h.w.spawn(h.ctx, &AgentRun{ID: "late"}, func(context.Context) { ran.Store(true) })
	require.False(t, started)
	h.w.Wait()
	require.False(t, ran.Load())
}
