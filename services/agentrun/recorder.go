package agentrun

import (
	"context"
	"encoding/json"
	"time"

	"openpaws/pkg/errutil"
	"openpaws/pkg/metrics"
	"openpaws/services/pipeline"

	"gorm.io/datatypes"
)

// recorder persists one step row per node execution. Writes outlive the
// task context so a cancelled node still gets its final status.
type recorder struct {
	w         *Workflow
	run       *AgentRun
	interrupt string
	next      int
	current   *AgentRunStep
}

func (w *Workflow) newRecorder(run *AgentRun, graph *pipeline.Graph, next int) *recorder {
	return &recorder{w: w, run: run, interrupt: graph.InterruptBefore(), next: next}
}

func (r *recorder) NodeStarted(ctx context.Context, node string, st pipeline.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)

	run, err := r.w.runs.Get(ctx, r.run.ID)
	if err != nil {
		return err
	}
	if run.Status != StatusRunning {
		return errStopped
	}

	input, err := json.Marshal(st)
	if err != nil {
		return err
	}
	now := r.w.now()
	step := &AgentRunStep{
		ID:         r.w.node.Generate().String(),
		AgentRunID: r.run.ID,
		StepName:   node,
		StepOrder:  r.next,
		Status:     StatusRunning,
		InputData:  datatypes.JSON(input),
		StartedAt:  &now,
	}
	if err := r.w.steps.Create(ctx, step); err != nil {
		return errutil.Internal("failed to record step", err)
	}
	r.next++
	r.current = step
	return nil
}

func (r *recorder) NodeFinished(ctx context.Context, node string, in pipeline.State, out pipeline.Update, took time.Duration, err error) error {
	if r.current == nil {
		return nil
	}
	cause := context.Cause(ctx)
	ctx = context.WithoutCancel(ctx)

	now := r.w.now()
	status := StatusCompleted
	values := map[string]any{
		"duration_ms":  took.Milliseconds(),
		"completed_at": now,
	}
	switch {
	case err != nil && cause == errCancelled:
		status = StatusCancelled
		values["error_message"] = err.Error()
	case err != nil:
		status = StatusFailed
		values["error_message"] = err.Error()
	default:
		payload, merr := json.Marshal(out)
		if merr != nil {
			return merr
		}
		values["output_data"] = datatypes.JSON(payload)
		if node == r.interrupt && in.Decision != nil {
			values["reviewed_by"] = in.Decision.Reviewer
			values["reviewed_at"] = now
		}
	}
	values["status"] = status

	metrics.AgentStepDuration.WithLabelValues(node, string(status)).Observe(took.Seconds())
	if uerr := r.w.steps.Update(ctx, r.current.ID, values); uerr != nil {
		return errutil.Internal("failed to record step result", uerr)
	}
	r.current = nil
	return nil
}
