package pipeline

import (
	"context"
	"errors"
	"fmt"

	"openpaws/pkg/celengine"
	"openpaws/pkg/featureflags"
	"openpaws/pkg/tenancy"
	"openpaws/services/llm"

	"go.uber.org/zap"
)

const (
	DefaultApproveRule = "score >= 0.8"
	AutoReviewer       = "auto-reviewer"
)

type manualGate struct{}

// NewManualGate returns a gate that always waits for a human decision.
func NewManualGate() Gate { return manualGate{} }

func (manualGate) Evaluate(context.Context, State) (GateResult, error) {
	return GateResult{}, nil
}

type scoreGate struct {
	llm   llm.Client
	rule  string
	flags featureflags.FeatureFlag
}

// NewScoreGate asks the model to score the drafts and approves without a
// human when rule holds for the assessment. Any failure to score falls
// back to a human decision.
func NewScoreGate(client llm.Client, rule string, flags featureflags.FeatureFlag) (Gate, error) {
	if rule == "" {
		rule = DefaultApproveRule
	}
	env, err := celengine.GetOrBuildEnv(ruleAttributes(Assessment{}))
	if err != nil {
		return nil, err
	}
	if err := celengine.ValidateExpression(env, rule); err != nil {
		return nil, fmt.Errorf("invalid approve rule %q: %w", rule, err)
	}
	return &scoreGate{llm: client, rule: rule, flags: flags}, nil
}

func ruleAttributes(a Assessment) map[string]interface{} {
	return map[string]interface{}{
		"score":    a.Score,
		"approved": a.Approved,
	}
}

func (g *scoreGate) Evaluate(ctx context.Context, st State) (GateResult, error) {
	if st.RequireApproval {
		return GateResult{}, nil
	}
	if g.flags != nil {
		if scope, ok := tenancy.FromContext(ctx); ok &&
			!g.flags.IsEnabled(ctx, scope.TenantID, featureflags.AutoReview, true) {
			return GateResult{}, nil
		}
	}

	log := zap.L().With(zap.String("topic", st.Topic))

	system, user := reviewPrompts(st)
	resp, err := g.llm.Complete(ctx, llm.Request{Operation: NodeReviewer, System: system, User: user, JSON: true})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return GateResult{}, err
		}
		log.Warn("automatic review unavailable, waiting for a reviewer", zap.Error(err))
		return GateResult{}, nil
	}

	var a Assessment
	if err := llm.DecodeJSON(resp.Content, &a); err != nil {
		log.Warn("unreadable review verdict, waiting for a reviewer", zap.Error(err))
		return GateResult{}, nil
	}

	ok, err := celengine.Check(g.rule, ruleAttributes(a))
	if err != nil {
		log.Warn("approve rule failed", zap.String("rule", g.rule), zap.Error(err))
		return GateResult{Assessment: &a}, nil
	}
	if !ok {
		return GateResult{Assessment: &a}, nil
	}
	return GateResult{
		Assessment: &a,
		Decision:   &Decision{Action: ActionApprove, Reviewer: AutoReviewer, Feedback: a.Feedback, Auto: true},
	}, nil
}
