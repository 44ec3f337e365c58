package pipeline

import (
	"openpaws/pkg/config"
	"openpaws/pkg/featureflags"
	"openpaws/services/llm"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("pipeline.module",
	fx.Provide(
		ProvideGate,
		ProvideRegistry,
	),
)

func ProvideGate(cfg *config.Config, client llm.Client, flags featureflags.FeatureFlag) (Gate, error) {
	if !cfg.Agent.AutoReview {
		return NewManualGate(), nil
	}
	zap.L().Info("automatic review enabled", zap.String("rule", cfg.Agent.ApproveRule))
	return NewScoreGate(client, cfg.Agent.ApproveRule, flags)
}

func ProvideRegistry(client llm.Client, gate Gate) *Registry {
	return NewRegistry(NewContentAgent(client, gate))
}
