package llm

import (
	"openpaws/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("llm.module",
	fx.Provide(ProvideClient),
)

func ProvideClient(cfg *config.Config) Client {
	if cfg.LLM.APIKey == "" {
		zap.L().Warn("LLM.API_KEY is empty, agent runs will fail at the first model call")
	}
	return NewHTTPClient(OptionsFromConfig(cfg))
}
