package publisher

import (
	"openpaws/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("publisher.module",
	fx.Provide(ProvideClient),
)

func ProvideClient(cfg *config.Config) Client {
	if cfg.Publisher.URL == "" {
		zap.L().Warn("PUBLISHER.URL is empty, scheduled posts will fail to publish")
	}
	return NewHTTPClient(Options{
		BaseURL: cfg.Publisher.URL,
		Token:   cfg.Publisher.Token,
		Timeout: cfg.Publisher.Timeout,
		Retries: 2,
	})
}
