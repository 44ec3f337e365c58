package socialaccount

import (
	"openpaws/pkg/config"
	"openpaws/pkg/db"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("socialaccount.module",
	fx.Provide(
		ProvideStateStore,
		ProvideProfileFetcher,
		NewService,
		NewHandler,
	),
	db.AsModel(&SocialAccount{}),
)

type stateParams struct {
	fx.In
	Redis *redis.Client `optional:"true"`
}

// ProvideStateStore keeps connect state in redis when a client is wired so
// callbacks can land on any replica.
func ProvideStateStore(p stateParams) StateStore {
	if p.Redis == nil {
		zap.L().Warn("oauth state kept in memory; connect callbacks must reach the same instance")
		return NewMemoryStateStore()
	}
	return NewRedisStateStore(p.Redis)
}

func ProvideProfileFetcher(cfg *config.Config) ProfileFetcher {
	return NewProfileFetcher(cfg.Publisher.Timeout)
}
