package agentrun

import (
	"context"
	"fmt"

	"openpaws/pkg/config"
	"openpaws/pkg/db"
	"openpaws/services/pipeline"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("agentrun.module",
	fx.Provide(
		ProvideSignalBus,
		ProvideWorkflow,
		NewHandler,
	),
	db.AsModel(&AgentRun{}, &AgentRunStep{}),
)

type busParams struct {
	fx.In
	Config *config.Config
	Redis  *redis.Client `optional:"true"`
}

func ProvideSignalBus(p busParams) (SignalBus, error) {
	switch p.Config.Agent.SignalBackend {
	case "", "memory":
		return NewMemoryBus(), nil
	case "redis":
		if p.Redis == nil {
			return nil, fmt.Errorf("AGENT.SIGNAL_BACKEND=redis requires a redis client")
		}
		return NewRedisBus(p.Redis), nil
	default:
		return nil, fmt.Errorf("unsupported AGENT.SIGNAL_BACKEND %q", p.Config.Agent.SignalBackend)
	}
}

type workflowParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Config    *config.Config
	DB        *gorm.DB
	Node      *snowflake.Node
	Registry  *pipeline.Registry
	Bus       SignalBus
}

func ProvideWorkflow(p workflowParams) *Workflow {
	w := NewWorkflow(p.DB, p.Node, p.Registry, p.Bus, Settings{
		WaitTimeout:     p.Config.Agent.WaitTimeout,
		ExpireOnTimeout: p.Config.Agent.ExpireOnTimeout,
	})
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			zap.L().Info("stopping agent runs")
			return w.Shutdown(ctx)
		},
	})
	return w
}
