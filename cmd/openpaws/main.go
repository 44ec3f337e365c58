package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"openpaws/pkg/authz"
	"openpaws/pkg/config"
	"openpaws/pkg/db"
	"openpaws/pkg/featureflags"
	"openpaws/pkg/gen"
	"openpaws/pkg/hashistack/secretmanager"
	"openpaws/pkg/health"
	"openpaws/pkg/httpapi"
	"openpaws/pkg/logger"
	"openpaws/pkg/minio"
	"openpaws/pkg/otelcol"
	"openpaws/pkg/profiling"
	"openpaws/pkg/redis"
	"openpaws/pkg/security"
	"openpaws/pkg/sequence"
	"openpaws/pkg/server"
	"openpaws/pkg/task"
	"openpaws/services/agentrun"
	"openpaws/services/analytics"
	"openpaws/services/api"
	"openpaws/services/approval"
	"openpaws/services/calendar"
	"openpaws/services/campaign"
	"openpaws/services/identity"
	"openpaws/services/llm"
	"openpaws/services/media"
	"openpaws/services/organization"
	"openpaws/services/pipeline"
	"openpaws/services/post"
	"openpaws/services/socialaccount"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		task.Client,
		minio.Client,
		gen.Module,
		sequence.Module,
		security.Module,
		featureflags.Module,
		authz.Module,
		health.Module,
		httpapi.Module,
		identity.Module,
		organization.Module,
		llm.Module,
		pipeline.Module,
		agentrun.Module,
		approval.Module,
		campaign.Module,
		socialaccount.Module,
		post.Module,
		calendar.Module,
		analytics.Module,
		media.Module,
		api.Module,
		server.ProvideGRPCServer,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
