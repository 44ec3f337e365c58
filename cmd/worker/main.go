package main

import (
	"log"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"openpaws/pkg/config"
	"openpaws/pkg/db"
	"openpaws/pkg/gen"
	"openpaws/pkg/hashistack/secretmanager"
	"openpaws/pkg/health"
	"openpaws/pkg/httpapi"
	"openpaws/pkg/logger"
	"openpaws/pkg/otelcol"
	"openpaws/pkg/profiling"
	"openpaws/pkg/redis"
	"openpaws/pkg/security"
	"openpaws/pkg/sequence"
	"openpaws/pkg/server"
	"openpaws/pkg/task"
	"openpaws/services/analytics"
	"openpaws/services/approval"
	"openpaws/services/campaign"
	"openpaws/services/post"
	"openpaws/services/publisher"
	"openpaws/services/socialaccount"
)

// The worker drains the publish, sync and analytics queues. It serves
// only the health and metrics endpoints over HTTP.
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
		task.Server,
		gen.Module,
		sequence.Module,
		security.Module,
		health.Module,
		httpapi.Module,
		publisher.Module,
		approval.Module,
		campaign.Module,
		socialaccount.Module,
		post.Module,
		post.WorkerModule,
		analytics.Module,
		analytics.WorkerModule,
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
