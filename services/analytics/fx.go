package analytics

import (
	"openpaws/pkg/db"
	"openpaws/pkg/task"
	"openpaws/services/post"
	"openpaws/services/socialaccount"

	"go.uber.org/fx"
)

var Module = fx.Module("analytics.module",
	fx.Provide(
		func(s *post.Service) PostSource { return s },
		NewService,
		NewHandler,
	),
	db.AsModel(&PostAnalytics{}),
)

// WorkerModule registers the metrics collection task.
var WorkerModule = fx.Module("analytics.worker",
	fx.Provide(
		func(s *socialaccount.Service) AccountSource { return s },
		NewCollector,
	),
	task.AsHandler(CollectHandler),
)
