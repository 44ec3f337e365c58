package post

import (
	"openpaws/pkg/db"
	"openpaws/pkg/task"
	"openpaws/services/campaign"
	"openpaws/services/socialaccount"

	"go.uber.org/fx"
)

var sources = fx.Provide(
	func(s *socialaccount.Service) AccountSource { return s },
	func(s *campaign.Service) CampaignSource { return s },
)

var Module = fx.Module("post.module",
	sources,
	fx.Provide(
		NewService,
		NewHandler,
	),
	db.AsModel(&Post{}),
)

// WorkerModule registers the publishing task handlers.
var WorkerModule = fx.Module("post.worker",
	fx.Provide(NewWorker),
	task.AsHandler(PublishHandler),
	task.AsHandler(SyncHandler),
)
