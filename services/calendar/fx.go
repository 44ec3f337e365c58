package calendar

import (
	"openpaws/pkg/db"
	"openpaws/services/campaign"
	"openpaws/services/post"

	"go.uber.org/fx"
)

var Module = fx.Module("calendar.module",
	fx.Provide(
		func(s *campaign.Service) CampaignSource { return s },
		func(s *post.Service) PostSource { return s },
		NewService,
		NewHandler,
	),
	db.AsModel(&Entry{}),
)
