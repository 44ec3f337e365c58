package campaign

import (
	"openpaws/pkg/db"

	"go.uber.org/fx"
)

var Module = fx.Module("campaign.module",
	fx.Provide(
		NewService,
		NewHandler,
	),
	db.AsModel(&Campaign{}),
)
