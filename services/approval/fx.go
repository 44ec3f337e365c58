package approval

import (
	"openpaws/pkg/db"

	"go.uber.org/fx"
)

var Module = fx.Module("approval.module",
	fx.Provide(
		NewService,
		NewHandler,
	),
	db.AsModel(&Item{}),
)
