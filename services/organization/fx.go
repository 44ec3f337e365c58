package organization

import (
	"openpaws/pkg/db"
	"openpaws/services/identity"

	"go.uber.org/fx"
)

var Module = fx.Module("organization.module",
	fx.Provide(
		NewService,
		NewHandler,
		func(s *Service) identity.MembershipLookup { return s },
	),
	db.AsModel(&Organization{}, &Member{}),
)
