package contact

import "go.uber.org/fx"

var Module = fx.Module("contact.service",
	fx.Provide(NewService),
)
