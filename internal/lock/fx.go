package lock

import "go.uber.org/fx"

var Module = fx.Module("lock.redis",
	fx.Provide(
		NewRedisClient,
		NewLocker,
	),
)
