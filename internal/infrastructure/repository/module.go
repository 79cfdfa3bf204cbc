package repository

import "go.uber.org/fx"

var Module = fx.Module("repository",
	fx.Provide(NewQueueRepository),
	fx.Provide(NewDocumentRepository),
	fx.Provide(NewAPILogRepository),
)
