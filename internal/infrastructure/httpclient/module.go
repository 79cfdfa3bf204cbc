package httpclient

import (
	"go.uber.org/fx"

	"qualtrack/internal/infrastructure/repository"
)

// provideAPILogSaver wraps the api_logs repository as APILogSaver
func provideAPILogSaver(repo repository.APILogRepository) APILogSaver {
	return repo
}

var Module = fx.Module("httpclient",
	fx.Provide(NewHTTPClient),
	fx.Provide(NewQueueNotifier),
	fx.Provide(provideAPILogSaver),
)
