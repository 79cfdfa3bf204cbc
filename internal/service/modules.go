package service

import (
	"go.uber.org/fx"

	"qualtrack/internal/config"
	deliveryhttp "qualtrack/internal/delivery/http"
	"qualtrack/internal/infrastructure/credential"
	"qualtrack/internal/infrastructure/database"
	"qualtrack/internal/infrastructure/document"
	"qualtrack/internal/infrastructure/httpclient"
	"qualtrack/internal/infrastructure/lock"
	"qualtrack/internal/infrastructure/logger"
	"qualtrack/internal/infrastructure/redis"
	"qualtrack/internal/infrastructure/repository"
	"qualtrack/internal/infrastructure/signing"
	"qualtrack/internal/server"
	"qualtrack/internal/usecase"
)

// Modules is the full application graph shared by the console and service hosts
func Modules() fx.Option {
	return fx.Options(
		// Configuration
		config.Module,

		// Infrastructure
		logger.Module,
		database.Module,
		redis.Module,
		lock.Module,
		document.Module,
		credential.Module,
		signing.Module,
		repository.Module,
		httpclient.Module,

		// Business Logic
		usecase.Module,

		// Delivery
		deliveryhttp.Module,

		// Server
		server.Module,
	)
}
