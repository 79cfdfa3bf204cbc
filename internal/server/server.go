package server

import (
	"context"
	"fmt"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"qualtrack/internal/config"
	"qualtrack/internal/delivery/http/router"
	"qualtrack/internal/usecase"
)

func NewServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	r *router.Router,
	signatures usecase.SignatureUsecase,
	logger *zap.Logger,
) error {
	app := r.Setup()

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Signing stays possible later if a credential is installed, so
			// an empty store is only worth a warning.
			status := signatures.ProviderStatus(ctx)
			if status.IsAvailable {
				logger.Info("Signature provider ready", zap.String("provider", status.ProviderName))
			} else {
				logger.Warn("No usable signing credential found",
					zap.String("provider", status.ProviderName),
					zap.String("credential_dir", cfg.Signing.CredentialDir),
				)
			}

			addr := fmt.Sprintf(":%d", cfg.App.Port)
			logger.Info("Starting HTTP server",
				zap.String("address", addr),
				zap.String("env", cfg.App.Env),
				zap.String("version", config.Version),
			)

			go func() {
				if err := app.Listen(addr); err != nil {
					logger.Error("HTTP server stopped", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server")
			return app.ShutdownWithContext(ctx)
		},
	})

	return nil
}
