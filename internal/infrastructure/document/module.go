package document

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("document",
	fx.Provide(NewPlacementManager),
	fx.Invoke(registerRecovery),
)

func registerRecovery(lc fx.Lifecycle, pm PlacementManager, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := pm.Recover(); err != nil {
				logger.Error("Placement recovery failed", zap.Error(err))
				return err
			}
			return nil
		},
	})
}
