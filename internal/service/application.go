package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"qualtrack/internal/config"
	"qualtrack/internal/domain/entity"
	"qualtrack/internal/usecase"
)

// ErrUnsupported is returned by service management calls outside Windows
var ErrUnsupported = errors.New("windows service management is not supported on this platform")

// Application hosts the signing graph for the console, debug and Windows
// service modes
type Application struct {
	cfg     *config.Config
	app     *fx.App
	signing usecase.SignatureUsecase
	logger  *zap.Logger
}

// NewApplication returns a host for cfg. With a nil cfg the graph loads
// config.yaml itself.
func NewApplication(cfg *config.Config) *Application {
	return &Application{cfg: cfg}
}

// Start builds the graph and runs its start hooks: placement recovery,
// database migration and the HTTP listener.
func (a *Application) Start(ctx context.Context) error {
	opts := []fx.Option{
		Modules(),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Populate(&a.signing, &a.logger, &a.cfg),
	}
	if a.cfg != nil {
		opts = append(opts, fx.Replace(a.cfg))
	}

	a.app = fx.New(opts...)
	if err := a.app.Err(); err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}
	return nil
}

// Stop runs the stop hooks; in-flight requests get until ctx expires
func (a *Application) Stop(ctx context.Context) error {
	if a.app == nil {
		return nil
	}
	if err := a.app.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}
	return nil
}

// ProviderStatus reports whether the running graph can sign, or nil before Start
func (a *Application) ProviderStatus(ctx context.Context) *entity.ProviderStatus {
	if a.signing == nil {
		return nil
	}
	return a.signing.ProviderStatus(ctx)
}

// Config returns the configuration the graph runs with
func (a *Application) Config() *config.Config {
	return a.cfg
}

// Run starts the application and blocks until SIGINT or SIGTERM
func (a *Application) Run() error {
	startCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	err := a.Start(startCtx)
	cancel()
	if err != nil {
		return err
	}

	sig := <-a.app.Done()
	a.logger.Info("Shutting down", zap.String("signal", sig.String()))

	stopCtx, cancel := context.WithTimeout(context.Background(), a.stopTimeout())
	defer cancel()
	return a.Stop(stopCtx)
}

func (a *Application) stopTimeout() time.Duration {
	if a.cfg == nil || a.cfg.Service.StopTimeout <= 0 {
		return fx.DefaultTimeout
	}
	return a.cfg.Service.StopTimeout
}
