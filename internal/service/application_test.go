package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/fx"

	"qualtrack/internal/config"
)

func TestApplicationBeforeStart(t *testing.T) {
	app := NewApplication(nil)
	if err := app.Stop(context.Background()); err != nil {
		t.Fatalf("stopping an unstarted application: %v", err)
	}
	if app.ProviderStatus(context.Background()) != nil {
		t.Fatalf("expected no provider status before start")
	}
	if app.stopTimeout() != fx.DefaultTimeout {
		t.Fatalf("expected fx default stop timeout without config, got %v", app.stopTimeout())
	}
}

func TestApplicationStopTimeoutFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Service.StopTimeout = 45 * time.Second
	if got := NewApplication(cfg).stopTimeout(); got != 45*time.Second {
		t.Fatalf("expected configured stop timeout, got %v", got)
	}
}
