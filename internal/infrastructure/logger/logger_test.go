package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"qualtrack/internal/config"
)

func TestNewLogger_WritesToFile(t *testing.T) {
	cfg := &config.Config{}
	cfg.App.Env = "production"
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	cfg.Logging.File = filepath.Join(t.TempDir(), "logs", "qualtrack.log")
	cfg.ApplyDefaults()

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("queue item created")
	_ = logger.Sync()

	data, err := os.ReadFile(cfg.Logging.File)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "queue item created") || !strings.Contains(string(data), `"app":"QualTrack Signing"`) {
		t.Fatalf("unexpected log contents %q", data)
	}
}

func TestNewLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	cfg := &config.Config{}
	cfg.Logging.Level = "verbose"
	cfg.Logging.File = filepath.Join(t.TempDir(), "q.log")
	cfg.ApplyDefaults()

	logger, err := NewLogger(cfg)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Fatalf("debug should be disabled at the default level")
	}
}
