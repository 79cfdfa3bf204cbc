package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"qualtrack/internal/config"
	"qualtrack/internal/testkit"
)

func readinessConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Document.BasePath = t.TempDir()
	cfg.Signing.CredentialDir = t.TempDir()
	cfg.ApplyDefaults()
	return cfg
}

func TestCheckReadiness(t *testing.T) {
	cfg := readinessConfig(t)
	now := time.Now()

	valid, validKey := testkit.NewCredential(t, testkit.CredentialOptions{CommonName: "HM2 Jane Doe"})
	testkit.WriteCredential(t, cfg.Signing.CredentialDir, "jane", valid, validKey)
	expired, expiredKey := testkit.NewCredential(t, testkit.CredentialOptions{
		CommonName: "LT Old Cert",
		NotBefore:  now.Add(-48 * time.Hour),
		NotAfter:   now.Add(-24 * time.Hour),
	})
	testkit.WriteCredential(t, cfg.Signing.CredentialDir, "old", expired, expiredKey)

	if err := os.MkdirAll(filepath.Join(cfg.Document.BasePath, cfg.Document.PendingFolder), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	journal := `{"op":"begin","id":"m1","source":"a.pdf","destination":"b.pdf","size":1}` + "\n"
	if err := os.WriteFile(filepath.Join(cfg.Document.BasePath, cfg.Document.JournalFile), []byte(journal), 0o644); err != nil {
		t.Fatalf("write journal: %v", err)
	}

	r, err := CheckReadiness(context.Background(), cfg, zaptest.NewLogger(t), now)
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !r.CanSign() {
		t.Fatalf("expected a usable credential")
	}
	if len(r.Credentials) != 2 {
		t.Fatalf("expected both certificates listed, got %d", len(r.Credentials))
	}
	var problems int
	for _, c := range r.Credentials {
		if c.Problem != "" {
			problems++
			if c.Subject != "LT Old Cert" {
				t.Fatalf("unexpected problem on %s: %s", c.Subject, c.Problem)
			}
		}
	}
	if problems != 1 {
		t.Fatalf("expected exactly the expired certificate to be flagged, got %d", problems)
	}

	exists := map[string]bool{}
	for _, f := range r.Folders {
		exists[f.Name] = f.Exists
	}
	if !exists["pending"] || exists["signed"] || exists["archive"] {
		t.Fatalf("unexpected folder state %+v", r.Folders)
	}
	if _, err := os.Stat(filepath.Join(cfg.Document.BasePath, cfg.Document.SignedFolder)); !os.IsNotExist(err) {
		t.Fatalf("readiness check must not create folders")
	}
	if r.InterruptedMoves != 1 {
		t.Fatalf("expected one interrupted move, got %d", r.InterruptedMoves)
	}

	var out bytes.Buffer
	r.Write(&out)
	for _, want := range []string{"HM2 Jane Doe", "usable", "certificate expired", "Interrupted moves: 1", "Ready to sign."} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("report missing %q:\n%s", want, out.String())
		}
	}
}

func TestCheckReadinessWithoutCredentials(t *testing.T) {
	cfg := readinessConfig(t)

	r, err := CheckReadiness(context.Background(), cfg, zaptest.NewLogger(t), time.Now())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if r.CanSign() {
		t.Fatalf("an empty store cannot sign")
	}

	var out bytes.Buffer
	r.Write(&out)
	if !strings.Contains(out.String(), "Not ready") || !strings.Contains(out.String(), "no certificates found") {
		t.Fatalf("unexpected report:\n%s", out.String())
	}
}
