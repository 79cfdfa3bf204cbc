package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"qualtrack/internal/config"
	"qualtrack/internal/infrastructure/credential"
	"qualtrack/internal/infrastructure/document"
)

// Readiness is what an operator needs to know before documents can be signed
type Readiness struct {
	Version          string
	ServiceState     string
	CredentialStore  string
	Credentials      []CredentialStatus
	Folders          []FolderStatus
	InterruptedMoves int
}

// CredentialStatus describes one certificate in the store. Problem is empty
// for a certificate that can sign.
type CredentialStatus struct {
	Subject    string
	Thumbprint string
	NotAfter   time.Time
	Problem    string
}

type FolderStatus struct {
	Name   string
	Path   string
	Exists bool
}

// CanSign reports whether at least one credential is usable
func (r *Readiness) CanSign() bool {
	for _, c := range r.Credentials {
		if c.Problem == "" {
			return true
		}
	}
	return false
}

// CheckReadiness inspects the credential store and document folders without
// changing either, so it can run next to a live service.
func CheckReadiness(ctx context.Context, cfg *config.Config, logger *zap.Logger, now time.Time) (*Readiness, error) {
	store := credential.NewStore(cfg, logger)
	creds, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential store: %w", err)
	}

	r := &Readiness{
		Version:         config.Version,
		CredentialStore: store.Location(),
	}
	for _, c := range creds {
		cs := CredentialStatus{
			Subject:    c.DisplayName(),
			Thumbprint: c.Thumbprint,
			NotAfter:   c.Certificate.NotAfter,
		}
		if err := credential.Check(c, now); err != nil {
			cs.Problem = err.Error()
		}
		r.Credentials = append(r.Credentials, cs)
	}

	folders := []FolderStatus{
		{Name: "pending", Path: filepath.Join(cfg.Document.BasePath, cfg.Document.PendingFolder)},
		{Name: "signed", Path: filepath.Join(cfg.Document.BasePath, cfg.Document.SignedFolder)},
		{Name: "archive", Path: filepath.Join(cfg.Document.BasePath, cfg.Document.ArchiveFolder)},
	}
	for i := range folders {
		info, err := os.Stat(folders[i].Path)
		folders[i].Exists = err == nil && info.IsDir()
	}
	r.Folders = folders

	if r.InterruptedMoves, err = document.InterruptedMoves(cfg); err != nil {
		return nil, err
	}

	return r, nil
}

// Write prints the report in the console layout used by the service binary
func (r *Readiness) Write(w io.Writer) {
	fmt.Fprintf(w, "Version:           %s\n", r.Version)
	if r.ServiceState != "" {
		fmt.Fprintf(w, "Service:           %s\n", r.ServiceState)
	}
	fmt.Fprintf(w, "Credential store:  %s\n", r.CredentialStore)
	if len(r.Credentials) == 0 {
		fmt.Fprintln(w, "  (no certificates found)")
	}
	for _, c := range r.Credentials {
		state := "usable"
		if c.Problem != "" {
			state = c.Problem
		}
		fmt.Fprintf(w, "  %s  %s  expires %s  %s\n", c.Thumbprint, c.Subject, c.NotAfter.Format("2006-01-02"), state)
	}
	fmt.Fprintln(w, "Document folders:")
	for _, f := range r.Folders {
		state := "ok"
		if !f.Exists {
			state = "missing, created on start"
		}
		fmt.Fprintf(w, "  %-8s %s  %s\n", f.Name, f.Path, state)
	}
	if r.InterruptedMoves > 0 {
		fmt.Fprintf(w, "Interrupted moves: %d, settled on next start\n", r.InterruptedMoves)
	}
	if r.CanSign() {
		fmt.Fprintln(w, "Ready to sign.")
	} else {
		fmt.Fprintln(w, "Not ready: no usable signing certificate.")
	}
}
