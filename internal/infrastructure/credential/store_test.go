package credential

import (
	"context"
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"qualtrack/internal/testkit"
)

func TestDirectoryStoreList(t *testing.T) {
	dir := t.TempDir()
	cert, key := testkit.NewCredential(t, testkit.CredentialOptions{CommonName: "Jane Doe"})
	testkit.WriteCredential(t, dir, "jane", cert, key)

	// A certificate without a key and an unrelated file are ignored.
	orphan, _ := testkit.NewCredential(t, testkit.CredentialOptions{CommonName: "Orphan"})
	testkit.WriteCredential(t, dir, "orphan", orphan, key)
	if err := os.Remove(filepath.Join(dir, "orphan.key")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	store := NewDirectoryStore(dir, "", zaptest.NewLogger(t))
	creds, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(creds) != 1 {
		t.Fatalf("expected 1 credential, got %d", len(creds))
	}
	c := creds[0]
	if c.DisplayName() != "Jane Doe" {
		t.Fatalf("unexpected display name %q", c.DisplayName())
	}
	if c.Thumbprint != Thumbprint(cert) || len(c.Thumbprint) != 40 {
		t.Fatalf("unexpected thumbprint %q", c.Thumbprint)
	}
}

func TestDirectoryStoreMissingDirectory(t *testing.T) {
	store := NewDirectoryStore(filepath.Join(t.TempDir(), "missing"), "", zaptest.NewLogger(t))
	creds, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(creds) != 0 {
		t.Fatalf("expected no credentials, got %d", len(creds))
	}
}

func TestDirectoryStoreIsNotCached(t *testing.T) {
	dir := t.TempDir()
	store := NewDirectoryStore(dir, "", zaptest.NewLogger(t))

	creds, _ := store.List(context.Background())
	if len(creds) != 0 {
		t.Fatalf("expected empty store")
	}

	cert, key := testkit.NewCredential(t, testkit.CredentialOptions{})
	testkit.WriteCredential(t, dir, "late", cert, key)

	creds, _ = store.List(context.Background())
	if len(creds) != 1 {
		t.Fatalf("expected newly added credential to be visible, got %d", len(creds))
	}
}

func TestUsable(t *testing.T) {
	now := time.Now()
	valid, validKey := testkit.NewCredential(t, testkit.CredentialOptions{CommonName: "valid"})
	expired, expiredKey := testkit.NewCredential(t, testkit.CredentialOptions{
		CommonName: "expired",
		NotBefore:  now.Add(-48 * time.Hour),
		NotAfter:   now.Add(-24 * time.Hour),
	})
	encipher, encipherKey := testkit.NewCredential(t, testkit.CredentialOptions{
		CommonName: "encipher",
		KeyUsage:   x509.KeyUsageKeyEncipherment,
	})

	commitment, commitmentKey := testkit.NewCredential(t, testkit.CredentialOptions{
		CommonName: "commitment",
		KeyUsage:   x509.KeyUsageContentCommitment,
	})
	noUsage := *valid
	noUsage.KeyUsage = 0

	creds := []*Credential{
		{Certificate: valid, PrivateKey: validKey},
		{Certificate: expired, PrivateKey: expiredKey},
		{Certificate: encipher, PrivateKey: encipherKey},
		{Certificate: valid, PrivateKey: expiredKey},
		{Certificate: commitment, PrivateKey: commitmentKey},
		{Certificate: &noUsage, PrivateKey: validKey},
	}

	got := Usable(creds, now)
	if len(got) != 1 || got[0].Certificate.Subject.CommonName != "valid" || got[0].Certificate.KeyUsage == 0 {
		t.Fatalf("expected only the valid credential, got %d", len(got))
	}

	cases := []struct {
		name string
		cred *Credential
	}{
		{"mismatched key", creds[3]},
		{"content commitment only", creds[4]},
		{"no key usage extension", creds[5]},
	}
	for _, tc := range cases {
		if err := Check(tc.cred, now); err == nil {
			t.Errorf("%s: expected credential to be rejected", tc.name)
		}
	}
}
