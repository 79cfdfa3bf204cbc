package credential

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/pkcs12"

	"qualtrack/internal/config"
)

// ErrNoPrivateKey is returned for a certificate file without a matching key
var ErrNoPrivateKey = errors.New("credential has no private key")

// Credential is a certificate with its private key
type Credential struct {
	Certificate *x509.Certificate
	PrivateKey  crypto.Signer
	Thumbprint  string
	Source      string
}

// DisplayName returns the subject common name, or the full subject
func (c *Credential) DisplayName() string {
	if c.Certificate.Subject.CommonName != "" {
		return c.Certificate.Subject.CommonName
	}
	return c.Certificate.Subject.String()
}

// Store enumerates the signing credentials of the current user
type Store interface {
	// List reads every credential found; it is re-evaluated on each call
	List(ctx context.Context) ([]*Credential, error)

	// Location describes where credentials are read from
	Location() string
}

type directoryStore struct {
	dir      string
	password string
	logger   *zap.Logger
}

// NewStore returns a store reading PEM pairs and PKCS#12 bundles from the
// configured credential directory.
func NewStore(cfg *config.Config, logger *zap.Logger) Store {
	return NewDirectoryStore(cfg.Signing.CredentialDir, cfg.Signing.PKCS12Password, logger)
}

func NewDirectoryStore(dir, password string, logger *zap.Logger) Store {
	return &directoryStore{dir: dir, password: password, logger: logger}
}

func (s *directoryStore) Location() string {
	return s.dir
}

func (s *directoryStore) List(ctx context.Context) ([]*Credential, error) {
	if s.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read credential directory: %w", err)
	}

	var creds []*Credential
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e.IsDir() {
			continue
		}
		path := filepath.Join(s.dir, e.Name())
		ext := strings.ToLower(filepath.Ext(e.Name()))

		var c *Credential
		switch ext {
		case ".crt", ".pem", ".cer":
			c, err = s.loadPEM(path)
		case ".p12", ".pfx":
			c, err = s.loadPKCS12(path)
		default:
			continue
		}
		if err != nil {
			s.logger.Warn("Skipping unreadable credential",
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}
		creds = append(creds, c)
	}

	sort.Slice(creds, func(i, j int) bool { return creds[i].Source < creds[j].Source })
	return creds, nil
}

func (s *directoryStore) loadPEM(path string) (*Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cert *x509.Certificate
	var key crypto.PrivateKey
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE" && cert == nil:
			if cert, err = x509.ParseCertificate(block.Bytes); err != nil {
				return nil, fmt.Errorf("failed to parse certificate: %w", err)
			}
		case strings.HasSuffix(block.Type, "PRIVATE KEY") && key == nil:
			if key, err = parsePrivateKey(block.Bytes); err != nil {
				return nil, err
			}
		}
	}
	if cert == nil {
		return nil, fmt.Errorf("no certificate in %s", filepath.Base(path))
	}

	// The key usually lives next to the certificate as <name>.key.
	if key == nil {
		keyPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".key"
		keyData, err := os.ReadFile(keyPath)
		if err != nil {
			return nil, ErrNoPrivateKey
		}
		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("no PEM data in %s", filepath.Base(keyPath))
		}
		if key, err = parsePrivateKey(block.Bytes); err != nil {
			return nil, err
		}
	}

	return newCredential(cert, key, path)
}

func (s *directoryStore) loadPKCS12(path string) (*Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, cert, err := pkcs12.Decode(data, s.password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode pkcs12 bundle: %w", err)
	}
	return newCredential(cert, key, path)
}

func parsePrivateKey(der []byte) (crypto.PrivateKey, error) {
	if k, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return k, nil
	}
	if k, err := x509.ParseECPrivateKey(der); err == nil {
		return k, nil
	}
	return nil, fmt.Errorf("unsupported private key encoding")
}

func newCredential(cert *x509.Certificate, key crypto.PrivateKey, source string) (*Credential, error) {
	if key == nil {
		return nil, ErrNoPrivateKey
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("private key of type %T cannot sign", key)
	}
	return &Credential{
		Certificate: cert,
		PrivateKey:  signer,
		Thumbprint:  Thumbprint(cert),
		Source:      source,
	}, nil
}

// Thumbprint is the uppercase hex SHA-1 of the DER certificate
func Thumbprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Usable keeps credentials that can produce a document signature at now:
// inside their validity window, allowed to sign, and holding an RSA or ECDSA
// key that matches the certificate.
func Usable(creds []*Credential, now time.Time) []*Credential {
	var out []*Credential
	for _, c := range creds {
		if err := Check(c, now); err == nil {
			out = append(out, c)
		}
	}
	return out
}

// Check explains why c is not usable at now, or returns nil
func Check(c *Credential, now time.Time) error {
	cert := c.Certificate
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate not valid before %s", cert.NotBefore.Format(time.RFC3339))
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate expired at %s", cert.NotAfter.Format(time.RFC3339))
	}
	if cert.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
		return fmt.Errorf("certificate lacks the digital signature key usage")
	}

	switch k := c.PrivateKey.(type) {
	case *rsa.PrivateKey:
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok || !k.PublicKey.Equal(pub) {
			return fmt.Errorf("private key does not match certificate")
		}
	case *ecdsa.PrivateKey:
		pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
		if !ok || !k.PublicKey.Equal(pub) {
			return fmt.Errorf("private key does not match certificate")
		}
	default:
		return fmt.Errorf("unsupported key type %T", c.PrivateKey)
	}
	return nil
}
