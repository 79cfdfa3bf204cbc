package signing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"qualtrack/internal/config"
	"qualtrack/internal/domain/entity"
	"qualtrack/internal/infrastructure/credential"
	"qualtrack/internal/infrastructure/pdf"
)

// signedSuffix matches the suffix added to a previously signed file name
var signedSuffix = regexp.MustCompile(`_signed_\d{14}(_\d+)?$`)

// PKIProvider signs documents with a certificate from the local credential store
type PKIProvider struct {
	name      string
	store     credential.Store
	selector  CertificateSelector
	preferred string
	layout    pdf.Layout
	reserved  int
	now       func() time.Time
	logger    *zap.Logger
}

func NewPKIProvider(cfg *config.Config, store credential.Store, selector CertificateSelector, logger *zap.Logger) *PKIProvider {
	return &PKIProvider{
		name:      cfg.Signing.ProviderName,
		store:     store,
		selector:  selector,
		preferred: cfg.Signing.PreferredThumbprint,
		layout: pdf.Layout{
			Width:  cfg.Signing.FieldWidth,
			Height: cfg.Signing.FieldHeight,
			Margin: cfg.Signing.FieldMargin,
			Corner: pdf.Corner(cfg.Signing.FieldCorner),
		},
		reserved: cfg.Signing.SignatureSize,
		now:      time.Now,
		logger:   logger,
	}
}

func (p *PKIProvider) Name() string {
	return p.name
}

// IsAvailable re-reads the credential store on every call
func (p *PKIProvider) IsAvailable(ctx context.Context) bool {
	creds, err := p.usableCredentials(ctx)
	if err != nil {
		p.logger.Warn("Failed to enumerate credentials", zap.Error(err))
		return false
	}
	return len(creds) > 0
}

func (p *PKIProvider) usableCredentials(ctx context.Context) ([]*credential.Credential, error) {
	creds, err := p.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return credential.Usable(creds, p.now()), nil
}

// RequestSignature never panics; any failure comes back as a failed result
func (p *PKIProvider) RequestSignature(ctx context.Context, req *entity.SignatureRequest) (result *entity.SignatureResult) {
	log := p.logger.With(
		zap.String("document_path", req.DocumentPath),
		zap.String("field", req.SignatureFieldName),
	)
	defer func() {
		if r := recover(); r != nil {
			result = p.signingFailed(log, fmt.Errorf("signing aborted: %v", r))
		}
	}()

	info, err := os.Stat(req.DocumentPath)
	if err != nil || info.IsDir() {
		log.Warn("Document to sign not found")
		return entity.NewFailedResult(entity.FailureInputNotFound,
			fmt.Sprintf("document not found: %s", req.DocumentPath))
	}

	candidates, err := p.usableCredentials(ctx)
	if err != nil {
		log.Error("Failed to enumerate credentials", zap.Error(err))
		return entity.NewFailedResult(entity.FailureNoCredentialAvailable,
			fmt.Sprintf("unable to read credential store: %v", err))
	}
	if len(candidates) == 0 {
		log.Warn("No usable signing credential", zap.String("store", p.store.Location()))
		return entity.NewFailedResult(entity.FailureNoCredentialAvailable,
			"no valid signing certificate with a private key was found")
	}

	preferred := req.PreferredThumbprint
	if preferred == "" {
		preferred = p.preferred
	}
	cred, err := p.selector.Select(ctx, candidates, preferred)
	if err != nil {
		log.Error("Certificate selection failed", zap.Error(err))
		return entity.NewFailedResult(entity.FailureSigningOperationFailed,
			fmt.Sprintf("certificate selection failed: %v", err))
	}
	if cred == nil {
		log.Info("Certificate selection cancelled")
		return entity.NewFailedResult(entity.FailureSelectionCancelled, "certificate selection was cancelled")
	}

	signedAt := p.now()
	outPath, err := p.outputPath(req, signedAt)
	if err != nil {
		return p.signingFailed(log, err)
	}

	input, err := os.ReadFile(req.DocumentPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entity.NewFailedResult(entity.FailureInputNotFound,
				fmt.Sprintf("document not found: %s", req.DocumentPath))
		}
		return p.signingFailed(log, fmt.Errorf("failed to read document: %w", err))
	}

	signerName := req.SignerDisplayName
	if signerName == "" {
		signerName = cred.DisplayName()
	}

	signed, err := pdf.Sign(input, pdf.SignOptions{
		FieldName:    req.SignatureFieldName,
		Page:         req.PageNumber,
		SignerName:   signerName,
		Reason:       req.Purpose,
		SigningTime:  signedAt,
		Layout:       p.layout,
		ReservedSize: p.reserved,
		Sign:         pdf.CMSSigner(cred.Certificate, cred.PrivateKey),
	})
	if err != nil {
		return p.signingFailed(log, err)
	}

	if err := ctx.Err(); err != nil {
		log.Info("Signing cancelled before write")
		return entity.NewFailedResult(entity.FailureSelectionCancelled, "signing was cancelled")
	}

	if err := writeFileAtomic(outPath, signed); err != nil {
		return p.signingFailed(log, err)
	}

	log.Info("Document signed",
		zap.String("signed_path", outPath),
		zap.String("thumbprint", cred.Thumbprint),
		zap.String("signer", signerName),
	)

	return &entity.SignatureResult{
		Success:            true,
		Message:            fmt.Sprintf("signed by %s", signerName),
		SignedAt:           signedAt,
		SignedDocumentPath: outPath,
		SignerThumbprint:   cred.Thumbprint,
	}
}

func (p *PKIProvider) signingFailed(log *zap.Logger, err error) *entity.SignatureResult {
	log.Error("Signing operation failed", zap.Error(err))
	return entity.NewFailedResult(entity.FailureSigningOperationFailed, err.Error())
}

// outputPath returns the requested output path, or <stem>_signed_<timestamp>.pdf
// next to the input. It never returns the input path itself.
func (p *PKIProvider) outputPath(req *entity.SignatureRequest, at time.Time) (string, error) {
	if req.OutputPath != "" {
		if samePath(req.OutputPath, req.DocumentPath) {
			return "", fmt.Errorf("output path must differ from the document path")
		}
		return req.OutputPath, nil
	}

	dir := filepath.Dir(req.DocumentPath)
	ext := filepath.Ext(req.DocumentPath)
	if ext == "" {
		ext = ".pdf"
	}
	stem := strings.TrimSuffix(filepath.Base(req.DocumentPath), filepath.Ext(req.DocumentPath))
	stem = signedSuffix.ReplaceAllString(stem, "")
	base := fmt.Sprintf("%s_signed_%s", stem, at.Format("20060102150405"))

	candidate := filepath.Join(dir, base+ext)
	for i := 2; ; i++ {
		if !samePath(candidate, req.DocumentPath) {
			if _, err := os.Stat(candidate); os.IsNotExist(err) {
				return candidate, nil
			}
		}
		if i > 1000 {
			return "", fmt.Errorf("no free output name for %s", base)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, ext))
	}
}

func samePath(a, b string) bool {
	ca, errA := filepath.Abs(a)
	cb, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(filepath.Clean(a), filepath.Clean(b))
	}
	return strings.EqualFold(ca, cb)
}

// writeFileAtomic writes data to a temporary file in the target directory,
// syncs it and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".signing-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to write signed document: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("failed to sync signed document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("failed to close signed document: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("failed to move signed document into place: %w", err)
	}
	return nil
}

// VerifyDocument lists and checks every signature embedded in the document
func (p *PKIProvider) VerifyDocument(ctx context.Context, path string) ([]entity.EmbeddedSignature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	sigs, err := pdf.ExtractSignatures(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read signatures: %w", err)
	}

	out := make([]entity.EmbeddedSignature, 0, len(sigs))
	for _, s := range sigs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v := pdf.VerifySignature(data, s)
		es := entity.EmbeddedSignature{
			FieldName:       s.FieldName,
			SignerName:      s.SignerName,
			Reason:          s.Reason,
			SigningTime:     s.SigningTime,
			CoversWholeFile: s.CoversWholeFile,
			Valid:           v.Valid,
		}
		if v.Certificate != nil {
			es.SignerSubject = v.Certificate.Subject.String()
			es.SignerThumbprint = credential.Thumbprint(v.Certificate)
		}
		if v.Err != nil {
			es.ValidationMessage = v.Err.Error()
		}
		out = append(out, es)
	}
	return out, nil
}
