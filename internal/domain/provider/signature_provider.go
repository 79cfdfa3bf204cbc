package provider

import (
	"context"

	"qualtrack/internal/domain/entity"
)

// SignatureProvider applies a signature for one signer to one document
type SignatureProvider interface {
	// Name identifies the signing mechanism
	Name() string

	// IsAvailable reports whether a usable credential can be located right now
	IsAvailable(ctx context.Context) bool

	// RequestSignature signs a copy of the document. Expected failures are
	// reported in the result, never as an error.
	RequestSignature(ctx context.Context, req *entity.SignatureRequest) *entity.SignatureResult
}

// SignatureVerifier reads back the signatures embedded in a document
type SignatureVerifier interface {
	VerifyDocument(ctx context.Context, path string) ([]entity.EmbeddedSignature, error)
}
