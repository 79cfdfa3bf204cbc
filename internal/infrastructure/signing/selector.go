package signing

import (
	"context"
	"strings"

	"qualtrack/internal/infrastructure/credential"
)

// CertificateSelector picks one credential among usable candidates.
// Returning nil with a nil error means the selection was cancelled.
type CertificateSelector interface {
	Select(ctx context.Context, candidates []*credential.Credential, preferredThumbprint string) (*credential.Credential, error)
}

// AutoSelector chooses without user interaction: the preferred thumbprint if
// present, otherwise the only candidate, otherwise the one valid longest.
type AutoSelector struct{}

func NewAutoSelector() CertificateSelector {
	return AutoSelector{}
}

func (AutoSelector) Select(ctx context.Context, candidates []*credential.Credential, preferredThumbprint string) (*credential.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if preferredThumbprint != "" {
		want := normalizeThumbprint(preferredThumbprint)
		for _, c := range candidates {
			if c.Thumbprint == want {
				return c, nil
			}
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Certificate.NotAfter.After(best.Certificate.NotAfter) {
			best = c
		}
	}
	return best, nil
}

// normalizeThumbprint accepts the spaced or colon separated forms shown by
// certificate viewers.
func normalizeThumbprint(s string) string {
	s = strings.ToUpper(s)
	return strings.NewReplacer(" ", "", ":", "").Replace(s)
}

// SelectorFunc adapts a function to CertificateSelector
type SelectorFunc func(ctx context.Context, candidates []*credential.Credential, preferredThumbprint string) (*credential.Credential, error)

func (f SelectorFunc) Select(ctx context.Context, candidates []*credential.Credential, preferredThumbprint string) (*credential.Credential, error) {
	return f(ctx, candidates, preferredThumbprint)
}
