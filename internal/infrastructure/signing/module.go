package signing

import (
	"go.uber.org/fx"

	"qualtrack/internal/domain/provider"
)

var Module = fx.Module("signing",
	fx.Provide(
		NewAutoSelector,
		NewPKIProvider,
		func(p *PKIProvider) provider.SignatureProvider { return p },
		func(p *PKIProvider) provider.SignatureVerifier { return p },
	),
)
