package http

import (
	"go.uber.org/fx"

	"qualtrack/internal/delivery/http/handler"
	"qualtrack/internal/delivery/http/router"
)

var Module = fx.Module("http",
	fx.Provide(
		handler.NewHealthHandler,
		handler.NewSignatureHandler,
		router.NewRouter,
	),
)
