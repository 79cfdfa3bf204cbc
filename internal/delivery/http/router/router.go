package router

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/utils"

	"qualtrack/internal/config"
	"qualtrack/internal/delivery/http/handler"
	"qualtrack/internal/domain/entity"
)

type Router struct {
	app              *fiber.App
	config           *config.Config
	healthHandler    *handler.HealthHandler
	signatureHandler *handler.SignatureHandler
}

func NewRouter(
	cfg *config.Config,
	healthHandler *handler.HealthHandler,
	signatureHandler *handler.SignatureHandler,
) *Router {
	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ErrorHandler: customErrorHandler,
	})

	return &Router{
		app:              app,
		config:           cfg,
		healthHandler:    healthHandler,
		signatureHandler: signatureHandler,
	}
}

func (r *Router) Setup() *fiber.App {
	// Middleware
	r.app.Use(recover.New())
	r.app.Use(requestid.New())
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	if r.config.IsDevelopment() {
		r.app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}

	// Health check route
	r.app.Get("/health", r.healthHandler.Health)

	// API v1 routes
	api := r.app.Group("/api/v1")
	{
		signing := api.Group("/signing")
		{
			signing.Get("/provider", r.signatureHandler.ProviderStatus)
			signing.Get("/inbox", r.signatureHandler.GetInbox)

			signing.Post("/queue", r.signatureHandler.CreateQueueItem)
			signing.Get("/queue/:id", r.signatureHandler.GetQueueItem)
			signing.Post("/queue/:id/sign", r.signatureHandler.SignCurrent)
			signing.Post("/queue/:id/return", r.signatureHandler.ReturnQueueItem)
			signing.Get("/queue/:id/signatures", r.signatureHandler.GetSignatures)
		}
	}

	return r.app
}

func (r *Router) GetApp() *fiber.App {
	return r.app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}

	return c.Status(code).JSON(entity.NewErrorResponse(utils.StatusMessage(code), err.Error()))
}
