package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"qualtrack/internal/config"
	"qualtrack/internal/domain/entity"
	"qualtrack/internal/usecase"
)

type HealthHandler struct {
	signatures usecase.SignatureUsecase
}

func NewHealthHandler(signatures usecase.SignatureUsecase) *HealthHandler {
	return &HealthHandler{signatures: signatures}
}

type HealthResponse struct {
	Status    string                 `json:"status"` // healthy, or degraded when nothing can be signed
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Provider  *entity.ProviderStatus `json:"provider"`
}

// Health godoc
// @Summary Health check
// @Description Report service health and whether a signing credential is usable
// @Tags health
// @Produce json
// @Success 200 {object} entity.APIResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	provider := h.signatures.ProviderStatus(c.UserContext())

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   config.Version,
		Provider:  provider,
	}
	message := "Service is healthy"
	if !provider.IsAvailable {
		resp.Status = "degraded"
		message = "No usable signing credential"
	}

	return c.JSON(entity.NewSuccessResponse(resp, message))
}
