package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"qualtrack/internal/delivery/http/validation"
	"qualtrack/internal/domain/entity"
	"qualtrack/internal/domain/repository"
	"qualtrack/internal/domain/workflow"
	"qualtrack/internal/infrastructure/lock"
	"qualtrack/internal/usecase"
)

var errInvalidBody = errors.New("invalid request body")

type SignatureHandler struct {
	usecase   usecase.SignatureUsecase
	validator *validation.Validator
	logger    *zap.Logger
}

func NewSignatureHandler(usecase usecase.SignatureUsecase, logger *zap.Logger) *SignatureHandler {
	return &SignatureHandler{
		usecase:   usecase,
		validator: validation.New(),
		logger:    logger,
	}
}

// ProviderStatus godoc
// @Summary Signature provider status
// @Description Report the configured provider and whether a usable credential exists
// @Tags signing
// @Produce json
// @Success 200 {object} entity.APIResponse
// @Router /api/v1/signing/provider [get]
func (h *SignatureHandler) ProviderStatus(c *fiber.Ctx) error {
	status := h.usecase.ProviderStatus(c.UserContext())
	return c.JSON(entity.NewSuccessResponse(status, "Provider status retrieved successfully"))
}

// CreateQueueItem godoc
// @Summary Queue a document for signatures
// @Description Move a document into the pending area and queue it for the given roles in order
// @Tags signing
// @Accept json
// @Produce json
// @Param request body entity.CreateQueueItemRequest true "Queue item"
// @Success 201 {object} entity.APIResponse
// @Failure 400 {object} entity.APIResponse
// @Failure 500 {object} entity.APIResponse
// @Router /api/v1/signing/queue [post]
func (h *SignatureHandler) CreateQueueItem(c *fiber.Ctx) error {
	var req entity.CreateQueueItemRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err)
	}

	item, err := h.usecase.CreateQueueItem(c.UserContext(), &req)
	if err != nil {
		return h.fail(c, "Failed to create queue item", err)
	}

	return c.Status(fiber.StatusCreated).JSON(
		entity.NewSuccessResponse(item, "Queue item created successfully"),
	)
}

// GetQueueItem godoc
// @Summary Get a queue item
// @Tags signing
// @Produce json
// @Param id path string true "Queue item ID"
// @Success 200 {object} entity.APIResponse
// @Failure 404 {object} entity.APIResponse
// @Router /api/v1/signing/queue/{id} [get]
func (h *SignatureHandler) GetQueueItem(c *fiber.Ctx) error {
	item, err := h.usecase.GetItem(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Failed to get queue item", err)
	}
	return c.JSON(entity.NewSuccessResponse(item, "Queue item retrieved successfully"))
}

// SignCurrent godoc
// @Summary Sign for the current role
// @Description Apply the signature of the item's current role and advance it. A signing
// @Description failure leaves the item unchanged and is reported with status 422.
// @Tags signing
// @Accept json
// @Produce json
// @Param id path string true "Queue item ID"
// @Param request body entity.SignRequest true "Signer"
// @Success 200 {object} entity.APIResponse
// @Failure 409 {object} entity.APIResponse "Nothing to sign or concurrent update"
// @Failure 422 {object} entity.APIResponse "Signature not applied"
// @Router /api/v1/signing/queue/{id}/sign [post]
func (h *SignatureHandler) SignCurrent(c *fiber.Ctx) error {
	var req entity.SignRequest
	if err := h.bind(c, &req); err != nil {
		return badRequest(c, err)
	}

	outcome, err := h.usecase.SignCurrent(c.UserContext(), c.Params("id"), &req)
	if err != nil {
		return h.fail(c, "Failed to sign queue item", err)
	}

	switch outcome.Kind {
	case entity.OutcomeRejected:
		return c.Status(fiber.StatusConflict).JSON(
			entity.NewFailureResponse(string(outcome.Failure), outcome.Message, outcome),
		)
	case entity.OutcomeNoChange:
		return c.Status(fiber.StatusUnprocessableEntity).JSON(
			entity.NewFailureResponse(string(outcome.Failure), outcome.Message, outcome),
		)
	}

	return c.JSON(entity.NewSuccessResponse(outcome, outcome.Message))
}

// ReturnQueueItem godoc
// @Summary Return an item for rework
// @Description Send the item back to a role, by default the last one that signed
// @Tags signing
// @Accept json
// @Produce json
// @Param id path string true "Queue item ID"
// @Param request body entity.ReturnRequest false "Return target and note"
// @Success 200 {object} entity.APIResponse
// @Failure 409 {object} entity.APIResponse
// @Router /api/v1/signing/queue/{id}/return [post]
func (h *SignatureHandler) ReturnQueueItem(c *fiber.Ctx) error {
	var req entity.ReturnRequest
	if len(c.Body()) > 0 {
		if err := h.bind(c, &req); err != nil {
			return badRequest(c, err)
		}
	}

	item, err := h.usecase.ReturnItem(c.UserContext(), c.Params("id"), &req)
	if err != nil {
		return h.fail(c, "Failed to return queue item", err)
	}
	return c.JSON(entity.NewSuccessResponse(item, item.LastAction))
}

// GetSignatures godoc
// @Summary Verify embedded signatures
// @Description List and verify the signatures inside the item's current document
// @Tags signing
// @Produce json
// @Param id path string true "Queue item ID"
// @Success 200 {object} entity.APIResponse
// @Router /api/v1/signing/queue/{id}/signatures [get]
func (h *SignatureHandler) GetSignatures(c *fiber.Ctx) error {
	sigs, err := h.usecase.VerifyDocument(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.fail(c, "Failed to verify document", err)
	}
	return c.JSON(entity.NewSuccessResponse(sigs, "Signatures retrieved successfully"))
}

// GetInbox godoc
// @Summary Items awaiting a role
// @Tags signing
// @Produce json
// @Param role query string true "Role"
// @Param status query string false "Pending, Returned or Completed"
// @Param form_type query string false "Form type"
// @Success 200 {object} entity.APIResponse
// @Failure 400 {object} entity.APIResponse
// @Router /api/v1/signing/inbox [get]
func (h *SignatureHandler) GetInbox(c *fiber.Ctx) error {
	role := c.Query("role")
	if role == "" {
		return c.Status(fiber.StatusBadRequest).JSON(
			entity.NewErrorResponse("BAD_REQUEST", "Role is required"),
		)
	}

	items, err := h.usecase.GetInbox(c.UserContext(), entity.InboxFilter{
		Role:     entity.Role(role),
		Status:   entity.QueueStatus(c.Query("status")),
		FormType: entity.FormType(c.Query("form_type")),
	})
	if err != nil {
		return h.fail(c, "Failed to get inbox", err)
	}
	if items == nil {
		items = []*entity.SignatureQueueItem{}
	}
	return c.JSON(entity.NewSuccessResponse(items, "Inbox retrieved successfully"))
}

// bind parses and validates the JSON body
func (h *SignatureHandler) bind(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		h.logger.Warn("Failed to parse request body", zap.Error(err))
		return errInvalidBody
	}
	return h.validator.Struct(req)
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(entity.NewErrorResponse("BAD_REQUEST", err.Error()))
}

// fail maps usecase errors onto status codes
func (h *SignatureHandler) fail(c *fiber.Ctx, msg string, err error) error {
	status, code := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		h.logger.Error(msg, zap.String("path", c.Path()), zap.Error(err))
	} else {
		h.logger.Warn(msg, zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(status).JSON(entity.NewErrorResponse(code, err.Error()))
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrItemNotFound):
		return fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, entity.ErrUnknownRole),
		errors.Is(err, workflow.ErrDuplicateRole),
		errors.Is(err, workflow.ErrNoRequiredRoles),
		errors.Is(err, usecase.ErrInvalidStatus),
		errors.Is(err, usecase.ErrDocumentNotFound):
		return fiber.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, workflow.ErrInvalidTransition):
		return fiber.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, repository.ErrVersionConflict),
		errors.Is(err, lock.ErrLockNotAcquired):
		return fiber.StatusConflict, "CONFLICT"
	}
	return fiber.StatusInternalServerError, "INTERNAL_ERROR"
}
