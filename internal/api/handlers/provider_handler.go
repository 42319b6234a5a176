package handlers

import (
	"errors"
	"strconv"
	"strings"

	"autobook/internal/accounting"
	"autobook/internal/dto"
	"autobook/internal/models"
	"autobook/internal/service"
	"autobook/pkg/logger"
	"autobook/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// SessionFactory picks the credential store for the request's tenant.
type SessionFactory func(c *fiber.Ctx, tenant models.TenantContext) accounting.SessionStore

type ProviderHandler struct {
	postingService *service.PostingService
	sessions       SessionFactory
	logger         *zap.Logger
}

func NewProviderHandler(postingService *service.PostingService, sessions SessionFactory, logger *zap.Logger) *ProviderHandler {
	return &ProviderHandler{
		postingService: postingService,
		sessions:       sessions,
		logger:         logger,
	}
}

// ListProviders godoc
// @Summary List accounting providers
// @Description Configuration and connection state of every provider
// @Tags providers
// @Produce json
// @Security Bearer
// @Success 200 {object} dto.ProvidersResponse
// @Router /api/v1/providers [get]
func (h *ProviderHandler) ListProviders(c *fiber.Ctx) error {
	store := h.sessions(c, middleware.Tenant(c))
	return c.JSON(dto.ProvidersResponse{Providers: h.postingService.ProviderStatuses(store)})
}

// ResolveProvider godoc
// @Summary Resolve the provider for the tenant
// @Tags providers
// @Produce json
// @Param provider query string false "Requested provider"
// @Security Bearer
// @Success 200 {object} dto.ResolveProviderResponse
// @Router /api/v1/providers/resolve [get]
func (h *ProviderHandler) ResolveProvider(c *fiber.Ctx) error {
	tenant := middleware.Tenant(c)
	if region := c.Query("region"); region != "" {
		tenant.RegionCode = region
	}
	p, def := h.postingService.ResolveProvider(tenant, c.Query("provider"))
	return c.JSON(dto.ResolveProviderResponse{Provider: p, Definition: def})
}

// Status godoc
// @Summary Provider connection status
// @Tags providers
// @Produce json
// @Param provider path string true "freee, quickbooks or xero"
// @Security Bearer
// @Success 200 {object} models.ProviderStatus
// @Failure 404 {object} map[string]string
// @Router /api/v1/providers/{provider}/status [get]
func (h *ProviderHandler) Status(c *fiber.Ctx) error {
	store := h.sessions(c, middleware.Tenant(c))
	st, ok := h.postingService.ProviderStatus(c.Params("provider"), store)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": accounting.CodeProviderNotSupported,
		})
	}
	return c.JSON(st)
}

// PostDrafts godoc
// @Summary Post drafts to a provider
// @Description Creates one draft per postable command; the response holds one result per command
// @Tags providers
// @Accept json
// @Produce json
// @Param provider path string true "freee, quickbooks or xero"
// @Param request body dto.PostDraftsRequest true "Commands"
// @Security Bearer
// @Success 200 {object} models.BatchResult
// @Failure 400 {object} map[string]string
// @Failure 422 {object} models.BatchResult
// @Router /api/v1/providers/{provider}/drafts [post]
func (h *ProviderHandler) PostDrafts(c *fiber.Ctx) error {
	var req dto.PostDraftsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.Items) > maxBatchSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "items must contain at most 500 commands",
		})
	}

	tenant := middleware.Tenant(c)
	store := h.sessions(c, tenant)
	res := h.postingService.PostDraftsByProvider(c.UserContext(), c.Params("provider"), req.Commands(tenant), tenant, store)
	return c.Status(h.batchStatus(tenant, res)).JSON(res)
}

// PostStoredDecisions godoc
// @Summary Post drafts from stored decisions
// @Description Posts each transaction with the decision evaluation stored for it; transactions without a postable decision are skipped
// @Tags providers
// @Accept json
// @Produce json
// @Param provider path string true "freee, quickbooks or xero"
// @Param request body dto.PostStoredDecisionsRequest true "Transactions"
// @Security Bearer
// @Success 200 {object} dto.PostStoredDecisionsResponse
// @Failure 400 {object} map[string]string
// @Failure 422 {object} dto.PostStoredDecisionsResponse
// @Failure 501 {object} map[string]string
// @Router /api/v1/providers/{provider}/drafts/from-decisions [post]
func (h *ProviderHandler) PostStoredDecisions(c *fiber.Ctx) error {
	var req dto.PostStoredDecisionsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.Transactions) > maxBatchSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "transactions must contain at most 500 items",
		})
	}

	tenant := middleware.Tenant(c)
	store := h.sessions(c, tenant)
	res, skipped, err := h.postingService.PostStoredDecisions(c.UserContext(), c.Params("provider"), req.Models(tenant), tenant, store)
	if err != nil {
		if errors.Is(err, service.ErrDecisionStorageDisabled) {
			return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
				"error": "Decision storage is not configured",
			})
		}
		h.logger.Error("Failed to load stored decisions", append(logger.TenantFields(tenant), zap.Error(err))...)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load stored decisions",
		})
	}
	return c.Status(h.batchStatus(tenant, res)).JSON(dto.PostStoredDecisionsResponse{BatchResult: res, Skipped: skipped})
}

func (h *ProviderHandler) batchStatus(tenant models.TenantContext, res *models.BatchResult) int {
	status := fiber.StatusOK
	if (res.Success == 0 && res.Failed > 0) || res.Code == accounting.CodeNoCommands {
		status = fiber.StatusUnprocessableEntity
	}
	if !res.OK {
		h.logger.Warn("Draft posting incomplete", append(logger.TenantFields(tenant),
			zap.String("provider", string(res.Provider)),
			zap.String("code", res.Code),
			zap.Int("failed", res.Failed),
		)...)
	}
	return status
}

// ReviewQueue godoc
// @Summary Drafts awaiting review in the provider
// @Tags providers
// @Produce json
// @Param provider path string true "freee, quickbooks or xero"
// @Param limit query int false "Maximum items (1-100)"
// @Security Bearer
// @Success 200 {object} models.QueueResult
// @Router /api/v1/providers/{provider}/review-queue [get]
func (h *ProviderHandler) ReviewQueue(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	store := h.sessions(c, middleware.Tenant(c))
	res := h.postingService.FetchReviewQueueByProvider(c.UserContext(), c.Params("provider"), limit, store)

	status := fiber.StatusOK
	if !res.OK {
		switch {
		case res.Code == accounting.CodeProviderNotSupported:
			status = fiber.StatusNotFound
		case strings.HasSuffix(res.Code, accounting.NotConnected), strings.HasSuffix(res.Code, accounting.CompanyMissing):
			status = fiber.StatusConflict
		default:
			status = fiber.StatusBadGateway
		}
	}
	return c.Status(status).JSON(res)
}
