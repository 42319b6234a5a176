package handlers

import (
	"context"
	"errors"
	"strconv"

	"autobook/internal/dto"
	"autobook/internal/models"
	"autobook/internal/repository"
	"autobook/internal/service"
	"autobook/pkg/logger"
	"autobook/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const maxBatchSize = 500

type DecisionReader interface {
	GetCurrent(ctx context.Context, tenantID, transactionID string) (*models.ClassificationDecision, error)
	ListByRank(ctx context.Context, tenantID string, rank models.Rank, limit uint64) ([]*models.ClassificationDecision, error)
}

type PostingHistory interface {
	ListByTransaction(ctx context.Context, tenantID, transactionID string) ([]models.PostingResult, error)
}

type DecisionHandler struct {
	decisionService *service.DecisionService
	decisions       DecisionReader
	history         PostingHistory
	logger          *zap.Logger
}

// NewDecisionHandler wires the evaluation endpoints; decisions and history may
// be nil when no database is configured.
func NewDecisionHandler(decisionService *service.DecisionService, decisions DecisionReader, history PostingHistory, logger *zap.Logger) *DecisionHandler {
	return &DecisionHandler{
		decisionService: decisionService,
		decisions:       decisions,
		history:         history,
		logger:          logger,
	}
}

// Evaluate godoc
// @Summary Evaluate a transaction
// @Description Classify one transaction as OK, REVIEW or NG with rules and, for REVIEW, the LLM chain
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body dto.TransactionRequest true "Transaction"
// @Security Bearer
// @Success 200 {object} dto.DecisionResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /api/v1/transactions/evaluate [post]
func (h *DecisionHandler) Evaluate(c *fiber.Ctx) error {
	var req dto.TransactionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	tenant := middleware.Tenant(c)
	decision, err := h.decisionService.EvaluateForTenant(c.UserContext(), tenant, req.ToModel(tenant))
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransaction) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		h.logger.Error("Failed to evaluate transaction", append(logger.TenantFields(tenant),
			zap.String("transaction_id", req.TransactionID),
			zap.Error(err),
		)...)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to evaluate transaction",
		})
	}

	return c.JSON(dto.DecisionResponse{Decision: decision, Postable: decision.Postable()})
}

// EvaluateBatch godoc
// @Summary Evaluate transactions
// @Description Evaluate up to 500 transactions sequentially; failures are reported per item
// @Tags transactions
// @Accept json
// @Produce json
// @Param request body dto.EvaluateBatchRequest true "Transactions"
// @Security Bearer
// @Success 200 {object} dto.EvaluateBatchResponse
// @Failure 400 {object} map[string]string
// @Router /api/v1/transactions/evaluate-batch [post]
func (h *DecisionHandler) EvaluateBatch(c *fiber.Ctx) error {
	var req dto.EvaluateBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.Transactions) == 0 || len(req.Transactions) > maxBatchSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "transactions must contain between 1 and 500 items",
		})
	}

	tenant := middleware.Tenant(c)
	txs := make([]models.CanonicalTransaction, 0, len(req.Transactions))
	for _, t := range req.Transactions {
		txs = append(txs, t.ToModel(tenant))
	}

	outcomes := h.decisionService.EvaluateBatch(c.UserContext(), tenant, txs)
	resp := dto.EvaluateBatchResponse{Total: len(outcomes), Results: make([]dto.BatchDecisionItem, 0, len(outcomes))}
	for _, o := range outcomes {
		item := dto.BatchDecisionItem{TransactionID: o.TransactionID, Decision: o.Decision, Error: o.Error}
		if o.Decision != nil {
			item.Postable = o.Decision.Postable()
		} else {
			resp.Failed++
		}
		resp.Results = append(resp.Results, item)
	}
	return c.JSON(resp)
}

// GetDecision godoc
// @Summary Get the current decision of a transaction
// @Tags transactions
// @Produce json
// @Param id path string true "Transaction ID"
// @Security Bearer
// @Success 200 {object} dto.DecisionResponse
// @Failure 404 {object} map[string]string
// @Failure 501 {object} map[string]string
// @Router /api/v1/transactions/{id}/decision [get]
func (h *DecisionHandler) GetDecision(c *fiber.Ctx) error {
	if h.decisions == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "Decision storage is not configured",
		})
	}

	decision, err := h.decisions.GetCurrent(c.UserContext(), middleware.Tenant(c).Scope(), c.Params("id"))
	if err != nil {
		if errors.Is(err, repository.ErrDecisionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Decision not found",
			})
		}
		h.logger.Error("Failed to load decision", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load decision",
		})
	}

	return c.JSON(dto.DecisionResponse{Decision: decision, Postable: decision.Postable()})
}

// ReviewBacklog godoc
// @Summary Decisions awaiting human review
// @Tags transactions
// @Produce json
// @Param limit query int false "Maximum items (1-100)"
// @Security Bearer
// @Success 200 {object} dto.ReviewBacklogResponse
// @Failure 501 {object} map[string]string
// @Router /api/v1/transactions/review [get]
func (h *DecisionHandler) ReviewBacklog(c *fiber.Ctx) error {
	if h.decisions == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "Decision storage is not configured",
		})
	}

	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 20
	}

	tenant := middleware.Tenant(c)
	decisions, err := h.decisions.ListByRank(c.UserContext(), tenant.Scope(), models.RankReview, uint64(limit))
	if err != nil {
		h.logger.Error("Failed to list review backlog", append(logger.TenantFields(tenant), zap.Error(err))...)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list review backlog",
		})
	}
	return c.JSON(dto.ReviewBacklogResponse{Total: len(decisions), Decisions: decisions})
}

// PostingHistory godoc
// @Summary Posting attempts of a transaction
// @Tags transactions
// @Produce json
// @Param id path string true "Transaction ID"
// @Security Bearer
// @Success 200 {object} dto.PostingHistoryResponse
// @Failure 501 {object} map[string]string
// @Router /api/v1/transactions/{id}/postings [get]
func (h *DecisionHandler) PostingHistory(c *fiber.Ctx) error {
	if h.history == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{
			"error": "Posting history is not configured",
		})
	}

	id := c.Params("id")
	results, err := h.history.ListByTransaction(c.UserContext(), middleware.Tenant(c).Scope(), id)
	if err != nil {
		h.logger.Error("Failed to load posting history", zap.String("transaction_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load posting history",
		})
	}
	return c.JSON(dto.PostingHistoryResponse{TransactionID: id, Results: results})
}
