package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"autobook/internal/accounting"
	"autobook/internal/api/handlers"
	"autobook/internal/dto"
	"autobook/internal/jurisdiction"
	"autobook/internal/models"
	"autobook/internal/repository"
	"autobook/internal/rules"
	"autobook/internal/service"
	"autobook/pkg/auth"
	"autobook/pkg/session"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubDecisions keys decisions by "tenant/transaction".
type stubDecisions struct {
	byID    map[string]*models.ClassificationDecision
	history map[string][]models.PostingResult
}

func (s *stubDecisions) GetCurrent(_ context.Context, tenantID, id string) (*models.ClassificationDecision, error) {
	if d, ok := s.byID[tenantID+"/"+id]; ok {
		return d, nil
	}
	return nil, repository.ErrDecisionNotFound
}

func (s *stubDecisions) ListByRank(_ context.Context, tenantID string, rank models.Rank, limit uint64) ([]*models.ClassificationDecision, error) {
	out := []*models.ClassificationDecision{}
	for key, d := range s.byID {
		if strings.HasPrefix(key, tenantID+"/") && d.Rank == rank && uint64(len(out)) < limit {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *stubDecisions) ListByTransaction(_ context.Context, tenantID, id string) ([]models.PostingResult, error) {
	return s.history[tenantID+"/"+id], nil
}

type testServer struct {
	app   *fiber.App
	token string
	store *session.MemoryStore
}

func newTestServer(t *testing.T, decisions *stubDecisions) *testServer {
	t.Helper()
	logger := zap.NewNop()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC))

	decisionService := service.NewDecisionService(
		jurisdiction.NewStore(),
		rules.NewClassifier(rules.DefaultConfig()),
		nil,
		nil,
		clock,
		service.DecisionConfig{AllowAmountCorrection: true},
		logger,
	)
	registry := accounting.NewRegistry(
		accounting.NewFreeeAdapter(accounting.ProviderOptions{ClientID: "id", ClientSecret: "secret"}, logger),
		accounting.NewQuickBooksAdapter(accounting.ProviderOptions{}, logger),
	)
	var (
		reader  handlers.DecisionReader
		history handlers.PostingHistory
		lookup  service.DecisionLookup
	)
	if decisions != nil {
		reader, history, lookup = decisions, decisions, decisions
	}
	postingService := service.NewPostingService(registry, nil, lookup, clock, logger)

	store := session.NewMemoryStore(clock)
	sessions := func(*fiber.Ctx, models.TenantContext) accounting.SessionStore { return store }

	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	token, err := jwtManager.GenerateToken(models.TenantContext{UserID: "u-1", OrganizationID: "org-1", RegionCode: "JP"})
	require.NoError(t, err)

	app := SetupRouter(
		handlers.NewDecisionHandler(decisionService, reader, history, logger),
		handlers.NewProviderHandler(postingService, sessions, logger),
		jwtManager,
		logger,
	)
	return &testServer{app: app, token: token, store: store}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func taxiRequest(id string) dto.TransactionRequest {
	return dto.TransactionRequest{
		TransactionID: id,
		SourceType:    "paper_ocr",
		Direction:     "expense",
		OccurredAt:    "2024-05-01",
		Amount:        3000,
		Currency:      "JPY",
		Memo:          "タクシー",
	}
}

func TestHealthzIsPublic(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.token = ""

	resp, _ := srv.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.token = ""

	resp, _ := srv.do(t, http.MethodGet, "/api/v1/providers", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	srv.token = "not-a-jwt"
	resp, _ = srv.do(t, http.MethodGet, "/api/v1/providers", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEvaluateUsesTenantRegion(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, body := srv.do(t, http.MethodPost, "/api/v1/transactions/evaluate", taxiRequest("tx-1"))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out dto.DecisionResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotNil(t, out.Decision)
	assert.Equal(t, models.RankOK, out.Decision.Rank)
	assert.Equal(t, "jp-rules-2024.1", out.Decision.RuleVersion)
	assert.True(t, out.Postable)
}

func TestEvaluateRejectsInvalidTransaction(t *testing.T) {
	srv := newTestServer(t, nil)

	req := taxiRequest("tx-1")
	req.SourceType = "fax"
	resp, _ := srv.do(t, http.MethodPost, "/api/v1/transactions/evaluate", req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEvaluateBatchReportsFailuresPerItem(t *testing.T) {
	srv := newTestServer(t, nil)

	bad := taxiRequest("")
	resp, body := srv.do(t, http.MethodPost, "/api/v1/transactions/evaluate-batch", dto.EvaluateBatchRequest{
		Transactions: []dto.TransactionRequest{taxiRequest("tx-1"), bad},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out dto.EvaluateBatchResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 2, out.Total)
	assert.Equal(t, 1, out.Failed)
	require.Len(t, out.Results, 2)
	assert.NotNil(t, out.Results[0].Decision)
	assert.Nil(t, out.Results[1].Decision)
	assert.NotEmpty(t, out.Results[1].Error)

	resp, _ = srv.do(t, http.MethodPost, "/api/v1/transactions/evaluate-batch", dto.EvaluateBatchRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetDecision(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, _ := srv.do(t, http.MethodGet, "/api/v1/transactions/tx-1/decision", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	srv = newTestServer(t, &stubDecisions{byID: map[string]*models.ClassificationDecision{
		"org-1/tx-1": {TransactionID: "tx-1", Rank: models.RankOK, IsExpense: true, AllocationRate: 1, Amount: 3000},
		"org-2/tx-9": {TransactionID: "tx-9", Rank: models.RankOK, IsExpense: true, AllocationRate: 1, Amount: 9000},
	}})
	resp, body := srv.do(t, http.MethodGet, "/api/v1/transactions/tx-1/decision", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out dto.DecisionResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "tx-1", out.Decision.TransactionID)
	assert.True(t, out.Postable)

	resp, _ = srv.do(t, http.MethodGet, "/api/v1/transactions/tx-2/decision", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Another organisation's decision is invisible.
	resp, _ = srv.do(t, http.MethodGet, "/api/v1/transactions/tx-9/decision", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReviewBacklogAndPostingHistory(t *testing.T) {
	srv := newTestServer(t, nil)
	resp, _ := srv.do(t, http.MethodGet, "/api/v1/transactions/review", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
	resp, _ = srv.do(t, http.MethodGet, "/api/v1/transactions/tx-1/postings", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	srv = newTestServer(t, &stubDecisions{
		byID: map[string]*models.ClassificationDecision{
			"org-1/tx-1": {TransactionID: "tx-1", Rank: models.RankReview, IsExpense: true, AllocationRate: 1},
			"org-1/tx-2": {TransactionID: "tx-2", Rank: models.RankOK, IsExpense: true, AllocationRate: 1},
			"org-2/tx-3": {TransactionID: "tx-3", Rank: models.RankReview, IsExpense: true, AllocationRate: 1},
		},
		history: map[string][]models.PostingResult{
			"org-1/tx-2": {{Provider: models.ProviderFreee, TransactionID: "tx-2", OK: true, RemoteID: "d-1"}},
		},
	})

	resp, body := srv.do(t, http.MethodGet, "/api/v1/transactions/review?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var backlog dto.ReviewBacklogResponse
	require.NoError(t, json.Unmarshal(body, &backlog))
	require.Equal(t, 1, backlog.Total)
	assert.Equal(t, "tx-1", backlog.Decisions[0].TransactionID)

	resp, body = srv.do(t, http.MethodGet, "/api/v1/transactions/tx-2/postings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var history dto.PostingHistoryResponse
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history.Results, 1)
	assert.Equal(t, "d-1", history.Results[0].RemoteID)
}

func TestPostStoredDecisionsRoute(t *testing.T) {
	req := dto.PostStoredDecisionsRequest{Transactions: []dto.TransactionRequest{taxiRequest("tx-1"), taxiRequest("tx-2")}}

	srv := newTestServer(t, nil)
	resp, _ := srv.do(t, http.MethodPost, "/api/v1/providers/freee/drafts/from-decisions", req)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	srv = newTestServer(t, &stubDecisions{byID: map[string]*models.ClassificationDecision{
		"org-1/tx-1": {TransactionID: "tx-1", Rank: models.RankOK, IsExpense: true, AllocationRate: 1, Amount: 3000},
	}})
	resp, body := srv.do(t, http.MethodPost, "/api/v1/providers/freee/drafts/from-decisions", req)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))

	var out dto.PostStoredDecisionsResponse
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotNil(t, out.BatchResult)
	assert.Equal(t, "FREEE_NOT_CONNECTED", out.Code)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "tx-1", out.Results[0].TransactionID)
	assert.Equal(t, []string{"tx-2"}, out.Skipped)
}

func TestProviderListingAndStatus(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, body := srv.do(t, http.MethodGet, "/api/v1/providers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list dto.ProvidersResponse
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Providers, 2)
	assert.Equal(t, models.ProviderFreee, list.Providers[0].Provider)
	assert.True(t, list.Providers[0].Configured)
	assert.False(t, list.Providers[0].Connected)

	resp, _ = srv.do(t, http.MethodGet, "/api/v1/providers/xero/status", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = srv.do(t, http.MethodGet, "/api/v1/providers/resolve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var resolved dto.ResolveProviderResponse
	require.NoError(t, json.Unmarshal(body, &resolved))
	assert.Equal(t, models.ProviderFreee, resolved.Provider)

	resp, body = srv.do(t, http.MethodGet, "/api/v1/providers/resolve?region=US", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &resolved))
	assert.Equal(t, models.ProviderQuickBooks, resolved.Provider)
}

func TestPostDraftsWithoutConnection(t *testing.T) {
	srv := newTestServer(t, nil)

	req := dto.PostDraftsRequest{Items: []dto.PostingItem{{
		Transaction: taxiRequest("tx-1"),
		Decision:    models.ClassificationDecision{TransactionID: "tx-1", Rank: models.RankOK, IsExpense: true, AllocationRate: 1, Amount: 3000},
	}}}

	// Region JP resolves to freee.
	resp, body := srv.do(t, http.MethodPost, "/api/v1/drafts", req)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, string(body))

	var out models.BatchResult
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, models.ProviderFreee, out.Provider)
	assert.Equal(t, "FREEE_NOT_CONNECTED", out.Code)
	require.Len(t, out.Results, 1)
	assert.Equal(t, "tx-1", out.Results[0].TransactionID)

	resp, body = srv.do(t, http.MethodPost, "/api/v1/providers/sage/drafts", req)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, accounting.CodeProviderNotSupported, out.Code)

	resp, body = srv.do(t, http.MethodPost, "/api/v1/providers/freee/drafts", dto.PostDraftsRequest{})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, accounting.CodeNoCommands, out.Code)
}

func TestReviewQueueStatusCodes(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, body := srv.do(t, http.MethodGet, "/api/v1/providers/freee/review-queue?limit=5", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode, string(body))
	var out models.QueueResult
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, "FREEE_NOT_CONNECTED", out.Code)

	resp, _ = srv.do(t, http.MethodGet, "/api/v1/providers/sage/review-queue", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
