package repository

import (
	"testing"
	"time"

	"autobook/internal/models"
	"autobook/pkg/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDecisionQueriesAreScopedByTenant(t *testing.T) {
	sql, args, err := currentDecisionQuery("org-1", "tx-1").ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM decisions WHERE tenant_id = $1 AND transaction_id = $2")
	assert.Equal(t, []any{"org-1", "tx-1"}, args)

	sql, args, err = decisionsByRankQuery("user:u-1", models.RankReview, 20).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE rank = $1 AND tenant_id = $2 ORDER BY created_at DESC LIMIT 20")
	assert.Equal(t, []any{models.RankReview, "user:u-1"}, args)
}

func TestSaveDecisionUpsertsWithinTenant(t *testing.T) {
	d := &models.ClassificationDecision{DecisionID: "d-1", TransactionID: "tx-1", Rank: models.RankOK, CreatedAt: time.Unix(0, 0)}

	sql, args, err := saveDecisionQuery("org-1", d).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO decisions (tenant_id,decision_id,transaction_id,")
	assert.Contains(t, sql, "ON CONFLICT (tenant_id, transaction_id) DO UPDATE")
	require.Len(t, args, len(decisionColumns)+1)
	assert.Equal(t, "org-1", args[0])
	assert.Equal(t, "d-1", args[1])
}

func TestPostingQueriesAreScopedByTenant(t *testing.T) {
	batch := &models.BatchResult{Results: []models.PostingResult{
		{Provider: models.ProviderFreee, TransactionID: "tx-1", OK: true},
		{Provider: models.ProviderFreee, TransactionID: "tx-2"},
	}}
	sql, args, err := recordBatchQuery("org-1", batch, time.Unix(0, 0)).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "INSERT INTO posting_results (id,tenant_id,provider,transaction_id,")
	require.Len(t, args, 22)
	assert.Equal(t, "org-1", args[1])
	assert.Equal(t, "org-1", args[12])

	sql, args, err = postingHistoryQuery("org-1", "tx-1").ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "WHERE tenant_id = $1 AND transaction_id = $2 ORDER BY created_at DESC")
	assert.Equal(t, []any{"org-1", "tx-1"}, args)
}

func TestCredentialsAreSealedAtRest(t *testing.T) {
	sealer := session.NewSealer("db-secret", true, zap.NewNop())
	repo := NewCredentialRepository(nil, sealer, zap.NewNop())

	query, err := repo.upsertQuery("org-1", "xero_refresh_token", "refresh-123", nil, time.Unix(0, 0))
	require.NoError(t, err)
	sql, args, err := query.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "ON CONFLICT (organization_id, name)")
	require.Len(t, args, 5)
	assert.NotContains(t, args, "refresh-123")

	stored, ok := args[2].(string)
	require.True(t, ok)
	assert.NotContains(t, stored, "refresh-123")
	plain, err := sealer.Open(stored)
	require.NoError(t, err)
	assert.Equal(t, "refresh-123", plain)

	_, err = session.NewSealer("other-secret", true, zap.NewNop()).Open(stored)
	assert.ErrorIs(t, err, session.ErrUnsealable)
}
