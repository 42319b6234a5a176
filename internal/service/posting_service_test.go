package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"autobook/internal/accounting"
	"autobook/internal/models"
	"autobook/internal/repository"
	"autobook/pkg/session"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAdapter struct {
	provider  models.Provider
	dropLast  bool
	refreshTo string
	seen      accounting.Credentials
	calls     int
	commands  []models.PostingCommand
}

func (f *fakeAdapter) Provider() models.Provider { return f.provider }

func (f *fakeAdapter) Status(store accounting.SessionStore) models.ProviderStatus {
	return models.ProviderStatus{Provider: f.provider, Connected: accounting.LoadCredentials(store, f.provider).Connected()}
}

func (f *fakeAdapter) PostDrafts(_ context.Context, commands []models.PostingCommand, creds accounting.Credentials) (*models.BatchResult, accounting.Credentials) {
	f.calls++
	f.seen = creds
	f.commands = append(f.commands, commands...)
	if f.refreshTo != "" {
		creds.AccessToken = f.refreshTo
	}
	res := &models.BatchResult{Provider: f.provider, OK: true, Code: accounting.Code(f.provider, accounting.DraftPosted)}
	n := len(commands)
	if f.dropLast {
		n--
	}
	for _, cmd := range commands[:n] {
		res.Results = append(res.Results, models.PostingResult{
			Provider:       f.provider,
			TransactionID:  cmd.Transaction.TransactionID,
			OK:             true,
			Status:         models.PostingStatusPosted,
			RemoteID:       "r-" + cmd.Transaction.TransactionID,
			DiagnosticCode: accounting.Code(f.provider, accounting.DraftPosted),
		})
		res.Success++
	}
	return res, creds
}

func (f *fakeAdapter) FetchReviewQueue(_ context.Context, creds accounting.Credentials, limit int) (*models.QueueResult, accounting.Credentials) {
	f.seen = creds
	return &models.QueueResult{
		Provider: f.provider,
		OK:       true,
		Code:     accounting.Code(f.provider, accounting.ReviewQueueFetched),
		Items:    []models.ReviewQueueItem{{Provider: f.provider, RemoteID: "d-1"}},
	}, creds
}

type recordedBatches struct {
	org     string
	batches []*models.BatchResult
}

func (r *recordedBatches) RecordBatch(_ context.Context, org string, batch *models.BatchResult) error {
	r.org = org
	r.batches = append(r.batches, batch)
	return nil
}

func postingCommand(id string) models.PostingCommand {
	return models.PostingCommand{
		Transaction: models.CanonicalTransaction{
			TransactionID: id,
			SourceType:    models.SourceManual,
			Direction:     models.DirectionExpense,
			OccurredAt:    "2024-06-01",
			Amount:        1000,
			Currency:      "JPY",
		},
		Decision: models.ClassificationDecision{TransactionID: id, Rank: models.RankOK, IsExpense: true, AllocationRate: 1},
	}
}

func newPostingFixture(adapters ...accounting.Adapter) (*PostingService, *session.MemoryStore, *recordedBatches) {
	clock := clockwork.NewFakeClockAt(testNow)
	rec := &recordedBatches{}
	svc := NewPostingService(accounting.NewRegistry(adapters...), rec, nil, clock, zap.NewNop())
	return svc, session.NewMemoryStore(clock), rec
}

func TestPostDraftsNoCommands(t *testing.T) {
	svc, store, _ := newPostingFixture(&fakeAdapter{provider: models.ProviderFreee})

	res := svc.PostDraftsByProvider(context.Background(), "freee", nil, models.TenantContext{}, store)
	assert.False(t, res.OK)
	assert.Equal(t, accounting.CodeNoCommands, res.Code)
	assert.Empty(t, res.Results)
}

func TestPostDraftsUnsupportedProvider(t *testing.T) {
	svc, store, _ := newPostingFixture(&fakeAdapter{provider: models.ProviderFreee})

	cmds := []models.PostingCommand{postingCommand("a"), postingCommand("b")}
	res := svc.PostDraftsByProvider(context.Background(), "sage", cmds, models.TenantContext{}, store)

	assert.False(t, res.OK)
	assert.Equal(t, accounting.CodeProviderNotSupported, res.Code)
	require.Len(t, res.Results, 2)
	for _, r := range res.Results {
		assert.Equal(t, accounting.CodeProviderNotSupported, r.DiagnosticCode)
	}
	assert.Equal(t, 2, res.Failed)
}

func TestPostDraftsPersistsRefreshedCredentials(t *testing.T) {
	fake := &fakeAdapter{provider: models.ProviderFreee, refreshTo: "fresh"}
	svc, store, rec := newPostingFixture(fake)
	store.Set("freee_access_token", "stale", time.Hour)
	store.Set("freee_refresh_token", "refresh", 24*time.Hour)

	tenant := models.TenantContext{RegionCode: "JP", OrganizationID: "org-1"}
	res := svc.PostDraftsByProvider(context.Background(), "freee", []models.PostingCommand{postingCommand("a")}, tenant, store)

	assert.True(t, res.OK)
	assert.Equal(t, "FREEE_DRAFT_POSTED", res.Code)
	assert.Equal(t, "stale", fake.seen.AccessToken)
	v, _ := store.Get("freee_access_token")
	assert.Equal(t, "fresh", v)

	require.Len(t, rec.batches, 1)
	assert.Equal(t, "org-1", rec.org)
}

func TestPostDraftsFillsMissingResults(t *testing.T) {
	svc, store, _ := newPostingFixture(&fakeAdapter{provider: models.ProviderXero, dropLast: true})

	cmds := []models.PostingCommand{postingCommand("a"), postingCommand("b"), postingCommand("c")}
	res := svc.PostDraftsByProvider(context.Background(), "xero", cmds, models.TenantContext{}, store)

	require.Len(t, res.Results, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{res.Results[0].TransactionID, res.Results[1].TransactionID, res.Results[2].TransactionID})
	assert.Equal(t, "XERO_RESULT_MISSING", res.Results[2].DiagnosticCode)
	assert.False(t, res.OK)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, "XERO_DRAFT_PARTIAL_FAILURE", res.Code)
}

func TestPostDraftsResolvesProviderFromRegion(t *testing.T) {
	qb := &fakeAdapter{provider: models.ProviderQuickBooks}
	freee := &fakeAdapter{provider: models.ProviderFreee}
	svc, store, _ := newPostingFixture(qb, freee)

	res := svc.PostDraftsByProvider(context.Background(), "", []models.PostingCommand{postingCommand("a")}, models.TenantContext{RegionCode: "US"}, store)

	assert.Equal(t, models.ProviderQuickBooks, res.Provider)
	assert.Equal(t, 1, qb.calls)
	assert.Zero(t, freee.calls)
}

func TestFetchReviewQueueByProvider(t *testing.T) {
	fake := &fakeAdapter{provider: models.ProviderQuickBooks}
	svc, store, _ := newPostingFixture(fake)
	store.Set("quickbooks_access_token", "tok", time.Hour)
	store.Set("quickbooks_account_id", "realm", time.Hour)

	q := svc.FetchReviewQueueByProvider(context.Background(), "QBO", 10, store)
	assert.True(t, q.OK)
	assert.Len(t, q.Items, 1)
	assert.Equal(t, "realm", fake.seen.AccountID)

	q = svc.FetchReviewQueueByProvider(context.Background(), "sage", 10, store)
	assert.False(t, q.OK)
	assert.Equal(t, accounting.CodeProviderNotSupported, q.Code)
}

func TestProviderStatuses(t *testing.T) {
	svc, store, _ := newPostingFixture(&fakeAdapter{provider: models.ProviderFreee}, &fakeAdapter{provider: models.ProviderXero})
	store.Set("xero_access_token", "tok", time.Hour)

	statuses := svc.ProviderStatuses(store)
	require.Len(t, statuses, 2)
	assert.Equal(t, models.ProviderFreee, statuses[0].Provider)
	assert.False(t, statuses[0].Connected)
	assert.True(t, statuses[1].Connected)

	_, ok := svc.ProviderStatus("sage", store)
	assert.False(t, ok)
}

func TestPostDraftsRedactsCommandsBeforeTheAdapter(t *testing.T) {
	fake := &fakeAdapter{provider: models.ProviderFreee}
	svc, store, _ := newPostingFixture(fake)

	cmd := postingCommand("a")
	cmd.Transaction.MemoRedacted = "taxi for foo@bar.com card 4111111111111111"
	cmd.Transaction.OccurredAt = "2024/6/1"
	cmd.Decision.Date = "20240602"
	res := svc.PostDraftsByProvider(context.Background(), "freee", []models.PostingCommand{cmd}, models.TenantContext{}, store)

	assert.True(t, res.OK)
	require.Len(t, fake.commands, 1)
	sent := fake.commands[0].Transaction
	assert.NotContains(t, sent.MemoRedacted, "foo@bar.com")
	assert.NotContains(t, sent.MemoRedacted, "4111111111111111")
	assert.Contains(t, sent.MemoRedacted, "[EMAIL]")
	assert.Contains(t, sent.MemoRedacted, "[NUMBER]")
	assert.Equal(t, "2024-06-01", sent.OccurredAt)
	assert.Equal(t, "2024-06-02", fake.commands[0].PostingDate())
}

func TestPostDraftsRejectsInvalidCommandsPerItem(t *testing.T) {
	fake := &fakeAdapter{provider: models.ProviderFreee}
	svc, store, rec := newPostingFixture(fake)

	noID := postingCommand("")
	badDate := postingCommand("c")
	badDate.Transaction.OccurredAt = "June 1st"
	cmds := []models.PostingCommand{postingCommand("a"), noID, postingCommand("b"), badDate}

	res := svc.PostDraftsByProvider(context.Background(), "freee", cmds, models.TenantContext{OrganizationID: "org-1"}, store)

	require.Len(t, res.Results, 4)
	assert.Equal(t, []string{"a", "", "b", "c"}, []string{
		res.Results[0].TransactionID, res.Results[1].TransactionID, res.Results[2].TransactionID, res.Results[3].TransactionID,
	})
	assert.True(t, res.Results[0].OK)
	assert.Equal(t, accounting.CodeInvalidTransaction, res.Results[1].DiagnosticCode)
	assert.True(t, res.Results[2].OK)
	assert.Equal(t, accounting.CodeInvalidTransaction, res.Results[3].DiagnosticCode)
	assert.Equal(t, models.PostingStatusFailed, res.Results[3].Status)
	assert.NotEmpty(t, res.Results[3].NextAction)

	assert.False(t, res.OK)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, "FREEE_DRAFT_PARTIAL_FAILURE", res.Code)

	require.Len(t, fake.commands, 2)
	assert.Equal(t, "a", fake.commands[0].Transaction.TransactionID)
	assert.Equal(t, "b", fake.commands[1].Transaction.TransactionID)
	require.Len(t, rec.batches, 1)
	assert.Len(t, rec.batches[0].Results, 4)
}

func TestPostDraftsAllInvalidNeverCallsAdapter(t *testing.T) {
	fake := &fakeAdapter{provider: models.ProviderXero}
	svc, store, _ := newPostingFixture(fake)

	neg := postingCommand("a")
	neg.Transaction.Direction = "sideways"
	decisionDate := postingCommand("b")
	decisionDate.Decision.Date = "someday"

	res := svc.PostDraftsByProvider(context.Background(), "xero", []models.PostingCommand{neg, decisionDate}, models.TenantContext{}, store)

	assert.Zero(t, fake.calls)
	assert.False(t, res.OK)
	assert.Equal(t, accounting.CodeInvalidTransaction, res.Code)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Results, 2)
	for _, r := range res.Results {
		assert.Equal(t, accounting.CodeInvalidTransaction, r.DiagnosticCode)
	}
}

type storedDecisions map[string]*models.ClassificationDecision

func (s storedDecisions) GetCurrent(_ context.Context, tenantID, transactionID string) (*models.ClassificationDecision, error) {
	if tenantID == "broken" {
		return nil, errors.New("db down")
	}
	if d, ok := s[tenantID+"/"+transactionID]; ok {
		return d, nil
	}
	return nil, repository.ErrDecisionNotFound
}

func TestPostStoredDecisions(t *testing.T) {
	fake := &fakeAdapter{provider: models.ProviderFreee}
	clock := clockwork.NewFakeClockAt(testNow)
	rec := &recordedBatches{}
	decisions := storedDecisions{
		"org-1/a": {TransactionID: "a", Rank: models.RankOK, IsExpense: true, AllocationRate: 1, Amount: 1200},
		"org-1/b": {TransactionID: "b", Rank: models.RankReview, IsExpense: true, AllocationRate: 1},
		"org-2/c": {TransactionID: "c", Rank: models.RankOK, IsExpense: true, AllocationRate: 1},
	}
	svc := NewPostingService(accounting.NewRegistry(fake), rec, decisions, clock, zap.NewNop())
	store := session.NewMemoryStore(clock)

	txs := []models.CanonicalTransaction{
		postingCommand("a").Transaction,
		postingCommand("b").Transaction,
		postingCommand("c").Transaction,
	}
	res, skipped, err := svc.PostStoredDecisions(context.Background(), "freee", txs, models.TenantContext{OrganizationID: "org-1"}, store)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c"}, skipped)
	require.Len(t, res.Results, 1)
	assert.True(t, res.OK)
	require.Len(t, fake.commands, 1)
	assert.Equal(t, "a", fake.commands[0].Transaction.TransactionID)
	assert.Equal(t, int64(1200), fake.commands[0].PostingAmount())
	assert.Equal(t, "org-1", rec.org)

	res, skipped, err = svc.PostStoredDecisions(context.Background(), "freee", txs[1:], models.TenantContext{OrganizationID: "org-1"}, store)
	require.NoError(t, err)
	assert.Equal(t, accounting.CodeNoCommands, res.Code)
	assert.Len(t, skipped, 2)

	_, _, err = svc.PostStoredDecisions(context.Background(), "freee", txs, models.TenantContext{OrganizationID: "broken"}, store)
	assert.ErrorContains(t, err, "db down")

	_, _, err = NewPostingService(accounting.NewRegistry(fake), nil, nil, clock, zap.NewNop()).
		PostStoredDecisions(context.Background(), "freee", txs, models.TenantContext{OrganizationID: "org-1"}, store)
	assert.ErrorIs(t, err, ErrDecisionStorageDisabled)
}
