package service

import (
	"context"
	"errors"
	"fmt"

	"autobook/internal/accounting"
	"autobook/internal/models"
	"autobook/internal/repository"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// PostingRecorder keeps a history of posting attempts.
type PostingRecorder interface {
	RecordBatch(ctx context.Context, tenantID string, batch *models.BatchResult) error
}

// DecisionLookup reads the decisions stored by evaluation.
type DecisionLookup interface {
	GetCurrent(ctx context.Context, tenantID, transactionID string) (*models.ClassificationDecision, error)
}

var ErrDecisionStorageDisabled = errors.New("decision storage is not configured")

// PostingService routes posting commands to the adapter of a provider and keeps
// the caller's session in step with refreshed credentials.
type PostingService struct {
	registry  *accounting.Registry
	recorder  PostingRecorder
	decisions DecisionLookup
	clock     clockwork.Clock
	logger    *zap.Logger
}

func NewPostingService(registry *accounting.Registry, recorder PostingRecorder, decisions DecisionLookup, clock clockwork.Clock, logger *zap.Logger) *PostingService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PostingService{registry: registry, recorder: recorder, decisions: decisions, clock: clock, logger: logger}
}

// ResolveProvider picks the provider for a tenant, honouring an explicit request.
func (s *PostingService) ResolveProvider(tenant models.TenantContext, requested string) (models.Provider, accounting.Definition) {
	return accounting.ResolveProvider(tenant.RegionCode, requested)
}

// ProviderStatuses reports every registered provider's connection state.
func (s *PostingService) ProviderStatuses(store accounting.SessionStore) []models.ProviderStatus {
	defs := accounting.Definitions()
	out := make([]models.ProviderStatus, 0, len(defs))
	for _, d := range defs {
		if a, ok := s.registry.Get(d.Provider); ok {
			out = append(out, a.Status(store))
		}
	}
	return out
}

func (s *PostingService) ProviderStatus(provider string, store accounting.SessionStore) (models.ProviderStatus, bool) {
	a, ok := s.adapter(provider)
	if !ok {
		return models.ProviderStatus{}, false
	}
	return a.Status(store), true
}

// PostDraftsByProvider posts one batch. An empty provider is resolved from the
// tenant's region. The result always holds exactly one entry per command.
func (s *PostingService) PostDraftsByProvider(
	ctx context.Context,
	provider string,
	commands []models.PostingCommand,
	tenant models.TenantContext,
	store accounting.SessionStore,
) *models.BatchResult {
	if provider == "" {
		p, _ := s.ResolveProvider(tenant, "")
		provider = string(p)
	}

	log := s.logger.With(
		zap.String("provider", provider),
		zap.String("organization_id", tenant.OrganizationID),
		zap.Int("commands", len(commands)),
	)

	if len(commands) == 0 {
		return &models.BatchResult{
			Provider: models.Provider(provider),
			OK:       false,
			Code:     accounting.CodeNoCommands,
			Message:  "no commands to post",
			Results:  []models.PostingResult{},
		}
	}

	adapter, ok := s.adapter(provider)
	if !ok {
		log.Warn("Posting requested for unsupported provider")
		return notSupported(models.Provider(provider), commands)
	}
	p := adapter.Provider()

	valid, rejected := s.sanitizeCommands(p, commands)
	var res *models.BatchResult
	if len(valid) > 0 {
		before := accounting.LoadCredentials(store, p)
		posted, after := adapter.PostDrafts(ctx, valid, before)
		s.persist(store, p, before, after, log)
		res = completeResults(p, valid, posted)
	}
	if len(valid) < len(commands) {
		log.Warn("Invalid posting commands rejected", zap.Int("rejected", len(commands)-len(valid)))
		res = mergeRejected(p, res, rejected)
	}
	log.Info("Drafts posted",
		zap.Bool("ok", res.OK),
		zap.Int("success", res.Success),
		zap.Int("failed", res.Failed),
		zap.String("code", res.Code),
	)

	if scope := tenant.Scope(); s.recorder != nil && scope != "" {
		if err := s.recorder.RecordBatch(ctx, scope, res); err != nil {
			log.Error("Failed to record posting results", zap.Error(err))
		}
	}
	return res
}

// PostStoredDecisions posts transactions using the decisions evaluation stored
// for the tenant. Transactions without a stored postable decision are skipped
// and their ids returned.
func (s *PostingService) PostStoredDecisions(
	ctx context.Context,
	provider string,
	txs []models.CanonicalTransaction,
	tenant models.TenantContext,
	store accounting.SessionStore,
) (*models.BatchResult, []string, error) {
	if s.decisions == nil {
		return nil, nil, ErrDecisionStorageDisabled
	}

	scope := tenant.Scope()
	decisions := make([]models.ClassificationDecision, 0, len(txs))
	for _, tx := range txs {
		if scope == "" {
			break
		}
		d, err := s.decisions.GetCurrent(ctx, scope, tx.TransactionID)
		if errors.Is(err, repository.ErrDecisionNotFound) {
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load decision for %s: %w", tx.TransactionID, err)
		}
		decisions = append(decisions, *d)
	}

	commands := models.NewPostingCommands(txs, decisions)
	posted := make(map[string]struct{}, len(commands))
	for _, cmd := range commands {
		posted[cmd.Transaction.TransactionID] = struct{}{}
	}
	skipped := []string{}
	for _, tx := range txs {
		if _, ok := posted[tx.TransactionID]; !ok {
			skipped = append(skipped, tx.TransactionID)
		}
	}
	if len(skipped) > 0 {
		s.logger.Info("Transactions without a postable stored decision skipped",
			zap.String("tenant", scope),
			zap.Int("skipped", len(skipped)),
		)
	}

	return s.PostDraftsByProvider(ctx, provider, commands, tenant, store), skipped, nil
}

func (s *PostingService) FetchReviewQueueByProvider(ctx context.Context, provider string, limit int, store accounting.SessionStore) *models.QueueResult {
	adapter, ok := s.adapter(provider)
	if !ok {
		return &models.QueueResult{
			Provider: models.Provider(provider),
			OK:       false,
			Code:     accounting.CodeProviderNotSupported,
			Message:  fmt.Sprintf("provider %q is not supported", provider),
			Items:    []models.ReviewQueueItem{},
		}
	}
	p := adapter.Provider()
	log := s.logger.With(zap.String("provider", string(p)))

	before := accounting.LoadCredentials(store, p)
	res, after := adapter.FetchReviewQueue(ctx, before, limit)
	s.persist(store, p, before, after, log)

	log.Info("Review queue fetched", zap.Bool("ok", res.OK), zap.Int("items", len(res.Items)), zap.String("code", res.Code))
	return res
}

func (s *PostingService) adapter(provider string) (accounting.Adapter, bool) {
	p, ok := accounting.ParseProvider(provider)
	if !ok || s.registry == nil {
		return nil, false
	}
	return s.registry.Get(p)
}

func (s *PostingService) persist(store accounting.SessionStore, p models.Provider, before, after accounting.Credentials, log *zap.Logger) {
	if store == nil || !after.Changed(before) {
		return
	}
	accounting.SaveCredentials(store, p, after, s.clock.Now())
	log.Info("Provider credentials updated")
}

// sanitizeCommands returns the commands fit for the adapter and, indexed like
// commands, a rejection result for every other one.
func (s *PostingService) sanitizeCommands(p models.Provider, commands []models.PostingCommand) ([]models.PostingCommand, []*models.PostingResult) {
	valid := make([]models.PostingCommand, 0, len(commands))
	rejected := make([]*models.PostingResult, len(commands))
	for i, cmd := range commands {
		clean, err := SanitizeCommand(cmd, s.clock)
		if err != nil {
			r := accounting.Rejected(p, cmd.Transaction.TransactionID, accounting.CodeInvalidTransaction, err.Error())
			rejected[i] = &r
			continue
		}
		valid = append(valid, clean)
	}
	return valid, rejected
}

// mergeRejected puts rejections back at their command positions around the
// adapter results, which arrive in the order of the valid commands.
func mergeRejected(p models.Provider, posted *models.BatchResult, rejected []*models.PostingResult) *models.BatchResult {
	out := &models.BatchResult{Provider: p, Results: make([]models.PostingResult, 0, len(rejected))}
	next := 0
	for _, r := range rejected {
		if r != nil {
			out.Results = append(out.Results, *r)
			continue
		}
		out.Results = append(out.Results, posted.Results[next])
		next++
	}
	for _, r := range out.Results {
		if r.OK {
			out.Success++
		} else {
			out.Failed++
		}
	}

	switch {
	case out.Success > 0:
		out.Code = accounting.Code(p, accounting.DraftPartialFailure)
		out.Message = fmt.Sprintf("%d of %d drafts failed", out.Failed, len(out.Results))
	case posted != nil:
		out.Code = posted.Code
		out.Message = posted.Message
	default:
		out.Code = accounting.CodeInvalidTransaction
		out.Message = "no command is a valid transaction"
	}
	return out
}

func notSupported(p models.Provider, commands []models.PostingCommand) *models.BatchResult {
	results := make([]models.PostingResult, 0, len(commands))
	for _, cmd := range commands {
		results = append(results, models.PostingResult{
			Provider:       p,
			TransactionID:  cmd.Transaction.TransactionID,
			Status:         models.PostingStatusFailed,
			DiagnosticCode: accounting.CodeProviderNotSupported,
			Message:        fmt.Sprintf("provider %q is not supported", p),
			NextAction:     "choose freee, quickbooks or xero",
		})
	}
	return &models.BatchResult{
		Provider: p,
		OK:       false,
		Failed:   len(results),
		Code:     accounting.CodeProviderNotSupported,
		Message:  fmt.Sprintf("provider %q is not supported", p),
		Results:  results,
	}
}

// completeResults pairs adapter results with commands by transaction id and fills
// gaps so that every command has exactly one result, in command order.
func completeResults(p models.Provider, commands []models.PostingCommand, res *models.BatchResult) *models.BatchResult {
	if res == nil {
		res = &models.BatchResult{Provider: p}
	}

	pending := make(map[string][]models.PostingResult, len(res.Results))
	for _, r := range res.Results {
		pending[r.TransactionID] = append(pending[r.TransactionID], r)
	}

	out := &models.BatchResult{Provider: p, Code: res.Code, Message: res.Message}
	out.Results = make([]models.PostingResult, 0, len(commands))
	for _, cmd := range commands {
		id := cmd.Transaction.TransactionID
		if rs := pending[id]; len(rs) > 0 {
			out.Results = append(out.Results, rs[0])
			pending[id] = rs[1:]
			continue
		}
		out.Results = append(out.Results, models.PostingResult{
			Provider:       p,
			TransactionID:  id,
			Status:         models.PostingStatusFailed,
			DiagnosticCode: accounting.Code(p, accounting.ResultMissing),
			Message:        "provider adapter returned no result for this command",
			NextAction:     "retry the command",
		})
	}

	for _, r := range out.Results {
		if r.OK {
			out.Success++
		} else {
			out.Failed++
		}
	}
	out.OK = out.Failed == 0
	if out.Code == "" || (out.OK != res.OK) {
		out.Code = batchCode(p, out)
	}
	return out
}

func batchCode(p models.Provider, br *models.BatchResult) string {
	switch {
	case br.Failed == 0:
		return accounting.Code(p, accounting.DraftPosted)
	case br.Success > 0:
		return accounting.Code(p, accounting.DraftPartialFailure)
	}
	return br.Results[0].DiagnosticCode
}
