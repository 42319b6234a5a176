package dto

import (
	"autobook/internal/accounting"
	"autobook/internal/models"
)

type PostingItem struct {
	Transaction TransactionRequest            `json:"transaction"`
	Decision    models.ClassificationDecision `json:"decision"`
}

type PostDraftsRequest struct {
	Items []PostingItem `json:"items"`
}

func (r PostDraftsRequest) Commands(tenant models.TenantContext) []models.PostingCommand {
	out := make([]models.PostingCommand, 0, len(r.Items))
	for _, it := range r.Items {
		out = append(out, models.PostingCommand{Transaction: it.Transaction.ToModel(tenant), Decision: it.Decision})
	}
	return out
}

type ResolveProviderResponse struct {
	Provider   models.Provider       `json:"provider"`
	Definition accounting.Definition `json:"definition"`
}

type ProvidersResponse struct {
	Providers []models.ProviderStatus `json:"providers"`
}

type PostingHistoryResponse struct {
	TransactionID string                 `json:"transaction_id"`
	Results       []models.PostingResult `json:"results"`
}

// PostStoredDecisionsRequest posts transactions with the decisions already
// stored for them.
type PostStoredDecisionsRequest struct {
	Transactions []TransactionRequest `json:"transactions"`
}

func (r PostStoredDecisionsRequest) Models(tenant models.TenantContext) []models.CanonicalTransaction {
	out := make([]models.CanonicalTransaction, 0, len(r.Transactions))
	for _, t := range r.Transactions {
		out = append(out, t.ToModel(tenant))
	}
	return out
}

type PostStoredDecisionsResponse struct {
	*models.BatchResult
	Skipped []string `json:"skipped"`
}
