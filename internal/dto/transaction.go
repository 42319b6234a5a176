package dto

import (
	"autobook/internal/models"
)

type TransactionRequest struct {
	TransactionID string `json:"transaction_id"`
	SourceType    string `json:"source_type"`
	Direction     string `json:"direction"`
	OccurredAt    string `json:"occurred_at"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Counterparty  string `json:"counterparty"`
	Memo          string `json:"memo"`
	CountryCode   string `json:"country_code"`
	RawReference  string `json:"raw_reference"`
}

// ToModel builds the canonical transaction. Missing country and currency fall
// back to the tenant's region.
func (r TransactionRequest) ToModel(tenant models.TenantContext) models.CanonicalTransaction {
	country := r.CountryCode
	if country == "" {
		country = tenant.RegionCode
	}
	return models.CanonicalTransaction{
		TransactionID: r.TransactionID,
		SourceType:    models.SourceType(r.SourceType),
		Direction:     models.Direction(r.Direction),
		OccurredAt:    r.OccurredAt,
		Amount:        r.Amount,
		Currency:      r.Currency,
		Counterparty:  r.Counterparty,
		MemoRedacted:  r.Memo,
		CountryCode:   country,
		RawReference:  r.RawReference,
	}
}

type EvaluateBatchRequest struct {
	Transactions []TransactionRequest `json:"transactions"`
}

type DecisionResponse struct {
	Decision *models.ClassificationDecision `json:"decision"`
	Postable bool                           `json:"postable"`
}

type BatchDecisionItem struct {
	TransactionID string                         `json:"transaction_id"`
	Decision      *models.ClassificationDecision `json:"decision,omitempty"`
	Postable      bool                           `json:"postable"`
	Error         string                         `json:"error,omitempty"`
}

type EvaluateBatchResponse struct {
	Total   int                 `json:"total"`
	Failed  int                 `json:"failed"`
	Results []BatchDecisionItem `json:"results"`
}

type ReviewBacklogResponse struct {
	Total     int                              `json:"total"`
	Decisions []*models.ClassificationDecision `json:"decisions"`
}
