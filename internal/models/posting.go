package models

import "time"

type Provider string

const (
	ProviderFreee      Provider = "freee"
	ProviderQuickBooks Provider = "quickbooks"
	ProviderXero       Provider = "xero"
)

type PostingStatus string

const (
	PostingStatusPosted  PostingStatus = "posted"
	PostingStatusFailed  PostingStatus = "failed"
	PostingStatusSkipped PostingStatus = "skipped"
)

type PostingCommand struct {
	Transaction CanonicalTransaction   `json:"transaction"`
	Decision    ClassificationDecision `json:"decision"`
}

// Postable mirrors the adapter-side filter: only positive business expenses become drafts.
func (c PostingCommand) Postable() bool {
	return c.Decision.IsExpense && c.Decision.AllocationRate > 0 && c.PostingAmount() > 0
}

// PostingAmount is the decision amount when present, otherwise the transaction amount.
func (c PostingCommand) PostingAmount() int64 {
	if c.Decision.Amount > 0 {
		return c.Decision.Amount
	}
	return c.Transaction.Amount
}

func (c PostingCommand) PostingDate() string {
	if c.Decision.Date != "" {
		return c.Decision.Date
	}
	return c.Transaction.OccurredAt
}

// NewPostingCommands keeps only the accepted, postable decisions.
func NewPostingCommands(txs []CanonicalTransaction, decisions []ClassificationDecision) []PostingCommand {
	byID := make(map[string]ClassificationDecision, len(decisions))
	for _, d := range decisions {
		byID[d.TransactionID] = d
	}

	commands := make([]PostingCommand, 0, len(txs))
	for _, tx := range txs {
		d, ok := byID[tx.TransactionID]
		if !ok || !d.Postable() {
			continue
		}
		commands = append(commands, PostingCommand{Transaction: tx, Decision: d})
	}
	return commands
}

type PostingResult struct {
	Provider       Provider      `json:"provider"`
	TransactionID  string        `json:"transaction_id"`
	OK             bool          `json:"ok"`
	Status         PostingStatus `json:"status"`
	HTTPStatus     int           `json:"http_status,omitempty"`
	RemoteID       string        `json:"remote_id,omitempty"`
	DiagnosticCode string        `json:"diagnostic_code"`
	Message        string        `json:"message"`
	NextAction     string        `json:"next_action,omitempty"`
	Contact        string        `json:"contact,omitempty"`
}

type BatchResult struct {
	Provider Provider        `json:"provider"`
	OK       bool            `json:"ok"`
	Success  int             `json:"success"`
	Failed   int             `json:"failed"`
	Code     string          `json:"code"`
	Message  string          `json:"message,omitempty"`
	Results  []PostingResult `json:"results"`
}

type ReviewQueueItem struct {
	Provider    Provider `json:"provider"`
	RemoteID    string   `json:"remote_id"`
	Date        string   `json:"date"`
	Amount      string   `json:"amount"`
	Currency    string   `json:"currency,omitempty"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	URL         string   `json:"url,omitempty"`
}

type QueueResult struct {
	Provider Provider          `json:"provider"`
	OK       bool              `json:"ok"`
	Code     string            `json:"code"`
	Message  string            `json:"message,omitempty"`
	Items    []ReviewQueueItem `json:"items"`
}

type ProviderStatus struct {
	Provider   Provider   `json:"provider"`
	Label      string     `json:"label"`
	Configured bool       `json:"configured"`
	Connected  bool       `json:"connected"`
	AccountID  string     `json:"account_id,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Contact    string     `json:"contact"`
	DocsURL    string     `json:"docs_url"`
}
