package accounting

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"autobook/internal/models"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	quickBooksBaseURL  = "https://quickbooks.api.intuit.com"
	quickBooksAuthURL  = "https://appcenter.intuit.com/connect/oauth2"
	quickBooksTokenURL = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	quickBooksAppURL   = "https://app.qbo.intuit.com/app/expense?txnId="
)

type QuickBooksAdapter struct {
	base
}

func NewQuickBooksAdapter(opts ProviderOptions, logger *zap.Logger) *QuickBooksAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = quickBooksBaseURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = quickBooksAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = quickBooksTokenURL
	}
	client := newAPIClient(models.ProviderQuickBooks, opts, oauth2.AuthStyleInHeader, logger)
	return &QuickBooksAdapter{base: newBase(models.ProviderQuickBooks, opts, client, logger)}
}

type qbRef struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type qbAccount struct {
	ID          string `json:"Id"`
	Name        string `json:"Name"`
	AccountType string `json:"AccountType"`
	Active      *bool  `json:"Active,omitempty"`
}

type qbLine struct {
	Amount                        any    `json:"Amount"`
	DetailType                    string `json:"DetailType"`
	Description                   string `json:"Description,omitempty"`
	AccountBasedExpenseLineDetail struct {
		AccountRef qbRef `json:"AccountRef"`
	} `json:"AccountBasedExpenseLineDetail"`
}

type qbPurchase struct {
	ID          string   `json:"Id,omitempty"`
	PaymentType string   `json:"PaymentType"`
	AccountRef  qbRef    `json:"AccountRef"`
	TxnDate     string   `json:"TxnDate"`
	PrivateNote string   `json:"PrivateNote"`
	TotalAmt    float64  `json:"TotalAmt,omitempty"`
	CurrencyRef *qbRef   `json:"CurrencyRef,omitempty"`
	Line        []qbLine `json:"Line"`
}

func (a *QuickBooksAdapter) query(ctx context.Context, creds *Credentials, statement string, ret any) error {
	path := fmt.Sprintf("/v3/company/%s/query", url.PathEscape(creds.AccountID))
	return a.client.call(ctx, creds, http.MethodGet, path, url.Values{"query": {statement}, "minorversion": {"70"}}, nil, ret)
}

func (a *QuickBooksAdapter) accounts(ctx context.Context, creds *Credentials, accountType string) ([]qbAccount, error) {
	var resp struct {
		QueryResponse struct {
			Account []qbAccount `json:"Account"`
		} `json:"QueryResponse"`
	}
	stmt := fmt.Sprintf("select * from Account where AccountType = '%s' maxresults 1000", accountType)
	if err := a.query(ctx, creds, stmt, &resp); err != nil {
		return nil, err
	}
	out := make([]qbAccount, 0, len(resp.QueryResponse.Account))
	for _, acc := range resp.QueryResponse.Account {
		if acc.Active != nil && !*acc.Active {
			continue
		}
		out = append(out, acc)
	}
	return out, nil
}

func (a *QuickBooksAdapter) PostDrafts(ctx context.Context, commands []models.PostingCommand, creds Credentials) (*models.BatchResult, Credentials) {
	if !creds.Connected() {
		return a.failAll(commands, NotConnected, 0, "QuickBooks is not connected"), creds
	}
	if creds.AccountID == "" {
		return a.failAll(commands, CompanyMissing, 0, "no QuickBooks company (realm) is selected"), creds
	}
	if !anyPostable(commands) {
		return a.noPostable(commands), creds
	}

	expense, err := a.accounts(ctx, &creds, "Expense")
	if err != nil {
		return a.failAllErr(commands, err, "expense accounts"), creds
	}
	if len(expense) == 0 {
		return a.failAll(commands, AccountItemsUnavailable, 0, "QuickBooks returned no expense accounts"), creds
	}

	bank, err := a.accounts(ctx, &creds, "Bank")
	if err != nil {
		return a.failAllErr(commands, err, "bank accounts"), creds
	}
	if len(bank) == 0 {
		return a.failAll(commands, BankAccountMissing, 0, "QuickBooks has no bank account to pay drafts from"), creds
	}

	named := make([]namedAccount, 0, len(expense))
	for _, acc := range expense {
		named = append(named, namedAccount{ID: acc.ID, Name: acc.Name})
	}
	purchasePath := fmt.Sprintf("/v3/company/%s/purchase", url.PathEscape(creds.AccountID))

	results := make([]models.PostingResult, 0, len(commands))
	for _, cmd := range commands {
		amount, ok := allocate(cmd)
		if !ok {
			results = append(results, a.skipped(cmd))
			continue
		}

		acct, ok := matchAccount(a.mapper.Candidates(models.ProviderQuickBooks, cmd.Decision.Category), named)
		if !ok {
			results = append(results, a.failed(cmd, CodeAccountItemMappingFailed, CodeAccountItemMappingFailed, 0,
				fmt.Sprintf("no QuickBooks expense account matches category %q", cmd.Decision.Category)))
			continue
		}

		desc := a.description(cmd)
		line := qbLine{
			Amount:      majorUnits(amount, cmd.Transaction.Currency),
			DetailType:  "AccountBasedExpenseLineDetail",
			Description: desc,
		}
		line.AccountBasedExpenseLineDetail.AccountRef = qbRef{Value: acct.ID, Name: acct.Name}

		purchase := qbPurchase{
			PaymentType: "Cash",
			AccountRef:  qbRef{Value: bank[0].ID, Name: bank[0].Name},
			TxnDate:     cmd.PostingDate(),
			PrivateNote: desc,
			Line:        []qbLine{line},
		}

		var created struct {
			Purchase qbPurchase `json:"Purchase"`
		}
		if err := a.client.call(ctx, &creds, http.MethodPost, purchasePath, nil, purchase, &created); err != nil {
			results = append(results, a.callFailed(cmd, err))
			continue
		}
		results = append(results, a.posted(cmd, created.Purchase.ID, http.StatusOK))
	}

	return a.finish(results), creds
}

func (a *QuickBooksAdapter) FetchReviewQueue(ctx context.Context, creds Credentials, limit int) (*models.QueueResult, Credentials) {
	if !creds.Connected() {
		return a.queueNotConnected(), creds
	}
	if creds.AccountID == "" {
		return &models.QueueResult{
			Provider: models.ProviderQuickBooks,
			Code:     a.code(CompanyMissing),
			Message:  "no QuickBooks company (realm) is selected",
			Items:    []models.ReviewQueueItem{},
		}, creds
	}
	limit = clampLimit(limit)

	var resp struct {
		QueryResponse struct {
			Purchase []qbPurchase `json:"Purchase"`
		} `json:"QueryResponse"`
	}
	if err := a.query(ctx, &creds, "select * from Purchase orderby MetaData.CreateTime desc maxresults 100", &resp); err != nil {
		return a.queueFailed(err), creds
	}

	items := make([]models.ReviewQueueItem, 0, limit)
	for _, p := range resp.QueryResponse.Purchase {
		if len(items) == limit {
			break
		}
		if !strings.Contains(p.PrivateNote, a.marker) {
			continue
		}
		item := models.ReviewQueueItem{
			Provider:    models.ProviderQuickBooks,
			RemoteID:    p.ID,
			Date:        p.TxnDate,
			Amount:      fmt.Sprintf("%.2f", p.TotalAmt),
			Description: p.PrivateNote,
			Status:      "draft",
			URL:         quickBooksAppURL + url.QueryEscape(p.ID),
		}
		if p.CurrencyRef != nil {
			item.Currency = p.CurrencyRef.Value
		}
		items = append(items, item)
	}
	return a.queueFetched(items), creds
}
