package accounting

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"autobook/internal/models"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	freeeBaseURL  = "https://api.freee.co.jp"
	freeeAuthURL  = "https://accounts.secure.freee.co.jp/public_api/authorize"
	freeeTokenURL = "https://accounts.secure.freee.co.jp/public_api/token"
	freeeDealsURL = "https://secure.freee.co.jp/deals/"
)

type FreeeAdapter struct {
	base
}

func NewFreeeAdapter(opts ProviderOptions, logger *zap.Logger) *FreeeAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = freeeBaseURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = freeeAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = freeeTokenURL
	}
	client := newAPIClient(models.ProviderFreee, opts, oauth2.AuthStyleInParams, logger)
	return &FreeeAdapter{base: newBase(models.ProviderFreee, opts, client, logger)}
}

type freeeCompany struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type freeeAccountItem struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	DefaultTaxCode int    `json:"default_tax_code"`
}

type freeeTax struct {
	Code   int    `json:"code"`
	Name   string `json:"name"`
	NameJa string `json:"name_ja"`
}

type freeeDealDetail struct {
	AccountItemID int64  `json:"account_item_id"`
	TaxCode       int    `json:"tax_code"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description"`
}

type freeeDeal struct {
	ID        int64             `json:"id,omitempty"`
	CompanyID int64             `json:"company_id"`
	IssueDate string            `json:"issue_date"`
	Type      string            `json:"type"`
	RefNumber string            `json:"ref_number,omitempty"`
	Amount    int64             `json:"amount,omitempty"`
	Details   []freeeDealDetail `json:"details"`
}

func (a *FreeeAdapter) PostDrafts(ctx context.Context, commands []models.PostingCommand, creds Credentials) (*models.BatchResult, Credentials) {
	if !creds.Connected() {
		return a.failAll(commands, NotConnected, 0, "freee is not connected"), creds
	}
	if !anyPostable(commands) {
		return a.noPostable(commands), creds
	}

	companyID, err := a.company(ctx, &creds)
	if err != nil {
		return a.failAllErr(commands, err, "companies"), creds
	}
	if companyID == 0 {
		return a.failAll(commands, CompanyMissing, 0, "no company is available for this freee account"), creds
	}

	var items struct {
		AccountItems []freeeAccountItem `json:"account_items"`
	}
	q := url.Values{"company_id": {strconv.FormatInt(companyID, 10)}}
	if err := a.client.call(ctx, &creds, http.MethodGet, "/api/1/account_items", q, nil, &items); err != nil {
		return a.failAllErr(commands, err, "account items"), creds
	}
	if len(items.AccountItems) == 0 {
		return a.failAll(commands, AccountItemsUnavailable, 0, "freee returned no account items"), creds
	}

	var taxes struct {
		Taxes []freeeTax `json:"taxes"`
	}
	if err := a.client.call(ctx, &creds, http.MethodGet, fmt.Sprintf("/api/1/taxes/companies/%d", companyID), nil, nil, &taxes); err != nil {
		return a.failAllErr(commands, err, "tax codes"), creds
	}
	if len(taxes.Taxes) == 0 {
		return a.failAll(commands, TaxCodeUnavailable, 0, "freee returned no tax codes"), creds
	}

	accounts := make([]namedAccount, 0, len(items.AccountItems))
	byID := make(map[string]freeeAccountItem, len(items.AccountItems))
	for _, it := range items.AccountItems {
		id := strconv.FormatInt(it.ID, 10)
		accounts = append(accounts, namedAccount{ID: id, Name: it.Name})
		byID[id] = it
	}

	results := make([]models.PostingResult, 0, len(commands))
	for _, cmd := range commands {
		amount, ok := allocate(cmd)
		if !ok {
			results = append(results, a.skipped(cmd))
			continue
		}

		acct, ok := matchAccount(a.mapper.Candidates(models.ProviderFreee, cmd.Decision.Category), accounts)
		if !ok {
			results = append(results, a.failed(cmd, CodeAccountItemMappingFailed, CodeAccountItemMappingFailed, 0,
				fmt.Sprintf("no freee account item matches category %q", cmd.Decision.Category)))
			continue
		}
		item := byID[acct.ID]
		itemID, _ := strconv.ParseInt(acct.ID, 10, 64)

		deal := freeeDeal{
			CompanyID: companyID,
			IssueDate: cmd.PostingDate(),
			Type:      "expense",
			RefNumber: cmd.Transaction.TransactionID,
			Details: []freeeDealDetail{{
				AccountItemID: itemID,
				TaxCode:       a.pickTax(taxes.Taxes, item.DefaultTaxCode),
				Amount:        amount,
				Description:   a.description(cmd),
			}},
		}

		var created struct {
			Deal freeeDeal `json:"deal"`
		}
		if err := a.client.call(ctx, &creds, http.MethodPost, "/api/1/deals", nil, deal, &created); err != nil {
			results = append(results, a.callFailed(cmd, err))
			continue
		}
		results = append(results, a.posted(cmd, strconv.FormatInt(created.Deal.ID, 10), http.StatusCreated))
	}

	return a.finish(results), creds
}

// company uses the stored company id, otherwise the first company of the account.
func (a *FreeeAdapter) company(ctx context.Context, creds *Credentials) (int64, error) {
	if creds.AccountID != "" {
		if id, err := strconv.ParseInt(creds.AccountID, 10, 64); err == nil && id > 0 {
			return id, nil
		}
	}

	var resp struct {
		Companies []freeeCompany `json:"companies"`
	}
	if err := a.client.call(ctx, creds, http.MethodGet, "/api/1/companies", nil, nil, &resp); err != nil {
		return 0, err
	}
	if len(resp.Companies) == 0 {
		return 0, nil
	}
	creds.AccountID = strconv.FormatInt(resp.Companies[0].ID, 10)
	return resp.Companies[0].ID, nil
}

func (a *FreeeAdapter) pickTax(taxes []freeeTax, itemDefault int) int {
	for _, pref := range a.mapper.TaxPreferences(models.ProviderFreee) {
		for _, t := range taxes {
			if t.Name == pref || t.NameJa == pref {
				return t.Code
			}
		}
	}
	for _, t := range taxes {
		if itemDefault != 0 && t.Code == itemDefault {
			return t.Code
		}
	}
	return taxes[0].Code
}

func (a *FreeeAdapter) FetchReviewQueue(ctx context.Context, creds Credentials, limit int) (*models.QueueResult, Credentials) {
	if !creds.Connected() {
		return a.queueNotConnected(), creds
	}
	limit = clampLimit(limit)

	companyID, err := a.company(ctx, &creds)
	if err != nil {
		return a.queueFailed(err), creds
	}
	if companyID == 0 {
		return &models.QueueResult{
			Provider: models.ProviderFreee,
			Code:     a.code(CompanyMissing),
			Message:  "no company is available for this freee account",
			Items:    []models.ReviewQueueItem{},
		}, creds
	}

	var resp struct {
		Deals []freeeDeal `json:"deals"`
	}
	q := url.Values{
		"company_id": {strconv.FormatInt(companyID, 10)},
		"type":       {"expense"},
		"limit":      {strconv.Itoa(100)},
	}
	if err := a.client.call(ctx, &creds, http.MethodGet, "/api/1/deals", q, nil, &resp); err != nil {
		return a.queueFailed(err), creds
	}

	items := make([]models.ReviewQueueItem, 0, limit)
	for _, d := range resp.Deals {
		if len(items) == limit {
			break
		}
		desc, ok := a.markedDescription(d.Details)
		if !ok {
			continue
		}
		id := strconv.FormatInt(d.ID, 10)
		items = append(items, models.ReviewQueueItem{
			Provider:    models.ProviderFreee,
			RemoteID:    id,
			Date:        d.IssueDate,
			Amount:      strconv.FormatInt(d.Amount, 10),
			Currency:    "JPY",
			Description: desc,
			Status:      "draft",
			URL:         freeeDealsURL + id,
		})
	}
	return a.queueFetched(items), creds
}

func (a *FreeeAdapter) markedDescription(details []freeeDealDetail) (string, bool) {
	for _, d := range details {
		if strings.Contains(d.Description, a.marker) {
			return d.Description, true
		}
	}
	return "", false
}
