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
	xeroBaseURL        = "https://api.xero.com"
	xeroAuthURL        = "https://login.xero.com/identity/connect/authorize"
	xeroTokenURL       = "https://identity.xero.com/connect/token"
	xeroInvoiceURL     = "https://go.xero.com/AccountsPayable/Edit.aspx?InvoiceID="
	xeroDefaultContact = "Autobook Expenses"
)

// XeroAdapter posts drafts as ACCPAY bills against one default contact.
type XeroAdapter struct {
	base
	contact string
}

func NewXeroAdapter(opts ProviderOptions, contact string, logger *zap.Logger) *XeroAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = xeroBaseURL
	}
	if opts.AuthURL == "" {
		opts.AuthURL = xeroAuthURL
	}
	if opts.TokenURL == "" {
		opts.TokenURL = xeroTokenURL
	}
	if contact == "" {
		contact = xeroDefaultContact
	}
	client := newAPIClient(models.ProviderXero, opts, oauth2.AuthStyleInHeader, logger)
	client.decorate = func(req *http.Request, creds *Credentials) {
		if creds.AccountID != "" {
			req.Header.Set("xero-tenant-id", creds.AccountID)
		}
	}
	return &XeroAdapter{base: newBase(models.ProviderXero, opts, client, logger), contact: contact}
}

type xeroConnection struct {
	TenantID   string `json:"tenantId"`
	TenantType string `json:"tenantType"`
}

type xeroAccount struct {
	AccountID string `json:"AccountID"`
	Code      string `json:"Code"`
	Name      string `json:"Name"`
	Class     string `json:"Class"`
	Status    string `json:"Status"`
	TaxType   string `json:"TaxType"`
}

type xeroTaxRate struct {
	Name               string `json:"Name"`
	TaxType            string `json:"TaxType"`
	Status             string `json:"Status"`
	CanApplyToExpenses bool   `json:"CanApplyToExpenses"`
}

type xeroContact struct {
	ContactID string `json:"ContactID"`
	Name      string `json:"Name,omitempty"`
}

type xeroLineItem struct {
	Description string `json:"Description"`
	Quantity    int    `json:"Quantity"`
	UnitAmount  any    `json:"UnitAmount"`
	AccountCode string `json:"AccountCode"`
	TaxType     string `json:"TaxType,omitempty"`
}

type xeroInvoice struct {
	InvoiceID       string         `json:"InvoiceID,omitempty"`
	Type            string         `json:"Type"`
	Status          string         `json:"Status"`
	Contact         xeroContact    `json:"Contact"`
	Date            string         `json:"Date,omitempty"`
	DateString      string         `json:"DateString,omitempty"`
	InvoiceNumber   string         `json:"InvoiceNumber,omitempty"`
	CurrencyCode    string         `json:"CurrencyCode,omitempty"`
	LineAmountTypes string         `json:"LineAmountTypes,omitempty"`
	Total           float64        `json:"Total,omitempty"`
	LineItems       []xeroLineItem `json:"LineItems"`
}

// tenant uses the stored tenant id, otherwise the first organisation connection.
func (a *XeroAdapter) tenant(ctx context.Context, creds *Credentials) (string, error) {
	if creds.AccountID != "" {
		return creds.AccountID, nil
	}
	var conns []xeroConnection
	if err := a.client.call(ctx, creds, http.MethodGet, "/connections", nil, nil, &conns); err != nil {
		return "", err
	}
	for _, c := range conns {
		if c.TenantType == "" || strings.EqualFold(c.TenantType, "ORGANISATION") {
			creds.AccountID = c.TenantID
			return c.TenantID, nil
		}
	}
	return "", nil
}

func (a *XeroAdapter) PostDrafts(ctx context.Context, commands []models.PostingCommand, creds Credentials) (*models.BatchResult, Credentials) {
	if !creds.Connected() {
		return a.failAll(commands, NotConnected, 0, "Xero is not connected"), creds
	}
	if !anyPostable(commands) {
		return a.noPostable(commands), creds
	}

	tenantID, err := a.tenant(ctx, &creds)
	if err != nil {
		return a.failAllErr(commands, err, "connections"), creds
	}
	if tenantID == "" {
		return a.failAll(commands, CompanyMissing, 0, "no Xero organisation is connected"), creds
	}

	var accResp struct {
		Accounts []xeroAccount `json:"Accounts"`
	}
	if err := a.client.call(ctx, &creds, http.MethodGet, "/api.xro/2.0/Accounts", url.Values{"where": {`Class=="EXPENSE"`}}, nil, &accResp); err != nil {
		return a.failAllErr(commands, err, "accounts"), creds
	}
	named := make([]namedAccount, 0, len(accResp.Accounts))
	for _, acc := range accResp.Accounts {
		if acc.Code == "" || (acc.Status != "" && acc.Status != "ACTIVE") {
			continue
		}
		named = append(named, namedAccount{ID: acc.AccountID, Code: acc.Code, Name: acc.Name, TaxCode: acc.TaxType})
	}
	if len(named) == 0 {
		return a.failAll(commands, AccountItemsUnavailable, 0, "Xero returned no expense accounts"), creds
	}

	var taxResp struct {
		TaxRates []xeroTaxRate `json:"TaxRates"`
	}
	if err := a.client.call(ctx, &creds, http.MethodGet, "/api.xro/2.0/TaxRates", nil, nil, &taxResp); err != nil {
		return a.failAllErr(commands, err, "tax rates"), creds
	}
	taxes := make([]xeroTaxRate, 0, len(taxResp.TaxRates))
	for _, t := range taxResp.TaxRates {
		if t.CanApplyToExpenses && (t.Status == "" || t.Status == "ACTIVE") {
			taxes = append(taxes, t)
		}
	}
	if len(taxes) == 0 {
		return a.failAll(commands, TaxCodeUnavailable, 0, "Xero returned no tax rates for expenses"), creds
	}

	contactID, err := a.contactID(ctx, &creds)
	if err != nil {
		return a.failAllErr(commands, err, "contacts"), creds
	}
	if contactID == "" {
		return a.failAll(commands, ContactMissing, 0, fmt.Sprintf("Xero contact %q does not exist", a.contact)), creds
	}

	results := make([]models.PostingResult, 0, len(commands))
	for _, cmd := range commands {
		amount, ok := allocate(cmd)
		if !ok {
			results = append(results, a.skipped(cmd))
			continue
		}

		acct, ok := matchAccount(a.mapper.Candidates(models.ProviderXero, cmd.Decision.Category), named)
		if !ok {
			results = append(results, a.failed(cmd, CodeAccountItemMappingFailed, CodeAccountItemMappingFailed, 0,
				fmt.Sprintf("no Xero expense account matches category %q", cmd.Decision.Category)))
			continue
		}

		desc := a.description(cmd)
		inv := xeroInvoice{
			Type:            "ACCPAY",
			Status:          "DRAFT",
			Contact:         xeroContact{ContactID: contactID},
			Date:            cmd.PostingDate(),
			InvoiceNumber:   desc,
			CurrencyCode:    cmd.Transaction.Currency,
			LineAmountTypes: "Inclusive",
			LineItems: []xeroLineItem{{
				Description: desc,
				Quantity:    1,
				UnitAmount:  majorUnits(amount, cmd.Transaction.Currency),
				AccountCode: acct.Code,
				TaxType:     a.pickTax(taxes, acct.TaxCode),
			}},
		}

		var created struct {
			Invoices []xeroInvoice `json:"Invoices"`
		}
		payload := map[string][]xeroInvoice{"Invoices": {inv}}
		if err := a.client.call(ctx, &creds, http.MethodPut, "/api.xro/2.0/Invoices", nil, payload, &created); err != nil {
			results = append(results, a.callFailed(cmd, err))
			continue
		}
		remoteID := ""
		if len(created.Invoices) > 0 {
			remoteID = created.Invoices[0].InvoiceID
		}
		results = append(results, a.posted(cmd, remoteID, http.StatusOK))
	}

	return a.finish(results), creds
}

func (a *XeroAdapter) contactID(ctx context.Context, creds *Credentials) (string, error) {
	var resp struct {
		Contacts []xeroContact `json:"Contacts"`
	}
	q := url.Values{"where": {fmt.Sprintf(`Name=="%s"`, strings.ReplaceAll(a.contact, `"`, `\"`))}}
	if err := a.client.call(ctx, creds, http.MethodGet, "/api.xro/2.0/Contacts", q, nil, &resp); err != nil {
		return "", err
	}
	for _, c := range resp.Contacts {
		if strings.EqualFold(c.Name, a.contact) {
			return c.ContactID, nil
		}
	}
	if len(resp.Contacts) > 0 {
		return resp.Contacts[0].ContactID, nil
	}
	return "", nil
}

func (a *XeroAdapter) pickTax(taxes []xeroTaxRate, accountDefault string) string {
	for _, pref := range a.mapper.TaxPreferences(models.ProviderXero) {
		for _, t := range taxes {
			if strings.EqualFold(t.TaxType, pref) || strings.EqualFold(t.Name, pref) {
				return t.TaxType
			}
		}
	}
	for _, t := range taxes {
		if accountDefault != "" && t.TaxType == accountDefault {
			return t.TaxType
		}
	}
	return taxes[0].TaxType
}

func (a *XeroAdapter) FetchReviewQueue(ctx context.Context, creds Credentials, limit int) (*models.QueueResult, Credentials) {
	if !creds.Connected() {
		return a.queueNotConnected(), creds
	}
	limit = clampLimit(limit)

	tenantID, err := a.tenant(ctx, &creds)
	if err != nil {
		return a.queueFailed(err), creds
	}
	if tenantID == "" {
		return &models.QueueResult{
			Provider: models.ProviderXero,
			Code:     a.code(CompanyMissing),
			Message:  "no Xero organisation is connected",
			Items:    []models.ReviewQueueItem{},
		}, creds
	}

	var resp struct {
		Invoices []xeroInvoice `json:"Invoices"`
	}
	q := url.Values{"Statuses": {"DRAFT"}, "where": {`Type=="ACCPAY"`}, "order": {"UpdatedDateUTC DESC"}}
	if err := a.client.call(ctx, &creds, http.MethodGet, "/api.xro/2.0/Invoices", q, nil, &resp); err != nil {
		return a.queueFailed(err), creds
	}

	items := make([]models.ReviewQueueItem, 0, limit)
	for _, inv := range resp.Invoices {
		if len(items) == limit {
			break
		}
		if !strings.Contains(inv.InvoiceNumber, a.marker) {
			continue
		}
		date := inv.DateString
		if len(date) > 10 {
			date = date[:10]
		}
		items = append(items, models.ReviewQueueItem{
			Provider:    models.ProviderXero,
			RemoteID:    inv.InvoiceID,
			Date:        date,
			Amount:      fmt.Sprintf("%.2f", inv.Total),
			Currency:    inv.CurrencyCode,
			Description: inv.InvoiceNumber,
			Status:      strings.ToLower(inv.Status),
			URL:         xeroInvoiceURL + url.QueryEscape(inv.InvoiceID),
		})
	}
	return a.queueFetched(items), creds
}
