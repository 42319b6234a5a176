package accounting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"autobook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func usCommand(id string, amount int64, category string) models.PostingCommand {
	cmd := command(id, amount, category, 1)
	cmd.Transaction.Currency = "USD"
	cmd.Transaction.CountryCode = "US"
	cmd.Transaction.Counterparty = "Uber"
	return cmd
}

func newQuickBooksServer(t *testing.T, bankAccounts string) (*httptest.Server, func() []map[string]any) {
	var (
		mu     sync.Mutex
		posted []map[string]any
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/v3/company/realm-1/query", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("query")
		switch {
		case strings.Contains(q, "AccountType = 'Expense'"):
			_, _ = w.Write([]byte(`{"QueryResponse":{"Account":[{"Id":"58","Name":"Travel","AccountType":"Expense"},{"Id":"70","Name":"Miscellaneous","AccountType":"Expense"}]}}`))
		case strings.Contains(q, "AccountType = 'Bank'"):
			_, _ = w.Write([]byte(bankAccounts))
		case strings.Contains(q, "from Purchase"):
			_, _ = w.Write([]byte(`{"QueryResponse":{"Purchase":[
				{"Id":"9","TxnDate":"2024-06-01","TotalAmt":12.5,"PrivateNote":"[autobook] tx-1 Travel","CurrencyRef":{"value":"USD"}},
				{"Id":"10","TxnDate":"2024-06-01","TotalAmt":99,"PrivateNote":"typed by hand"}
			]}}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/v3/company/realm-1/purchase", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		posted = append(posted, body)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"Purchase":{"Id":"501"}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, func() []map[string]any {
		mu.Lock()
		defer mu.Unlock()
		return append([]map[string]any(nil), posted...)
	}
}

func TestQuickBooksPostDrafts(t *testing.T) {
	srv, posted := newQuickBooksServer(t, `{"QueryResponse":{"Account":[{"Id":"35","Name":"Checking","AccountType":"Bank"}]}}`)
	a := NewQuickBooksAdapter(ProviderOptions{BaseURL: srv.URL, HTTPClient: srv.Client()}, zap.NewNop())

	res, _ := a.PostDrafts(context.Background(),
		[]models.PostingCommand{usCommand("tx-1", 1250, "Travel")},
		Credentials{AccessToken: "tok", AccountID: "realm-1"})

	require.True(t, res.OK)
	assert.Equal(t, "QUICKBOOKS_DRAFT_POSTED", res.Code)
	assert.Equal(t, "501", res.Results[0].RemoteID)

	got := posted()
	require.Len(t, got, 1)
	body := got[0]
	assert.Equal(t, "Cash", body["PaymentType"])
	assert.Equal(t, "35", body["AccountRef"].(map[string]any)["value"])
	line := body["Line"].([]any)[0].(map[string]any)
	assert.Equal(t, 12.5, line["Amount"])
	detail := line["AccountBasedExpenseLineDetail"].(map[string]any)
	assert.Equal(t, "58", detail["AccountRef"].(map[string]any)["value"])
	assert.Contains(t, body["PrivateNote"], DefaultMarker)
}

func TestQuickBooksBankAccountMissing(t *testing.T) {
	srv, posted := newQuickBooksServer(t, `{"QueryResponse":{}}`)
	a := NewQuickBooksAdapter(ProviderOptions{BaseURL: srv.URL, HTTPClient: srv.Client()}, zap.NewNop())

	cmds := []models.PostingCommand{usCommand("tx-1", 1000, "Travel"), usCommand("tx-2", 1000, "Travel")}
	res, _ := a.PostDrafts(context.Background(), cmds, Credentials{AccessToken: "tok", AccountID: "realm-1"})

	assert.Equal(t, "QUICKBOOKS_BANK_ACCOUNT_MISSING", res.Code)
	assert.Equal(t, 2, res.Failed)
	assert.Empty(t, posted())
}

func TestQuickBooksRealmMissing(t *testing.T) {
	a := NewQuickBooksAdapter(ProviderOptions{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())
	res, _ := a.PostDrafts(context.Background(), []models.PostingCommand{usCommand("tx-1", 1000, "Travel")}, Credentials{AccessToken: "tok"})
	assert.Equal(t, "QUICKBOOKS_COMPANY_MISSING", res.Code)
}

func TestQuickBooksReviewQueue(t *testing.T) {
	srv, _ := newQuickBooksServer(t, `{}`)
	a := NewQuickBooksAdapter(ProviderOptions{BaseURL: srv.URL, HTTPClient: srv.Client()}, zap.NewNop())

	q, _ := a.FetchReviewQueue(context.Background(), Credentials{AccessToken: "tok", AccountID: "realm-1"}, 5)
	require.True(t, q.OK)
	require.Len(t, q.Items, 1)
	assert.Equal(t, "9", q.Items[0].RemoteID)
	assert.Equal(t, "12.50", q.Items[0].Amount)
	assert.Equal(t, "USD", q.Items[0].Currency)
}

func TestQuickBooksNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	a := NewQuickBooksAdapter(ProviderOptions{BaseURL: url}, zap.NewNop())
	res, _ := a.PostDrafts(context.Background(), []models.PostingCommand{usCommand("tx-1", 1000, "Travel")}, Credentials{AccessToken: "tok", AccountID: "realm-1"})
	assert.Equal(t, "QUICKBOOKS_NETWORK_ERROR", res.Code)
	assert.Zero(t, res.Results[0].HTTPStatus)
}
