package accounting

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"autobook/internal/models"
)

// Provider-independent codes.
const (
	CodeProviderNotSupported     = "PROVIDER_NOT_SUPPORTED"
	CodeNoPostableCommands       = "NO_POSTABLE_COMMANDS"
	CodeNoCommands               = "NO_COMMANDS"
	CodeAccountItemMappingFailed = "ACCOUNT_ITEM_MAPPING_FAILED"
	CodeCommandNotPostable       = "COMMAND_NOT_POSTABLE"
	CodeInvalidTransaction       = "INVALID_TRANSACTION"
)

// Suffixes of provider-prefixed codes, e.g. FREEE_AUTH_EXPIRED.
const (
	NotConnected            = "NOT_CONNECTED"
	CompanyMissing          = "COMPANY_MISSING"
	AccountItemsUnavailable = "ACCOUNT_ITEMS_UNAVAILABLE"
	TaxCodeUnavailable      = "TAX_CODE_UNAVAILABLE"
	BankAccountMissing      = "BANK_ACCOUNT_MISSING"
	ContactMissing          = "CONTACT_MISSING"
	AuthExpired             = "AUTH_EXPIRED"
	PermissionDenied        = "PERMISSION_DENIED"
	RateLimited             = "RATE_LIMITED"
	ServerError             = "SERVER_ERROR"
	BadRequest              = "BAD_REQUEST"
	NetworkError            = "NETWORK_ERROR"
	DraftPosted             = "DRAFT_POSTED"
	DraftPartialFailure     = "DRAFT_PARTIAL_FAILURE"
	ReviewQueueFetched      = "REVIEW_QUEUE_FETCHED"
	ResultMissing           = "RESULT_MISSING"
)

func Code(p models.Provider, suffix string) string {
	return strings.ToUpper(string(p)) + "_" + suffix
}

// apiError is a non-2xx provider response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Body)
}

// statusSuffix maps an HTTP status to a diagnostic suffix by range only.
func statusSuffix(status int) string {
	switch {
	case status == http.StatusUnauthorized:
		return AuthExpired
	case status == http.StatusForbidden:
		return PermissionDenied
	case status == http.StatusTooManyRequests:
		return RateLimited
	case status >= 500:
		return ServerError
	case status >= 400:
		return BadRequest
	}
	return ServerError
}

// diagnose converts a call error into a code suffix and the HTTP status, 0 when
// the request never got a response.
func diagnose(err error) (string, int) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return statusSuffix(apiErr.Status), apiErr.Status
	}
	return NetworkError, 0
}

func nextAction(suffix string) string {
	switch suffix {
	case NotConnected:
		return "connect the accounting provider"
	case AuthExpired:
		return "reconnect the accounting provider"
	case PermissionDenied:
		return "grant the app write access to the accounting data"
	case CompanyMissing:
		return "select the company to post to in the provider settings"
	case AccountItemsUnavailable, TaxCodeUnavailable, BankAccountMissing, ContactMissing:
		return "complete the account setup in the provider"
	case RateLimited, ServerError, NetworkError:
		return "retry later"
	case BadRequest:
		return "check the draft details and provider settings"
	case CodeAccountItemMappingFailed:
		return "map the category to an account manually"
	case CodeInvalidTransaction:
		return "fix the transaction and resubmit"
	}
	return ""
}

// Rejected is the failed result of a command refused before any provider call.
func Rejected(p models.Provider, transactionID, code, message string) models.PostingResult {
	return models.PostingResult{
		Provider:       p,
		TransactionID:  transactionID,
		Status:         models.PostingStatusFailed,
		DiagnosticCode: code,
		Message:        message,
		NextAction:     nextAction(code),
	}
}
