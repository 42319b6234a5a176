// Package accounting posts accepted expense decisions as drafts to freee,
// QuickBooks Online and Xero.
package accounting

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"autobook/internal/models"

	"go.uber.org/zap"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	DefaultMarker      = "[autobook]"
	maxDescriptionLen  = 250
)

// Adapter is implemented once per provider. Adapters keep no state between calls:
// credentials come in with the call and the possibly refreshed ones go back out.
type Adapter interface {
	Provider() models.Provider
	Status(store SessionStore) models.ProviderStatus
	PostDrafts(ctx context.Context, commands []models.PostingCommand, creds Credentials) (*models.BatchResult, Credentials)
	FetchReviewQueue(ctx context.Context, creds Credentials, limit int) (*models.QueueResult, Credentials)
}

type ProviderOptions struct {
	ClientID          string
	ClientSecret      string
	BaseURL           string
	AuthURL           string
	TokenURL          string
	RequestsPerSecond float64
	Marker            string
	HTTPClient        *http.Client
	Mapper            *Mapper
}

type Registry struct {
	adapters map[models.Provider]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

func (r *Registry) Get(p models.Provider) (Adapter, bool) {
	a, ok := r.adapters[p]
	return a, ok
}

// base carries what every adapter shares: identity, HTTP client, mapping and result shaping.
type base struct {
	def    Definition
	opts   ProviderOptions
	client *apiClient
	mapper *Mapper
	marker string
	logger *zap.Logger
}

func newBase(p models.Provider, opts ProviderOptions, client *apiClient, logger *zap.Logger) base {
	marker := opts.Marker
	if marker == "" {
		marker = DefaultMarker
	}
	mapper := opts.Mapper
	if mapper == nil {
		mapper = NewMapper()
	}
	return base{
		def:    DefinitionFor(p),
		opts:   opts,
		client: client,
		mapper: mapper,
		marker: marker,
		logger: logger.With(zap.String("provider", string(p))),
	}
}

func (b *base) Provider() models.Provider {
	return b.def.Provider
}

// Status reports configuration and session presence without any network call.
func (b *base) Status(store SessionStore) models.ProviderStatus {
	creds := LoadCredentials(store, b.def.Provider)
	st := models.ProviderStatus{
		Provider:   b.def.Provider,
		Label:      b.def.Label,
		Configured: b.opts.ClientID != "" && b.opts.ClientSecret != "",
		Connected:  creds.Connected(),
		AccountID:  creds.AccountID,
		Contact:    b.def.SupportContact,
		DocsURL:    b.def.DocsURL,
	}
	if !creds.Expiry.IsZero() {
		exp := creds.Expiry
		st.ExpiresAt = &exp
	}
	return st
}

func (b *base) code(suffix string) string {
	return Code(b.def.Provider, suffix)
}

func (b *base) description(cmd models.PostingCommand) string {
	parts := []string{b.marker, cmd.Transaction.TransactionID}
	if cmd.Decision.Category != "" {
		parts = append(parts, cmd.Decision.Category)
	}
	if desc := cmd.Transaction.Description(); desc != "" {
		parts = append(parts, desc)
	}
	s := strings.Join(parts, " ")
	if r := []rune(s); len(r) > maxDescriptionLen {
		s = string(r[:maxDescriptionLen])
	}
	return s
}

func (b *base) posted(cmd models.PostingCommand, remoteID string, status int) models.PostingResult {
	return models.PostingResult{
		Provider:       b.def.Provider,
		TransactionID:  cmd.Transaction.TransactionID,
		OK:             true,
		Status:         models.PostingStatusPosted,
		HTTPStatus:     status,
		RemoteID:       remoteID,
		DiagnosticCode: b.code(DraftPosted),
		Message:        "draft created",
	}
}

func (b *base) failed(cmd models.PostingCommand, code, suffix string, status int, message string) models.PostingResult {
	return models.PostingResult{
		Provider:       b.def.Provider,
		TransactionID:  cmd.Transaction.TransactionID,
		OK:             false,
		Status:         models.PostingStatusFailed,
		HTTPStatus:     status,
		DiagnosticCode: code,
		Message:        message,
		NextAction:     nextAction(suffix),
		Contact:        b.def.SupportContact,
	}
}

func (b *base) callFailed(cmd models.PostingCommand, err error) models.PostingResult {
	suffix, status := diagnose(err)
	return b.failed(cmd, b.code(suffix), suffix, status, err.Error())
}

func (b *base) skipped(cmd models.PostingCommand) models.PostingResult {
	msg := "decision is not a postable business expense"
	if cmd.Postable() {
		msg = fmt.Sprintf("business share of %d at rate %.2f rounds to zero", cmd.PostingAmount(), cmd.Decision.AllocationRate)
	}
	r := b.failed(cmd, CodeCommandNotPostable, CodeCommandNotPostable, 0, msg)
	r.Status = models.PostingStatusSkipped
	return r
}

// allocate returns the business share of a postable command in minor units.
// A share that rounds to zero is not postable.
func allocate(cmd models.PostingCommand) (int64, bool) {
	if !cmd.Postable() {
		return 0, false
	}
	amount := AllocatedAmount(cmd.PostingAmount(), cmd.Decision.AllocationRate)
	return amount, amount > 0
}

// failAll reports one batch-wide precondition failure on every command.
func (b *base) failAll(commands []models.PostingCommand, suffix string, status int, message string) *models.BatchResult {
	results := make([]models.PostingResult, 0, len(commands))
	for _, cmd := range commands {
		results = append(results, b.failed(cmd, b.code(suffix), suffix, status, message))
	}
	b.logger.Warn("Draft batch rejected", zap.String("code", b.code(suffix)), zap.String("message", message))
	return &models.BatchResult{
		Provider: b.def.Provider,
		OK:       false,
		Failed:   len(results),
		Code:     b.code(suffix),
		Message:  message,
		Results:  results,
	}
}

func (b *base) failAllErr(commands []models.PostingCommand, err error, what string) *models.BatchResult {
	suffix, status := diagnose(err)
	return b.failAll(commands, suffix, status, fmt.Sprintf("failed to load %s: %v", what, err))
}

// noPostable answers a batch in which no command survived the postable filter.
func (b *base) noPostable(commands []models.PostingCommand) *models.BatchResult {
	results := make([]models.PostingResult, 0, len(commands))
	for _, cmd := range commands {
		results = append(results, b.skipped(cmd))
	}
	return &models.BatchResult{
		Provider: b.def.Provider,
		OK:       false,
		Failed:   len(results),
		Code:     CodeNoPostableCommands,
		Message:  "no command is a postable business expense",
		Results:  results,
	}
}

func anyPostable(commands []models.PostingCommand) bool {
	for _, cmd := range commands {
		if _, ok := allocate(cmd); ok {
			return true
		}
	}
	return false
}

func (b *base) finish(results []models.PostingResult) *models.BatchResult {
	br := &models.BatchResult{Provider: b.def.Provider, Results: results}
	for _, r := range results {
		if r.OK {
			br.Success++
		} else {
			br.Failed++
		}
	}
	br.OK = br.Failed == 0

	switch {
	case br.Failed == 0:
		br.Code = b.code(DraftPosted)
	case br.Success > 0:
		br.Code = b.code(DraftPartialFailure)
		br.Message = fmt.Sprintf("%d of %d drafts failed", br.Failed, len(results))
	default:
		br.Code = results[0].DiagnosticCode
		br.Message = results[0].Message
	}

	b.logger.Info("Draft batch finished",
		zap.Int("success", br.Success),
		zap.Int("failed", br.Failed),
		zap.String("code", br.Code),
	)
	return br
}

func (b *base) queueFailed(err error) *models.QueueResult {
	suffix, _ := diagnose(err)
	return &models.QueueResult{
		Provider: b.def.Provider,
		OK:       false,
		Code:     b.code(suffix),
		Message:  err.Error(),
		Items:    []models.ReviewQueueItem{},
	}
}

func (b *base) queueNotConnected() *models.QueueResult {
	return &models.QueueResult{
		Provider: b.def.Provider,
		OK:       false,
		Code:     b.code(NotConnected),
		Message:  "provider is not connected",
		Items:    []models.ReviewQueueItem{},
	}
}

func (b *base) queueFetched(items []models.ReviewQueueItem) *models.QueueResult {
	if items == nil {
		items = []models.ReviewQueueItem{}
	}
	return &models.QueueResult{
		Provider: b.def.Provider,
		OK:       true,
		Code:     b.code(ReviewQueueFetched),
		Items:    items,
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
