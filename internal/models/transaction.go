package models

import (
	"errors"
	"fmt"
	"strings"
)

type SourceType string

const (
	SourceManual       SourceType = "manual"
	SourcePaperOCR     SourceType = "paper_ocr"
	SourceConnectorAPI SourceType = "connector_api"
	SourceBankFeed     SourceType = "bank_feed"
	SourceCardFeed     SourceType = "card_feed"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceManual, SourcePaperOCR, SourceConnectorAPI, SourceBankFeed, SourceCardFeed:
		return true
	}
	return false
}

type Direction string

const (
	DirectionIncome  Direction = "income"
	DirectionExpense Direction = "expense"
)

// ReceiptReferencePrefix marks a raw reference that points at a stored receipt image.
const ReceiptReferencePrefix = "receipt:"

var ErrInvalidTransaction = errors.New("invalid transaction")

// CanonicalTransaction is the normalized unit of financial activity produced by intake.
type CanonicalTransaction struct {
	TransactionID string     `json:"transaction_id" db:"transaction_id"`
	SourceType    SourceType `json:"source_type" db:"source_type"`
	Direction     Direction  `json:"direction" db:"direction"`
	OccurredAt    string     `json:"occurred_at" db:"occurred_at"`
	Amount        int64      `json:"amount" db:"amount"`
	Currency      string     `json:"currency" db:"currency"`
	Counterparty  string     `json:"counterparty,omitempty" db:"counterparty"`
	MemoRedacted  string     `json:"memo_redacted" db:"memo_redacted"`
	CountryCode   string     `json:"country_code" db:"country_code"`
	RawReference  string     `json:"raw_reference,omitempty" db:"raw_reference"`
}

func (t CanonicalTransaction) Validate() error {
	if strings.TrimSpace(t.TransactionID) == "" {
		return fmt.Errorf("%w: transaction_id is required", ErrInvalidTransaction)
	}
	if t.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrInvalidTransaction, t.Amount)
	}
	if !t.SourceType.Valid() {
		return fmt.Errorf("%w: unknown source_type %q", ErrInvalidTransaction, t.SourceType)
	}
	if t.Direction != DirectionIncome && t.Direction != DirectionExpense {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidTransaction, t.Direction)
	}
	return nil
}

// HasReceipt reports whether the transaction is backed by a receipt image.
func (t CanonicalTransaction) HasReceipt() bool {
	if t.SourceType == SourcePaperOCR {
		return true
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(t.RawReference)), ReceiptReferencePrefix)
}

// Description joins counterparty and memo, the text the classifiers look at.
func (t CanonicalTransaction) Description() string {
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(t.Counterparty); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(t.MemoRedacted); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}
