package service

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"autobook/internal/models"

	"github.com/jonboulle/clockwork"
)

const (
	maxMemoRunes = 500
	maxAmount    = int64(1_000_000_000_000)
	dateLayout   = "2006-01-02"
)

var (
	emailPattern     = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	datePattern      = regexp.MustCompile(`\d{4}\s*[-/.年]\s*\d{1,2}\s*[-/.月]\s*\d{1,2}\s*日?|\d{1,2}/\d{1,2}/\d{2,4}`)
	phonePattern     = regexp.MustCompile(`(?:\+\d{1,3}[\s-]?\(?0?\d{1,4}\)?|\(?0\d{1,4}\)?)[\s-]?\d{1,4}[\s-]\d{3,4}`)
	longDigitPattern = regexp.MustCompile(`\d(?:[\s-]?\d){7,}`)
)

// RedactMemo replaces PII-like substrings before text reaches storage or any model.
func RedactMemo(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = emailPattern.ReplaceAllString(s, "[EMAIL]")
	s = datePattern.ReplaceAllString(s, "[DATE]")
	s = phonePattern.ReplaceAllString(s, "[PHONE]")
	s = longDigitPattern.ReplaceAllString(s, "[NUMBER]")
	s = strings.Join(strings.Fields(s), " ")
	return truncateRunes(s, maxMemoRunes)
}

// SanitizeTransaction returns a copy with redacted text, a positive amount and a
// YYYY-MM-DD date. Unparsable dates fall back to today.
func SanitizeTransaction(tx models.CanonicalTransaction, clock clockwork.Clock) models.CanonicalTransaction {
	out := tx
	out.MemoRedacted = RedactMemo(tx.MemoRedacted)
	out.Counterparty = RedactMemo(tx.Counterparty)
	out.CountryCode = strings.ToUpper(strings.TrimSpace(tx.CountryCode))
	out.Currency = strings.ToUpper(strings.TrimSpace(tx.Currency))
	out.Amount = clampAmount(tx.Amount)

	if d, ok := NormalizeDate(tx.OccurredAt); ok {
		out.OccurredAt = d
	} else {
		out.OccurredAt = clock.Now().Format(dateLayout)
	}
	return out
}

// SanitizeCommand prepares a posting command for a provider. Unlike evaluation
// it never invents a date: a command whose dates cannot be read is rejected.
func SanitizeCommand(cmd models.PostingCommand, clock clockwork.Clock) (models.PostingCommand, error) {
	if _, ok := NormalizeDate(cmd.Transaction.OccurredAt); !ok {
		return cmd, fmt.Errorf("%w: occurred_at %q is not a date", models.ErrInvalidTransaction, cmd.Transaction.OccurredAt)
	}
	out := cmd
	out.Transaction = SanitizeTransaction(cmd.Transaction, clock)
	if err := out.Transaction.Validate(); err != nil {
		return cmd, err
	}

	if cmd.Decision.Date != "" {
		d, ok := NormalizeDate(cmd.Decision.Date)
		if !ok {
			return cmd, fmt.Errorf("%w: decision date %q is not a date", models.ErrInvalidTransaction, cmd.Decision.Date)
		}
		out.Decision.Date = d
	}
	if cmd.Decision.Amount < 0 {
		out.Decision.Amount = 0
	}
	out.Decision.Category = RedactMemo(cmd.Decision.Category)
	out.Decision.Reason = RedactMemo(cmd.Decision.Reason)
	return out, nil
}

var dateLayouts = []string{
	dateLayout,
	"2006/01/02",
	"2006/1/2",
	"2006-1-2",
	"20060102",
	"2006.01.02",
	"2006年1月2日",
	time.RFC3339,
}

// NormalizeDate parses the common intake date formats into YYYY-MM-DD.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(dateLayout), true
		}
	}
	return "", false
}

func clampAmount(v int64) int64 {
	if v < 0 {
		v = -v
	}
	if v < 1 {
		return 1
	}
	if v > maxAmount {
		return maxAmount
	}
	return v
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
