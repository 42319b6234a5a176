package llm

import (
	"fmt"

	"autobook/internal/models"
	"autobook/internal/rules"
)

// BuildPrompt embeds the jurisdiction hint and the rule verdict so the model
// reviews the first pass rather than starting from scratch.
func BuildPrompt(tx models.CanonicalTransaction, profile models.JurisdictionProfile, verdict rules.Verdict) string {
	return fmt.Sprintf(`You are a bookkeeping assistant reviewing one transaction for a %s taxpayer.
%s

Transaction:
- date: %s
- amount: %d (%s, smallest currency unit)
- source: %s
- counterparty: %s
- memo: %s
- receipt attached: %t

A rule-based classifier already looked at it:
- rank: %s
- category: %s
- business ratio: %.2f
- confidence: %.2f
- reason: %s

Decide whether this is a deductible business expense.
Return ONLY one JSON object, no markdown, with these fields:
{
  "is_expense": true or false,
  "confidence": number between 0 and 1,
  "allocation_rate": business-use fraction between 0 and 1,
  "category": account category name,
  "amount": corrected amount as a positive integer, or omit,
  "date": corrected date as YYYY-MM-DD, or omit,
  "reason": short explanation (max 240 characters)
}`,
		profile.CountryCode,
		profile.PromptHint,
		tx.OccurredAt,
		tx.Amount, tx.Currency,
		tx.SourceType,
		orDash(tx.Counterparty),
		orDash(tx.MemoRedacted),
		tx.HasReceipt(),
		verdict.Rank,
		verdict.Category,
		verdict.BusinessRatio,
		verdict.Confidence,
		verdict.Reason,
	)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
