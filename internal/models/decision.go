package models

import (
	"strings"
	"time"
)

type Rank string

const (
	RankOK     Rank = "OK"
	RankReview Rank = "REVIEW"
	RankNG     Rank = "NG"
)

// ParseRank coerces free text into a rank. Unknown values map to REVIEW.
func ParseRank(s string) Rank {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OK", "ACCEPT", "APPROVED":
		return RankOK
	case "NG", "REJECT", "REJECTED":
		return RankNG
	}
	return RankReview
}

const RuleOnlyModelVersion = "rule-only-v1"

type ClassificationDecision struct {
	DecisionID     string    `json:"decision_id" db:"decision_id"`
	TransactionID  string    `json:"transaction_id" db:"transaction_id"`
	Rank           Rank      `json:"rank" db:"rank"`
	IsExpense      bool      `json:"is_expense" db:"is_expense"`
	AllocationRate float64   `json:"allocation_rate" db:"allocation_rate"`
	Category       string    `json:"category" db:"category"`
	Amount         int64     `json:"amount" db:"amount"`
	Date           string    `json:"date" db:"date"`
	Reason         string    `json:"reason" db:"reason"`
	Confidence     float64   `json:"confidence" db:"confidence"`
	RuleVersion    string    `json:"rule_version" db:"rule_version"`
	ModelVersion   string    `json:"model_version" db:"model_version"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Postable reports whether the decision may be turned into a provider draft.
func (d ClassificationDecision) Postable() bool {
	return d.Rank == RankOK && d.IsExpense && d.AllocationRate > 0
}
