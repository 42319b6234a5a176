package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"autobook/internal/models"
)

const (
	maxReasonRunes   = 240
	maxCategoryRunes = 64
)

var (
	ErrNoJSON          = errors.New("no JSON object in model response")
	ErrMissingDecision = errors.New("model response has no usable is_expense field")
)

// Judgement is a model's second opinion. Every field has been validated; optional
// fields are nil or empty when the model omitted them or sent garbage.
type Judgement struct {
	IsExpense      bool        `json:"is_expense"`
	Confidence     float64     `json:"confidence"`
	AllocationRate *float64    `json:"allocation_rate,omitempty"`
	Category       string      `json:"category,omitempty"`
	Amount         *int64      `json:"amount,omitempty"`
	Date           string      `json:"date,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	Rank           models.Rank `json:"rank,omitempty"`
	Provider       string      `json:"provider"`
	Model          string      `json:"model"`
}

// ParseJudgement extracts the JSON object from a raw completion and sanitises it field by field.
func ParseJudgement(raw string) (*Judgement, error) {
	body, err := extractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode judgement: %w", err)
	}

	isExpense, ok := boolField(fields, "is_expense")
	if !ok {
		return nil, ErrMissingDecision
	}

	j := &Judgement{IsExpense: isExpense}

	if v, ok := numberField(fields, "confidence"); ok {
		j.Confidence = clamp01(v)
	}
	if v, ok := numberField(fields, "allocation_rate", "business_ratio"); ok {
		rate := clamp01(v)
		j.AllocationRate = &rate
	}
	if v, ok := numberField(fields, "amount"); ok && v >= 1 && v < 1e15 {
		amount := int64(math.Floor(v))
		j.Amount = &amount
	}
	if s, ok := stringField(fields, "date"); ok {
		if _, err := time.Parse("2006-01-02", s); err == nil {
			j.Date = s
		}
	}
	if s, ok := stringField(fields, "category"); ok {
		j.Category = truncate(singleLine(s), maxCategoryRunes)
	}
	if s, ok := stringField(fields, "reason"); ok {
		j.Reason = truncate(singleLine(s), maxReasonRunes)
	}
	if s, ok := stringField(fields, "rank"); ok {
		j.Rank = models.ParseRank(s)
	}

	return j, nil
}

func extractJSONObject(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", ErrNoJSON
	}
	return s[start : end+1], nil
}

func boolField(fields map[string]any, key string) (bool, bool) {
	switch v := fields[key].(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "y", "1", "はい":
			return true, true
		case "false", "no", "n", "0", "いいえ":
			return false, true
		}
	case float64:
		if v == 0 || v == 1 {
			return v == 1, true
		}
	}
	return false, false
}

func numberField(fields map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		switch v := fields[key].(type) {
		case float64:
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			return v, true
		case string:
			cleaned := strings.NewReplacer(",", "", "¥", "", "$", "", "£", "", " ", "").Replace(v)
			if f, err := strconv.ParseFloat(cleaned, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				return f, true
			}
		}
	}
	return 0, false
}

func stringField(fields map[string]any, key string) (string, bool) {
	s, ok := fields[key].(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
