// Package rules implements the deterministic first-pass expense classifier.
package rules

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"autobook/internal/models"
)

// Verdict is the classifier output for one transaction.
type Verdict struct {
	Rank          models.Rank `json:"rank"`
	IsExpense     bool        `json:"is_expense"`
	Category      string      `json:"category"`
	BusinessRatio float64     `json:"business_ratio"`
	Confidence    float64     `json:"confidence"`
	Reason        string      `json:"reason"`
}

type Config struct {
	OKThreshold           float64
	HighAmount            int64
	MissingReceiptPenalty float64
	HighAmountPenalty     float64
	AmbiguityPenalty      float64
	NoMatchConfidence     float64
}

func DefaultConfig() Config {
	return Config{
		OKThreshold:           0.8,
		HighAmount:            50000,
		MissingReceiptPenalty: 0.15,
		HighAmountPenalty:     0.2,
		AmbiguityPenalty:      0.1,
		NoMatchConfidence:     0.4,
	}
}

type Classifier struct {
	cfg      Config
	rules    []CategoryRule
	personal []string
	hint     *CategoryHint
}

type Option func(*Classifier)

func WithRules(rules []CategoryRule) Option {
	return func(c *Classifier) { c.rules = rules }
}

func WithPersonalKeywords(keywords []string) Option {
	return func(c *Classifier) { c.personal = keywords }
}

// WithHint enables the bayesian category hint for transactions no keyword matches.
func WithHint(h *CategoryHint) Option {
	return func(c *Classifier) { c.hint = h }
}

func NewClassifier(cfg Config, opts ...Option) *Classifier {
	c := &Classifier{
		cfg:      cfg,
		rules:    DefaultCategoryRules,
		personal: PersonalKeywords,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type match struct {
	rule    CategoryRule
	keyword string
}

// Classify scores a transaction from its own fields only. It never performs I/O
// and returns the same verdict for the same input.
func (c *Classifier) Classify(tx models.CanonicalTransaction) Verdict {
	country := strings.ToUpper(strings.TrimSpace(tx.CountryCode))
	text := strings.ToLower(tx.Description())

	if tx.Direction == models.DirectionIncome {
		return Verdict{
			Rank:       models.RankNG,
			IsExpense:  false,
			Category:   "income",
			Confidence: 0.95,
			Reason:     "income transaction, not an expense",
		}
	}

	words := splitWords(text)
	personal := c.matchPersonal(text, words)
	matches := c.matchRules(text, words)

	if personal != "" && len(matches) == 0 {
		return Verdict{
			Rank:       models.RankNG,
			IsExpense:  false,
			Category:   MiscCategory(country),
			Confidence: 0.85,
			Reason:     fmt.Sprintf("personal spending keyword %q", personal),
		}
	}

	if len(matches) == 0 {
		v := Verdict{
			Rank:          models.RankReview,
			IsExpense:     true,
			Category:      MiscCategory(country),
			BusinessRatio: 1.0,
			Confidence:    c.cfg.NoMatchConfidence,
			Reason:        "no category keyword matched",
		}
		if c.hint != nil {
			if rule, p, ok := c.hint.Suggest(text); ok {
				v.Category = categoryName(rule, country)
				v.BusinessRatio = rule.BusinessRatio
				v.Reason = fmt.Sprintf("no category keyword matched; resembles %s (p=%.2f)", v.Category, p)
			}
		}
		if !tx.HasReceipt() {
			v.Reason += "; no receipt"
		}
		return v
	}

	best := matches[0]
	confidence := best.rule.Confidence
	reasons := []string{fmt.Sprintf("keyword %q -> %s", best.keyword, categoryName(best.rule, country))}

	if distinctCategories(matches) > 1 {
		confidence -= c.cfg.AmbiguityPenalty
		reasons = append(reasons, "matches several categories")
	}
	if !tx.HasReceipt() {
		confidence -= c.cfg.MissingReceiptPenalty
		reasons = append(reasons, "no receipt")
	}
	if c.cfg.HighAmount > 0 && tx.Amount >= c.cfg.HighAmount {
		confidence -= c.cfg.HighAmountPenalty
		reasons = append(reasons, fmt.Sprintf("high amount %d", tx.Amount))
	}
	if personal != "" {
		confidence = math.Min(confidence, c.cfg.OKThreshold-0.1)
		reasons = append(reasons, fmt.Sprintf("personal keyword %q", personal))
	}
	confidence = roundConfidence(confidence)

	rank := models.RankReview
	if confidence >= c.cfg.OKThreshold && best.rule.BusinessRatio > 0 {
		rank = models.RankOK
	}

	return Verdict{
		Rank:          rank,
		IsExpense:     true,
		Category:      categoryName(best.rule, country),
		BusinessRatio: best.rule.BusinessRatio,
		Confidence:    confidence,
		Reason:        strings.Join(reasons, "; "),
	}
}

func (c *Classifier) matchPersonal(text string, words []string) string {
	for _, kw := range c.personal {
		if containsKeyword(text, words, kw) {
			return kw
		}
	}
	return ""
}

// matchRules returns one match per matching rule, strongest rule first.
func (c *Classifier) matchRules(text string, words []string) []match {
	var matches []match
	for _, rule := range c.rules {
		for _, kw := range rule.Keywords {
			if containsKeyword(text, words, kw) {
				matches = append(matches, match{rule: rule, keyword: kw})
				break
			}
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].rule.Confidence > matches[j].rule.Confidence
	})
	return matches
}

// containsKeyword matches keywords in wide scripts anywhere in the text. Other
// keywords must match whole words, so "book" does not fire on "Facebook".
func containsKeyword(text string, words []string, kw string) bool {
	kw = strings.ToLower(strings.TrimSpace(kw))
	if kw == "" {
		return false
	}
	if hasWideRunes([]rune(kw)) {
		return strings.Contains(text, kw)
	}
	return containsRun(words, splitWords(kw))
}

func containsRun(words, run []string) bool {
	if len(run) == 0 {
		return false
	}
	for i := 0; i+len(run) <= len(words); i++ {
		j := 0
		for j < len(run) && words[i+j] == run[j] {
			j++
		}
		if j == len(run) {
			return true
		}
	}
	return false
}

func distinctCategories(matches []match) int {
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		seen[m.rule.Category] = struct{}{}
	}
	return len(seen)
}

func categoryName(rule CategoryRule, country string) string {
	if country == "JP" || rule.Label == "" {
		return rule.Category
	}
	return rule.Label
}

func roundConfidence(v float64) float64 {
	v = math.Round(v*100) / 100
	return math.Max(0, math.Min(1, v))
}
