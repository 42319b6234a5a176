package rules

import (
	"math"
	"strings"
	"unicode"

	"github.com/jbrukh/bayesian"
)

// CategoryHint is a naive bayes model trained on the rule keywords. It only
// suggests a category label and never changes a rank.
type CategoryHint struct {
	cl       *bayesian.Classifier
	classes  []bayesian.Class
	rules    map[bayesian.Class]CategoryRule
	minScore float64
}

func NewCategoryHint(rules []CategoryRule, minScore float64) *CategoryHint {
	h := &CategoryHint{
		rules:    make(map[bayesian.Class]CategoryRule, len(rules)),
		minScore: minScore,
	}
	for _, r := range rules {
		class := bayesian.Class(r.Category)
		if _, dup := h.rules[class]; dup {
			continue
		}
		h.classes = append(h.classes, class)
		h.rules[class] = r
	}
	if len(h.classes) < 2 {
		return h
	}

	h.cl = bayesian.NewClassifier(h.classes...)
	for _, r := range rules {
		var doc []string
		for _, kw := range r.Keywords {
			doc = append(doc, Terms(kw)...)
		}
		if r.Label != "" {
			doc = append(doc, Terms(r.Label)...)
		}
		h.cl.Learn(doc, bayesian.Class(r.Category))
	}
	return h
}

// Suggest returns the most likely rule when its softmax probability clears minScore.
func (h *CategoryHint) Suggest(text string) (CategoryRule, float64, bool) {
	if h == nil || h.cl == nil {
		return CategoryRule{}, 0, false
	}
	terms := Terms(text)
	if len(terms) == 0 {
		return CategoryRule{}, 0, false
	}

	scores, inx, strict := h.cl.LogScores(terms)
	if !strict {
		return CategoryRule{}, 0, false
	}

	p := softmax(scores)[inx]
	if p < h.minScore {
		return CategoryRule{}, p, false
	}
	return h.rules[h.classes[inx]], p, true
}

func softmax(scores []float64) []float64 {
	maxScore := math.Inf(-1)
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}
	var sum float64
	out := make([]float64, len(scores))
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Terms splits text into lowercase words. Words in scripts written without
// spaces are also split into rune bigrams.
func Terms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	var terms []string
	for _, f := range fields {
		runes := []rune(f)
		if len(runes) < 2 {
			continue
		}
		terms = append(terms, f)
		if !hasWideRunes(runes) {
			continue
		}
		for i := 0; i+1 < len(runes); i++ {
			terms = append(terms, string(runes[i:i+2]))
		}
	}
	return terms
}

// splitWords splits lowercase text into words and also breaks where the script
// switches between wide and narrow runes, so "jr東日本" is "jr" and "東日本".
func splitWords(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	var words []string
	for _, f := range fields {
		runes := []rune(f)
		start := 0
		for i := 1; i < len(runes); i++ {
			if isWideRune(runes[i]) != isWideRune(runes[i-1]) {
				words = append(words, string(runes[start:i]))
				start = i
			}
		}
		words = append(words, string(runes[start:]))
	}
	return words
}

func hasWideRunes(runes []rune) bool {
	for _, r := range runes {
		if isWideRune(r) {
			return true
		}
	}
	return false
}

func isWideRune(r rune) bool {
	return r == 'ー' || unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana)
}
