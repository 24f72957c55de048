// Package classifier scores a normalized utterance against ordered intent
// patterns. It is pure and stateless: no I/O, deterministic output.
package classifier

import (
	"regexp"
	"strings"

	"shop-assistant/internal/models"
)

// Definition describes how one intent is recognized. Definitions are evaluated
// in slice order; on equal scores the earlier definition wins, which is how
// deny outranks confirm for texts like "不对".
type Definition struct {
	Intent   models.Intent
	Patterns []*regexp.Regexp
	Keywords []string
	// Weight scales a pattern hit from the 0.8 base toward 1.0.
	Weight float64
}

// Classifier holds a compiled, ordered intent definition table.
type Classifier struct {
	defs []Definition
}

// New builds a Classifier from the given definitions. Pass the result of
// DefaultDefinitions for the built-in table.
func New(defs []Definition) *Classifier {
	return &Classifier{defs: defs}
}

// Classify scores text against every intent and returns the best match, or
// intent=unknown with confidence 0 when nothing scores.
func (c *Classifier) Classify(text string) models.IntentResult {
	normalized := Normalize(text)

	best := models.IntentResult{
		Intent:     models.IntentUnknown,
		Confidence: 0,
		RawText:    text,
	}

	if normalized == "" {
		return best
	}

	for _, def := range c.defs {
		score := scoreIntent(normalized, def)
		if score > best.Confidence {
			best.Intent = def.Intent
			best.Confidence = score
		}
	}

	return best
}

// scoreIntent returns the pattern score when any pattern matches, otherwise
// the keyword-overlap score.
func scoreIntent(text string, def Definition) float64 {
	for _, p := range def.Patterns {
		if p.MatchString(text) {
			return 0.8 + 0.2*def.Weight
		}
	}

	if len(def.Keywords) == 0 {
		return 0
	}

	matched := 0
	for _, kw := range def.Keywords {
		if strings.Contains(text, kw) {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}
	return 0.4 + 0.2*float64(matched)/float64(len(def.Keywords))
}

var punctuation = regexp.MustCompile(`[，。！？、；：""''（）,.!?;:'"()\s]+`)

// Normalize trims, lowercases, and strips punctuation and whitespace.
func Normalize(text string) string {
	return punctuation.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), "")
}
