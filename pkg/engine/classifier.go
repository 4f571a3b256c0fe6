package engine

import (
	"regexp"
	"strings"
)

// Explicit markers the goal message asks the agent to emit. Cheap to detect
// and unambiguous; the phrase heuristics below are the fallback.
const (
	CompletionMarker   = "~~~GOAL-ACHIEVED~~~"
	ContinuationMarker = "~~~CONTINUING~~~"
)

// Classifier inspects a turn's natural-language output for completion and
// continuation signals. It is a best-effort heuristic over free text, not a
// structured contract with the model, and is pluggable so a structured done
// signal can replace it without touching the loop.
type Classifier interface {
	// Completed reports whether the text declares the goal achieved.
	Completed(text string) bool
	// Continuing reports whether the text signals more work to come.
	Continuing(text string) bool
}

// markerClassifier is the default Classifier: explicit markers first, then
// completion/continuation phrase matching with a negation window.
type markerClassifier struct{}

// NewClassifier returns the default heuristic classifier.
func NewClassifier() Classifier { return markerClassifier{} }

var _ Classifier = markerClassifier{}

// completionRe matches goal/task/mission followed closely by a completion
// word, within one sentence.
var completionRe = regexp.MustCompile(`(?i)\b(goal|task|mission)\b[^.!?\n]{0,40}?\b(completed?|done|achieved|finished)\b`)

// negationRe matches negating language near a completion word.
var negationRe = regexp.MustCompile(`(?i)\bnot\b|n't\b|\bnever\b|\bincomplete\b|\bunfinished\b`)

// negationWindow is how many characters before the completion word are
// checked for a negation ("not yet complete", "hasn't finished").
const negationWindow = 10

func (markerClassifier) Completed(text string) bool {
	if strings.Contains(text, CompletionMarker) {
		return true
	}

	for _, loc := range completionRe.FindAllStringSubmatchIndex(text, -1) {
		// loc[4] is the start of the completion word submatch.
		wordStart := loc[4]
		windowStart := wordStart - negationWindow
		if windowStart < 0 {
			windowStart = 0
		}
		if !negationRe.MatchString(text[windowStart:wordStart]) {
			return true
		}
	}
	return false
}

var continuationPhrases = []string{
	"next step",
	"i'll",
	"continu",
	"proceed",
}

func (markerClassifier) Continuing(text string) bool {
	if strings.Contains(text, ContinuationMarker) {
		return true
	}
	lower := strings.ToLower(text)
	for _, p := range continuationPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
