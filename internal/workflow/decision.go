package workflow

import (
	"strings"
	"unicode"
)

// Decision is the user's answer to an adverse-conditions prompt.
type Decision int

const (
	DecisionUnknown Decision = iota
	DecisionProceed
	DecisionReschedule
	DecisionCancel
)

func (d Decision) String() string {
	switch d {
	case DecisionProceed:
		return "proceed"
	case DecisionReschedule:
		return "reschedule"
	case DecisionCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Keyword sets are checked in precedence order, so a mixed reply like
// "no, reschedule" is a cancel.
var decisionKeywords = []struct {
	decision Decision
	words    []string
}{
	{DecisionCancel, []string{"cancel", "no", "nope", "don't", "dont", "skip", "3"}},
	{DecisionReschedule, []string{"reschedule", "different", "later", "change", "2"}},
	{DecisionProceed, []string{"proceed", "yes", "anyway", "continue", "1"}},
}

// ClassifyDecision matches reply words against the keyword sets, ignoring
// case. Keywords of six letters or more also match as prefixes, so
// "cancelled" and "rescheduling" count.
func ClassifyDecision(reply string) Decision {
	reply = strings.ReplaceAll(strings.ToLower(reply), "’", "'")
	words := strings.FieldsFunc(reply, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	for i, w := range words {
		words[i] = strings.Trim(w, "'")
	}
	for _, set := range decisionKeywords {
		for _, kw := range set.words {
			for _, w := range words {
				if w == kw || (len(kw) >= 6 && strings.HasPrefix(w, kw)) {
					return set.decision
				}
			}
		}
	}
	return DecisionUnknown
}
