package pipeline

import (
	"regexp"
	"sort"
	"strings"
)

// FallbackFunc picks a final answer when the synthesizer output cannot
// be parsed. It must be deterministic and must return one of the
// question's labels. The exact rule is configurable; SumOfProbabilities
// is the default.
type FallbackFunc func(q Question, consultations []Consultation) string

// SumOfProbabilities selects the option with the highest probability
// mass summed across all consultations, breaking ties by the lowest
// option label so repeated runs agree.
func SumOfProbabilities(q Question, consultations []Consultation) string {
	totals := make(map[string]float64, len(q.Options))
	for _, c := range consultations {
		for label, p := range c.Distribution {
			if q.HasLabel(label) {
				totals[label] += p
			}
		}
	}

	labels := q.Labels()
	sort.Strings(labels)
	best := labels[0]
	for _, label := range labels {
		if totals[label] > totals[best] {
			best = label
		}
	}
	return best
}

var answerLineRe = regexp.MustCompile(`(?im)^\s*\*{0,2}ANSWER\*{0,2}\s*:\s*\*{0,2}\s*([A-Za-z0-9]+)`)

// extractAnswer pulls an option label from free-text output. It prefers
// an explicit "ANSWER: X" line, then falls back to the first standalone
// option label found in the text.
func extractAnswer(text string, q Question) string {
	if m := answerLineRe.FindStringSubmatch(text); len(m) > 1 {
		candidate := strings.TrimSpace(m[1])
		if q.HasLabel(candidate) {
			return candidate
		}
	}
	for _, label := range q.Labels() {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(label) + `\b`)
		if re.MatchString(text) {
			return label
		}
	}
	return ""
}
