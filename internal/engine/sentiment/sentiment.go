// Package sentiment provides a lexicon-based sentiment pass over ticket
// text. It feeds the escalation notifier; classification never depends on
// it.
package sentiment

import "strings"

type Label string

const (
	Positive Label = "POSITIVE"
	Negative Label = "NEGATIVE"
	Neutral  Label = "NEUTRAL"
)

// Detector scores text against positive and negative word lists. The
// lexicons are data; callers may supply their own.
type Detector struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

var defaultPositive = []string{
	"thanks", "thank", "great", "good", "love", "awesome", "excellent",
	"happy", "pleased", "appreciate", "helpful", "perfect", "resolved",
}

var defaultNegative = []string{
	"angry", "furious", "terrible", "awful", "horrible", "worst", "scam",
	"unacceptable", "ridiculous", "disappointed", "frustrated", "useless",
	"broken", "never", "refund", "cancel", "complaint", "lawyer", "sue",
}

func NewDetector() *Detector {
	return NewDetectorWithLexicon(defaultPositive, defaultNegative)
}

func NewDetectorWithLexicon(positive, negative []string) *Detector {
	d := &Detector{
		positive: make(map[string]struct{}, len(positive)),
		negative: make(map[string]struct{}, len(negative)),
	}
	for _, w := range positive {
		d.positive[strings.ToLower(w)] = struct{}{}
	}
	for _, w := range negative {
		d.negative[strings.ToLower(w)] = struct{}{}
	}
	return d
}

// Detect returns NEUTRAL when the text is empty or the positive and
// negative scores tie.
func (d *Detector) Detect(text string) Label {
	if text == "" {
		return Neutral
	}

	pos, neg := 0, 0
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '\''
	}) {
		word = strings.Trim(word, "'")
		if _, ok := d.positive[word]; ok {
			pos++
		}
		if _, ok := d.negative[word]; ok {
			neg++
		}
	}

	switch {
	case neg > pos:
		return Negative
	case pos > neg:
		return Positive
	default:
		return Neutral
	}
}
