package sentiment

import "strings"

// Label buckets a score into positive / neutral / negative.
type Label string

const (
	LabelPositive Label = "positive"
	LabelNeutral  Label = "neutral"
	LabelNegative Label = "negative"
)

// NeutralScore is returned for text containing no sentiment keywords.
const NeutralScore = 0.5

var positiveWords = map[string]struct{}{
	"love": {}, "great": {}, "awesome": {}, "amazing": {}, "good": {},
	"excellent": {}, "fantastic": {}, "perfect": {}, "beautiful": {},
	"wonderful": {}, "best": {}, "nice": {}, "happy": {}, "thanks": {},
	"thank": {}, "cool": {}, "wow": {}, "stunning": {}, "incredible": {},
}

var negativeWords = map[string]struct{}{
	"hate": {}, "bad": {}, "terrible": {}, "awful": {}, "horrible": {},
	"worst": {}, "poor": {}, "disappointing": {}, "disappointed": {},
	"ugly": {}, "broken": {}, "scam": {}, "fake": {}, "annoying": {},
	"useless": {}, "waste": {}, "refund": {}, "angry": {}, "never": {},
}

// Score computes a bag-of-words sentiment score in [0,1]:
// positives/(positives+negatives), or NeutralScore when the text contains no
// sentiment keywords. Deterministic and stateless.
func Score(text string) float64 {
	var pos, neg int
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:'\"()[]#@")
		if w == "" {
			continue
		}
		if _, ok := positiveWords[w]; ok {
			pos++
			continue
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	if pos+neg == 0 {
		return NeutralScore
	}
	return float64(pos) / float64(pos+neg)
}

// LabelFor buckets a score: >=0.6 positive, >=0.4 neutral, else negative.
func LabelFor(score float64) Label {
	switch {
	case score >= 0.6:
		return LabelPositive
	case score >= 0.4:
		return LabelNeutral
	default:
		return LabelNegative
	}
}

// Analyze scores text and returns both the score and its label.
func Analyze(text string) (float64, Label) {
	s := Score(text)
	return s, LabelFor(s)
}
