package reconciliation

import (
	"strings"
	"time"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Score weights. They sum to 1 so the result stays in [0,1].
const (
	amountWeight    = 0.40
	dateWeight      = 0.30
	referenceWeight = 0.30
)

// Score rates how well a journal entry matches a bank transaction. It is
// a pure function: 40% exact amount, 30% date proximity with linear decay
// over the window, 30% reference token overlap.
func Score(tx BankTransaction, entry CandidateEntry, windowDays int) float64 {
	score := 0.0
	if tx.Amount.Equal(entry.Amount) {
		score += amountWeight
	}
	score += dateWeight * dateProximity(daysBetween(tx.Date, entry.Date), windowDays)
	score += referenceWeight * tokenOverlap(tx.Reference, entry.Memo)
	return score
}

// daysBetween counts calendar days, not 24h spans, so timestamps with
// clock times or zone offsets (DST shifts included) still land on the
// day difference a statement reader would expect.
func daysBetween(a, b time.Time) int {
	diff := int(civilDay(a) - civilDay(b))
	if diff < 0 {
		diff = -diff
	}
	return diff
}

func civilDay(t time.Time) int64 {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Unix() / (24 * 60 * 60)
}

func dateProximity(days, windowDays int) float64 {
	if windowDays <= 0 || days > windowDays {
		return 0
	}
	return 1 - float64(days)/float64(windowDays)
}

// tokenOverlap is the Jaccard index over normalized tokens. Token equality
// tolerates a single-character edit on tokens of four or more runes, so
// typos in bank references still count.
func tokenOverlap(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	matched := make([]bool, len(tb))
	intersection := 0
	for _, tok := range ta {
		for j, other := range tb {
			if matched[j] {
				continue
			}
			if tokensEqual(tok, other) {
				matched[j] = true
				intersection++
				break
			}
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

func tokensEqual(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) < 4 || len(b) < 4 {
		return false
	}
	return levenshtein.ComputeDistance(a, b) <= 1
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}
