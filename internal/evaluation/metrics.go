package evaluation

import (
	"sort"
)

// Precision calculates tp / (tp + fp).
func Precision(c Counts) float64 {
	if c.TP+c.FP == 0 {
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FP)
}

// Recall calculates tp / (tp + fn).
func Recall(c Counts) float64 {
	if c.TP+c.FN == 0 {
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FN)
}

// F1 is the harmonic mean of precision and recall.
func F1(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// NewScore derives a Score from c.
func NewScore(c Counts) Score {
	p, r := Precision(c), Recall(c)
	return Score{Counts: c, Precision: p, Recall: r, F1: F1(p, r)}
}

// ReciprocalRank returns 1/rank, or 0 when rank is 0.
func ReciprocalRank(rank int) float64 {
	if rank <= 0 {
		return 0
	}
	return 1.0 / float64(rank)
}

// Rank returns the 1-based position of label when cats is sorted by
// descending score, ties broken by name. It returns 0 if label is absent.
func Rank(cats map[string]float64, label string) int {
	if _, ok := cats[label]; !ok {
		return 0
	}
	names := make([]string, 0, len(cats))
	for name := range cats {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if cats[names[i]] != cats[names[j]] {
			return cats[names[i]] > cats[names[j]]
		}
		return names[i] < names[j]
	})
	for i, name := range names {
		if name == label {
			return i + 1
		}
	}
	return 0
}

type span struct {
	label      string
	start, end int
}

// matchSpans counts exact label and offset matches between predicted and
// expected spans.
func matchSpans(predicted, expected []span) Counts {
	remaining := make(map[span]int, len(expected))
	for _, s := range expected {
		remaining[s]++
	}

	var c Counts
	for _, s := range predicted {
		if remaining[s] > 0 {
			remaining[s]--
			c.TP++
		} else {
			c.FP++
		}
	}
	for _, n := range remaining {
		c.FN += n
	}
	return c
}
