package nlp

import (
	"math"
	"sort"
	"sync"
)

// DefaultAlpha is the Laplace smoothing constant.
const DefaultAlpha = 1.0

// TextCategorizer is a multinomial naive Bayes classifier over token norms.
// It is trained with Update and is read-only once Predict has been called.
type TextCategorizer struct {
	Labels      []string                  `json:"labels"`
	Alpha       float64                   `json:"alpha"`
	DocCounts   map[string]int            `json:"doc_counts"`
	TokenCounts map[string]map[string]int `json:"token_counts"`

	once   sync.Once
	vocab  map[string]struct{}
	totals map[string]int
	docs   int
}

// NewTextCategorizer creates an untrained categorizer for labels.
func NewTextCategorizer(labels []string, alpha float64) *TextCategorizer {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)

	c := &TextCategorizer{
		Labels:      sorted,
		Alpha:       alpha,
		DocCounts:   make(map[string]int, len(labels)),
		TokenCounts: make(map[string]map[string]int, len(labels)),
	}
	for _, l := range sorted {
		c.DocCounts[l] = 0
		c.TokenCounts[l] = make(map[string]int)
	}
	return c
}

// Update adds one training example. Labels not passed to the constructor
// are added on first use.
func (c *TextCategorizer) Update(tokens []Token, label string) {
	if _, ok := c.TokenCounts[label]; !ok {
		c.Labels = append(c.Labels, label)
		sort.Strings(c.Labels)
		c.TokenCounts[label] = make(map[string]int)
	}
	c.DocCounts[label]++
	counts := c.TokenCounts[label]
	for _, t := range tokens {
		counts[t.Norm]++
	}
}

func (c *TextCategorizer) prepare() {
	if c.Alpha <= 0 {
		c.Alpha = DefaultAlpha
	}
	c.vocab = make(map[string]struct{})
	c.totals = make(map[string]int, len(c.Labels))
	c.docs = 0
	for _, l := range c.Labels {
		c.docs += c.DocCounts[l]
		for tok, n := range c.TokenCounts[l] {
			c.vocab[tok] = struct{}{}
			c.totals[l] += n
		}
	}
}

// VocabSize returns the number of distinct token norms seen in training.
func (c *TextCategorizer) VocabSize() int {
	c.once.Do(c.prepare)
	return len(c.vocab)
}

// Predict returns a score for every label. Scores are posterior
// probabilities and sum to 1. Tokens outside the vocabulary are ignored.
func (c *TextCategorizer) Predict(tokens []Token) map[string]float64 {
	c.once.Do(c.prepare)

	scores := make(map[string]float64, len(c.Labels))
	if len(c.Labels) == 0 {
		return scores
	}

	k := float64(len(c.Labels))
	v := float64(len(c.vocab))
	logs := make([]float64, len(c.Labels))
	maxLog := math.Inf(-1)

	for i, l := range c.Labels {
		lp := math.Log((float64(c.DocCounts[l]) + c.Alpha) / (float64(c.docs) + c.Alpha*k))
		denom := float64(c.totals[l]) + c.Alpha*v
		counts := c.TokenCounts[l]
		for _, t := range tokens {
			if _, known := c.vocab[t.Norm]; !known {
				continue
			}
			lp += math.Log((float64(counts[t.Norm]) + c.Alpha) / denom)
		}
		logs[i] = lp
		if lp > maxLog {
			maxLog = lp
		}
	}

	var sum float64
	for i := range logs {
		logs[i] = math.Exp(logs[i] - maxLog)
		sum += logs[i]
	}
	for i, l := range c.Labels {
		scores[l] = logs[i] / sum
	}
	return scores
}

// Best returns the highest scoring label. Ties go to the label that sorts
// first.
func Best(cats map[string]float64) (string, float64) {
	labels := make([]string, 0, len(cats))
	for l := range cats {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	best, score := "", -1.0
	for _, l := range labels {
		if cats[l] > score {
			best, score = l, cats[l]
		}
	}
	if best == "" {
		return "", 0
	}
	return best, score
}
