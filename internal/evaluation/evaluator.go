// Package evaluation scores trained models against labelled utterances.
package evaluation

import (
	"context"
	"sort"

	"github.com/luserve/luserve/internal/luis"
	"github.com/luserve/luserve/internal/recognizer"
)

// Recognizer runs the models over a query.
type Recognizer interface {
	Recognize(ctx context.Context, query string) (*recognizer.Result, error)
}

// Evaluator orchestrates model evaluation.
type Evaluator struct {
	rec Recognizer
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(rec Recognizer) *Evaluator {
	return &Evaluator{rec: rec}
}

// EvaluateUtterance recognizes u.Text and compares the result with its
// labels. Entity spans match on label and rune offsets; labels are
// converted from UTF-16 code units first.
func (e *Evaluator) EvaluateUtterance(ctx context.Context, u luis.Utterance) (*UtteranceResult, error) {
	res, err := e.rec.Recognize(ctx, u.Text)
	if err != nil {
		return nil, err
	}

	expected := make([]span, 0, len(u.Entities))
	for _, l := range u.Entities {
		// A label outside the text can never match, so it counts as missed.
		start, end, ok := l.Runes(u.Text)
		if !ok {
			start, end = -1, -1
		}
		expected = append(expected, span{label: l.Entity, start: start, end: end})
	}
	predicted := make([]span, 0, len(res.Ents))
	for _, d := range res.Ents {
		predicted = append(predicted, span{label: d.Label, start: d.Start, end: d.End})
	}

	return &UtteranceResult{
		Text:      u.Text,
		Expected:  u.Intent,
		Predicted: res.TopIntent,
		Rank:      Rank(res.Cats, u.Intent),
		Correct:   res.TopIntent == u.Intent,
		Entities:  matchSpans(predicted, expected),
	}, nil
}

// Evaluate runs every utterance of app and summarizes the results.
func (e *Evaluator) Evaluate(ctx context.Context, app *luis.App) (*Summary, error) {
	results := make([]*UtteranceResult, 0, len(app.Utterances))
	for _, u := range app.Utterances {
		r, err := e.EvaluateUtterance(ctx, u)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return e.Summarize(results), nil
}

// Summarize aggregates results across utterances.
func (e *Evaluator) Summarize(results []*UtteranceResult) *Summary {
	summary := &Summary{Utterances: len(results)}
	if len(results) == 0 {
		return summary
	}

	intents := make(map[string]*IntentScore)
	intent := func(name string) *IntentScore {
		s, ok := intents[name]
		if !ok {
			s = &IntentScore{Intent: name}
			intents[name] = s
		}
		return s
	}

	var correct int
	var entities Counts
	for _, r := range results {
		summary.MRR += ReciprocalRank(r.Rank)
		entities.Add(r.Entities)

		intent(r.Expected).Support++
		if r.Correct {
			correct++
			intent(r.Expected).TP++
		} else {
			intent(r.Expected).FN++
			if r.Predicted != "" {
				intent(r.Predicted).FP++
			}
		}

		if r.Failed() {
			summary.Failures = append(summary.Failures, *r)
		}
	}

	n := float64(len(results))
	summary.Accuracy = float64(correct) / n
	summary.MRR /= n
	summary.Entities = NewScore(entities)

	summary.Intents = make([]IntentScore, 0, len(intents))
	for _, s := range intents {
		s.Score = NewScore(s.Counts)
		summary.Intents = append(summary.Intents, *s)
	}
	sort.Slice(summary.Intents, func(i, j int) bool {
		return summary.Intents[i].Intent < summary.Intents[j].Intent
	})

	return summary
}
