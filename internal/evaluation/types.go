package evaluation

// Counts holds true positive, false positive and false negative counts.
type Counts struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	FN int `json:"fn"`
}

// Add accumulates o into c.
func (c *Counts) Add(o Counts) {
	c.TP += o.TP
	c.FP += o.FP
	c.FN += o.FN
}

// Score is precision, recall and F1 derived from Counts.
type Score struct {
	Counts
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// IntentScore is the score of a single intent label.
type IntentScore struct {
	Intent  string `json:"intent"`
	Support int    `json:"support"` // labelled utterances with this intent
	Score
}

// UtteranceResult contains the outcome for a single labelled utterance.
type UtteranceResult struct {
	Text      string `json:"text"`
	Expected  string `json:"expected"`
	Predicted string `json:"predicted"`
	Rank      int    `json:"rank"` // 1-based rank of Expected in cats, 0 if absent
	Correct   bool   `json:"correct"`
	Entities  Counts `json:"entities"`
}

// Failed reports whether the intent or any entity span was wrong.
func (r *UtteranceResult) Failed() bool {
	return !r.Correct || r.Entities.FP > 0 || r.Entities.FN > 0
}

// Summary aggregates results across utterances.
type Summary struct {
	Utterances int               `json:"utterances"`
	Accuracy   float64           `json:"accuracy"`
	MRR        float64           `json:"mrr"`
	Intents    []IntentScore     `json:"intents"`
	Entities   Score             `json:"entities"`
	Failures   []UtteranceResult `json:"failures,omitempty"`
}
