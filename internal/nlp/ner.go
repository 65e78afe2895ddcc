package nlp

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// Entity is a recognized span. It marshals as the [label, text] pair the
// HTTP API returns; use Detail for offsets.
type Entity struct {
	Label string
	Text  string
	Start int
	End   int
}

// EntityDetail is the JSON object form of Entity.
type EntityDetail struct {
	Label string `json:"label"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Detail returns e with offsets.
func (e Entity) Detail() EntityDetail {
	return EntityDetail{Label: e.Label, Text: e.Text, Start: e.Start, End: e.End}
}

// MarshalJSON encodes e as [label, text].
func (e Entity) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{e.Label, e.Text})
}

// UnmarshalJSON decodes a [label, text] pair. Offsets are lost.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("entity must be a [label, text] pair, got %d elements", len(pair))
	}
	e.Label, e.Text = pair[0], pair[1]
	return nil
}

// Phrase is a gazetteer entry: a token norm sequence and the label it maps
// to. Count is the number of training examples that produced it.
type Phrase struct {
	Tokens []string `json:"tokens"`
	Label  string   `json:"label"`
	Count  int      `json:"count"`
}

// Pattern is a regular expression entity.
type Pattern struct {
	Label   string `json:"label"`
	Pattern string `json:"pattern"`
}

// EntityRecognizer finds entities with a phrase gazetteer and regular
// expressions. Phrases match on token norms, longest first, leftmost
// winning; patterns then claim spans no phrase covered.
type EntityRecognizer struct {
	Labels   []string  `json:"labels"`
	Phrases  []Phrase  `json:"phrases"`
	Patterns []Pattern `json:"patterns"`

	once     sync.Once
	byFirst  map[string][]Phrase
	compiled []compiledPattern
	err      error
}

type compiledPattern struct {
	label string
	re    *regexp.Regexp
}

// NewEntityRecognizer creates an empty recognizer for labels.
func NewEntityRecognizer(labels []string) *EntityRecognizer {
	sorted := append([]string(nil), labels...)
	sort.Strings(sorted)
	return &EntityRecognizer{Labels: sorted}
}

// AddPhrase records one occurrence of tokens labelled as label.
func (r *EntityRecognizer) AddPhrase(label string, tokens []string) {
	if len(tokens) == 0 || label == "" {
		return
	}
	for i := range r.Phrases {
		p := &r.Phrases[i]
		if p.Label == label && slices.Equal(p.Tokens, tokens) {
			p.Count++
			return
		}
	}
	r.Phrases = append(r.Phrases, Phrase{
		Tokens: append([]string(nil), tokens...),
		Label:  label,
		Count:  1,
	})
	r.addLabel(label)
}

// AddPattern adds a regular expression entity. The pattern must compile.
func (r *EntityRecognizer) AddPattern(label, pattern string) error {
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("regex entity %q: %w", label, err)
	}
	r.Patterns = append(r.Patterns, Pattern{Label: label, Pattern: pattern})
	r.addLabel(label)
	return nil
}

func (r *EntityRecognizer) addLabel(label string) {
	i := sort.SearchStrings(r.Labels, label)
	if i < len(r.Labels) && r.Labels[i] == label {
		return
	}
	r.Labels = append(r.Labels, "")
	copy(r.Labels[i+1:], r.Labels[i:])
	r.Labels[i] = label
}

// Check compiles the recognizer and reports the first invalid phrase or
// pattern.
func (r *EntityRecognizer) Check() error {
	r.once.Do(r.prepare)
	return r.err
}

func (r *EntityRecognizer) prepare() {
	// Resolve conflicting labels for the same token sequence by majority.
	best := make(map[string]Phrase, len(r.Phrases))
	for i, p := range r.Phrases {
		if len(p.Tokens) == 0 {
			if r.err == nil {
				r.err = fmt.Errorf("phrase %d for %q has no tokens", i, p.Label)
			}
			continue
		}
		key := strings.Join(p.Tokens, "\x00")
		cur, ok := best[key]
		if !ok || p.Count > cur.Count || (p.Count == cur.Count && p.Label < cur.Label) {
			best[key] = p
		}
	}

	r.byFirst = make(map[string][]Phrase, len(best))
	for _, p := range best {
		r.byFirst[p.Tokens[0]] = append(r.byFirst[p.Tokens[0]], p)
	}
	for _, ps := range r.byFirst {
		sort.Slice(ps, func(i, j int) bool {
			if len(ps[i].Tokens) != len(ps[j].Tokens) {
				return len(ps[i].Tokens) > len(ps[j].Tokens)
			}
			return strings.Join(ps[i].Tokens, " ") < strings.Join(ps[j].Tokens, " ")
		})
	}

	r.compiled = make([]compiledPattern, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			if r.err == nil {
				r.err = fmt.Errorf("regex entity %q: %w", p.Label, err)
			}
			continue
		}
		r.compiled = append(r.compiled, compiledPattern{label: p.Label, re: re})
	}
}

// Recognize returns the entities in text, sorted by start offset. tokens
// must come from Tokenize(text).
func (r *EntityRecognizer) Recognize(text string, tokens []Token) []Entity {
	r.once.Do(r.prepare)

	runes := []rune(text)
	var ents []Entity

	for i := 0; i < len(tokens); {
		matched := 0
		for _, p := range r.byFirst[tokens[i].Norm] {
			n := len(p.Tokens)
			if i+n > len(tokens) {
				continue
			}
			if slices.Equal(p.Tokens, Norms(tokens[i:i+n])) {
				start, end := tokens[i].Start, tokens[i+n-1].End
				ents = append(ents, Entity{
					Label: p.Label,
					Text:  string(runes[start:end]),
					Start: start,
					End:   end,
				})
				matched = n
				break
			}
		}
		if matched > 0 {
			i += matched
		} else {
			i++
		}
	}

	for _, p := range r.compiled {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if loc[0] == loc[1] {
				continue
			}
			start := utf8.RuneCountInString(text[:loc[0]])
			end := start + utf8.RuneCountInString(text[loc[0]:loc[1]])
			if overlaps(ents, start, end) {
				continue
			}
			ents = append(ents, Entity{
				Label: p.label,
				Text:  text[loc[0]:loc[1]],
				Start: start,
				End:   end,
			})
		}
	}

	sort.SliceStable(ents, func(i, j int) bool { return ents[i].Start < ents[j].Start })
	return ents
}

func overlaps(ents []Entity, start, end int) bool {
	for _, e := range ents {
		if start < e.End && e.Start < end {
			return true
		}
	}
	return false
}
