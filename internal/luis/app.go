// Package luis models the LUIS application JSON produced by `bf luis:convert`.
package luis

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf16"

	apperrors "github.com/luserve/luserve/internal/pkg/errors"
)

// App is a LUIS application document. Only the sections the trainer
// consumes are decoded; everything else is ignored.
type App struct {
	Name          string        `json:"name"`
	VersionID     string        `json:"versionId"`
	Desc          string        `json:"desc,omitempty"`
	Culture       string        `json:"culture"`
	Intents       []Intent      `json:"intents"`
	Entities      []Entity      `json:"entities"`
	ClosedLists   []ClosedList  `json:"closedLists"`
	RegexEntities []RegexEntity `json:"regex_entities"`
	Utterances    []Utterance   `json:"utterances"`
}

// Intent is a declared intent.
type Intent struct {
	Name string `json:"name"`
}

// Entity is a declared machine-learned entity.
type Entity struct {
	Name  string   `json:"name"`
	Roles []string `json:"roles,omitempty"`
}

// ClosedList is a list entity: canonical forms with their synonyms.
type ClosedList struct {
	Name     string    `json:"name"`
	SubLists []SubList `json:"subLists"`
	Roles    []string  `json:"roles,omitempty"`
}

// SubList is one canonical form of a closed list.
type SubList struct {
	CanonicalForm string   `json:"canonicalForm"`
	List          []string `json:"list"`
}

// RegexEntity matches a regular expression.
type RegexEntity struct {
	Name         string   `json:"name"`
	RegexPattern string   `json:"regexPattern"`
	Roles        []string `json:"roles,omitempty"`
}

// Utterance is a labelled example.
type Utterance struct {
	Text     string        `json:"text"`
	Intent   string        `json:"intent"`
	Entities []EntityLabel `json:"entities"`
}

// EntityLabel marks an entity span inside an utterance. Positions are
// UTF-16 code unit offsets, as written by bf luis:convert, and EndPos is
// inclusive.
type EntityLabel struct {
	Entity   string `json:"entity"`
	StartPos int    `json:"startPos"`
	EndPos   int    `json:"endPos"`
	Role     string `json:"role,omitempty"`
}

// Runes converts the label to rune offsets in text with an exclusive end.
// A position inside a surrogate pair selects the whole rune. ok is false
// when the label lies outside text.
func (l EntityLabel) Runes(text string) (start, end int, ok bool) {
	if l.StartPos < 0 || l.EndPos < l.StartPos {
		return 0, 0, false
	}
	start, end = -1, -1
	unit := 0
	i := 0
	for _, r := range text {
		w := utf16.RuneLen(r)
		if w < 1 {
			w = 1
		}
		next := unit + w
		if start < 0 && l.StartPos < next {
			start = i
		}
		if l.EndPos < next {
			end = i + 1
			break
		}
		unit = next
		i++
	}
	if start < 0 || end < 0 {
		return 0, 0, false
	}
	return start, end, true
}

// Span returns the labelled substring of text, or "" when the label lies
// outside it.
func (l EntityLabel) Span(text string) string {
	start, end, ok := l.Runes(text)
	if !ok {
		return ""
	}
	return string([]rune(text)[start:end])
}

// Parse decodes a LUIS application document.
func Parse(data []byte) (*App, error) {
	var app App
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidRequest, "malformed LUIS application", err)
	}
	return &app, nil
}

// Load reads and decodes a LUIS application file.
func Load(path string) (*App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NotFoundError(path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	app, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return app, nil
}

// Validate checks that utterances reference declared intents and that
// entity labels fall inside their utterance.
func (a *App) Validate() error {
	var errs []string

	intents := make(map[string]bool, len(a.Intents))
	for _, in := range a.Intents {
		if strings.TrimSpace(in.Name) == "" {
			errs = append(errs, "intent with empty name")
			continue
		}
		intents[in.Name] = true
	}

	for i, u := range a.Utterances {
		if !intents[u.Intent] {
			errs = append(errs, fmt.Sprintf("utterance %d: undeclared intent %q", i, u.Intent))
		}
		for _, l := range u.Entities {
			if _, _, ok := l.Runes(u.Text); !ok {
				errs = append(errs, fmt.Sprintf("utterance %d: entity %q span [%d,%d] outside text of length %d",
					i, l.Entity, l.StartPos, l.EndPos, len(utf16.Encode([]rune(u.Text)))))
			}
		}
	}

	if len(errs) > 0 {
		return apperrors.ValidationError("invalid LUIS application:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// IntentNames returns the sorted, de-duplicated intent names.
func (a *App) IntentNames() []string {
	names := make([]string, 0, len(a.Intents))
	for _, in := range a.Intents {
		names = append(names, in.Name)
	}
	return uniqueSorted(names)
}

// EntityNames returns the sorted, de-duplicated names of every entity kind
// the app declares: machine-learned, closed list, and regex.
func (a *App) EntityNames() []string {
	var names []string
	for _, e := range a.Entities {
		names = append(names, e.Name)
	}
	for _, l := range a.ClosedLists {
		names = append(names, l.Name)
	}
	for _, r := range a.RegexEntities {
		names = append(names, r.Name)
	}
	return uniqueSorted(names)
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
