package nlp

import (
	"fmt"
	"strings"

	"github.com/luserve/luserve/internal/luis"
	apperrors "github.com/luserve/luserve/internal/pkg/errors"
)

// TrainOptions controls Train.
type TrainOptions struct {
	Name        string
	Version     string
	Description string
	Alpha       float64
	// Components to build. Empty means both textcat and ner.
	Components []string
}

// TrainCategorizer builds a categorizer from the app's utterances. Every
// declared intent becomes a label, even without examples.
func TrainCategorizer(app *luis.App, alpha float64) *TextCategorizer {
	c := NewTextCategorizer(app.IntentNames(), alpha)
	for _, u := range app.Utterances {
		c.Update(Tokenize(u.Text), u.Intent)
	}
	return c
}

// TrainRecognizer builds a recognizer from labelled spans, closed lists, and
// regex entities. Invalid regex patterns are collected into one
// validation error.
func TrainRecognizer(app *luis.App) (*EntityRecognizer, error) {
	r := NewEntityRecognizer(app.EntityNames())

	for _, u := range app.Utterances {
		for _, l := range u.Entities {
			span := l.Span(u.Text)
			if strings.TrimSpace(span) == "" {
				continue
			}
			r.AddPhrase(l.Entity, Norms(Tokenize(span)))
		}
	}

	for _, list := range app.ClosedLists {
		for _, sub := range list.SubLists {
			r.AddPhrase(list.Name, Norms(Tokenize(sub.CanonicalForm)))
			for _, syn := range sub.List {
				r.AddPhrase(list.Name, Norms(Tokenize(syn)))
			}
		}
	}

	var errs []string
	for _, re := range app.RegexEntities {
		if err := r.AddPattern(re.Name, re.RegexPattern); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return nil, apperrors.ValidationError("invalid regex entities:\n  - " + strings.Join(errs, "\n  - "))
	}

	return r, r.Check()
}

// Train validates app and builds a model with the requested components.
func Train(app *luis.App, opts TrainOptions) (*Model, error) {
	if err := app.Validate(); err != nil {
		return nil, err
	}

	components := opts.Components
	if len(components) == 0 {
		components = []string{ComponentTextcat, ComponentNER}
	}

	name := opts.Name
	if name == "" {
		name = app.Name
	}
	version := opts.Version
	if version == "" {
		version = app.VersionID
	}

	m := NewModel(Meta{
		Name:        name,
		Version:     version,
		Lang:        langOf(app.Culture),
		Description: opts.Description,
		Source:      app.Name,
	})

	for _, c := range components {
		switch c {
		case ComponentTextcat:
			m.SetCategorizer(TrainCategorizer(app, opts.Alpha))
		case ComponentNER:
			r, err := TrainRecognizer(app)
			if err != nil {
				return nil, err
			}
			m.SetRecognizer(r)
		default:
			return nil, apperrors.ValidationError(fmt.Sprintf("unknown pipeline component %q", c))
		}
	}

	return m, nil
}

// langOf maps a LUIS culture ("en-us") to a language code ("en").
func langOf(culture string) string {
	lang, _, _ := strings.Cut(strings.ToLower(culture), "-")
	if lang == "" {
		return "en"
	}
	return lang
}
