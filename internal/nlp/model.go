package nlp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	apperrors "github.com/luserve/luserve/internal/pkg/errors"
	"github.com/luserve/luserve/internal/pkg/hash"
)

// Pipeline component names. Each is stored as <name>.json in the model
// directory.
const (
	ComponentTextcat = "textcat"
	ComponentNER     = "ner"
)

// MetaFile is the model descriptor file name.
const MetaFile = "meta.json"

// Meta describes a model artifact.
type Meta struct {
	Name        string              `json:"name"`
	Version     string              `json:"version"`
	Lang        string              `json:"lang"`
	Description string              `json:"description,omitempty"`
	Source      string              `json:"source,omitempty"`
	Pipeline    []string            `json:"pipeline"`
	Labels      map[string][]string `json:"labels"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Doc is the result of running a model over a text.
type Doc struct {
	Text   string
	Tokens []Token
	Cats   map[string]float64
	Ents   []Entity
}

// Model is a loaded pipeline. Both components are optional. A Model must
// not be modified once Process has been called.
type Model struct {
	Meta Meta

	textcat *TextCategorizer
	ner     *EntityRecognizer
}

// NewModel creates an empty model.
func NewModel(meta Meta) *Model {
	if meta.Labels == nil {
		meta.Labels = make(map[string][]string)
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	meta.Pipeline = nil
	return &Model{Meta: meta}
}

// SetCategorizer attaches a text categorizer.
func (m *Model) SetCategorizer(c *TextCategorizer) {
	m.textcat = c
	m.syncMeta()
}

// SetRecognizer attaches an entity recognizer.
func (m *Model) SetRecognizer(r *EntityRecognizer) {
	m.ner = r
	m.syncMeta()
}

// Categorizer returns the text categorizer, or nil.
func (m *Model) Categorizer() *TextCategorizer { return m.textcat }

// Recognizer returns the entity recognizer, or nil.
func (m *Model) Recognizer() *EntityRecognizer { return m.ner }

// HasComponent reports whether the named component is in the pipeline.
func (m *Model) HasComponent(name string) bool {
	switch name {
	case ComponentTextcat:
		return m.textcat != nil
	case ComponentNER:
		return m.ner != nil
	}
	return false
}

func (m *Model) syncMeta() {
	m.Meta.Pipeline = m.Meta.Pipeline[:0]
	if m.Meta.Labels == nil {
		m.Meta.Labels = make(map[string][]string)
	}
	delete(m.Meta.Labels, ComponentTextcat)
	delete(m.Meta.Labels, ComponentNER)

	if m.textcat != nil {
		m.Meta.Pipeline = append(m.Meta.Pipeline, ComponentTextcat)
		m.Meta.Labels[ComponentTextcat] = append([]string(nil), m.textcat.Labels...)
	}
	if m.ner != nil {
		m.Meta.Pipeline = append(m.Meta.Pipeline, ComponentNER)
		m.Meta.Labels[ComponentNER] = append([]string(nil), m.ner.Labels...)
	}
}

// Fingerprint identifies this particular build of the model.
func (m *Model) Fingerprint() string {
	return hash.ShortKey(16, m.Meta.Name, m.Meta.Version, strconv.FormatInt(m.Meta.CreatedAt.UnixNano(), 10))
}

// Process runs the pipeline over text. Components that are absent leave
// their part of the Doc empty.
func (m *Model) Process(text string) *Doc {
	doc := &Doc{
		Text:   text,
		Tokens: Tokenize(text),
		Cats:   map[string]float64{},
		Ents:   []Entity{},
	}
	if m.textcat != nil {
		doc.Cats = m.textcat.Predict(doc.Tokens)
	}
	if m.ner != nil {
		doc.Ents = m.ner.Recognize(text, doc.Tokens)
	}
	return doc
}

// Load reads a model directory.
func Load(dir string) (*Model, error) {
	var meta Meta
	if err := readJSON(filepath.Join(dir, MetaFile), &meta); err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.ModelError(fmt.Sprintf("no %s in %s", MetaFile, dir), err)
		}
		return nil, apperrors.ModelError(fmt.Sprintf("reading %s", MetaFile), err)
	}
	if len(meta.Pipeline) == 0 {
		return nil, apperrors.ModelError(fmt.Sprintf("model %s has an empty pipeline", dir), nil)
	}

	m := &Model{Meta: meta}
	for _, name := range meta.Pipeline {
		path := filepath.Join(dir, name+".json")
		switch name {
		case ComponentTextcat:
			c := &TextCategorizer{}
			if err := readJSON(path, c); err != nil {
				return nil, apperrors.ModelError(fmt.Sprintf("loading component %s", name), err)
			}
			if c.DocCounts == nil || c.TokenCounts == nil {
				return nil, apperrors.ModelError(fmt.Sprintf("component %s is incomplete", name), nil)
			}
			m.textcat = c
		case ComponentNER:
			r := &EntityRecognizer{}
			if err := readJSON(path, r); err != nil {
				return nil, apperrors.ModelError(fmt.Sprintf("loading component %s", name), err)
			}
			if err := r.Check(); err != nil {
				return nil, apperrors.ModelError(fmt.Sprintf("component %s is invalid", name), err)
			}
			m.ner = r
		default:
			return nil, apperrors.ModelError(fmt.Sprintf("unknown pipeline component %q", name), nil)
		}
	}

	return m, nil
}

// Save writes the model to dir, creating it if needed. Component files are
// written before meta.json so a partially written directory never loads.
func (m *Model) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}
	m.syncMeta()

	if m.textcat != nil {
		if err := writeJSON(filepath.Join(dir, ComponentTextcat+".json"), m.textcat); err != nil {
			return err
		}
	}
	if m.ner != nil {
		if err := writeJSON(filepath.Join(dir, ComponentNER+".json"), m.ner); err != nil {
			return err
		}
	}
	return writeJSON(filepath.Join(dir, MetaFile), m.Meta)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
