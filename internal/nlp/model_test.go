package nlp

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/luserve/luserve/internal/pkg/errors"
)

func TestModel_SaveLoad(t *testing.T) {
	m, err := Train(testApp(t), TrainOptions{})
	if err != nil {
		t.Fatal(err)
	}

	dir := filepath.Join(t.TempDir(), "output-category")
	if err := m.Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	for _, f := range []string{MetaFile, "textcat.json", "ner.json"} {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Fingerprint() != m.Fingerprint() {
		t.Errorf("fingerprint changed across save/load")
	}

	want := m.Process("remove almond milk")
	got := loaded.Process("remove almond milk")
	for label, s := range want.Cats {
		if got.Cats[label] != s {
			t.Errorf("cats[%s] = %f, want %f", label, got.Cats[label], s)
		}
	}
	if len(got.Ents) != len(want.Ents) {
		t.Errorf("ents = %+v, want %+v", got.Ents, want.Ents)
	}
}

func TestLoad_Errors(t *testing.T) {
	write := func(t *testing.T, dir, name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name  string
		setup func(t *testing.T, dir string)
	}{
		{
			name:  "no meta",
			setup: func(t *testing.T, dir string) {},
		},
		{
			name: "malformed meta",
			setup: func(t *testing.T, dir string) {
				write(t, dir, MetaFile, "{")
			},
		},
		{
			name: "empty pipeline",
			setup: func(t *testing.T, dir string) {
				write(t, dir, MetaFile, `{"name":"m","pipeline":[]}`)
			},
		},
		{
			name: "unknown component",
			setup: func(t *testing.T, dir string) {
				write(t, dir, MetaFile, `{"name":"m","pipeline":["parser"]}`)
			},
		},
		{
			name: "missing component file",
			setup: func(t *testing.T, dir string) {
				write(t, dir, MetaFile, `{"name":"m","pipeline":["textcat"]}`)
			},
		},
		{
			name: "incomplete textcat",
			setup: func(t *testing.T, dir string) {
				write(t, dir, MetaFile, `{"name":"m","pipeline":["textcat"]}`)
				write(t, dir, "textcat.json", `{"labels":["a"]}`)
			},
		},
		{
			name: "bad ner pattern",
			setup: func(t *testing.T, dir string) {
				write(t, dir, MetaFile, `{"name":"m","pipeline":["ner"]}`)
				write(t, dir, "ner.json", `{"patterns":[{"label":"X","pattern":"("}]}`)
			},
		},
		{
			name: "ner phrase without tokens",
			setup: func(t *testing.T, dir string) {
				write(t, dir, MetaFile, `{"name":"m","pipeline":["ner"]}`)
				write(t, dir, "ner.json", `{"phrases":[{"tokens":[],"label":"X"}]}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			tt.setup(t, dir)

			_, err := Load(dir)
			if err == nil {
				t.Fatal("expected error")
			}
			if apperrors.CodeOf(err) != apperrors.CodeModelError {
				t.Errorf("code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeModelError)
			}
		})
	}
}

func TestModel_ProcessWithoutComponents(t *testing.T) {
	m := NewModel(Meta{Name: "empty"})
	doc := m.Process("hi")
	if len(doc.Cats) != 0 || len(doc.Ents) != 0 || len(doc.Tokens) != 1 {
		t.Errorf("Process() = %+v", doc)
	}
	if m.Meta.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}
