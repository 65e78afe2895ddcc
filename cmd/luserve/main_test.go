package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/luserve/luserve/internal/bus"
	"github.com/luserve/luserve/internal/config"
	"github.com/luserve/luserve/internal/luconvert"
	"github.com/luserve/luserve/internal/pkg/logger"
	"github.com/luserve/luserve/internal/recognizer"
	"github.com/luserve/luserve/internal/server"
)

const todoApp = `{
  "name": "ToDoLuis",
  "versionId": "0.1",
  "culture": "en-us",
  "intents": [{"name": "AddItem"}, {"name": "DeleteItem"}, {"name": "None"}],
  "entities": [{"name": "Item"}],
  "utterances": [
    {"text": "add milk", "intent": "AddItem", "entities": [{"entity": "Item", "startPos": 4, "endPos": 7}]},
    {"text": "please add bread to my list", "intent": "AddItem", "entities": [{"entity": "Item", "startPos": 11, "endPos": 15}]},
    {"text": "remove eggs", "intent": "DeleteItem", "entities": [{"entity": "Item", "startPos": 7, "endPos": 10}]},
    {"text": "delete the bread", "intent": "DeleteItem", "entities": [{"entity": "Item", "startPos": 11, "endPos": 15}]},
    {"text": "hello there", "intent": "None", "entities": []}
  ]
}`

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetContext(context.Background())

	err := root.Execute()
	return out.String(), err
}

func writeApp(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ToDoLuis.json")
	if err := os.WriteFile(path, []byte(todoApp), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// fakeBF writes the sample app to the --out path like bf luis:convert.
type fakeBF struct {
	calls int
	fail  bool
}

func (f *fakeBF) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	f.calls++
	if f.fail {
		return nil, []byte("parse error"), errors.New("exit status 1")
	}
	for i, a := range args {
		if a == "--out" && i+1 < len(args) {
			return nil, nil, os.WriteFile(args[i+1], []byte(todoApp), 0o644)
		}
	}
	return nil, nil, errors.New("no --out argument")
}

func useFakeBF(t *testing.T, f *fakeBF) {
	t.Helper()
	prev := convertRunner
	convertRunner = f
	t.Cleanup(func() { convertRunner = prev })
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "luserve "+version) || !strings.Contains(out, "commit: "+commit) {
		t.Errorf("version output = %q", out)
	}
}

func TestTrainAndRecognize(t *testing.T) {
	dir := t.TempDir()
	catDir := filepath.Join(dir, "output-category")
	entDir := filepath.Join(dir, "output-entity")

	out, err := execute(t, "train", writeApp(t), "--category-out", catDir, "--entity-out", entDir, "--format", "json")
	if err != nil {
		t.Fatalf("train error = %v", err)
	}

	var trained struct {
		Models []trainedModel `json:"models"`
	}
	if err := json.Unmarshal([]byte(out), &trained); err != nil {
		t.Fatalf("train output is not JSON: %v\n%s", err, out)
	}
	if len(trained.Models) != 2 {
		t.Fatalf("trained %d models, want 2", len(trained.Models))
	}
	if p := trained.Models[0].Pipeline; len(p) != 1 || p[0] != "textcat" {
		t.Errorf("category pipeline = %v", p)
	}
	if p := trained.Models[1].Pipeline; len(p) != 1 || p[0] != "ner" {
		t.Errorf("entity pipeline = %v", p)
	}

	models := []string{"--category-model", catDir, "--entity-model", entDir}

	out, err = execute(t, append([]string{"recognize", "add", "milk", "--format", "json"}, models...)...)
	if err != nil {
		t.Fatalf("recognize error = %v", err)
	}
	var res struct {
		Cats map[string]float64 `json:"cats"`
		Ents [][]string         `json:"ents"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("recognize output is not JSON: %v\n%s", err, out)
	}
	if len(res.Cats) != 3 || res.Cats["AddItem"] <= res.Cats["DeleteItem"] {
		t.Errorf("cats = %v", res.Cats)
	}
	if len(res.Ents) != 1 || res.Ents[0][0] != "Item" || res.Ents[0][1] != "milk" {
		t.Errorf("ents = %v", res.Ents)
	}

	out, err = execute(t, append([]string{"recognize", "add milk", "--select", "$.ents[0][1]"}, models...)...)
	if err != nil {
		t.Fatalf("recognize --select error = %v", err)
	}
	if strings.TrimSpace(out) != "milk" {
		t.Errorf("selected = %q, want milk", out)
	}

	out, err = execute(t, append([]string{"recognize", "add milk", "--detailed", "--select", "$.top_intent"}, models...)...)
	if err != nil {
		t.Fatalf("recognize --detailed error = %v", err)
	}
	if strings.TrimSpace(out) != "AddItem" {
		t.Errorf("top_intent = %q", out)
	}
}

func TestTrainCombined(t *testing.T) {
	catDir := filepath.Join(t.TempDir(), "model")

	out, err := execute(t, "train", writeApp(t), "--category-out", catDir, "--combined", "--name", "todo")
	if err != nil {
		t.Fatalf("train error = %v", err)
	}
	if !strings.Contains(out, "textcat,ner") {
		t.Errorf("train output = %q", out)
	}

	out, err = execute(t, "recognize", "remove eggs", "--category-model", catDir, "--entity-model", "", "--select", "$.ents[0][1]")
	if err != nil {
		t.Fatalf("recognize error = %v", err)
	}
	if strings.TrimSpace(out) != "eggs" {
		t.Errorf("selected = %q, want eggs", out)
	}
}

func TestTrainFromLU(t *testing.T) {
	f := &fakeBF{}
	useFakeBF(t, f)

	dir := t.TempDir()
	lu := filepath.Join(dir, "ToDoLuis.lu")
	if err := os.WriteFile(lu, []byte("# AddItem\n- add milk\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "train", lu, "--category-out", filepath.Join(dir, "cat"), "--entity-out", "")
	if err != nil {
		t.Fatalf("train error = %v", err)
	}
	if f.calls != 1 {
		t.Errorf("bf calls = %d, want 1", f.calls)
	}
	if _, err := os.Stat(luconvert.OutputPath(lu)); err != nil {
		t.Errorf("converted JSON missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "cat", "meta.json")); err != nil {
		t.Errorf("category model missing: %v", err)
	}
}

func TestRecognize_URL(t *testing.T) {
	catDir := filepath.Join(t.TempDir(), "model")
	if _, err := execute(t, "train", writeApp(t), "--category-out", catDir, "--combined"); err != nil {
		t.Fatalf("train error = %v", err)
	}

	cfg := config.Default()
	cfg.Models.CategoryDir = catDir
	cfg.Models.EntityDir = ""
	svc := recognizer.NewService(cfg, logger.Discard())
	defer svc.Close()
	if err := svc.LoadModels(context.Background()); err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(server.New(cfg, svc, logger.Discard()).Handler())
	defer ts.Close()

	out, err := execute(t, "recognize", "add milk", "--url", ts.URL, "--detailed", "--format", "json")
	if err != nil {
		t.Fatalf("recognize --url error = %v", err)
	}
	var res struct {
		TopIntent string     `json:"top_intent"`
		Ents      [][]string `json:"ents"`
		Entities  []struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"entities"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("recognize output is not JSON: %v\n%s", err, out)
	}
	if res.TopIntent != "AddItem" {
		t.Errorf("top_intent = %q", res.TopIntent)
	}
	if len(res.Ents) != 1 || res.Ents[0][1] != "milk" {
		t.Errorf("ents = %v", res.Ents)
	}
	if len(res.Entities) != 1 || res.Entities[0].Start != 4 || res.Entities[0].End != 8 {
		t.Errorf("entities = %+v", res.Entities)
	}

	if _, err := execute(t, "recognize", "x", "--url", ts.URL, "--server", "auto"); err == nil {
		t.Error("expected error for --url with --server")
	}
}

func TestEvaluateCmd(t *testing.T) {
	app := writeApp(t)
	catDir := filepath.Join(t.TempDir(), "model")
	if _, err := execute(t, "train", app, "--category-out", catDir, "--combined"); err != nil {
		t.Fatalf("train error = %v", err)
	}
	models := []string{"--category-model", catDir, "--entity-model", ""}

	out, err := execute(t, append([]string{"evaluate", app, "--format", "json"}, models...)...)
	if err != nil {
		t.Fatalf("evaluate error = %v", err)
	}
	var summary struct {
		Utterances int     `json:"utterances"`
		Accuracy   float64 `json:"accuracy"`
		Intents    []struct {
			Intent string `json:"intent"`
		} `json:"intents"`
	}
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("evaluate output is not JSON: %v\n%s", err, out)
	}
	if summary.Utterances != 5 || len(summary.Intents) != 3 {
		t.Errorf("summary = %+v", summary)
	}

	out, err = execute(t, append([]string{"evaluate", app}, models...)...)
	if err != nil {
		t.Fatalf("evaluate text error = %v", err)
	}
	if !strings.Contains(out, "utterances: 5") || !strings.Contains(out, "INTENT") {
		t.Errorf("evaluate text output = %q", out)
	}

	if _, err := execute(t, append([]string{"evaluate", app, "--min-accuracy", "1.5"}, models...)...); err == nil {
		t.Error("expected error when accuracy is below --min-accuracy")
	}
}

func TestRecognize_Errors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	if _, err := execute(t, "recognize", "add milk", "--category-model", missing); err == nil {
		t.Error("expected error for missing model")
	}

	if _, err := execute(t, "recognize"); err == nil {
		t.Error("expected error without a query")
	}

	if _, err := execute(t, "recognize", "x", "--format", "yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestConvertCmd(t *testing.T) {
	f := &fakeBF{}
	useFakeBF(t, f)

	dir := t.TempDir()
	lu := filepath.Join(dir, "ToDoLuis.lu")
	if err := os.WriteFile(lu, []byte("# AddItem\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out", "app.json")

	text, err := execute(t, "convert", lu, out)
	if err != nil {
		t.Fatalf("convert error = %v", err)
	}
	if !strings.Contains(text, "ToDoLuis") || !strings.Contains(text, "utterances: 5") {
		t.Errorf("convert output = %q", text)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output missing: %v", err)
	}

	f.fail = true
	if _, err := execute(t, "convert", lu, out); err == nil {
		t.Error("expected conversion error")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("stale output kept after failed conversion: %v", err)
	}
}

func TestConvertAll(t *testing.T) {
	f := &fakeBF{}
	useFakeBF(t, f)

	root := t.TempDir()
	for _, p := range []string{"a.lu", "nested/b.lu", "nested/notes.txt"} {
		path := filepath.Join(root, filepath.FromSlash(p))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	out, err := execute(t, "convert", "--all", "--root", root, "--format", "json")
	if err != nil {
		t.Fatalf("convert --all error = %v", err)
	}

	var results []luconvert.Result
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(results) != 2 || f.calls != 2 {
		t.Fatalf("results = %+v, calls = %d", results, f.calls)
	}
	for _, r := range results {
		if r.Error != "" || filepath.Ext(r.Output) != ".json" {
			t.Errorf("result = %+v", r)
		}
	}
}

func TestEventsCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	l, err := bus.NewEventLogger(path, true)
	if err != nil {
		t.Fatal(err)
	}
	for _, topic := range []string{bus.TopicRecognized, bus.TopicModelsLoaded, bus.TopicRecognized} {
		ev := bus.NewEvent(topic, "test", map[string]any{bus.KeyIntent: "AddItem"})
		if err := l.Log(topic, ev); err != nil {
			t.Fatal(err)
		}
	}
	l.Close()

	out, err := execute(t, "events", "--file", path, "--topic", bus.TopicRecognized)
	if err != nil {
		t.Fatalf("events error = %v", err)
	}
	if !strings.Contains(out, "2 event(s)") {
		t.Errorf("events output = %q", out)
	}

	out, err = execute(t, "events", "--file", path, "--limit", "1", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], bus.TopicRecognized) {
		t.Errorf("limited output = %q", out)
	}

	out, err = execute(t, "events", "--file", path, "--since", time.Nanosecond.String())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "0 event(s)") {
		t.Errorf("since output = %q", out)
	}

	if _, err := execute(t, "events"); err == nil {
		t.Error("expected error without an event log")
	}
}

func TestApplyServeFlags(t *testing.T) {
	cmd := serveCmd()
	if err := cmd.ParseFlags([]string{"--port", "8081", "--grpc", "--cache", "none", "--entity-model", ""}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	applyServeFlags(cmd, cfg)

	if cfg.Port != 8081 || !cfg.GRPC.Enabled || cfg.Cache.Type != "none" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Models.EntityDir != "" {
		t.Errorf("EntityDir = %q, want empty", cfg.Models.EntityDir)
	}
	if cfg.Host != config.Default().Host {
		t.Errorf("Host changed without flag: %q", cfg.Host)
	}
}

func TestSelectPath(t *testing.T) {
	doc := map[string]any{
		"cats": map[string]any{"AddItem": 0.9},
		"ents": []any{[]any{"Item", "milk"}},
	}

	got, err := selectPath("$.cats.AddItem", doc)
	if err != nil || got != 0.9 {
		t.Errorf("selectPath(cats) = %v, %v", got, err)
	}

	if _, err := selectPath("$.ents[0", doc); err == nil {
		t.Error("expected error for invalid expression")
	}
}
