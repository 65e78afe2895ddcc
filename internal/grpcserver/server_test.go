package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/luserve/luserve/internal/config"
	"github.com/luserve/luserve/internal/grpcclient"
	"github.com/luserve/luserve/internal/luis"
	"github.com/luserve/luserve/internal/nlp"
	apperrors "github.com/luserve/luserve/internal/pkg/errors"
	"github.com/luserve/luserve/internal/pkg/logger"
	"github.com/luserve/luserve/internal/recognizer"
)

const todoApp = `{
  "name": "ToDoLuis",
  "versionId": "0.1",
  "culture": "en-us",
  "intents": [{"name": "AddItem"}, {"name": "DeleteItem"}],
  "entities": [{"name": "Item"}],
  "utterances": [
    {"text": "add milk", "intent": "AddItem", "entities": [{"entity": "Item", "startPos": 4, "endPos": 7}]},
    {"text": "remove eggs", "intent": "DeleteItem", "entities": [{"entity": "Item", "startPos": 7, "endPos": 10}]}
  ]
}`

func newService(t *testing.T, load bool) (*recognizer.Service, *config.Config) {
	t.Helper()

	app, err := luis.Parse([]byte(todoApp))
	if err != nil {
		t.Fatal(err)
	}
	m, err := nlp.Train(app, nlp.TrainOptions{})
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Models.CategoryDir = filepath.Join(t.TempDir(), "output-category")
	cfg.Models.EntityDir = ""
	if err := m.Save(cfg.Models.CategoryDir); err != nil {
		t.Fatal(err)
	}

	svc := recognizer.NewService(cfg, logger.Discard())
	if load {
		if err := svc.LoadModels(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	return svc, cfg
}

// startBufconn serves s on an in-memory listener and returns a client
// connected to it.
func startBufconn(t *testing.T, s *Server) *grpcclient.Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	c, err := grpcclient.New(grpcclient.Config{
		ServerAddress: "passthrough:///bufnet",
		Dialer: func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRecognize(t *testing.T) {
	svc, _ := newService(t, true)
	c := startBufconn(t, New(Config{}, svc, logger.Discard()))

	res, err := c.Recognize(context.Background(), "add milk")
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}

	cats, ok := res["cats"].(map[string]any)
	if !ok || len(cats) != 2 {
		t.Fatalf("cats = %#v", res["cats"])
	}
	if res["top_intent"] != "AddItem" {
		t.Errorf("top_intent = %v", res["top_intent"])
	}

	ents, ok := res["ents"].([]any)
	if !ok || len(ents) != 1 {
		t.Fatalf("ents = %#v", res["ents"])
	}
	pair, _ := ents[0].([]any)
	if len(pair) != 2 || pair[0] != "Item" || pair[1] != "milk" {
		t.Errorf("ents[0] = %#v", ents[0])
	}

	detailed, _ := res["entities"].([]any)
	if len(detailed) != 1 {
		t.Fatalf("entities = %#v", res["entities"])
	}
	if e, _ := detailed[0].(map[string]any); e["start"] != float64(4) || e["end"] != float64(8) {
		t.Errorf("entities[0] = %#v", detailed[0])
	}
}

func TestRecognize_Errors(t *testing.T) {
	svc, _ := newService(t, true)
	c := startBufconn(t, New(Config{}, svc, logger.Discard()))

	_, err := c.Recognize(context.Background(), "   ")
	if apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Errorf("blank query error = %v, want %s", err, apperrors.CodeValidation)
	}

	notLoaded, _ := newService(t, false)
	c2 := startBufconn(t, New(Config{}, notLoaded, logger.Discard()))
	_, err = c2.Recognize(context.Background(), "add milk")
	if apperrors.CodeOf(err) != apperrors.CodeUnavailable {
		t.Errorf("not loaded error = %v, want %s", err, apperrors.CodeUnavailable)
	}
}

func TestHealthAndModels(t *testing.T) {
	svc, cfg := newService(t, false)
	s := New(Config{}, svc, logger.Discard())
	c := startBufconn(t, s)
	ctx := context.Background()

	if ok, err := c.Healthy(ctx); err != nil || ok {
		t.Errorf("Healthy() before load = %v, %v", ok, err)
	}

	if _, err := c.ReloadModels(ctx); err != nil {
		t.Fatalf("ReloadModels() error = %v", err)
	}
	if ok, err := c.Healthy(ctx); err != nil || !ok {
		t.Errorf("Healthy() after reload = %v, %v", ok, err)
	}

	models, err := c.ListModels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	list, _ := models["models"].([]any)
	if len(list) != 1 {
		t.Fatalf("models = %#v", models)
	}
	if m, _ := list[0].(map[string]any); m["role"] != recognizer.RoleCategory || m["name"] != "ToDoLuis" {
		t.Errorf("models[0] = %#v", list[0])
	}

	cfg.Models.CategoryDir = filepath.Join(t.TempDir(), "absent")
	_, err = c.ReloadModels(ctx)
	if apperrors.CodeOf(err) != apperrors.CodeModelError {
		t.Errorf("failed reload error = %v, want %s", err, apperrors.CodeModelError)
	}
	// Previous models are kept, so the server still reports SERVING.
	if ok, _ := c.Healthy(ctx); !ok {
		t.Error("Healthy() after failed reload = false")
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
	}{
		{apperrors.ValidationError("bad"), codes.InvalidArgument},
		{fmt.Errorf("wrapped: %w", apperrors.ServiceUnavailableError("recognizer")), codes.Unavailable},
		{apperrors.TimeoutError("recognition"), codes.DeadlineExceeded},
		{apperrors.ModelError("broken", nil), codes.FailedPrecondition},
		{context.Canceled, codes.Canceled},
		{errors.New("secret detail"), codes.Internal},
	}

	for _, tt := range tests {
		st, _ := status.FromError(toStatus(tt.err))
		if st.Code() != tt.code {
			t.Errorf("toStatus(%v) code = %s, want %s", tt.err, st.Code(), tt.code)
		}
		if tt.code == codes.Internal && st.Message() != "internal server error" {
			t.Errorf("internal message leaked: %q", st.Message())
		}
	}

	if toStatus(nil) != nil {
		t.Error("toStatus(nil) != nil")
	}
}
