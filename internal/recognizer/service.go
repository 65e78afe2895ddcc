// Package recognizer serves intent and entity recognition from loaded model
// artifacts.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/luserve/luserve/internal/bus"
	"github.com/luserve/luserve/internal/config"
	"github.com/luserve/luserve/internal/nlp"
	apperrors "github.com/luserve/luserve/internal/pkg/errors"
	"github.com/luserve/luserve/internal/pkg/hash"
	"github.com/luserve/luserve/internal/pkg/logger"
	"github.com/luserve/luserve/internal/pkg/security"
)

// Model roles.
const (
	RoleCategory = "category"
	RoleEntity   = "entity"
)

// Result is one recognition.
type Result struct {
	Query     string             `json:"query"`
	Cats      map[string]float64 `json:"cats"`
	Ents      []nlp.EntityDetail `json:"ents"`
	TopIntent string             `json:"top_intent"`
	TopScore  float64            `json:"top_score"`
	Models    []string           `json:"models"`
	Cached    bool               `json:"cached"`
	LatencyMs float64            `json:"latency_ms"`
}

// Entities returns the result's entities as label/text pairs.
func (r *Result) Entities() []nlp.Entity {
	ents := make([]nlp.Entity, len(r.Ents))
	for i, d := range r.Ents {
		ents[i] = nlp.Entity{Label: d.Label, Text: d.Text, Start: d.Start, End: d.End}
	}
	return ents
}

// ModelInfo describes a loaded model.
type ModelInfo struct {
	Role        string              `json:"role"`
	Dir         string              `json:"dir"`
	Name        string              `json:"name"`
	Version     string              `json:"version"`
	Lang        string              `json:"lang"`
	Pipeline    []string            `json:"pipeline"`
	Labels      map[string][]string `json:"labels"`
	Fingerprint string              `json:"fingerprint"`
	CreatedAt   time.Time           `json:"created_at"`
}

// HealthStatus represents service health.
type HealthStatus struct {
	Healthy      bool            `json:"healthy"`
	ModelsLoaded map[string]bool `json:"models_loaded"`
	CacheType    string          `json:"cache_type"`
	LoadedAt     time.Time       `json:"loaded_at,omitzero"`
	Error        string          `json:"error,omitempty"`
}

// Loader loads a model directory.
type Loader func(dir string) (*nlp.Model, error)

// Option configures a Service.
type Option func(*Service)

// WithBus publishes recognition and model-load events to b.
func WithBus(b bus.Bus) Option {
	return func(s *Service) { s.bus = b }
}

// WithCache replaces the result cache.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithLoader replaces the model loader.
func WithLoader(l Loader) Option {
	return func(s *Service) { s.load = l }
}

type loadedModels struct {
	category *nlp.Model
	entity   *nlp.Model
	loadedAt time.Time
}

// Service holds the loaded models and answers recognition requests.
type Service struct {
	cfg   *config.Config
	log   *logger.Logger
	bus   bus.Bus
	cache Cache
	load  Loader

	mu      sync.RWMutex
	models  *loadedModels
	lastErr error
}

// NewService creates a service. Models are not loaded until LoadModels.
func NewService(cfg *config.Config, log *logger.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:   cfg,
		log:   log,
		cache: NoopCache{},
		load:  nlp.Load,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadModels loads the category model and, when configured, the entity
// model, then swaps them in and clears the cache. On failure the models
// already being served are kept.
func (s *Service) LoadModels(ctx context.Context) error {
	start := time.Now()

	loaded, err := s.loadAll(ctx)
	latency := float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()

		s.log.Error("Failed to load models", "error", err)
		s.publish(ctx, bus.TopicModelsLoaded, map[string]any{
			bus.KeyLatencyMs: latency,
			bus.KeyErrorCode: apperrors.CodeOf(err),
		})
		return err
	}

	s.mu.Lock()
	s.models = loaded
	s.lastErr = nil
	s.mu.Unlock()

	if err := s.cache.Clear(ctx); err != nil {
		s.log.Warn("Failed to clear recognition cache", "error", err)
	}

	names := loaded.names()
	s.log.Info("Models loaded", "models", strings.Join(names, ","), "duration", time.Since(start))
	s.publish(ctx, bus.TopicModelsLoaded, map[string]any{
		bus.KeyModelCount: len(names),
		bus.KeyModels:     names,
		bus.KeyLatencyMs:  latency,
	})
	return nil
}

// Reload reloads the models from disk.
func (s *Service) Reload(ctx context.Context) error {
	return s.LoadModels(ctx)
}

func (s *Service) loadAll(ctx context.Context) (*loadedModels, error) {
	var category, entity *nlp.Model

	var g errgroup.Group

	g.Go(func() error {
		m, err := s.load(s.cfg.Models.CategoryDir)
		if err != nil {
			return fmt.Errorf("loading category model: %w", err)
		}
		if !m.HasComponent(nlp.ComponentTextcat) {
			return apperrors.ModelError(
				fmt.Sprintf("category model %s has no %s component", s.cfg.Models.CategoryDir, nlp.ComponentTextcat), nil)
		}
		category = m
		return nil
	})

	if dir := s.cfg.Models.EntityDir; dir != "" {
		g.Go(func() error {
			if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
				s.log.Warn("Entity model not found, serving categories only", "dir", dir)
				return nil
			}
			m, err := s.load(dir)
			if err != nil {
				return fmt.Errorf("loading entity model: %w", err)
			}
			entity = m
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &loadedModels{category: category, entity: entity, loadedAt: time.Now().UTC()}, nil
}

func (m *loadedModels) names() []string {
	names := []string{m.category.Meta.Name}
	if m.entity != nil {
		names = append(names, m.entity.Meta.Name)
	}
	return names
}

// recognizer returns the entity recognizer to use: the entity model's when
// it has one, otherwise the category model's.
func (m *loadedModels) recognizer() *nlp.EntityRecognizer {
	if m.entity != nil && m.entity.Recognizer() != nil {
		return m.entity.Recognizer()
	}
	return m.category.Recognizer()
}

func (m *loadedModels) cacheKey(query string) string {
	entityFP := ""
	if m.entity != nil {
		entityFP = m.entity.Fingerprint()
	}
	return hash.Key(m.category.Fingerprint(), entityFP, query)
}

// Recognize runs the loaded models over query. The query is passed through
// unmodified.
func (s *Service) Recognize(ctx context.Context, query string) (*Result, error) {
	start := time.Now()

	res, err := s.recognize(ctx, query, start)
	if err != nil {
		s.publish(ctx, bus.TopicRecognized, map[string]any{
			bus.KeyErrorCode: apperrors.CodeOf(err),
			bus.KeyLatencyMs: float64(time.Since(start).Microseconds()) / 1000,
		})
		return nil, err
	}

	s.log.WithContext(ctx).Debug("Recognized query",
		"query", security.SanitizeForLog(query),
		"intent", res.TopIntent,
		"cached", res.Cached,
	)

	payload := map[string]any{
		bus.KeyIntent:      res.TopIntent,
		bus.KeyScore:       res.TopScore,
		bus.KeyEntityCount: len(res.Ents),
		bus.KeyLatencyMs:   res.LatencyMs,
		bus.KeyCached:      res.Cached,
		bus.KeyCacheType:   s.cache.Type(),
	}
	if n := s.cache.Len(); n >= 0 {
		payload[bus.KeyCacheSize] = n
	}
	s.publish(ctx, bus.TopicRecognized, payload)
	return res, nil
}

func (s *Service) recognize(ctx context.Context, query string, start time.Time) (*Result, error) {
	limit := s.cfg.Recognize.MaxQueryLength
	if err := security.ValidateQuery(query, limit); err != nil {
		appErr := apperrors.ValidationError(err.Error())
		if limit > 0 {
			appErr = appErr.WithDetail("max_query_length", strconv.Itoa(limit))
		}
		return nil, appErr
	}

	s.mu.RLock()
	models := s.models
	s.mu.RUnlock()
	if models == nil {
		return nil, apperrors.ServiceUnavailableError("recognizer")
	}

	log := s.log.WithContext(ctx)
	key := models.cacheKey(query)

	if entry, ok, err := s.cache.Get(ctx, key); err != nil {
		log.Warn("Cache lookup failed", "error", err)
	} else if ok {
		return newResult(query, entry, models, true, start), nil
	}

	entry, err := s.infer(ctx, query, models)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, entry); err != nil {
		log.Warn("Cache store failed", "error", err)
	}

	return newResult(query, entry, models, false, start), nil
}

// infer runs the models under the configured recognition timeout.
func (s *Service) infer(ctx context.Context, query string, models *loadedModels) (*Entry, error) {
	if timeout := s.cfg.Recognize.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan *Entry, 1)
	go func() {
		tokens := nlp.Tokenize(query)
		entry := &Entry{
			Cats: models.category.Categorizer().Predict(tokens),
			Ents: []nlp.EntityDetail{},
		}
		if r := models.recognizer(); r != nil {
			for _, e := range r.Recognize(query, tokens) {
				entry.Ents = append(entry.Ents, e.Detail())
			}
		}
		done <- entry
	}()

	select {
	case entry := <-done:
		return entry, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.TimeoutError("recognition")
		}
		return nil, ctx.Err()
	}
}

func newResult(query string, entry *Entry, models *loadedModels, cached bool, start time.Time) *Result {
	intent, score := nlp.Best(entry.Cats)
	ents := entry.Ents
	if ents == nil {
		ents = []nlp.EntityDetail{}
	}
	return &Result{
		Query:     query,
		Cats:      entry.Cats,
		Ents:      ents,
		TopIntent: intent,
		TopScore:  score,
		Models:    models.names(),
		Cached:    cached,
		LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
	}
}

// Ready reports whether a category model is loaded.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.models != nil
}

// Health returns the service health status.
func (s *Service) Health() HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := HealthStatus{
		Healthy:      s.models != nil,
		ModelsLoaded: map[string]bool{RoleCategory: false, RoleEntity: false},
		CacheType:    s.cache.Type(),
	}
	if s.models != nil {
		status.ModelsLoaded[RoleCategory] = true
		status.ModelsLoaded[RoleEntity] = s.models.entity != nil
		status.LoadedAt = s.models.loadedAt
	}
	if s.lastErr != nil {
		status.Error = s.lastErr.Error()
	}
	return status
}

// Models describes the loaded models.
func (s *Service) Models() []ModelInfo {
	s.mu.RLock()
	models := s.models
	s.mu.RUnlock()

	if models == nil {
		return []ModelInfo{}
	}

	infos := []ModelInfo{modelInfo(RoleCategory, s.cfg.Models.CategoryDir, models.category)}
	if models.entity != nil {
		infos = append(infos, modelInfo(RoleEntity, s.cfg.Models.EntityDir, models.entity))
	}
	return infos
}

func modelInfo(role, dir string, m *nlp.Model) ModelInfo {
	return ModelInfo{
		Role:        role,
		Dir:         dir,
		Name:        m.Meta.Name,
		Version:     m.Meta.Version,
		Lang:        m.Meta.Lang,
		Pipeline:    m.Meta.Pipeline,
		Labels:      m.Meta.Labels,
		Fingerprint: m.Fingerprint(),
		CreatedAt:   m.Meta.CreatedAt,
	}
}

// CacheType returns the active cache backend.
func (s *Service) CacheType() string {
	return s.cache.Type()
}

// Close releases the cache.
func (s *Service) Close() error {
	return s.cache.Close()
}

func (s *Service) publish(ctx context.Context, topic string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, topic, bus.NewEvent(topic, "recognizer", payload)); err != nil {
		s.log.Warn("Failed to publish event", "topic", topic, "error", err)
	}
}
