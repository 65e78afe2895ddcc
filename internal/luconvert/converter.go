// Package luconvert regenerates LUIS JSON applications from .lu sources by
// invoking the external `bf luis:convert` command.
package luconvert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/luserve/luserve/internal/bus"
	"github.com/luserve/luserve/internal/luis"
	apperrors "github.com/luserve/luserve/internal/pkg/errors"
	"github.com/luserve/luserve/internal/pkg/logger"
)

// stderrTail bounds how much of the tool's stderr is attached to errors.
const stderrTail = 512

// Config configures the converter.
type Config struct {
	// Command is the bf executable.
	Command string
	// Args are appended after the --in/--out arguments.
	Args []string
	// Timeout bounds a single conversion.
	Timeout time.Duration
}

// DefaultConfig returns the stock bf invocation.
func DefaultConfig() Config {
	return Config{
		Command: "bf",
		Timeout: 2 * time.Minute,
	}
}

// Converter wraps the bf CLI.
type Converter struct {
	cfg    Config
	runner Runner
	log    *logger.Logger
	bus    bus.Bus
}

// Option configures a Converter.
type Option func(*Converter)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(c *Converter) { c.runner = r }
}

// WithBus publishes a luconvert.converted event after every conversion.
func WithBus(b bus.Bus) Option {
	return func(c *Converter) { c.bus = b }
}

// New creates a converter.
func New(cfg Config, log *logger.Logger, opts ...Option) *Converter {
	if cfg.Command == "" {
		cfg.Command = DefaultConfig().Command
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	c := &Converter{
		cfg:    cfg,
		runner: ExecRunner{},
		log:    log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CommandLine returns the argv used to convert luPath into jsonPath.
func (c *Converter) CommandLine(luPath, jsonPath string) []string {
	argv := []string{c.cfg.Command, "luis:convert", "--in", luPath, "--out", jsonPath}
	return append(argv, c.cfg.Args...)
}

// Convert deletes any stale jsonPath and runs bf to regenerate it from
// luPath. A failed or timed out run, or a run that leaves no output file,
// is a CONVERSION_ERROR or TIMEOUT.
func (c *Converter) Convert(ctx context.Context, luPath, jsonPath string) error {
	start := time.Now()
	err := c.convert(ctx, luPath, jsonPath)
	c.publish(ctx, luPath, jsonPath, time.Since(start), err)
	return err
}

func (c *Converter) convert(ctx context.Context, luPath, jsonPath string) error {
	// The stale output goes first so no failure below leaves it behind.
	if err := removeStale(jsonPath); err != nil {
		return err
	}

	if _, err := os.Stat(luPath); err != nil {
		if os.IsNotExist(err) {
			return apperrors.NotFoundError(luPath)
		}
		return fmt.Errorf("checking %s: %w", luPath, err)
	}

	if dir := filepath.Dir(jsonPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	argv := c.CommandLine(luPath, jsonPath)
	start := time.Now()
	c.log.Debug("Running converter", "argv", strings.Join(argv, " "))

	_, stderr, err := c.runner.Run(ctx, argv[0], argv[1:]...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return apperrors.Wrap(apperrors.CodeTimeout, "luis:convert timed out", err).
				WithDetail("timeout", c.cfg.Timeout.String())
		}
		appErr := apperrors.ConversionError("luis:convert failed", err).WithDetail("input", luPath)
		if tail := tailOf(stderr); tail != "" {
			appErr = appErr.WithDetail("stderr", tail)
		}
		return appErr
	}

	if _, err := os.Stat(jsonPath); err != nil {
		return apperrors.ConversionError("luis:convert produced no output", err).WithDetail("output", jsonPath)
	}

	c.log.Info("Converted LU file",
		"input", luPath,
		"output", jsonPath,
		"duration", time.Since(start),
	)
	return nil
}

// Regenerate converts luPath into jsonPath and returns the parsed result.
func (c *Converter) Regenerate(ctx context.Context, luPath, jsonPath string) (*luis.App, error) {
	if err := c.Convert(ctx, luPath, jsonPath); err != nil {
		return nil, err
	}
	return luis.Load(jsonPath)
}

// Result reports the outcome of one conversion in a batch.
type Result struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Error  string `json:"error,omitempty"`
}

// ConvertAll converts every path next to its source. It keeps going after
// a failure and returns an error summarising how many conversions failed.
func (c *Converter) ConvertAll(ctx context.Context, luPaths []string) ([]Result, error) {
	results := make([]Result, 0, len(luPaths))
	failed := 0

	for _, in := range luPaths {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := Result{Input: in, Output: OutputPath(in)}
		if err := c.Convert(ctx, res.Input, res.Output); err != nil {
			res.Error = err.Error()
			failed++
			c.log.Warn("Conversion failed", "input", in, "error", err)
		}
		results = append(results, res)
	}

	if failed > 0 {
		return results, apperrors.ConversionError(fmt.Sprintf("%d of %d conversions failed", failed, len(luPaths)), nil)
	}
	return results, nil
}

// OutputPath returns the sibling .json path for a .lu file.
func OutputPath(luPath string) string {
	ext := filepath.Ext(luPath)
	return strings.TrimSuffix(luPath, ext) + ".json"
}

func (c *Converter) publish(ctx context.Context, luPath, jsonPath string, elapsed time.Duration, err error) {
	if c.bus == nil {
		return
	}

	payload := map[string]any{
		bus.KeyInput:     luPath,
		bus.KeyOutput:    jsonPath,
		bus.KeyLatencyMs: float64(elapsed.Microseconds()) / 1000,
	}
	if err != nil {
		payload[bus.KeyErrorCode] = apperrors.CodeOf(err)
	}

	if pubErr := c.bus.Publish(ctx, bus.TopicConverted, bus.NewEvent(bus.TopicConverted, "luconvert", payload)); pubErr != nil {
		c.log.Warn("Failed to publish conversion event", "error", pubErr)
	}
}

func removeStale(path string) error {
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return fmt.Errorf("removing stale %s: %w", path, err)
}

func tailOf(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > stderrTail {
		cut := len(s) - stderrTail
		for cut < len(s) && !utf8.RuneStart(s[cut]) {
			cut++
		}
		s = "..." + s[cut:]
	}
	return s
}
