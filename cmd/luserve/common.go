package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luserve/luserve/internal/config"
	"github.com/luserve/luserve/internal/pkg/logger"
)

// loadConfig loads the config named by --config and applies --verbose.
// Callers apply their own flag overrides and then call Validate.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// overrideString sets *dst from flag when the flag was given.
func overrideString(cmd *cobra.Command, flag string, dst *string) {
	if cmd.Flags().Changed(flag) {
		*dst, _ = cmd.Flags().GetString(flag)
	}
}

// overrideInt sets *dst from flag when the flag was given.
func overrideInt(cmd *cobra.Command, flag string, dst *int) {
	if cmd.Flags().Changed(flag) {
		*dst, _ = cmd.Flags().GetInt(flag)
	}
}

// newLogger builds the process logger from the log section. CLI commands
// other than serve log to stderr so stdout stays parseable.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*logger.Logger, error) {
	if cfg.Log.File != "" {
		return logger.NewFile(cfg.Log.File, cfg.Log.Level, cfg.Log.Format)
	}
	return logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format), nil
}

func outputFormat(cmd *cobra.Command) (string, error) {
	format, _ := cmd.Flags().GetString("format")
	switch strings.ToLower(format) {
	case "text", "":
		return "text", nil
	case "json":
		return "json", nil
	default:
		return "", fmt.Errorf("unknown output format %q (must be text or json)", format)
	}
}

func printJSON(w io.Writer, v any, indent bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
