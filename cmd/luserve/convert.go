package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luserve/luserve/internal/bus"
	"github.com/luserve/luserve/internal/config"
	"github.com/luserve/luserve/internal/luconvert"
	"github.com/luserve/luserve/internal/pkg/logger"
)

// convertRunner runs the bf tool. Tests replace it.
var convertRunner luconvert.Runner = luconvert.ExecRunner{}

func convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [lu-file [json-file]]",
		Short: "Regenerate LUIS JSON from .lu sources with bf luis:convert",
		Long: `Convert a .lu file into LUIS JSON by running 'bf luis:convert'.
Any existing output file is deleted first.

With no arguments the configured convert.lu_file and convert.json_file are
used. With --all every file under --root matching --pattern is converted
into a sibling .json file.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			overrideString(cmd, "bf", &cfg.Convert.Command)
			if len(args) > 0 {
				cfg.Convert.LuFile = args[0]
				cfg.Convert.JSONFile = luconvert.OutputPath(args[0])
			}
			if len(args) > 1 {
				cfg.Convert.JSONFile = args[1]
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			log, err := newLogger(cmd, cfg)
			if err != nil {
				return err
			}
			defer log.Close()

			conv, closeBus, err := newConverter(cfg, log)
			if err != nil {
				return err
			}
			defer closeBus()

			if all, _ := cmd.Flags().GetBool("all"); all {
				root, _ := cmd.Flags().GetString("root")
				pattern, _ := cmd.Flags().GetString("pattern")
				return convertAll(cmd, conv, root, pattern, format)
			}

			app, err := conv.Regenerate(cmd.Context(), cfg.Convert.LuFile, cfg.Convert.JSONFile)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				return printJSON(out, map[string]any{
					"input":      cfg.Convert.LuFile,
					"output":     cfg.Convert.JSONFile,
					"name":       app.Name,
					"intents":    app.IntentNames(),
					"entities":   app.EntityNames(),
					"utterances": len(app.Utterances),
				}, true)
			}
			fmt.Fprintf(out, "Converted %s -> %s\n", cfg.Convert.LuFile, cfg.Convert.JSONFile)
			fmt.Fprintf(out, "  app:        %s\n", app.Name)
			fmt.Fprintf(out, "  intents:    %d\n", len(app.IntentNames()))
			fmt.Fprintf(out, "  entities:   %d\n", len(app.EntityNames()))
			fmt.Fprintf(out, "  utterances: %d\n", len(app.Utterances))
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "convert every .lu file under --root")
	cmd.Flags().String("root", ".", "root directory for --all")
	cmd.Flags().String("pattern", luconvert.DefaultPattern, "glob pattern for --all")
	cmd.Flags().String("bf", "", "bf executable (overrides convert.command)")

	return cmd
}

func convertAll(cmd *cobra.Command, conv *luconvert.Converter, root, pattern, format string) error {
	paths, err := luconvert.Discover(root, pattern)
	if err != nil {
		return err
	}

	results, convErr := conv.ConvertAll(cmd.Context(), paths)

	out := cmd.OutOrStdout()
	if format == "json" {
		if err := printJSON(out, results, true); err != nil {
			return err
		}
		return convErr
	}

	if len(results) == 0 {
		fmt.Fprintf(out, "No files matching %s under %s\n", pattern, root)
	}
	for _, r := range results {
		if r.Error != "" {
			fmt.Fprintf(out, "FAIL %s: %s\n", r.Input, r.Error)
			continue
		}
		fmt.Fprintf(out, "ok   %s -> %s\n", r.Input, r.Output)
	}
	return convErr
}

// newConverter builds a converter that reports to the configured bus, so
// conversions reach the event log and Kafka subscribers.
func newConverter(cfg *config.Config, log *logger.Logger) (*luconvert.Converter, func(), error) {
	b, err := bus.NewBus(cfg.Bus, log)
	if err != nil {
		return nil, nil, fmt.Errorf("creating event bus: %w", err)
	}
	closeBus := func() {
		if err := b.Close(); err != nil {
			log.Warn("Event bus close error", "error", err)
		}
	}

	conv := luconvert.New(luconvert.Config{
		Command: cfg.Convert.Command,
		Args:    cfg.Convert.Args,
		Timeout: cfg.Convert.Timeout,
	}, log, luconvert.WithRunner(convertRunner), luconvert.WithBus(b))
	return conv, closeBus, nil
}
