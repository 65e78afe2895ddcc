package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/luserve/luserve/internal/luconvert"
	"github.com/luserve/luserve/internal/luis"
	"github.com/luserve/luserve/internal/nlp"
)

// trainedModel describes one saved artifact.
type trainedModel struct {
	Dir         string   `json:"dir"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Pipeline    []string `json:"pipeline"`
	Fingerprint string   `json:"fingerprint"`
}

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train [input]",
		Short: "Train category and entity models from a LUIS application",
		Long: `Train the models served by 'luserve serve'.

The input is a LUIS JSON file or a .lu file. A .lu file is converted with
'bf luis:convert' first, writing the JSON next to it. With no argument the
configured convert.json_file is used.

The category model (intents) is written to models.category_dir and the
entity model to models.entity_dir. With --combined a single model holding
both components is written to the category directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			overrideString(cmd, "category-out", &cfg.Models.CategoryDir)
			overrideString(cmd, "entity-out", &cfg.Models.EntityDir)
			overrideString(cmd, "bf", &cfg.Convert.Command)
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

			input := cfg.Convert.JSONFile
			if len(args) > 0 {
				input = args[0]
			}

			var app *luis.App
			if strings.EqualFold(filepath.Ext(input), ".lu") {
				conv, closeBus, err := newConverter(cfg, log)
				if err != nil {
					return err
				}
				app, err = conv.Regenerate(cmd.Context(), input, luconvert.OutputPath(input))
				closeBus()
				if err != nil {
					return err
				}
			} else {
				if app, err = luis.Load(input); err != nil {
					return err
				}
			}

			name, _ := cmd.Flags().GetString("name")
			modelVersion, _ := cmd.Flags().GetString("model-version")
			alpha, _ := cmd.Flags().GetFloat64("alpha")
			combined, _ := cmd.Flags().GetBool("combined")

			opts := nlp.TrainOptions{
				Name:        name,
				Version:     modelVersion,
				Description: "trained from " + input,
				Alpha:       alpha,
			}

			var saved []trainedModel
			if combined {
				m, err := trainAndSave(app, opts, cfg.Models.CategoryDir, nlp.ComponentTextcat, nlp.ComponentNER)
				if err != nil {
					return err
				}
				saved = append(saved, m)
			} else {
				m, err := trainAndSave(app, opts, cfg.Models.CategoryDir, nlp.ComponentTextcat)
				if err != nil {
					return err
				}
				saved = append(saved, m)

				if cfg.Models.EntityDir != "" {
					m, err := trainAndSave(app, opts, cfg.Models.EntityDir, nlp.ComponentNER)
					if err != nil {
						return err
					}
					saved = append(saved, m)
				}
			}

			for _, m := range saved {
				log.Info("Saved model", "dir", m.Dir, "pipeline", m.Pipeline, "fingerprint", m.Fingerprint)
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				return printJSON(out, map[string]any{"input": input, "models": saved}, true)
			}
			fmt.Fprintf(out, "Trained %s (%d intents, %d utterances)\n", app.Name, len(app.IntentNames()), len(app.Utterances))
			for _, m := range saved {
				fmt.Fprintf(out, "  %s [%s] %s\n", m.Dir, strings.Join(m.Pipeline, ","), m.Fingerprint)
			}
			return nil
		},
	}

	cmd.Flags().String("category-out", "", "category model output directory (overrides models.category_dir)")
	cmd.Flags().String("entity-out", "", "entity model output directory (overrides models.entity_dir)")
	cmd.Flags().String("name", "", "model name (defaults to the app name)")
	cmd.Flags().String("model-version", "", "model version (defaults to the app versionId)")
	cmd.Flags().Float64("alpha", 0, "additive smoothing for the categorizer (0 = default)")
	cmd.Flags().Bool("combined", false, "write one model with both components")
	cmd.Flags().String("bf", "", "bf executable (overrides convert.command)")

	return cmd
}

func trainAndSave(app *luis.App, opts nlp.TrainOptions, dir string, components ...string) (trainedModel, error) {
	opts.Components = components
	m, err := nlp.Train(app, opts)
	if err != nil {
		return trainedModel{}, err
	}
	if err := m.Save(dir); err != nil {
		return trainedModel{}, fmt.Errorf("saving model to %s: %w", dir, err)
	}
	return trainedModel{
		Dir:         dir,
		Name:        m.Meta.Name,
		Version:     m.Meta.Version,
		Pipeline:    m.Meta.Pipeline,
		Fingerprint: m.Fingerprint(),
	}, nil
}
