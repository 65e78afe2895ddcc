package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/luserve/luserve/internal/client"
	"github.com/luserve/luserve/internal/evaluation"
	"github.com/luserve/luserve/internal/luis"
	"github.com/luserve/luserve/internal/recognizer"
)

// recognizeFunc adapts a function to evaluation.Recognizer.
type recognizeFunc func(ctx context.Context, query string) (*recognizer.Result, error)

func (f recognizeFunc) Recognize(ctx context.Context, query string) (*recognizer.Result, error) {
	return f(ctx, query)
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <luis-json>",
		Short: "Score the models against labelled utterances",
		Long: `Run every utterance of a LUIS application through the models and report
intent accuracy, mean reciprocal rank of the labelled intent, per-intent
precision/recall/F1, and exact-span entity scores.

With --url the utterances are sent to a running server instead of loading
the models locally. --min-accuracy makes the command fail when accuracy
falls below the threshold.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			overrideString(cmd, "category-model", &cfg.Models.CategoryDir)
			overrideString(cmd, "entity-model", &cfg.Models.EntityDir)
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

			app, err := luis.Load(args[0])
			if err != nil {
				return err
			}

			var rec evaluation.Recognizer
			if baseURL, _ := cmd.Flags().GetString("url"); baseURL != "" {
				rec = recognizeFunc(client.New(client.Config{BaseURL: baseURL}).RecognizeDetailed)
			} else {
				svc := recognizer.NewService(cfg, log)
				defer svc.Close()
				if err := svc.LoadModels(cmd.Context()); err != nil {
					return err
				}
				rec = svc
			}

			summary, err := evaluation.NewEvaluator(rec).Evaluate(cmd.Context(), app)
			if err != nil {
				return err
			}
			log.Info("Evaluation complete", "utterances", summary.Utterances, "accuracy", summary.Accuracy)

			if format == "json" {
				err = printJSON(cmd.OutOrStdout(), summary, true)
			} else {
				err = printSummary(cmd.OutOrStdout(), summary)
			}
			if err != nil {
				return err
			}

			if minAcc, _ := cmd.Flags().GetFloat64("min-accuracy"); summary.Accuracy < minAcc {
				return fmt.Errorf("accuracy %.3f is below %.3f", summary.Accuracy, minAcc)
			}
			return nil
		},
	}

	cmd.Flags().String("url", "", "evaluate a running server over HTTP (base URL)")
	cmd.Flags().Float64("min-accuracy", 0, "fail when intent accuracy is below this value")
	cmd.Flags().String("category-model", "", "category model directory")
	cmd.Flags().String("entity-model", "", "entity model directory (empty disables it)")

	return cmd
}

func printSummary(w io.Writer, s *evaluation.Summary) error {
	fmt.Fprintf(w, "utterances: %d\n", s.Utterances)
	fmt.Fprintf(w, "accuracy:   %.3f\n", s.Accuracy)
	fmt.Fprintf(w, "mrr:        %.3f\n", s.MRR)
	fmt.Fprintf(w, "entities:   p=%.3f r=%.3f f1=%.3f\n", s.Entities.Precision, s.Entities.Recall, s.Entities.F1)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-24s %7s %9s %6s %6s\n", "INTENT", "SUPPORT", "PRECISION", "RECALL", "F1")
	for _, in := range s.Intents {
		fmt.Fprintf(w, "%-24s %7d %9.3f %6.3f %6.3f\n", in.Intent, in.Support, in.Precision, in.Recall, in.F1)
	}

	if len(s.Failures) == 0 {
		return nil
	}
	fmt.Fprintf(w, "\n%d failure(s):\n", len(s.Failures))
	for _, f := range s.Failures {
		if _, err := fmt.Fprintf(w, "  %q expected %s, got %s (entities tp=%d fp=%d fn=%d)\n",
			f.Text, f.Expected, f.Predicted, f.Entities.TP, f.Entities.FP, f.Entities.FN); err != nil {
			return err
		}
	}
	return nil
}
