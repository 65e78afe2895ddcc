package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/luserve/luserve/internal/bus"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show events recorded in the bus event log",
		Long: `Print events from the JSON lines log written when bus.event_log is set.

Events can be filtered by topic (for example recognizer.recognized,
recognizer.models.loaded, luconvert.converted) and by age.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			overrideString(cmd, "file", &cfg.Bus.EventLog)
			if cfg.Bus.EventLog == "" {
				return errors.New("no event log configured (set bus.event_log or --file)")
			}

			format, err := outputFormat(cmd)
			if err != nil {
				return err
			}

			since, _ := cmd.Flags().GetDuration("since")
			topic, _ := cmd.Flags().GetString("topic")
			limit, _ := cmd.Flags().GetInt("limit")

			var from time.Time
			if since > 0 {
				from = time.Now().Add(-since)
			}

			events, err := bus.ReadEvents(cfg.Bus.EventLog, from, topic, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				for _, e := range events {
					if err := printJSON(out, e, false); err != nil {
						return err
					}
				}
				return nil
			}

			for _, e := range events {
				fmt.Fprintf(out, "%s  %-26s %-12s %v\n",
					e.Timestamp.Format(time.RFC3339), e.Topic, e.Event.Source, e.Event.PayloadMap())
			}
			fmt.Fprintf(out, "%d event(s)\n", len(events))
			return nil
		},
	}

	cmd.Flags().String("file", "", "event log path (overrides bus.event_log)")
	cmd.Flags().Duration("since", 0, "only events newer than this age (e.g. 1h)")
	cmd.Flags().String("topic", "", "only events on this topic")
	cmd.Flags().Int("limit", 0, "show at most the last N events (0 = all)")

	return cmd
}
