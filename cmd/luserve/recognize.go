package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/spf13/cobra"

	"github.com/luserve/luserve/internal/client"
	"github.com/luserve/luserve/internal/config"
	"github.com/luserve/luserve/internal/grpcclient"
	"github.com/luserve/luserve/internal/pkg/logger"
	"github.com/luserve/luserve/internal/recognizer"
)

func recognizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recognize <query>...",
		Short: "Recognize intents and entities in a query",
		Long: `Run the models over a query and print {"cats": ..., "ents": [...]}.

By default the models are loaded from models.category_dir and
models.entity_dir. With --server the query is sent to a running server over
gRPC instead ("auto" tries the Unix socket, then localhost:50051). With
--url it is sent to the HTTP API at that base URL.

--select applies a JSONPath expression to the result, e.g.
  luserve recognize "add milk" --select '$.cats.AddItem'`,
		Args: cobra.MinimumNArgs(1),
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

			query := strings.Join(args, " ")
			detailed, _ := cmd.Flags().GetBool("detailed")
			serverAddr, _ := cmd.Flags().GetString("server")
			baseURL, _ := cmd.Flags().GetString("url")
			if serverAddr != "" && baseURL != "" {
				return fmt.Errorf("--server and --url are mutually exclusive")
			}

			var doc map[string]any
			switch {
			case serverAddr != "":
				doc, err = recognizeRemote(cmd.Context(), cfg, serverAddr, query)
			case baseURL != "":
				doc, err = recognizeHTTP(cmd.Context(), baseURL, query)
			default:
				doc, err = recognizeLocal(cmd.Context(), cfg, log, query)
			}
			if err != nil {
				return err
			}
			if !detailed {
				doc = map[string]any{"cats": doc["cats"], "ents": doc["ents"]}
			}

			var result any = doc
			if expr, _ := cmd.Flags().GetString("select"); expr != "" {
				if result, err = selectPath(expr, doc); err != nil {
					return err
				}
			}
			return writeResult(cmd.OutOrStdout(), result, format)
		},
	}

	cmd.Flags().String("server", "", `query a running server over gRPC (address or "auto")`)
	cmd.Flags().String("url", "", "query a running server over HTTP (base URL)")
	cmd.Flags().String("select", "", "JSONPath expression applied to the result")
	cmd.Flags().Bool("detailed", false, "include offsets, top intent, and model names")
	cmd.Flags().String("category-model", "", "category model directory")
	cmd.Flags().String("entity-model", "", "entity model directory (empty disables it)")

	return cmd
}

func recognizeLocal(ctx context.Context, cfg *config.Config, log *logger.Logger, query string) (map[string]any, error) {
	svc := recognizer.NewService(cfg, log)
	defer svc.Close()

	if err := svc.LoadModels(ctx); err != nil {
		return nil, err
	}
	res, err := svc.Recognize(ctx, query)
	if err != nil {
		return nil, err
	}
	return resultDocument(res)
}

func recognizeHTTP(ctx context.Context, baseURL, query string) (map[string]any, error) {
	res, err := client.New(client.Config{BaseURL: baseURL}).RecognizeDetailed(ctx, query)
	if err != nil {
		return nil, err
	}
	return resultDocument(res)
}

// resultDocument matches the gRPC shape: ents as label/text pairs, offsets
// under entities.
func resultDocument(res *recognizer.Result) (map[string]any, error) {
	doc, err := toDocument(res)
	if err != nil {
		return nil, err
	}
	doc["entities"] = doc["ents"]
	if doc["ents"], err = toValue(res.Entities()); err != nil {
		return nil, err
	}
	return doc, nil
}

func recognizeRemote(ctx context.Context, cfg *config.Config, addr, query string) (map[string]any, error) {
	clientCfg := grpcclient.DefaultConfig()
	clientCfg.ServerAddress = addr
	clientCfg.TCPAddress = fmt.Sprintf("localhost:%d", cfg.GRPC.Port)
	if cfg.GRPC.UnixSocket != "" {
		clientCfg.UnixSocketPath = cfg.GRPC.UnixSocket
	}

	c, err := grpcclient.New(clientCfg)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return c.Recognize(ctx, query)
}

// selectPath evaluates a JSONPath expression against doc.
func selectPath(expr string, doc map[string]any) (any, error) {
	val, err := jsonpath.Get(strings.TrimSpace(expr), any(doc))
	if err != nil {
		return nil, fmt.Errorf("select %q: %w", expr, err)
	}
	return val, nil
}

// toDocument converts v to its generic JSON form so JSONPath sees the same
// keys a client of the HTTP API does.
func toDocument(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func toValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(data, &out)
	return out, err
}

func writeResult(w io.Writer, v any, format string) error {
	if s, ok := v.(string); ok && format == "text" {
		_, err := fmt.Fprintln(w, s)
		return err
	}
	return printJSON(w, v, format == "text")
}
