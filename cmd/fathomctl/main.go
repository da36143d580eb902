// fathomctl runs one-shot queries through the retrieval pipeline from
// the command line, without the HTTP server.
//
// Exit codes: 0 success, 64 configuration error, 69 no backends
// available, 124 deadline expired before any answer output.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/fathomsearch/fathom/pkg/audit"
	"github.com/fathomsearch/fathom/pkg/backend"
	"github.com/fathomsearch/fathom/pkg/config"
	"github.com/fathomsearch/fathom/pkg/lane"
	"github.com/fathomsearch/fathom/pkg/llm"
	"github.com/fathomsearch/fathom/pkg/metrics"
	"github.com/fathomsearch/fathom/pkg/models"
	"github.com/fathomsearch/fathom/pkg/orchestrator"
	"github.com/fathomsearch/fathom/pkg/stream"
	"github.com/fathomsearch/fathom/pkg/version"
)

const (
	exitOK         = 0
	exitConfig     = 64
	exitNoBackends = 69
	exitDeadline   = 124
)

// exitError carries a process exit code through cobra's error path.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

var (
	flagConfigDir string
	flagMode      string
	flagTraceID   string
	flagDepth     string
	flagTimeRange string
	flagSources   string
	flagCost      string
	flagNoCite    bool
	flagOffline   bool
	flagAttach    []string
)

func main() {
	root := &cobra.Command{
		Use:           "fathomctl",
		Short:         "Run retrieval pipeline queries from the command line",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfigDir, "config-dir", "./deploy/config", "configuration directory")

	queryCmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Submit one query and stream the answer to stdout",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}
	queryCmd.Flags().StringVar(&flagMode, "mode", "", "force a mode (simple|technical|research|multimedia)")
	queryCmd.Flags().StringVar(&flagTraceID, "trace-id", "", "trace id for the audit record")
	queryCmd.Flags().StringVar(&flagDepth, "depth", "", "retrieval depth (simple|technical|research)")
	queryCmd.Flags().StringVar(&flagTimeRange, "time-range", "", "time range (recent|last_5_years|all_time)")
	queryCmd.Flags().StringVar(&flagSources, "sources", "", "source bias (academic|news|both)")
	queryCmd.Flags().StringVar(&flagCost, "cost", "", "cost ceiling (low|medium|high)")
	queryCmd.Flags().BoolVar(&flagNoCite, "no-citations", false, "skip citation alignment")
	queryCmd.Flags().BoolVar(&flagOffline, "offline", false, "run against in-memory fake backends")
	queryCmd.Flags().StringArrayVar(&flagAttach, "attachment", nil, "attachment reference (repeatable, forces multimedia mode)")
	root.AddCommand(queryCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fathomctl:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitConfig)
	}
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	_ = godotenv.Load(filepath.Join(flagConfigDir, ".env"))
	cfg, err := config.Initialize(ctx, flagConfigDir)
	if err != nil {
		return &exitError{exitConfig, fmt.Sprintf("load configuration: %v", err)}
	}

	backends := buildBackends()
	registry, err := lane.NewRegistry(cfg, backends, lane.NewLimiter())
	if err != nil {
		return &exitError{exitConfig, fmt.Sprintf("build lane registry: %v", err)}
	}
	if len(registry.Lanes()) == 0 {
		return &exitError{exitNoBackends, "no retrieval backends configured (set backend URLs or pass --offline)"}
	}

	var synth llm.Synthesizer
	if url := os.Getenv("LLM_BASE_URL"); url != "" && !flagOffline {
		synth = llm.NewOpenAIClient(url, os.Getenv("LLM_API_KEY"), envOr("LLM_MODEL", "gpt-4o-mini"))
	}

	orch := orchestrator.New(cfg, orchestrator.Options{
		Registry: registry,
		Refiner:  lane.NewHeuristicRefiner(),
		Synth:    synth,
		Sink:     audit.NewMemorySink(),
		Metrics:  metrics.New(prometheus.NewRegistry()),
	})

	query := models.Query{
		Text:        strings.Join(args, " "),
		Mode:        models.Mode(flagMode),
		TraceID:     flagTraceID,
		Constraints: buildConstraints(),
	}

	events, err := orch.Submit(ctx, query, flagAttach)
	if err != nil {
		if errors.Is(err, orchestrator.ErrNoLanes) {
			return &exitError{exitNoBackends, err.Error()}
		}
		return &exitError{exitConfig, err.Error()}
	}

	return streamToTerminal(cmd, events)
}

// streamToTerminal prints answer tokens to stdout and everything else to
// stderr, then decides the exit code from the final event.
func streamToTerminal(cmd *cobra.Command, events *stream.Stream) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	sawAnswer := false
	var bibliography []models.BibliographyEntry
	var final stream.FinalData

	for ev := range events.Events() {
		switch ev.Event {
		case stream.EventToken:
			if data, ok := ev.Data.(stream.TokenData); ok {
				fmt.Fprint(out, data.Text)
				sawAnswer = true
			}
		case stream.EventCitation:
			if data, ok := ev.Data.(stream.CitationData); ok {
				bibliography = append(bibliography, data.Bibliography)
			}
		case stream.EventDisagreement:
			if d, ok := ev.Data.(models.Disagreement); ok {
				fmt.Fprintf(errOut, "\nsources disagree (%s): %s\n", d.Severity, d.Topic)
			}
		case stream.EventDegraded:
			if data, ok := ev.Data.(stream.DegradedData); ok {
				fmt.Fprintf(errOut, "\ndegraded: %s\n", data.Reason)
			}
		case stream.EventError:
			if data, ok := ev.Data.(stream.ErrorData); ok {
				fmt.Fprintf(errOut, "\nerror (%s): %s\n", data.Kind, data.Message)
			}
		case stream.EventFinal:
			if data, ok := ev.Data.(stream.FinalData); ok {
				final = data
			}
		}
	}

	if len(bibliography) > 0 {
		fmt.Fprintln(out, "\n\nSources:")
		for _, entry := range bibliography {
			fmt.Fprintf(out, "  [%d] %s — %s\n", entry.MarkerID, entry.Title, entry.URL)
		}
	} else {
		fmt.Fprintln(out)
	}

	fmt.Fprintf(errOut, "latency=%dms ttft=%dms partial=%v under_sla=%v\n",
		final.TotalLatencyMS, final.TTFTMS, final.Partial, final.AnsweredUnderSLA)

	if !sawAnswer && !final.AnsweredUnderSLA {
		return &exitError{exitDeadline, "deadline expired before any answer output"}
	}
	return nil
}

// buildBackends wires HTTP providers from the environment, or fakes in
// offline mode.
func buildBackends() lane.Backends {
	if flagOffline {
		fake := &backend.Fake{Docs: []models.Document{{
			URL:     "https://example.org/offline",
			Title:   "Offline fixture",
			Content: "This document is served by the offline fixture backend.",
		}}}
		return lane.Backends{Web: fake, Keyword: fake}
	}

	var backends lane.Backends
	if url := os.Getenv("WEB_SEARCH_URL"); url != "" {
		backends.Web = backend.NewHTTPProvider(url, os.Getenv("WEB_SEARCH_API_KEY"))
	}
	if url := os.Getenv("NEWS_SEARCH_URL"); url != "" {
		backends.News = backend.NewHTTPProvider(url, os.Getenv("NEWS_SEARCH_API_KEY"))
	}
	if url := os.Getenv("MARKETS_SEARCH_URL"); url != "" {
		backends.Markets = backend.NewHTTPProvider(url, os.Getenv("MARKETS_SEARCH_API_KEY"))
	}
	if url := os.Getenv("KEYWORD_INDEX_URL"); url != "" {
		backends.Keyword = backend.NewHTTPProvider(url, os.Getenv("KEYWORD_INDEX_API_KEY"))
	}
	if url := os.Getenv("EMBEDDINGS_URL"); url != "" {
		backends.Embedder = backend.NewOpenAIEmbedder(url,
			os.Getenv("EMBEDDINGS_API_KEY"), envOr("EMBEDDINGS_MODEL", "text-embedding-3-small"))
	}
	return backends
}

func buildConstraints() models.Constraints {
	c := models.Constraints{
		TimeRange:   models.TimeRange(flagTimeRange),
		Sources:     models.SourceBias(flagSources),
		CostCeiling: models.CostCeiling(flagCost),
		Depth:       models.Depth(flagDepth),
	}
	if flagNoCite {
		off := false
		c.CitationsRequired = &off
	}
	return c
}

func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
