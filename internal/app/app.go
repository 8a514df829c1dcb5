// Package app wires configuration, storage, sources and the engine
// into the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/signalsift/signalsift/internal/config"
	"github.com/signalsift/signalsift/internal/embed"
	"github.com/signalsift/signalsift/internal/engine"
	"github.com/signalsift/signalsift/internal/gemini"
	"github.com/signalsift/signalsift/internal/logger"
	"github.com/signalsift/signalsift/internal/metrics"
	"github.com/signalsift/signalsift/internal/model"
	"github.com/signalsift/signalsift/internal/report"
	"github.com/signalsift/signalsift/internal/source"
	"github.com/signalsift/signalsift/internal/storage"
)

// Scan runs one ingestion and scoring pass and prints the run summary.
func Scan(ctx context.Context, cfgPath string, out io.Writer) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SyncKeywords(cfg.Keywords); err != nil {
		return err
	}
	keywords, err := db.Keywords()
	if err != nil {
		return err
	}

	sources, err := source.FromConfig(cfg.Sources, cfg.RequestTimeout(), cfg.MaxItemsPerSource)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return errors.New("no enabled sources configured")
	}

	embedder, cache := setupEmbedding(ctx, cfg)

	eng := engine.New(cfg, sources, embedder, cache, db)
	started := time.Now()
	summary, err := eng.Run(ctx, keywords)
	metrics.Get().RecordRunDuration(time.Since(started))
	if err != nil {
		metrics.Get().SetError(err.Error())
		return err
	}

	fmt.Fprintf(out, "Run %s finished in %s\n", summary.RunID, time.Since(started).Round(time.Millisecond))
	fmt.Fprintf(out, "  collected: %d  malformed: %d  duplicates: %d\n",
		summary.ItemsCollected, summary.Malformed, summary.Duplicates)
	fmt.Fprintf(out, "  scored: %d  below gate: %d\n", summary.Scored, summary.Discarded)
	if summary.Degraded {
		fmt.Fprintln(out, "  mode: lexical-only (embeddings unavailable)")
	}
	for _, failed := range summary.FailedSources() {
		fmt.Fprintf(out, "  failed source: %s\n", failed)
	}
	return nil
}

// setupEmbedding probes Ollama and returns a nil embedder when it is
// unreachable, which puts the whole run into lexical-only mode.
func setupEmbedding(ctx context.Context, cfg *config.Config) (embed.Embedder, *embed.VectorCache) {
	client := embed.NewOllamaClient(cfg.OllamaURL, cfg.EmbeddingModel, cfg.RequestTimeout())
	if err := client.Ping(ctx); err != nil {
		logger.Warn("embedding backend unreachable, running lexical-only", "url", cfg.OllamaURL, "error", err)
		metrics.Get().RecordEmbeddingFailure()
		return nil, nil
	}

	cache := embed.NewVectorCache(cfg.CacheDir)
	if err := cache.Load(); err != nil {
		logger.Warn("could not load keyword vector cache", "error", err)
	}
	return client, cache
}

// Report renders the markdown report for the latest run, including
// trends computed over the two most recent windows.
func Report(ctx context.Context, cfgPath string, out io.Writer) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runID, err := db.LatestRunID()
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Fprintln(out, "Nothing scored yet. Run a scan first.")
			return nil
		}
		return err
	}

	scored, err := db.ScoredForRun(runID)
	if err != nil {
		return err
	}
	members, err := db.ClustersForRun(runID)
	if err != nil {
		return err
	}

	trends, err := computeTrends(db, cfg)
	if err != nil {
		return err
	}
	failed, err := db.FailedSourcesForRun(runID)
	if err != nil {
		return err
	}

	data := report.Data{
		GeneratedAt:   time.Now(),
		RunID:         runID,
		Scored:        scored,
		Members:       members,
		Trends:        trends,
		FailedSources: failed,
	}
	if cfg.GeminiAPIKey != "" && len(scored) > 0 {
		data.Digest = digest(ctx, cfg, data)
	}

	fmt.Fprint(out, report.Render(data))
	return nil
}

// computeTrends compares the last window against the one before it and
// records the result as a report artifact. The keyword set is read as
// of the window end, so recomputing a historical period never sees
// keywords declared after it.
func computeTrends(db *storage.DB, cfg *config.Config) ([]model.TrendRecord, error) {
	now := time.Now().UTC()
	keywords, err := db.KeywordsAsOf(now)
	if err != nil {
		return nil, err
	}

	window := cfg.TrendWindow()
	current, err := db.ScoredInRange(now.Add(-window), now)
	if err != nil {
		return nil, err
	}
	baseline, err := db.ScoredInRange(now.Add(-2*window), now.Add(-window))
	if err != nil {
		return nil, err
	}

	trends := engine.DetectTrends(keywords, current, baseline, engine.TrendConfig{
		RisingDelta:  cfg.RisingDelta,
		FallingDelta: cfg.FallingDelta,
		Share:        cfg.TrendScoreShare,
	})

	if err := db.RecordTrendPeriod(trends, now.Add(-window), now); err != nil {
		logger.Warn("could not record trend period", "error", err)
	}
	return trends, nil
}

func digest(ctx context.Context, cfg *config.Config, data report.Data) string {
	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.MaxGeminiRequests)
	if err != nil {
		logger.Warn("gemini unavailable, skipping digest", "error", err)
		return ""
	}
	defer client.Close()

	text, err := client.Digest(ctx, data.Scored)
	if err != nil {
		logger.Warn("digest generation failed", "error", err)
		return ""
	}
	return text
}

// Keywords implements `keywords [list|add <text> [weight]|remove <text>]`.
func Keywords(cfgPath string, args []string, out io.Writer) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.SyncKeywords(cfg.Keywords); err != nil {
		return err
	}

	action := "list"
	if len(args) > 0 {
		action = args[0]
	}

	switch action {
	case "list":
		keywords, err := db.Keywords()
		if err != nil {
			return err
		}
		if len(keywords) == 0 {
			fmt.Fprintln(out, "No keywords declared.")
			return nil
		}
		for _, kw := range keywords {
			fmt.Fprintf(out, "%3d. %s (weight %.1f)\n", kw.Position+1, kw.Text, kw.Weight)
		}
		return nil

	case "add":
		if len(args) < 2 {
			return errors.New("usage: keywords add <text> [weight]")
		}
		weight := 1.0
		if len(args) > 2 {
			weight, err = strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("bad weight %q: %w", args[2], err)
			}
		}
		if err := db.AddKeyword(args[1], weight); err != nil {
			return err
		}
		fmt.Fprintf(out, "Added %q\n", args[1])
		return nil

	case "remove":
		if len(args) < 2 {
			return errors.New("usage: keywords remove <text>")
		}
		if err := db.RemoveKeyword(args[1]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %q\n", args[1])
		return nil

	default:
		return fmt.Errorf("unknown keywords action %q", action)
	}
}

// Sources lists the configured sources and their enabled state.
func Sources(cfgPath string, out io.Writer) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if len(cfg.Sources) == 0 {
		fmt.Fprintln(out, "No sources configured.")
		return nil
	}
	for _, sc := range cfg.Sources {
		state := "enabled"
		if !sc.IsEnabled() {
			state = "disabled"
		}
		target := sc.Feed
		if target == "" {
			target = sc.Query
		}
		fmt.Fprintf(out, "%-10s %-20s %-8s %s\n", sc.Kind, sc.Name, state, target)
	}
	return nil
}

// Status prints store totals, the embedding backend state and the
// process metrics.
func Status(ctx context.Context, cfgPath string, out io.Writer) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	items, scored, err := db.Counts()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Store: %s\n  items: %d\n  scored snapshots: %d\n", cfg.DBPath, items, scored)

	if runID, err := db.LatestRunID(); err == nil {
		fmt.Fprintf(out, "  latest run: %s\n", runID)
	}

	client := embed.NewOllamaClient(cfg.OllamaURL, cfg.EmbeddingModel, cfg.RequestTimeout())
	if err := client.Ping(ctx); err != nil {
		fmt.Fprintf(out, "Embeddings: unreachable (%s) — runs will be lexical-only\n", cfg.OllamaURL)
	} else {
		fmt.Fprintf(out, "Embeddings: ok (%s, model %s)\n", cfg.OllamaURL, cfg.EmbeddingModel)
	}

	stats := metrics.Get().GetStats()
	fmt.Fprintf(out, "Process: runs=%v collected=%v scored=%v source_failures=%v\n",
		stats["runs_completed"], stats["items_collected"], stats["items_scored"], stats["source_failures"])
	return nil
}
