package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/signalsift/signalsift/internal/config"
	"github.com/signalsift/signalsift/internal/embed"
	"github.com/signalsift/signalsift/internal/index"
	"github.com/signalsift/signalsift/internal/logger"
	"github.com/signalsift/signalsift/internal/metrics"
	"github.com/signalsift/signalsift/internal/model"
	"github.com/signalsift/signalsift/internal/retry"
	"github.com/signalsift/signalsift/internal/source"
)

// ErrAllSourcesFailed aborts a run when not a single source produced
// items. Partial failure is tolerated and reported, total failure is
// not.
var ErrAllSourcesFailed = errors.New("all sources failed")

// Store is what the engine needs from persistence. UpsertItem must be
// idempotent on (source, external id).
type Store interface {
	UpsertItem(item model.Item) (inserted bool, err error)
	SaveScored(items []model.ScoredItem) error
	SaveClusters(runID string, clusters []model.DuplicateCluster) error
	SaveSourceResults(runID string, results []model.SourceResult) error
}

// Engine executes one scan run: concurrent retried ingestion, the
// dedup barrier, then scoring against an index built in a serialized
// keyword-vector phase.
type Engine struct {
	cfg      *config.Config
	sources  []source.Source
	embedder embed.Embedder // nil means lexical-only from the start
	cache    *embed.VectorCache
	store    Store
	now      func() time.Time
}

func New(cfg *config.Config, sources []source.Source, embedder embed.Embedder, cache *embed.VectorCache, store Store) *Engine {
	return &Engine{
		cfg:      cfg,
		sources:  sources,
		embedder: embedder,
		cache:    cache,
		store:    store,
		now:      time.Now,
	}
}

// Run executes the pipeline once. It always returns a summary, also on
// error, so callers can report what was obtained before the failure.
func (e *Engine) Run(ctx context.Context, keywords []model.Keyword) (*model.RunSummary, error) {
	summary := &model.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: e.now(),
	}
	logger.Info("run started", "run_id", summary.RunID, "sources", len(e.sources), "keywords", len(keywords))

	// Keyword vectors are a serialized phase: the index must be
	// complete and read-only before any scoring happens.
	idx := e.buildIndex(ctx, keywords)
	scorer := NewScorer(e.cfg, keywords, idx, e.embedder)
	summary.Degraded = scorer.Degraded()

	items := e.ingest(ctx, summary)
	// Persist per-source outcomes before the all-failed check, so even
	// an aborted run leaves a record of what went wrong.
	if err := e.store.SaveSourceResults(summary.RunID, summary.Sources); err != nil {
		logger.Error("could not persist source results", "run_id", summary.RunID, "error", err)
	}
	if len(summary.Sources) > 0 && len(summary.FailedSources()) == len(summary.Sources) {
		return summary, ErrAllSourcesFailed
	}

	items = e.filterAndPersist(items, summary)

	// Dedup needs the full view of the run's items, so it is the
	// barrier between ingestion and scoring.
	sim := e.similarityFunc(ctx, items)
	clusters := ClusterDuplicates(items, e.cfg.DuplicateWindow(), e.cfg.DuplicateThreshold, sim)
	summary.Duplicates = len(items) - len(clusters)
	if err := e.store.SaveClusters(summary.RunID, clusters); err != nil {
		return summary, fmt.Errorf("save clusters: %w", err)
	}

	scored := e.scoreClusters(ctx, summary, scorer, clusters)
	if err := e.store.SaveScored(scored); err != nil {
		return summary, fmt.Errorf("save scored items: %w", err)
	}
	summary.Degraded = scorer.Degraded()

	metrics.Get().RecordRun(summary.ItemsCollected, summary.Scored, len(summary.FailedSources()))
	logger.Info("run finished",
		"run_id", summary.RunID,
		"collected", summary.ItemsCollected,
		"clusters", len(clusters),
		"scored", summary.Scored,
		"discarded", summary.Discarded,
		"failed_sources", summary.FailedSources(),
		"degraded", summary.Degraded)
	return summary, nil
}

// buildIndex embeds the keyword set and constructs the similarity
// index. Returns nil when embeddings are unavailable; the scorer then
// degrades to lexical-only instead of aborting the run.
func (e *Engine) buildIndex(ctx context.Context, keywords []model.Keyword) index.Strategy {
	if e.embedder == nil || len(keywords) == 0 {
		return nil
	}

	modelName := e.embedder.ModelName()
	entries := make([]index.Entry, 0, len(keywords))
	var missing []model.Keyword

	for _, kw := range keywords {
		if e.cache != nil {
			if vec, ok := e.cache.Get(kw.Text, modelName); ok {
				entries = append(entries, index.Entry{Keyword: kw, Vector: vec})
				continue
			}
		}
		missing = append(missing, kw)
	}

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for i, kw := range missing {
			texts[i] = kw.Text
		}
		vecs, err := e.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			logger.Warn("keyword embedding unavailable, degrading to lexical matching", "error", err)
			metrics.Get().RecordEmbeddingFailure()
			return nil
		}
		for i, kw := range missing {
			entries = append(entries, index.Entry{Keyword: kw, Vector: vecs[i]})
			if e.cache != nil {
				e.cache.Put(kw.Text, modelName, vecs[i])
			}
		}
		if e.cache != nil {
			if err := e.cache.Save(); err != nil {
				logger.Warn("could not persist keyword vector cache", "error", err)
			}
		}
	}

	// Keyword order defines the similarity tie-break, keep it stable.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Keyword.Position < entries[j].Keyword.Position
	})
	return index.New(entries, e.cfg.AcceleratedIndex)
}

// ingest fetches every source concurrently, each wrapped in the shared
// retry policy. Backoff in one source never blocks the others.
func (e *Engine) ingest(ctx context.Context, summary *model.RunSummary) []model.Item {
	since := e.now().Add(-e.cfg.ItemMaxAge())
	retryCfg := retry.Config{
		MaxAttempts: e.cfg.RetryAttempts,
		BaseWait:    e.cfg.RetryBaseWait(),
		MaxWait:     e.cfg.RetryMaxWait(),
		Jitter:      true,
	}

	var (
		mu    sync.Mutex
		items []model.Item
		wg    sync.WaitGroup
	)
	summary.Sources = make([]model.SourceResult, len(e.sources))

	for i, src := range e.sources {
		wg.Add(1)
		go func(i int, src source.Source) {
			defer wg.Done()

			task := retry.NewTask(src.Name(), retryCfg)
			var fetched []model.Item
			err := task.Run(ctx, func() error {
				var ferr error
				fetched, ferr = src.Fetch(ctx, since)
				return ferr
			})

			mu.Lock()
			defer mu.Unlock()
			summary.Sources[i] = model.SourceResult{
				Source:   src.Name(),
				Items:    len(fetched),
				Attempts: task.Attempts,
				Err:      err,
			}
			if err != nil {
				logger.Error("source failed after retries", "source", src.Name(), "attempts", task.Attempts, "error", err)
				metrics.Get().RecordSourceFailure(src.Name())
				return
			}
			items = append(items, fetched...)
		}(i, src)
	}
	wg.Wait()
	return items
}

// filterAndPersist drops malformed and stale items, upserts the rest
// and keeps only the items of this run for clustering. Re-ingested
// known items count as collected but are not re-clustered.
func (e *Engine) filterAndPersist(items []model.Item, summary *model.RunSummary) []model.Item {
	cutoff := e.now().Add(-e.cfg.ItemMaxAge())
	kept := items[:0]
	for _, it := range items {
		if !it.Valid() {
			summary.Malformed++
			continue
		}
		if it.Published.Before(cutoff) {
			continue
		}
		inserted, err := e.store.UpsertItem(it)
		if err != nil {
			logger.Error("item upsert failed", "source", it.Source, "id", it.ExternalID, "error", err)
			continue
		}
		summary.ItemsCollected++
		if inserted {
			kept = append(kept, it)
		}
	}
	return kept
}

// similarityFunc returns the dedup comparison: cosine over item
// vectors when the embedder is up, token overlap otherwise. Vectors
// are computed once per item up front.
func (e *Engine) similarityFunc(ctx context.Context, items []model.Item) SimilarityFunc {
	if e.embedder == nil || len(items) < 2 {
		return JaccardSimilarity
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text()
	}
	vecs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		logger.Warn("dedup falling back to token overlap", "error", err)
		return JaccardSimilarity
	}

	byKey := make(map[string][]float32, len(items))
	for i, it := range items {
		byKey[it.Source+"\x00"+it.ExternalID] = vecs[i]
	}
	return func(a, b model.Item) float64 {
		va, oka := byKey[a.Source+"\x00"+a.ExternalID]
		vb, okb := byKey[b.Source+"\x00"+b.ExternalID]
		if !oka || !okb {
			return JaccardSimilarity(a, b)
		}
		return index.CosineSimilarity(va, vb)
	}
}

// scoreClusters scores each cluster representative. The index is
// read-only here, so representatives are scored concurrently and the
// output is re-sorted into a deterministic order.
func (e *Engine) scoreClusters(ctx context.Context, summary *model.RunSummary, scorer *Scorer, clusters []model.DuplicateCluster) []model.ScoredItem {
	now := e.now()

	var (
		mu     sync.Mutex
		scored []model.ScoredItem
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, 4)

	for _, cl := range clusters {
		wg.Add(1)
		go func(it model.Item) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			si, ok := scorer.Score(ctx, summary.RunID, it, now)
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				summary.Discarded++
				return
			}
			scored = append(scored, si)
		}(cl.Representative)
	}
	wg.Wait()

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Composite != scored[j].Composite {
			return scored[i].Composite > scored[j].Composite
		}
		if scored[i].Item.Source != scored[j].Item.Source {
			return scored[i].Item.Source < scored[j].Item.Source
		}
		return scored[i].Item.ExternalID < scored[j].Item.ExternalID
	})
	summary.Scored = len(scored)
	return scored
}
