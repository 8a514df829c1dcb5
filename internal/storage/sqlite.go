// Package storage persists items, scored snapshots, clusters, keywords
// and trend periods in SQLite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signalsift/signalsift/internal/model"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("not found")

// DB wraps the SQLite connection and provides the storage operations.
type DB struct {
	conn *sql.DB
}

// Open creates a connection to the database at path ( ":memory:" for
// tests) and initializes the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows one writer; serialize access through a single
	// connection instead of failing with SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS keywords (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL UNIQUE,
		weight REAL NOT NULL DEFAULT 1.0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		external_id TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT,
		author TEXT,
		url TEXT,
		published DATETIME NOT NULL,
		score REAL NOT NULL DEFAULT 0,
		comments REAL NOT NULL DEFAULT 0,
		first_seen DATETIME NOT NULL,
		UNIQUE(source, external_id)
	);

	CREATE INDEX IF NOT EXISTS idx_items_published ON items(published);

	CREATE TABLE IF NOT EXISTS scored_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		source TEXT NOT NULL,
		external_id TEXT NOT NULL,
		keyword TEXT NOT NULL,
		match_kind TEXT NOT NULL,
		similarity REAL NOT NULL,
		span TEXT,
		composite REAL NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		polarity REAL NOT NULL DEFAULT 0,
		urgency TEXT NOT NULL DEFAULT '',
		degraded INTEGER NOT NULL DEFAULT 0,
		scored_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_scored_run ON scored_items(run_id);
	CREATE INDEX IF NOT EXISTS idx_scored_at ON scored_items(scored_at);

	CREATE TABLE IF NOT EXISTS clusters (
		run_id TEXT NOT NULL,
		rep_source TEXT NOT NULL,
		rep_external_id TEXT NOT NULL,
		member_source TEXT NOT NULL,
		member_external_id TEXT NOT NULL,
		member_url TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_clusters_run ON clusters(run_id);

	CREATE TABLE IF NOT EXISTS source_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		source TEXT NOT NULL,
		items INTEGER NOT NULL,
		attempts INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_source_results_run ON source_results(run_id);

	CREATE TABLE IF NOT EXISTS trend_periods (
		keyword TEXT NOT NULL,
		period_start DATETIME NOT NULL,
		period_end DATETIME NOT NULL,
		current_count INTEGER NOT NULL,
		baseline_count INTEGER NOT NULL,
		current_mean REAL NOT NULL,
		baseline_mean REAL NOT NULL,
		delta REAL NOT NULL,
		direction TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE(keyword, period_start, period_end)
	);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SyncKeywords inserts file-declared keywords not yet present,
// preserving declaration order. Existing keywords keep their weight.
func (db *DB) SyncKeywords(texts []string) error {
	for _, text := range texts {
		_, err := db.conn.Exec(
			`INSERT OR IGNORE INTO keywords (text, weight, created_at) VALUES (?, 1.0, ?)`,
			text, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("sync keyword %q: %w", text, err)
		}
	}
	return nil
}

// AddKeyword declares a new keyword. Adding an existing one is an
// error, since keyword text is immutable once declared.
func (db *DB) AddKeyword(text string, weight float64) error {
	if weight <= 0 {
		weight = 1.0
	}
	_, err := db.conn.Exec(
		`INSERT INTO keywords (text, weight, created_at) VALUES (?, ?, ?)`,
		text, weight, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("add keyword %q: %w", text, err)
	}
	return nil
}

func (db *DB) RemoveKeyword(text string) error {
	res, err := db.conn.Exec(`DELETE FROM keywords WHERE text = ?`, text)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("keyword %q: %w", text, ErrNotFound)
	}
	return nil
}

// Keywords returns the full keyword set in declaration order. Position
// is the zero-based declaration index used for similarity tie-breaks.
func (db *DB) Keywords() ([]model.Keyword, error) {
	return db.queryKeywords(`SELECT text, weight, created_at FROM keywords ORDER BY id`)
}

// KeywordsAsOf returns the keywords that existed at t, in declaration
// order. Historical trend windows read the keyword set through this so
// recomputing an old period does not see later additions.
func (db *DB) KeywordsAsOf(t time.Time) ([]model.Keyword, error) {
	return db.queryKeywords(
		`SELECT text, weight, created_at FROM keywords WHERE created_at <= ? ORDER BY id`,
		t.UTC())
}

func (db *DB) queryKeywords(query string, args ...any) ([]model.Keyword, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keywords []model.Keyword
	for rows.Next() {
		var kw model.Keyword
		if err := rows.Scan(&kw.Text, &kw.Weight, &kw.CreatedAt); err != nil {
			return nil, err
		}
		kw.Position = len(keywords)
		keywords = append(keywords, kw)
	}
	return keywords, rows.Err()
}

// UpsertItem stores an item keyed by (source, external id). Inserted
// reports whether the item was new; re-ingesting a known id only
// refreshes its engagement metrics, never duplicates it.
func (db *DB) UpsertItem(it model.Item) (bool, error) {
	res, err := db.conn.Exec(`
		INSERT OR IGNORE INTO items
			(source, external_id, title, body, author, url, published, score, comments, first_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.Source, it.ExternalID, it.Title, it.Body, it.Author, it.URL,
		it.Published.UTC(), it.Score, it.Comments, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("upsert item %s/%s: %w", it.Source, it.ExternalID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}

	_, err = db.conn.Exec(
		`UPDATE items SET score = ?, comments = ? WHERE source = ? AND external_id = ?`,
		it.Score, it.Comments, it.Source, it.ExternalID)
	return false, err
}

// SaveScored appends the run's scored snapshots. Snapshots are
// append-only: existing rows are never updated.
func (db *DB) SaveScored(items []model.ScoredItem) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO scored_items
			(run_id, source, external_id, keyword, match_kind, similarity, span,
			 composite, category, polarity, urgency, degraded, scored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, si := range items {
		_, err := stmt.Exec(
			si.RunID, si.Item.Source, si.Item.ExternalID,
			si.Best.Keyword, string(si.Best.Kind), si.Best.Similarity, si.Best.Span,
			si.Composite, si.Annotation.Category, si.Annotation.Polarity,
			si.Annotation.Urgency, si.Degraded, si.ScoredAt.UTC())
		if err != nil {
			return fmt.Errorf("save scored %s/%s: %w", si.Item.Source, si.Item.ExternalID, err)
		}
	}
	return tx.Commit()
}

// SaveClusters records merged-member provenance for the run. Clusters
// without members need no rows, the representative is already an item.
func (db *DB) SaveClusters(runID string, clusters []model.DuplicateCluster) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO clusters
			(run_id, rep_source, rep_external_id, member_source, member_external_id, member_url)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range clusters {
		for _, m := range c.Members {
			_, err := stmt.Exec(runID,
				c.Representative.Source, c.Representative.ExternalID,
				m.Source, m.ExternalID, m.URL)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// SaveSourceResults records each source's ingestion outcome for the
// run, so reports generated later can disclose partial failures.
func (db *DB) SaveSourceResults(runID string, results []model.SourceResult) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO source_results
			(run_id, source, items, attempts, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sr := range results {
		errText := ""
		if sr.Err != nil {
			errText = sr.Err.Error()
		}
		_, err := stmt.Exec(runID, sr.Source, sr.Items, sr.Attempts, errText, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("save source result %s: %w", sr.Source, err)
		}
	}
	return tx.Commit()
}

// FailedSourcesForRun lists the sources that exhausted their retries
// during the run, in ingestion order.
func (db *DB) FailedSourcesForRun(runID string) ([]string, error) {
	rows, err := db.conn.Query(
		`SELECT source FROM source_results WHERE run_id = ? AND error != '' ORDER BY id`,
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failed []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, err
		}
		failed = append(failed, src)
	}
	return failed, rows.Err()
}

const scoredSelect = `
	SELECT s.run_id, s.keyword, s.match_kind, s.similarity, s.span,
	       s.composite, s.category, s.polarity, s.urgency, s.degraded, s.scored_at,
	       i.source, i.external_id, i.title, i.body, i.author, i.url,
	       i.published, i.score, i.comments
	FROM scored_items s
	JOIN items i ON i.source = s.source AND i.external_id = s.external_id`

// ScoredInRange returns snapshots scored inside [from, to), joined
// back to their items. Trend detection reads its windows through this.
func (db *DB) ScoredInRange(from, to time.Time) ([]model.ScoredItem, error) {
	rows, err := db.conn.Query(
		scoredSelect+` WHERE s.scored_at >= ? AND s.scored_at < ? ORDER BY s.id`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return scanScored(rows)
}

// ScoredForRun returns the snapshots of one run, highest score first.
func (db *DB) ScoredForRun(runID string) ([]model.ScoredItem, error) {
	rows, err := db.conn.Query(
		scoredSelect+` WHERE s.run_id = ? ORDER BY s.composite DESC, s.id`, runID)
	if err != nil {
		return nil, err
	}
	return scanScored(rows)
}

func scanScored(rows *sql.Rows) ([]model.ScoredItem, error) {
	defer rows.Close()

	var out []model.ScoredItem
	for rows.Next() {
		var si model.ScoredItem
		var kind string
		err := rows.Scan(
			&si.RunID, &si.Best.Keyword, &kind, &si.Best.Similarity, &si.Best.Span,
			&si.Composite, &si.Annotation.Category, &si.Annotation.Polarity,
			&si.Annotation.Urgency, &si.Degraded, &si.ScoredAt,
			&si.Item.Source, &si.Item.ExternalID, &si.Item.Title, &si.Item.Body,
			&si.Item.Author, &si.Item.URL, &si.Item.Published,
			&si.Item.Score, &si.Item.Comments)
		if err != nil {
			return nil, err
		}
		si.Best.Kind = model.MatchKind(kind)
		out = append(out, si)
	}
	return out, rows.Err()
}

// LatestRunID returns the most recently written run.
func (db *DB) LatestRunID() (string, error) {
	var runID string
	err := db.conn.QueryRow(
		`SELECT run_id FROM scored_items ORDER BY id DESC LIMIT 1`).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return runID, err
}

// ClustersForRun returns the run's merged-member provenance grouped by
// representative.
func (db *DB) ClustersForRun(runID string) (map[string][]model.ClusterMember, error) {
	rows, err := db.conn.Query(`
		SELECT rep_source, rep_external_id, member_source, member_external_id, member_url
		FROM clusters WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]model.ClusterMember)
	for rows.Next() {
		var repSource, repID string
		var m model.ClusterMember
		if err := rows.Scan(&repSource, &repID, &m.Source, &m.ExternalID, &m.URL); err != nil {
			return nil, err
		}
		key := repSource + "/" + repID
		out[key] = append(out[key], m)
	}
	return out, rows.Err()
}

// RecordTrendPeriod persists the computed trend records as a report
// artifact. Re-recording the same period overwrites, keeping the
// recomputation idempotent.
func (db *DB) RecordTrendPeriod(records []model.TrendRecord, periodStart, periodEnd time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO trend_periods
			(keyword, period_start, period_end, current_count, baseline_count,
			 current_mean, baseline_mean, delta, direction, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(keyword, period_start, period_end) DO UPDATE SET
			current_count = excluded.current_count,
			baseline_count = excluded.baseline_count,
			current_mean = excluded.current_mean,
			baseline_mean = excluded.baseline_mean,
			delta = excluded.delta,
			direction = excluded.direction`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.Exec(
			r.Keyword, periodStart.UTC(), periodEnd.UTC(),
			r.CurrentCount, r.BaselineCount, r.CurrentMean, r.BaselineMean,
			r.Delta, string(r.Direction), time.Now().UTC())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Counts reports stored totals for the status command.
func (db *DB) Counts() (items, scored int64, err error) {
	if err = db.conn.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&items); err != nil {
		return 0, 0, err
	}
	if err = db.conn.QueryRow(`SELECT COUNT(*) FROM scored_items`).Scan(&scored); err != nil {
		return 0, 0, err
	}
	return items, scored, nil
}
