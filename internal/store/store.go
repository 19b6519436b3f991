// Package store persists run history so downstream report and
// dashboard tooling has a stable surface to read scored posts from.
// It is best-effort storage; the pipeline itself never depends on it.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"demandradar/internal/model"
)

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func migrate(conn *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    started_at  TEXT NOT NULL,
    post_count  INTEGER NOT NULL,
    gold_count  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS scored_posts (
    run_id            TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    post_id           TEXT NOT NULL,
    source            TEXT NOT NULL,
    title             TEXT NOT NULL,
    url               TEXT,
    post_score        INTEGER NOT NULL DEFAULT 0,
    comment_count     INTEGER NOT NULL DEFAULT 0,
    created_at        TEXT,
    opportunity_title TEXT,
    pain_summary      TEXT,
    tags              TEXT,
    app_count         INTEGER NOT NULL DEFAULT 0,
    avg_rating        REAL NOT NULL DEFAULT 0,
    demand_score      REAL NOT NULL DEFAULT 0,
    supply_score      REAL NOT NULL DEFAULT 0,
    opportunity_score REAL NOT NULL DEFAULT 0,
    gold_zone         INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, source, post_id)
);
CREATE INDEX IF NOT EXISTS idx_scored_posts_run ON scored_posts(run_id, opportunity_score DESC);
`
	_, err := conn.Exec(schema)
	return err
}

// RunInfo summarizes one saved run.
type RunInfo struct {
	ID        string
	StartedAt time.Time
	PostCount int
	GoldCount int
}

// SavedPost is a scored post read back from storage.
type SavedPost struct {
	RunID            string
	PostID           string
	Source           string
	Title            string
	URL              string
	OpportunityTitle string
	DemandScore      float64
	SupplyScore      float64
	OpportunityScore float64
	GoldZone         bool
}

// SaveRun stores a run and its scored posts in one transaction.
func (db *DB) SaveRun(runID string, startedAt time.Time, posts []model.ScoredPost) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	gold := 0
	for _, p := range posts {
		if p.GoldZone {
			gold++
		}
	}

	if _, err := tx.Exec(
		`INSERT INTO runs (id, started_at, post_count, gold_count) VALUES (?, ?, ?, ?)`,
		runID, startedAt.UTC().Format(time.RFC3339), len(posts), gold,
	); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.Prepare(`
INSERT INTO scored_posts (
    run_id, post_id, source, title, url, post_score, comment_count, created_at,
    opportunity_title, pain_summary, tags, app_count, avg_rating,
    demand_score, supply_score, opportunity_score, gold_zone
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range posts {
		goldInt := 0
		if p.GoldZone {
			goldInt = 1
		}
		if _, err := stmt.Exec(
			runID, p.ID, p.Source, p.Title, p.URL, p.Score, p.CommentCount,
			p.CreatedAt.UTC().Format(time.RFC3339),
			p.Opportunity.Title, p.Opportunity.PainSummary, strings.Join(p.Opportunity.Tags, ","),
			p.Competitive.AppCount, p.Competitive.AvgRating,
			p.DemandScore, p.SupplyScore, p.OpportunityScore, goldInt,
		); err != nil {
			return fmt.Errorf("inserting post %s: %w", p.Key(), err)
		}
	}

	return tx.Commit()
}

// LatestRun returns the most recently started run, or nil when the
// store is empty.
func (db *DB) LatestRun() (*RunInfo, error) {
	row := db.conn.QueryRow(
		`SELECT id, started_at, post_count, gold_count FROM runs ORDER BY started_at DESC LIMIT 1`)

	var info RunInfo
	var started string
	if err := row.Scan(&info.ID, &started, &info.PostCount, &info.GoldCount); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("querying latest run: %w", err)
	}
	info.StartedAt, _ = time.Parse(time.RFC3339, started)
	return &info, nil
}

// TopPosts returns the highest-opportunity posts of a run, optionally
// restricted to the gold zone.
func (db *DB) TopPosts(runID string, limit int, goldOnly bool) ([]SavedPost, error) {
	query := `
SELECT run_id, post_id, source, title, url, opportunity_title,
       demand_score, supply_score, opportunity_score, gold_zone
FROM scored_posts WHERE run_id = ?`
	if goldOnly {
		query += ` AND gold_zone = 1`
	}
	query += ` ORDER BY opportunity_score DESC LIMIT ?`

	rows, err := db.conn.Query(query, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying top posts: %w", err)
	}
	defer rows.Close()

	var posts []SavedPost
	for rows.Next() {
		var p SavedPost
		var gold int
		if err := rows.Scan(&p.RunID, &p.PostID, &p.Source, &p.Title, &p.URL,
			&p.OpportunityTitle, &p.DemandScore, &p.SupplyScore, &p.OpportunityScore, &gold); err != nil {
			return nil, fmt.Errorf("scanning post: %w", err)
		}
		p.GoldZone = gold == 1
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// Stats contains aggregate storage statistics.
type Stats struct {
	Runs      int
	Posts     int
	GoldPosts int
}

// GetStats returns aggregate counts across all saved runs.
func (db *DB) GetStats() (Stats, error) {
	var s Stats
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&s.Runs); err != nil {
		return s, fmt.Errorf("counting runs: %w", err)
	}
	if err := db.conn.QueryRow(`SELECT COUNT(*), COALESCE(SUM(gold_zone), 0) FROM scored_posts`).Scan(&s.Posts, &s.GoldPosts); err != nil {
		return s, fmt.Errorf("counting posts: %w", err)
	}
	return s, nil
}
