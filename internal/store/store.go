// Package store persists pattern profiles and completed review results in
// SQLite so both survive process restart. The engine only needs key-value
// get/put plus atomic increments; the schema here is deliberately flat.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/parable-ai/coderev/internal/model"
	"github.com/parable-ai/coderev/internal/pattern"
)

// ErrNotFound is returned when a requested review is absent.
var ErrNotFound = errors.New("store: not found")

// DB wraps the SQLite database. It implements pattern.Store.
type DB struct {
	db *sql.DB
}

var _ pattern.Store = (*DB)(nil)

// Open initializes the database at path, creating directories and schema
// as needed.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// modernc sqlite is not safe for concurrent writers on one connection
	// pool without WAL; a single connection keeps increments serialized.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring database: %w", err)
	}

	s := &DB{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DB) initialize() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS pattern_profiles (
		team_id      TEXT NOT NULL,
		category     TEXT NOT NULL,
		accepted     INTEGER NOT NULL DEFAULT 0,
		dismissed    INTEGER NOT NULL DEFAULT 0,
		last_updated DATETIME NOT NULL,
		PRIMARY KEY (team_id, category)
	);
	CREATE TABLE IF NOT EXISTS reviews (
		fingerprint TEXT PRIMARY KEY,
		team_id     TEXT NOT NULL,
		path        TEXT NOT NULL,
		computed_at DATETIME NOT NULL,
		payload     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reviews_team ON reviews(team_id, computed_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initializing schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *DB) Close() error { return s.db.Close() }

// Bias implements pattern.Store.
func (s *DB) Bias(teamID, category string) (float64, error) {
	var accepted, dismissed int64
	err := s.db.QueryRow(
		`SELECT accepted, dismissed FROM pattern_profiles WHERE team_id = ? AND category = ?`,
		teamID, category,
	).Scan(&accepted, &dismissed)
	if errors.Is(err, sql.ErrNoRows) {
		return 0.5, nil
	}
	if err != nil {
		return 0.5, fmt.Errorf("reading profile: %w", err)
	}
	return pattern.Bias(accepted, dismissed), nil
}

// RecordFeedback implements pattern.Store. The upsert increment is
// commutative, so concurrent feedback events need no ordering.
func (s *DB) RecordFeedback(teamID, category string, accepted bool) error {
	acc, dis := 0, 0
	if accepted {
		acc = 1
	} else {
		dis = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO pattern_profiles (team_id, category, accepted, dismissed, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (team_id, category) DO UPDATE SET
			accepted     = accepted + excluded.accepted,
			dismissed    = dismissed + excluded.dismissed,
			last_updated = excluded.last_updated`,
		teamID, category, acc, dis, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording feedback: %w", err)
	}
	return nil
}

// Profiles implements pattern.Store.
func (s *DB) Profiles(teamID string) ([]pattern.Profile, error) {
	rows, err := s.db.Query(
		`SELECT category, accepted, dismissed, last_updated
		 FROM pattern_profiles WHERE team_id = ? ORDER BY category`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var out []pattern.Profile
	for rows.Next() {
		p := pattern.Profile{TeamID: teamID}
		if err := rows.Scan(&p.Category, &p.Accepted, &p.Dismissed, &p.LastUpdated); err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Decay implements pattern.Store.
func (s *DB) Decay(teamID string, factor float64) error {
	if factor <= 0 || factor >= 1 {
		return nil
	}
	_, err := s.db.Exec(`
		UPDATE pattern_profiles SET
			accepted     = CAST(accepted * ? AS INTEGER),
			dismissed    = CAST(dismissed * ? AS INTEGER),
			last_updated = ?
		WHERE team_id = ?`,
		factor, factor, time.Now().UTC(), teamID,
	)
	if err != nil {
		return fmt.Errorf("decaying profiles: %w", err)
	}
	return nil
}

// SaveReview persists a completed result keyed by fingerprint.
func (s *DB) SaveReview(result *model.ReviewResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding review: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO reviews (fingerprint, team_id, path, computed_at, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET
			team_id     = excluded.team_id,
			computed_at = excluded.computed_at,
			payload     = excluded.payload`,
		result.Unit.Fingerprint, result.TeamID, result.Unit.Path, result.ComputedAt.UTC(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("saving review: %w", err)
	}
	return nil
}

// GetReview loads a persisted result by fingerprint.
func (s *DB) GetReview(fingerprint string) (*model.ReviewResult, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM reviews WHERE fingerprint = ?`, fingerprint).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading review: %w", err)
	}
	var result model.ReviewResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("decoding review: %w", err)
	}
	return &result, nil
}

// ListReviews returns the most recent persisted results for a team.
func (s *DB) ListReviews(teamID string, limit int) ([]*model.ReviewResult, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		`SELECT payload FROM reviews WHERE team_id = ? ORDER BY computed_at DESC LIMIT ?`,
		teamID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	defer rows.Close()

	var out []*model.ReviewResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning review: %w", err)
		}
		var result model.ReviewResult
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			return nil, fmt.Errorf("decoding review: %w", err)
		}
		out = append(out, &result)
	}
	return out, rows.Err()
}

// DeleteReview removes a persisted result.
func (s *DB) DeleteReview(fingerprint string) error {
	res, err := s.db.Exec(`DELETE FROM reviews WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return fmt.Errorf("deleting review: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
