package store

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/i474232898/knmi-point-weather/internal/weather"
)

//go:embed sql/schema.sql
var schemaSQL string

const (
	insertSnapshotSQL = `INSERT INTO snapshots (location, name, lat, lon, run_id, fetched_at) VALUES (?, ?, ?, ?, ?, ?)`
	upsertPointSQL    = `INSERT INTO points (location, ts, metric, value, snapshot_id) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (location, ts, metric) DO UPDATE SET value = excluded.value, snapshot_id = excluded.snapshot_id`
	latestSnapshotSQL = `SELECT id, name, lat, lon, run_id, fetched_at FROM snapshots WHERE location = ? ORDER BY id DESC LIMIT 1`
	snapshotPointsSQL = `SELECT ts, metric, value FROM points WHERE snapshot_id = ? ORDER BY ts, metric`
	rangePointsSQL    = `SELECT ts, metric, value FROM points WHERE location = ? AND ts >= ? AND ts <= ? ORDER BY ts, metric`
	trimByCountSQL    = `DELETE FROM snapshots WHERE location = ? AND id NOT IN (
  SELECT id FROM snapshots WHERE location = ? ORDER BY id DESC LIMIT ?)`
	trimByAgeSQL = `DELETE FROM snapshots WHERE location = ? AND fetched_at < ? AND id <> (
  SELECT MAX(id) FROM snapshots WHERE location = ?)`
)

// SQLiteStore persists snapshots in a SQLite database. Points of a location
// are keyed by (timestamp, metric); a newer snapshot overwrites the values it
// covers.
type SQLiteStore struct {
	db         *sql.DB
	maxHistory int
	maxAge     time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

var _ weather.Store = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at path and applies the schema.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string, maxHistory int, maxAge time.Duration, log zerolog.Logger) (*SQLiteStore, error) {
	dsn, err := buildDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	// A single connection serializes writers and keeps an in-memory
	// database alive for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{
		db:         db,
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
		log:        log.With().Str("component", "store").Logger(),
	}, nil
}

func buildDSN(path string) (string, error) {
	params := []string{"_foreign_keys=on", "_busy_timeout=5000"}
	if path == ":memory:" {
		return "file::memory:?" + strings.Join(params, "&"), nil
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	params = append(params, "_journal_mode=WAL")
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&")), nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot stores the snapshot and its points in one transaction and
// enforces retention for the location.
func (s *SQLiteStore) SaveSnapshot(loc weather.Location, snapshot weather.Snapshot) (err error) {
	key := loc.Key()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.log.Error().Err(rbErr).Msg("rollback snapshot")
			}
		}
	}()

	res, err := tx.Exec(insertSnapshotSQL, key, loc.Name, loc.Lat, loc.Lon, snapshot.RunID, snapshot.FetchedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("snapshot id: %w", err)
	}

	stmt, err := tx.Prepare(upsertPointSQL)
	if err != nil {
		return fmt.Errorf("prepare points: %w", err)
	}
	defer stmt.Close()
	for _, p := range snapshot.Points {
		if _, err = stmt.Exec(key, p.Timestamp.Unix(), p.Metric, p.Value, id); err != nil {
			return fmt.Errorf("insert point: %w", err)
		}
	}

	if s.maxHistory > 0 {
		if _, err = tx.Exec(trimByCountSQL, key, key, s.maxHistory); err != nil {
			return fmt.Errorf("trim by count: %w", err)
		}
	}
	if s.maxAge > 0 {
		cutoff := s.now().Add(-s.maxAge).Unix()
		if _, err = tx.Exec(trimByAgeSQL, key, cutoff, key); err != nil {
			return fmt.Errorf("trim by age: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetLatest returns the most recent snapshot for a location.
func (s *SQLiteStore) GetLatest(loc weather.Location) (weather.Snapshot, error) {
	var (
		id        int64
		snap      weather.Snapshot
		fetchedAt int64
	)
	err := s.db.QueryRow(latestSnapshotSQL, loc.Key()).
		Scan(&id, &snap.Location.Name, &snap.Location.Lat, &snap.Location.Lon, &snap.RunID, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return weather.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return weather.Snapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	snap.FetchedAt = time.Unix(fetchedAt, 0).UTC()

	rows, err := s.db.Query(snapshotPointsSQL, id)
	if err != nil {
		return weather.Snapshot{}, fmt.Errorf("snapshot points: %w", err)
	}
	snap.Points, err = s.scanPoints(rows)
	if err != nil {
		return weather.Snapshot{}, err
	}
	return snap, nil
}

// GetRange returns the stored points of a location between from and to
// (inclusive).
func (s *SQLiteStore) GetRange(loc weather.Location, from, to time.Time) ([]weather.Point, error) {
	rows, err := s.db.Query(rangePointsSQL, loc.Key(), from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("range points: %w", err)
	}
	points, err := s.scanPoints(rows)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrNotFound
	}
	return points, nil
}

func (s *SQLiteStore) scanPoints(rows *sql.Rows) ([]weather.Point, error) {
	defer func() {
		if err := rows.Close(); err != nil {
			s.log.Error().Err(err).Msg("close point rows")
		}
	}()
	var out []weather.Point
	for rows.Next() {
		var (
			p  weather.Point
			ts int64
		)
		if err := rows.Scan(&ts, &p.Metric, &p.Value); err != nil {
			return nil, err
		}
		p.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}
