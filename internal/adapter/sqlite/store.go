// Package sqlite stores run records and segmented rows in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/NotCoffee418/dbmigrator"

	"github.com/couchcryptid/hive-weight-etl/internal/domain"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Run is a stored run record. FinishedAt is zero while the run is in progress.
type Run struct {
	ID              string
	StartedAt       time.Time
	FinishedAt      time.Time
	Status          string
	ReadingsLoaded  int
	ReadingsCleaned int
	UnitsSegmented  int
	UnitsSkipped    int
	Error           string
}

// Store is a results database. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and applies pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(db, migrationFS, "migrations")

	logger.Info("results database ready", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records the start of a run.
func (s *Store) BeginRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`,
		runID, startedAt.UTC().Format(time.RFC3339Nano), domain.RunRunning)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, runID string, finishedAt time.Time, sum domain.RunSummary) error {
	var errText sql.NullString
	if sum.Err != nil {
		errText = sql.NullString{String: sum.Err.Error(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ?, readings_loaded = ?, readings_cleaned = ?,
			units_segmented = ?, units_skipped = ?, error = ? WHERE id = ?`,
		finishedAt.UTC().Format(time.RFC3339Nano), sum.Status, sum.ReadingsLoaded, sum.ReadingsCleaned,
		sum.UnitsSegmented, sum.UnitsSkipped, errText, runID)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update run %s: no such run", runID)
	}
	return nil
}

// GetRun returns one run record.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	var (
		r                 Run
		started           string
		finished, errText sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, status, readings_loaded, readings_cleaned,
			units_segmented, units_skipped, error FROM runs WHERE id = ?`, runID).
		Scan(&r.ID, &started, &finished, &r.Status, &r.ReadingsLoaded, &r.ReadingsCleaned,
			&r.UnitsSegmented, &r.UnitsSkipped, &errText)
	if err != nil {
		return Run{}, fmt.Errorf("select run %s: %w", runID, err)
	}
	if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		if r.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String); err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	r.Error = errText.String
	return r, nil
}

// SaveSegments inserts the segmented rows of a run in one transaction.
func (s *Store) SaveSegments(ctx context.Context, runID string, rows []domain.SegmentRow) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin segments tx: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO segments (run_id, year, scale, segment, start_day, end_day, slope,
			weight_start, weight_end, weight_diff, weather)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare segment insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		weather, err := json.Marshal(r.Weather)
		if err != nil {
			return fmt.Errorf("encode weather summary: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, runID, r.Year, r.Scale, r.Segment, r.Start, r.End,
			nullable(r.Slope), nullable(r.WeightStart), nullable(r.WeightEnd), nullable(r.WeightDiff),
			string(weather)); err != nil {
			return fmt.Errorf("insert segment %s/%d: %w", domain.ModelKey(r.Year, r.Scale), r.Segment, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit segments: %w", err)
	}
	s.logger.Info("segments stored", "run_id", runID, "rows", len(rows))
	return nil
}

// Segments returns the stored rows of a run ordered by year, scale and segment.
func (s *Store) Segments(ctx context.Context, runID string) ([]domain.SegmentRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT year, scale, segment, start_day, end_day, slope, weight_start, weight_end,
			weight_diff, weather FROM segments WHERE run_id = ? ORDER BY year, scale, segment`, runID)
	if err != nil {
		return nil, fmt.Errorf("select segments: %w", err)
	}
	defer rows.Close()

	var out []domain.SegmentRow
	for rows.Next() {
		var (
			r                 domain.SegmentRow
			slope, ws, we, wd sql.NullFloat64
			weather           string
		)
		if err := rows.Scan(&r.Year, &r.Scale, &r.Segment, &r.Start, &r.End,
			&slope, &ws, &we, &wd, &weather); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		r.Slope, r.WeightStart, r.WeightEnd, r.WeightDiff = orNaN(slope), orNaN(ws), orNaN(we), orNaN(wd)
		if err := json.Unmarshal([]byte(weather), &r.Weather); err != nil {
			return nil, fmt.Errorf("decode weather summary: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
