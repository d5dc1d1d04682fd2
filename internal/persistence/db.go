// Package persistence provides SQLite-based storage for controller runs.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/nephron-sim/internal/engine"
)

// ErrNotFound is returned when a run ID has no stored row.
var ErrNotFound = errors.New("run not found")

// DB wraps a SQLite connection for run persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		label TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		days INTEGER NOT NULL,
		final_sodium REAL NOT NULL,
		final_potassium REAL NOT NULL,
		final_bicarbonate REAL NOT NULL,
		final_gfr REAL NOT NULL,
		guarded_iterations INTEGER NOT NULL,
		config_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS history (
		run_id TEXT NOT NULL,
		day INTEGER NOT NULL,
		sodium REAL NOT NULL,
		potassium REAL NOT NULL,
		bicarbonate REAL NOT NULL,
		distal_sodium_rate REAL NOT NULL,
		cortical_water_rate REAL NOT NULL,
		cortical_potassium_rate REAL NOT NULL,
		gfr REAL NOT NULL,
		delivery REAL NOT NULL,
		guarded_iterations INTEGER NOT NULL,
		loss_json TEXT NOT NULL,
		tracked_json TEXT NOT NULL,
		PRIMARY KEY (run_id, day)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is the stored summary of one controller run.
type Run struct {
	ID          string  `db:"id" json:"id"`
	Scenario    string  `db:"scenario" json:"scenario"`
	Label       string  `db:"label" json:"label"`
	CreatedAt   int64   `db:"created_at" json:"created_at"` // Unix seconds
	Days        int     `db:"days" json:"days"`
	Sodium      float64 `db:"final_sodium" json:"final_sodium"`
	Potassium   float64 `db:"final_potassium" json:"final_potassium"`
	Bicarbonate float64 `db:"final_bicarbonate" json:"final_bicarbonate"`
	GFR         float64 `db:"final_gfr" json:"final_gfr"`
	Guarded     int     `db:"guarded_iterations" json:"guarded_iterations"`
	ConfigJSON  string  `db:"config_json" json:"-"`
}

// Created returns the creation time.
func (r Run) Created() time.Time {
	return time.Unix(r.CreatedAt, 0)
}

// Config decodes the stored controller configuration.
func (r Run) Config() (engine.Config, error) {
	var cfg engine.Config
	if err := json.Unmarshal([]byte(r.ConfigJSON), &cfg); err != nil {
		return cfg, fmt.Errorf("decode config for run %s: %w", r.ID, err)
	}
	return cfg, nil
}

// NewRun summarizes a finished history under a fresh run ID.
func NewRun(scenario, label string, cfg engine.Config, hist *engine.History) (Run, error) {
	if hist.Len() == 0 {
		return Run{}, fmt.Errorf("empty history for scenario %s", scenario)
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return Run{}, fmt.Errorf("encode config: %w", err)
	}
	last := hist.Last()
	return Run{
		ID:          uuid.NewString(),
		Scenario:    scenario,
		Label:       label,
		CreatedAt:   time.Now().Unix(),
		Days:        last.Day,
		Sodium:      last.Sodium,
		Potassium:   last.Potassium,
		Bicarbonate: last.Bicarbonate,
		GFR:         last.GFR,
		Guarded:     hist.GuardedIterations(),
		ConfigJSON:  string(cfgJSON),
	}, nil
}

type historyRow struct {
	RunID                 string  `db:"run_id"`
	Day                   int     `db:"day"`
	Sodium                float64 `db:"sodium"`
	Potassium             float64 `db:"potassium"`
	Bicarbonate           float64 `db:"bicarbonate"`
	DistalSodiumRate      float64 `db:"distal_sodium_rate"`
	CorticalWaterRate     float64 `db:"cortical_water_rate"`
	CorticalPotassiumRate float64 `db:"cortical_potassium_rate"`
	GFR                   float64 `db:"gfr"`
	Delivery              float64 `db:"delivery"`
	GuardedIterations     int     `db:"guarded_iterations"`
	LossJSON              string  `db:"loss_json"`
	TrackedJSON           string  `db:"tracked_json"`
}

// SaveRun writes the run summary and its full history in one transaction.
func (db *DB) SaveRun(run Run, hist *engine.History) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`INSERT INTO runs
		(id, scenario, label, created_at, days, final_sodium, final_potassium,
		 final_bicarbonate, final_gfr, guarded_iterations, config_json)
		VALUES (:id, :scenario, :label, :created_at, :days, :final_sodium, :final_potassium,
		 :final_bicarbonate, :final_gfr, :guarded_iterations, :config_json)`, run)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.Preparex(`INSERT INTO history
		(run_id, day, sodium, potassium, bicarbonate, distal_sodium_rate,
		 cortical_water_rate, cortical_potassium_rate, gfr, delivery,
		 guarded_iterations, loss_json, tracked_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range hist.Records() {
		lossJSON, err := json.Marshal(r.DailyLoss)
		if err != nil {
			return fmt.Errorf("encode day %d loss: %w", r.Day, err)
		}
		trackedJSON, err := json.Marshal(r.Tracked)
		if err != nil {
			return fmt.Errorf("encode day %d tracked: %w", r.Day, err)
		}

		_, err = stmt.Exec(
			run.ID, r.Day, r.Sodium, r.Potassium, r.Bicarbonate,
			r.DistalSodiumRate, r.CorticalWaterRate, r.CorticalPotassiumRate,
			r.GFR, r.Delivery, r.GuardedIterations,
			string(lossJSON), string(trackedJSON),
		)
		if err != nil {
			return fmt.Errorf("insert day %d: %w", r.Day, err)
		}
	}

	if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('last_run', ?)", run.ID); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("run saved", "id", run.ID, "scenario", run.Scenario, "days", hist.Len()-1)
	return nil
}

// LoadRun returns the summary for id.
func (db *DB) LoadRun(id string) (Run, error) {
	var run Run
	err := db.conn.Get(&run, "SELECT * FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return run, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	runs := []Run{}
	err := db.conn.Select(&runs,
		"SELECT * FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	return runs, err
}

// LoadHistory rebuilds the day-by-day history of a stored run.
func (db *DB) LoadHistory(id string) (*engine.History, error) {
	var rows []historyRow
	if err := db.conn.Select(&rows, "SELECT * FROM history WHERE run_id = ? ORDER BY day", id); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	hist := engine.NewHistory()
	for _, row := range rows {
		rec := engine.DayRecord{
			Day:                   row.Day,
			Sodium:                row.Sodium,
			Potassium:             row.Potassium,
			Bicarbonate:           row.Bicarbonate,
			DistalSodiumRate:      row.DistalSodiumRate,
			CorticalWaterRate:     row.CorticalWaterRate,
			CorticalPotassiumRate: row.CorticalPotassiumRate,
			GFR:                   row.GFR,
			Delivery:              row.Delivery,
			GuardedIterations:     row.GuardedIterations,
		}
		if err := json.Unmarshal([]byte(row.LossJSON), &rec.DailyLoss); err != nil {
			return nil, fmt.Errorf("decode loss day %d: %w", row.Day, err)
		}
		if err := json.Unmarshal([]byte(row.TrackedJSON), &rec.Tracked); err != nil {
			return nil, fmt.Errorf("decode tracked day %d: %w", row.Day, err)
		}
		hist.Append(rec)
	}
	return hist, nil
}

// DeleteRun removes a run and its history.
func (db *DB) DeleteRun(id string) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM history WHERE run_id = ?", id); err != nil {
		return err
	}
	res, err := tx.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return tx.Commit()
}

// CountRuns returns the number of stored runs.
func (db *DB) CountRuns() (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM runs")
	return n, err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}
