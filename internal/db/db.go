// Package db stores benchmark results and the controller command log in
// SQLite.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// NewDB opens (or creates) the SQLite database at path and applies any
// pending schema migrations. Use ":memory:" for an ephemeral database.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// SQLite only supports one writer; bounding the pool avoids lock errors
	// when the daemon and a benchmark write concurrently.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.migrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// BenchRun is one velocity/acceleration combination of a benchmark sweep.
type BenchRun struct {
	RunID            string    `json:"run_id"`
	Stage            string    `json:"stage"`
	VelocityMMS      float64   `json:"velocity_mms"`
	AccelerationMMSS float64   `json:"acceleration_mmss"`
	Torque           int64     `json:"torque"`
	Loops            int64     `json:"loops"`
	LapsCompleted    int64     `json:"laps_completed"`
	DistanceMM       float64   `json:"distance_mm"`
	TotalSeconds     float64   `json:"total_seconds"`
	MeanLapSeconds   float64   `json:"mean_lap_seconds"`
	MinLapSeconds    float64   `json:"min_lap_seconds"`
	MaxLapSeconds    float64   `json:"max_lap_seconds"`
	StddevLapSeconds float64   `json:"stddev_lap_seconds"`
	AvgSpeedMMS      float64   `json:"avg_speed_mms"`
	Aborted          bool      `json:"aborted"`
	AbortReason      string    `json:"abort_reason,omitempty"`
	StartedAt        time.Time `json:"started_at"`
}

// Lap is a single timed back-and-forth pass within a run.
type Lap struct {
	RunID   string  `json:"run_id"`
	Lap     int64   `json:"lap"`
	Seconds float64 `json:"seconds"`
}

// RecordRun inserts a completed (or aborted) benchmark run.
func (db *DB) RecordRun(run BenchRun) error {
	_, err := db.Exec(
		`INSERT INTO bench_runs (
			run_id, stage, velocity_mms, acceleration_mmss, torque, loops,
			laps_completed, distance_mm, total_seconds, mean_lap_seconds,
			min_lap_seconds, max_lap_seconds, stddev_lap_seconds,
			avg_speed_mms, aborted, abort_reason, started_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Stage, run.VelocityMMS, run.AccelerationMMSS,
		run.Torque, run.Loops, run.LapsCompleted, run.DistanceMM,
		run.TotalSeconds, run.MeanLapSeconds, run.MinLapSeconds,
		run.MaxLapSeconds, run.StddevLapSeconds, run.AvgSpeedMMS,
		run.Aborted, run.AbortReason, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.RunID, err)
	}
	return nil
}

// RecordLaps inserts the per-lap timings of a run in one transaction.
func (db *DB) RecordLaps(runID string, lapSeconds []float64) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin lap transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO bench_laps (run_id, lap, seconds) VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare lap insert: %w", err)
	}
	defer stmt.Close()

	for i, seconds := range lapSeconds {
		if _, err := stmt.Exec(runID, i, seconds); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record lap %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// RecordCommand logs a command/response pair executed on the controller.
func (db *DB) RecordCommand(command, response string) error {
	_, err := db.Exec(
		`INSERT INTO command_log (command, response) VALUES (?, ?)`,
		command, response,
	)
	if err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	return nil
}

// Runs returns all benchmark runs, most recent first.
func (db *DB) Runs() ([]BenchRun, error) {
	rows, err := db.Query(
		`SELECT run_id, stage, velocity_mms, acceleration_mmss, torque, loops,
			laps_completed, distance_mm, total_seconds, mean_lap_seconds,
			min_lap_seconds, max_lap_seconds, stddev_lap_seconds,
			avg_speed_mms, aborted, abort_reason, started_at
		FROM bench_runs ORDER BY started_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []BenchRun
	for rows.Next() {
		var run BenchRun
		var abortReason sql.NullString
		if err := rows.Scan(
			&run.RunID, &run.Stage, &run.VelocityMMS, &run.AccelerationMMSS,
			&run.Torque, &run.Loops, &run.LapsCompleted, &run.DistanceMM,
			&run.TotalSeconds, &run.MeanLapSeconds, &run.MinLapSeconds,
			&run.MaxLapSeconds, &run.StddevLapSeconds, &run.AvgSpeedMMS,
			&run.Aborted, &abortReason, &run.StartedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.AbortReason = abortReason.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// RunLaps returns the lap timings of one run in lap order.
func (db *DB) RunLaps(runID string) ([]Lap, error) {
	rows, err := db.Query(
		`SELECT run_id, lap, seconds FROM bench_laps WHERE run_id = ? ORDER BY lap`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query laps for run %s: %w", runID, err)
	}
	defer rows.Close()

	var laps []Lap
	for rows.Next() {
		var lap Lap
		if err := rows.Scan(&lap.RunID, &lap.Lap, &lap.Seconds); err != nil {
			return nil, fmt.Errorf("failed to scan lap: %w", err)
		}
		laps = append(laps, lap)
	}
	return laps, rows.Err()
}

// FastestRun returns the run with the highest average speed, or nil when no
// completed runs exist.
func (db *DB) FastestRun() (*BenchRun, error) {
	runs, err := db.Runs()
	if err != nil {
		return nil, err
	}
	var best *BenchRun
	for i := range runs {
		if runs[i].Aborted {
			continue
		}
		if best == nil || runs[i].AvgSpeedMMS > best.AvgSpeedMMS {
			best = &runs[i]
		}
	}
	return best, nil
}
