package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shopspring/decimal"
)

// SQLite persists the run ledger to a SQLite database.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	// The busy timeout covers concurrent runs journaling into the same
	// database file; without it a locked write fails immediately with
	// SQLITE_BUSY.
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return nil, fmt.Errorf("open journal db: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordStep(r StepRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO steps (run_id, time, actions, results, partial, critical)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Time, r.Actions, r.Results, r.Partial, r.Critical,
	)
	return err
}

func (j *SQLite) RecordPosition(r PositionRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO positions (run_id, time, venue, asset, kind, quantity)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Time, r.Venue, r.Asset, r.Kind, r.Quantity.String(),
	)
	return err
}

func (j *SQLite) RecordResult(r ResultRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO results
		(run_id, time, instruction_id, venue, asset, kind, status, requested, filled, price, fee, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Time, r.InstructionID, r.Venue, r.Asset, r.Kind, r.Status,
		r.Requested.String(), r.Filled.String(), r.Price.String(), r.Fee.String(), r.Reason,
	)
	return err
}

func (j *SQLite) RecordRun(r RunRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO runs (run_id, mode, state, started, ended, steps, failure)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Mode, r.State, r.Start, r.End, r.Steps, r.Failure,
	)
	return err
}

// GetRun loads one run's summary row.
func (j *SQLite) GetRun(runID string) (RunRecord, error) {
	row := j.db.QueryRow(`
		SELECT run_id, mode, state, started, ended, steps, failure
		FROM runs WHERE run_id = ?`, runID)

	var r RunRecord
	if err := row.Scan(&r.RunID, &r.Mode, &r.State, &r.Start, &r.End, &r.Steps, &r.Failure); err != nil {
		return RunRecord{}, fmt.Errorf("get run %q: %w", runID, err)
	}
	return r, nil
}

// ListSteps returns a run's step summaries in timestamp order.
func (j *SQLite) ListSteps(runID string) ([]StepRecord, error) {
	rows, err := j.db.Query(`
		SELECT run_id, time, actions, results, partial, critical
		FROM steps WHERE run_id = ? ORDER BY time`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StepRecord
	for rows.Next() {
		var r StepRecord
		if err := rows.Scan(&r.RunID, &r.Time, &r.Actions, &r.Results, &r.Partial, &r.Critical); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListPositionsAt returns the position rows recorded for one timestamp.
func (j *SQLite) ListPositionsAt(runID string, ts time.Time) ([]PositionRecord, error) {
	rows, err := j.db.Query(`
		SELECT run_id, time, venue, asset, kind, quantity
		FROM positions WHERE run_id = ? AND time = ?
		ORDER BY venue, asset, kind`, runID, ts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PositionRecord
	for rows.Next() {
		var (
			r   PositionRecord
			qty string
		)
		if err := rows.Scan(&r.RunID, &r.Time, &r.Venue, &r.Asset, &r.Kind, &qty); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(qty)
		if err != nil {
			return nil, fmt.Errorf("corrupt quantity %q: %w", qty, err)
		}
		r.Quantity = d
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
