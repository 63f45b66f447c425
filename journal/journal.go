// Package journal defines the append-only record contract the run ledger
// is persisted through. The core emits records in timestamp order and
// never updates or deletes one; storage format is the implementation's
// concern.
package journal

import (
	"time"

	"github.com/shopspring/decimal"
)

// RunRecord closes out a run: terminal state plus the window it covered.
type RunRecord struct {
	RunID   string
	Mode    string
	State   string
	Start   time.Time
	End     time.Time
	Steps   int
	Failure string // empty unless the run failed
}

// StepRecord summarizes one timestamp's pass through the pipeline.
type StepRecord struct {
	RunID    string
	Time     time.Time
	Actions  int
	Results  int
	Partial  bool
	Critical bool
}

// PositionRecord is one balance row from a position snapshot.
type PositionRecord struct {
	RunID    string
	Time     time.Time
	Venue    string
	Asset    string
	Kind     string
	Quantity decimal.Decimal
}

// ResultRecord is one execution result.
type ResultRecord struct {
	RunID         string
	Time          time.Time
	InstructionID string
	Venue         string
	Asset         string
	Kind          string
	Status        string
	Requested     decimal.Decimal
	Filled        decimal.Decimal
	Price         decimal.Decimal
	Fee           decimal.Decimal
	Reason        string
}

// Journal receives the run ledger record by record, in order.
type Journal interface {
	RecordStep(StepRecord) error
	RecordPosition(PositionRecord) error
	RecordResult(ResultRecord) error
	RecordRun(RunRecord) error
	Close() error
}
