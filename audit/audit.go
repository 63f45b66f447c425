// Package audit is the structured event sink the pipeline reports into:
// one event per stage transition and per reconciliation outcome. Sinks own
// durability and formatting; the core only guarantees emission order.
package audit

import (
	"time"

	"go.uber.org/zap"
)

// Stage names match the pipeline order.
const (
	StageIngest    = "ingest"
	StageConvert   = "convert"
	StageAssess    = "assess"
	StageDecide    = "decide"
	StageDispatch  = "dispatch"
	StageReconcile = "reconcile"
	StageRun       = "run"
)

// Event is one pipeline stage transition.
type Event struct {
	RunID   string
	Time    time.Time // simulation timestamp, not wall clock
	Stage   string
	Outcome string // "ok", "partial", "failed", "cancelled", "completed"
	Detail  string
}

// Sink consumes pipeline events. Implementations must not block the
// timestamp loop for long; the loop is strictly sequential.
type Sink interface {
	Emit(e Event)
}

// Nop discards every event. Used by tests and as the default when no sink
// is configured.
type Nop struct{}

func (Nop) Emit(Event) {}

// Zap logs every event through a zap logger.
type Zap struct {
	log *zap.Logger
}

func NewZap(log *zap.Logger) *Zap {
	return &Zap{log: log}
}

func (s *Zap) Emit(e Event) {
	s.log.Info("pipeline stage",
		zap.String("run_id", e.RunID),
		zap.Time("ts", e.Time),
		zap.String("stage", e.Stage),
		zap.String("outcome", e.Outcome),
		zap.String("detail", e.Detail),
	)
}
