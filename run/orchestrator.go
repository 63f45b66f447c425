// Package run owns the backtest lifecycle: it drives the per-timestamp
// pipeline (ingest, convert, assess, decide, dispatch, reconcile), enforces
// the state machine and emits the ledger. Runs are isolated; every
// orchestrator builds private component instances from its configuration.
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mwfarley/yieldsim/audit"
	"github.com/mwfarley/yieldsim/config"
	"github.com/mwfarley/yieldsim/execution"
	"github.com/mwfarley/yieldsim/exposure"
	"github.com/mwfarley/yieldsim/journal"
	"github.com/mwfarley/yieldsim/market"
	"github.com/mwfarley/yieldsim/pkg/id"
	"github.com/mwfarley/yieldsim/position"
	"github.com/mwfarley/yieldsim/risk"
	"github.com/mwfarley/yieldsim/strategy"
	"github.com/mwfarley/yieldsim/venue"
)

var (
	// ErrAlreadyRan means Run was called on an orchestrator past its
	// Initialized state. Orchestrators are single-shot.
	ErrAlreadyRan = errors.New("run: orchestrator already ran")

	// ErrReconciliation means a decided action has no matching execution
	// result, or a failed result carries no reason. The ledger up to the
	// previous timestamp stays intact.
	ErrReconciliation = errors.New("run: decision and results do not reconcile")

	// ErrNoData means the market provider has an empty timestamp series.
	ErrNoData = errors.New("run: market data has no timestamps")
)

// Step is everything one timestamp produced, in pipeline order.
type Step struct {
	Time     time.Time
	Position position.Snapshot
	Exposure exposure.Snapshot
	Metrics  risk.Metrics
	Decision strategy.Decision
	Results  []venue.Result

	// Partial marks a timestamp where at least one instruction did not
	// fill completely. The run continues; the flag is for the ledger.
	Partial bool
}

// Orchestrator executes one run. Not safe for concurrent use; the Pool
// gives each run its own orchestrator.
type Orchestrator struct {
	runID string
	mode  strategy.Mode

	data       market.Provider
	tracker    *position.Tracker
	policy     strategy.Policy
	riskParams risk.Params
	dispatcher *execution.Dispatcher

	sink   audit.Sink
	ledger journal.Journal

	state   State
	steps   []Step
	started time.Time // first simulated timestamp
	ended   time.Time // last simulated timestamp reached
	failure string
}

// New builds an orchestrator with private component instances. adapters,
// sink and ledger may be nil: the defaults are simulated adapters from the
// venue table, a no-op sink and an in-memory journal.
func New(cfg *config.Run, data market.Provider, adapters map[venue.Family]venue.Adapter, sink audit.Sink, ledger journal.Journal) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("run config: %w", err)
	}

	policy, err := strategy.ForMode(strategy.Mode(cfg.Mode), cfg.StrategyParams())
	if err != nil {
		return nil, err
	}
	riskParams, err := cfg.RiskParams()
	if err != nil {
		return nil, err
	}
	execCfg, err := cfg.ExecutionConfig()
	if err != nil {
		return nil, err
	}
	if adapters == nil {
		if adapters, err = cfg.SimAdapters(); err != nil {
			return nil, err
		}
	}
	if sink == nil {
		sink = audit.Nop{}
	}
	if ledger == nil {
		ledger = journal.NewMemory()
	}

	return &Orchestrator{
		runID:      id.NewRun(),
		mode:       strategy.Mode(cfg.Mode),
		data:       data,
		tracker:    position.NewTracker(cfg.InitialPositions()),
		policy:     policy,
		riskParams: riskParams,
		dispatcher: execution.NewDispatcher(adapters, cfg.Families(), execCfg),
		sink:       sink,
		ledger:     ledger,
		state:      Initialized,
	}, nil
}

func (o *Orchestrator) RunID() string       { return o.runID }
func (o *Orchestrator) Mode() strategy.Mode { return o.mode }
func (o *Orchestrator) State() State        { return o.state }
func (o *Orchestrator) Failure() string     { return o.failure }

// Steps returns the completed step ledger in timestamp order.
func (o *Orchestrator) Steps() []Step {
	out := make([]Step, len(o.steps))
	copy(out, o.steps)
	return out
}

// Run walks the full timestamp series. It returns nil only when the run
// completed; a failed or cancelled run returns the terminal error and
// leaves the ledger recorded up to the last good timestamp.
//
// Cancellation is honored between timestamps, never inside one: a
// timestamp either happens completely or not at all.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.state != Initialized {
		return ErrAlreadyRan
	}
	o.state = Running
	o.emit(time.Time{}, audit.StageRun, "running", string(o.mode))

	stamps := o.data.Timestamps()
	if len(stamps) == 0 {
		return o.finish(Failed, ErrNoData)
	}
	o.started = stamps[0]

	var prev []venue.Result
	for _, ts := range stamps {
		if err := ctx.Err(); err != nil {
			return o.finish(Cancelled, err)
		}

		step, err := o.step(ctx, ts, prev)
		if err != nil {
			if ctx.Err() != nil {
				return o.finish(Cancelled, ctx.Err())
			}
			return o.finish(Failed, err)
		}

		o.steps = append(o.steps, step)
		o.ended = ts
		prev = step.Results
	}

	return o.finish(Completed, nil)
}

// step runs the pipeline for one timestamp. Results it returns are applied
// to positions at the next timestamp's ingest, never at this one.
func (o *Orchestrator) step(ctx context.Context, ts time.Time, prev []venue.Result) (Step, error) {
	md, err := o.data.At(ts)
	if err != nil {
		return Step{}, o.stageErr(ts, audit.StageIngest, err)
	}

	pos, err := o.tracker.Ingest(prev, md, ts)
	if err != nil {
		return Step{}, o.stageErr(ts, audit.StageIngest, err)
	}
	o.emit(ts, audit.StageIngest, "ok", fmt.Sprintf("%d balances", pos.Len()))

	expo, err := exposure.Convert(pos, md)
	if err != nil {
		return Step{}, o.stageErr(ts, audit.StageConvert, err)
	}
	o.emit(ts, audit.StageConvert, "ok", fmt.Sprintf("net=%s gross=%s", expo.NetValue, expo.Gross))

	metrics, err := risk.Assess(pos, expo, md, o.riskParams)
	if err != nil {
		return Step{}, o.stageErr(ts, audit.StageAssess, err)
	}
	o.emit(ts, audit.StageAssess, assessOutcome(metrics), "")

	dec, err := o.policy.Decide(metrics, expo, md, ts)
	if err != nil {
		return Step{}, o.stageErr(ts, audit.StageDecide, err)
	}
	o.emit(ts, audit.StageDecide, "ok", fmt.Sprintf("%d actions", len(dec.Actions)))

	results, err := o.dispatcher.Dispatch(ctx, dec, md)
	if err != nil {
		return Step{}, o.stageErr(ts, audit.StageDispatch, err)
	}
	partial := false
	for _, r := range results {
		if r.Status != venue.Filled {
			partial = true
		}
	}
	if partial {
		o.emit(ts, audit.StageDispatch, "partial", "")
	} else {
		o.emit(ts, audit.StageDispatch, "ok", "")
	}

	if err := reconcile(dec, results); err != nil {
		return Step{}, o.stageErr(ts, audit.StageReconcile, err)
	}
	o.emit(ts, audit.StageReconcile, "ok", "")

	step := Step{
		Time:     ts,
		Position: pos,
		Exposure: expo,
		Metrics:  metrics,
		Decision: dec,
		Results:  results,
		Partial:  partial,
	}
	if err := o.record(step); err != nil {
		return Step{}, err
	}
	return step, nil
}

// reconcile checks that every decided action produced exactly one result,
// in order, and that every non-filled result documents why.
func reconcile(dec strategy.Decision, results []venue.Result) error {
	if len(results) != len(dec.Actions) {
		return fmt.Errorf("%d actions, %d results: %w", len(dec.Actions), len(results), ErrReconciliation)
	}
	for i, a := range dec.Actions {
		r := results[i]
		if r.Venue != a.Venue || r.Asset != a.Asset || r.Kind != a.Kind {
			return fmt.Errorf("result %d targets %s/%s/%s, action targets %s/%s/%s: %w",
				i, r.Venue, r.Asset, r.Kind, a.Venue, a.Asset, a.Kind, ErrReconciliation)
		}
		if !r.Requested.Equal(a.Delta) {
			return fmt.Errorf("result %d requested %s, action wanted %s: %w",
				i, r.Requested, a.Delta, ErrReconciliation)
		}
		if r.Status != venue.Filled && r.Reason == "" {
			return fmt.Errorf("result %d is %s without a reason: %w", i, r.Status, ErrReconciliation)
		}
	}
	return nil
}

// record writes one step's ledger rows. A journal error is fatal: a run
// whose ledger cannot be trusted must not report completion.
func (o *Orchestrator) record(s Step) error {
	err := o.ledger.RecordStep(journal.StepRecord{
		RunID:    o.runID,
		Time:     s.Time,
		Actions:  len(s.Decision.Actions),
		Results:  len(s.Results),
		Partial:  s.Partial,
		Critical: s.Metrics.Critical,
	})
	if err != nil {
		return fmt.Errorf("journal step: %w", err)
	}

	for _, k := range s.Position.Keys() {
		err := o.ledger.RecordPosition(journal.PositionRecord{
			RunID:    o.runID,
			Time:     s.Time,
			Venue:    k.Venue,
			Asset:    k.Asset,
			Kind:     k.Kind.String(),
			Quantity: s.Position.Balance(k),
		})
		if err != nil {
			return fmt.Errorf("journal position: %w", err)
		}
	}

	for _, r := range s.Results {
		err := o.ledger.RecordResult(journal.ResultRecord{
			RunID:         o.runID,
			Time:          s.Time,
			InstructionID: r.InstructionID,
			Venue:         r.Venue,
			Asset:         r.Asset,
			Kind:          r.Kind.String(),
			Status:        r.Status.String(),
			Requested:     r.Requested,
			Filled:        r.Filled,
			Price:         r.Price,
			Fee:           r.Fee,
			Reason:        r.Reason,
		})
		if err != nil {
			return fmt.Errorf("journal result: %w", err)
		}
	}
	return nil
}

// finish moves the run into its terminal state, records the run row and
// returns the terminal error (nil for a completed run).
func (o *Orchestrator) finish(state State, cause error) error {
	o.state = state
	if cause != nil {
		o.failure = cause.Error()
	}

	rec := journal.RunRecord{
		RunID:   o.runID,
		Mode:    string(o.mode),
		State:   state.String(),
		Start:   o.started,
		End:     o.ended,
		Steps:   len(o.steps),
		Failure: o.failure,
	}
	if err := o.ledger.RecordRun(rec); err != nil && cause == nil {
		cause = fmt.Errorf("journal run: %w", err)
		o.state = Failed
		o.failure = cause.Error()
	}

	o.emit(o.ended, audit.StageRun, state.String(), o.failure)
	return cause
}

func (o *Orchestrator) stageErr(ts time.Time, stage string, err error) error {
	o.emit(ts, stage, "failed", err.Error())
	return fmt.Errorf("%s at %s: %w", stage, ts.Format(time.RFC3339), err)
}

func (o *Orchestrator) emit(ts time.Time, stage, outcome, detail string) {
	o.sink.Emit(audit.Event{
		RunID:   o.runID,
		Time:    ts,
		Stage:   stage,
		Outcome: outcome,
		Detail:  detail,
	})
}

func assessOutcome(m risk.Metrics) string {
	switch {
	case m.Critical:
		return "critical"
	case m.Warning:
		return "warning"
	default:
		return "ok"
	}
}
