// Package execution translates strategy decisions into venue instructions
// and routes them through venue adapters with timeout, bounded retry and
// rate limiting. Instruction failures degrade the timestamp to a partial
// outcome; they never abort the run.
package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/mwfarley/yieldsim/market"
	"github.com/mwfarley/yieldsim/strategy"
	"github.com/mwfarley/yieldsim/venue"
)

// ErrNoAdapter means a decision targeted a venue family no adapter was
// registered for. Adapters are wired at run construction, so this is a
// configuration error.
var ErrNoAdapter = errors.New("execution: no adapter for venue")

// Config is the dispatch policy injected by the run configuration.
type Config struct {
	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// RateLimits caps submissions per second per venue; venues absent
	// from the map are unlimited.
	RateLimits map[string]float64
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 100 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 5 * time.Second
	}
	return c
}

// Dispatcher owns the adapter table for one run. Not safe for concurrent
// use; each run constructs its own.
type Dispatcher struct {
	cfg      Config
	adapters map[venue.Family]venue.Adapter
	families map[string]venue.Family // venue name -> family
	limiters map[string]*rate.Limiter

	sleep func(time.Duration) // swapped out in tests
	seq   int                 // deterministic instruction ids within a run
}

// NewDispatcher wires adapters and the venue->family table from run
// configuration.
func NewDispatcher(adapters map[venue.Family]venue.Adapter, families map[string]venue.Family, cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()

	limiters := make(map[string]*rate.Limiter)
	for v, rps := range cfg.RateLimits {
		if rps > 0 {
			limiters[v] = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}

	return &Dispatcher{
		cfg:      cfg,
		adapters: adapters,
		families: families,
		limiters: limiters,
		sleep:    time.Sleep,
	}
}

// Dispatch executes every action in the decision, in order, and returns
// one result per action. Retryable venue errors are retried with
// exponential backoff up to the configured budget; exhaustion or a
// permanent error yields a failed result with the reason documented.
// Dispatch itself only errors on cancellation, a missing adapter, or a
// missing quote: a decided action whose venue/asset has no price at this
// timestamp must abort the timestamp, never fill at zero.
func (d *Dispatcher) Dispatch(ctx context.Context, dec strategy.Decision, md market.Snapshot) ([]venue.Result, error) {
	results := make([]venue.Result, 0, len(dec.Actions))

	for _, a := range dec.Actions {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		family, ok := d.families[a.Venue]
		if !ok {
			return results, fmt.Errorf("venue %q has no family mapping: %w", a.Venue, ErrNoAdapter)
		}
		adapter, ok := d.adapters[family]
		if !ok {
			return results, fmt.Errorf("family %q: %w", family, ErrNoAdapter)
		}

		q, err := md.Quote(a.Venue, a.Asset)
		if err != nil {
			return results, fmt.Errorf("price %s/%s: %w", a.Venue, a.Asset, err)
		}

		d.seq++
		ins := venue.Instruction{
			ID:         fmt.Sprintf("ins-%06d", d.seq),
			Venue:      a.Venue,
			Family:     family,
			Asset:      a.Asset,
			Kind:       a.Kind,
			Delta:      a.Delta,
			Price:      q.Price,
			Timeout:    d.cfg.Timeout,
			MaxRetries: d.cfg.MaxRetries,
		}

		if lim := d.limiters[a.Venue]; lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return results, err
			}
		}

		res, err := d.submit(ctx, adapter, ins)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}

	return results, nil
}

// submit runs the retry loop for one instruction. Only transient venue
// errors consume retry budget; everything else fails the instruction
// immediately.
func (d *Dispatcher) submit(ctx context.Context, adapter venue.Adapter, ins venue.Instruction) (venue.Result, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, ins.Timeout)
		res, err := adapter.Submit(cctx, ins)
		cancel()

		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return venue.Result{}, ctx.Err()
		}

		lastErr = err
		if !venue.IsRetryable(err) || attempt >= ins.MaxRetries {
			break
		}
		d.sleep(d.backoff(attempt))
	}

	return venue.Result{
		InstructionID: ins.ID,
		Venue:         ins.Venue,
		Asset:         ins.Asset,
		Kind:          ins.Kind,
		Status:        venue.Failed,
		Requested:     ins.Delta,
		Reason:        lastErr.Error(),
	}, nil
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	wait := d.cfg.BackoffBase << uint(attempt)
	if wait > d.cfg.BackoffMax || wait <= 0 {
		wait = d.cfg.BackoffMax
	}
	return wait
}
