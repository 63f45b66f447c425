package run

import (
	"context"
	"sync"
)

// Pool executes orchestrators with bounded concurrency. Each orchestrator
// is fully isolated, so the only shared resource is the worker budget.
type Pool struct {
	sem chan struct{}
}

// NewPool sizes the worker budget; size below one is treated as one.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// RunAll executes every orchestrator and blocks until all finish. The
// returned slice holds each run's terminal error, index-aligned with the
// input. Cancelling ctx cancels runs that have not finished.
func (p *Pool) RunAll(ctx context.Context, orchs []*Orchestrator) []error {
	errs := make([]error, len(orchs))

	var wg sync.WaitGroup
	for i, o := range orchs {
		wg.Add(1)
		go func(i int, o *Orchestrator) {
			defer wg.Done()

			select {
			case p.sem <- struct{}{}:
				defer func() { <-p.sem }()
			case <-ctx.Done():
				// Run observes the cancelled context before touching any
				// timestamp and records the cancellation itself.
			}

			errs[i] = o.Run(ctx)
		}(i, o)
	}
	wg.Wait()

	return errs
}
