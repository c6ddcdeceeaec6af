// Package sender implements the sending half of a transfer: directory
// enumeration, the per-target state machine, and multi-target fan-out, per
// spec §4.1 and §4.5.
package sender

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/toolza/gobyte/internal/workerpool"
	"github.com/toolza/gobyte/plan"
	"github.com/toolza/gobyte/progress"
	"github.com/toolza/gobyte/transport"
)

// maxReconnectAttempts caps the retry loop at one reconnect, per spec
// §4.5 step 3d: "After two consecutive failures the session aborts."
const maxReconnectAttempts = 2

// workerPoolSize and workerQueueDepth size the shared compression pool;
// chosen so a handful of concurrent target sessions can each keep one
// chunk compressing without starving the others.
const (
	workerPoolSize   = 4
	workerQueueDepth = 32
)

// Engine drives a send operation across one or more targets.
type Engine struct {
	Opts   plan.Options
	Bus    *progress.Bus
	Logger zerolog.Logger
}

// NewEngine constructs an Engine publishing to bus and logging via logger.
func NewEngine(opts plan.Options, bus *progress.Bus, logger zerolog.Logger) *Engine {
	return &Engine{Opts: opts, Bus: bus, Logger: logger}
}

// TargetResult is one target's outcome from Send.
type TargetResult struct {
	Target string
	Err    error
}

// Send enumerates paths into a Plan, then runs one independent session per
// target concurrently, per spec §4.5 steps 1-4. A failure enumerating the
// plan is fatal for the whole call; a failure on one target does not
// prevent the others from completing.
func (e *Engine) Send(ctx context.Context, targets []string, paths []string) ([]TargetResult, error) {
	p, err := Enumerate(paths, e.Opts.Flat)
	if err != nil {
		return nil, err
	}

	tr, err := transport.New(e.Opts.Transport, transport.Options{CertDir: certDir(e.Opts)})
	if err != nil {
		return nil, err
	}

	pool := workerpool.New(workerPoolSize, workerQueueDepth)
	defer pool.Close()

	results := make([]TargetResult, len(targets))
	var wg sync.WaitGroup

	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()

			addr := targetAddr(target, e.Opts.Port)
			err := e.runTarget(ctx, tr, addr, p, pool)
			results[i] = TargetResult{Target: target, Err: err}
			e.Bus.Publish(progress.SessionEnded{Target: target, Err: err})
		}(i, target)
	}

	wg.Wait()
	return results, nil
}

// runTarget drives the reconnect-and-resume loop for one target: each
// attempt resumes at the entry index the previous attempt left off at, and
// the loop gives up after maxReconnectAttempts consecutive transport
// failures.
func (e *Engine) runTarget(ctx context.Context, tr transport.Transport, addr string, p plan.Plan, pool *workerpool.Pool) error {
	nextIndex := 0

	for attempt := 1; ; attempt++ {
		idx, err := runSession(ctx, tr, addr, p, nextIndex, e.Opts, e.Bus, pool, e.Logger)
		if err == nil {
			return nil
		}

		if !isRetriable(err) {
			e.failRemaining(addr, p, idx, err)
			return err
		}

		nextIndex = idx
		e.Logger.Warn().Str("target", addr).Int("attempt", attempt).Err(err).Msg("transport error, reconnecting")

		if attempt >= maxReconnectAttempts {
			e.failRemaining(addr, p, nextIndex, ErrSessionAborted)
			return ErrSessionAborted
		}
	}
}

// failRemaining posts a Failed event for every entry from idx onward once a
// target's session gives up for good, per spec §4.5 step 3d: the entries
// that never got a chance to run are not silently missing from the bus.
func (e *Engine) failRemaining(addr string, p plan.Plan, idx int, cause error) {
	for i := idx; i < len(p.Entries); i++ {
		e.Bus.Publish(progress.Failed{Target: addr, Entry: uint32(i), Err: cause})
	}
}
