// Package orchestrator fans a batch of routing instructions out to their
// roles, one concurrent call each, and reassembles the answers in the
// caller's original order. Per-unit failures never touch sibling units;
// only cancelling the dispatch itself affects the batch.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chatcrew/internal/history"
	"chatcrew/internal/logger"
	"chatcrew/internal/mention"
	"chatcrew/internal/roles"
)

// Outcome classifies how a single role call ended.
type Outcome string

const (
	OutcomeOk        Outcome = "ok"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Result is the outcome of one routing instruction. Every instruction gets
// exactly one Result: Content carries the role's answer for OutcomeOk and a
// diagnostic otherwise; Err holds the underlying error verbatim for
// OutcomeFailed.
type Result struct {
	Role    string
	Content string
	Outcome Outcome
	Err     error
}

// Directory resolves role names; read-only during a dispatch.
type Directory interface {
	Resolve(name string) (roles.Config, bool)
}

// Caller issues one external completion call; cancellable via ctx.
type Caller interface {
	Call(ctx context.Context, role roles.Config, prior []history.Message, message string) (string, error)
}

// Progress receives advisory per-unit status updates for display. It may be
// called from multiple goroutines.
type Progress func(role, status string)

// Options tunes a dispatcher. Zero values fall back to the defaults.
type Options struct {
	CallTimeout time.Duration // per-call budget, default 30s
	Grace       time.Duration // wait after cancellation, default 5s
	Progress    Progress
}

// Orchestrator dispatches instruction batches and records each exchange in
// the history store.
type Orchestrator struct {
	dir    Directory
	caller Caller
	store  *history.Store
	opts   Options
}

// New creates an orchestrator.
func New(dir Directory, caller Caller, store *history.Store, opts Options) *Orchestrator {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	if opts.Grace <= 0 {
		opts.Grace = 5 * time.Second
	}
	return &Orchestrator{dir: dir, caller: caller, store: store, opts: opts}
}

// Dispatch resolves every instruction, runs one concurrent unit per resolved
// instruction against snapshot, and returns one Result per instruction in
// the input order regardless of completion order.
//
// Cancelling ctx stops the batch: units are signalled, the orchestrator
// waits up to the grace period for them to unwind, and whatever has not
// settled by then is reported as cancelled. Units that completed before the
// cancellation keep their results.
func (o *Orchestrator) Dispatch(ctx context.Context, instructions []mention.Instruction, snapshot []history.Message) []Result {
	results := make([]Result, len(instructions))
	settled := make([]bool, len(instructions))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, inst := range instructions {
		o.progress(inst.Role, "resolving role")
		cfg, ok := o.dir.Resolve(inst.Role)
		if !ok {
			results[i] = Result{
				Role:    inst.Role,
				Content: fmt.Sprintf("role %q is not configured", inst.Role),
				Outcome: OutcomeNotFound,
			}
			settled[i] = true
			continue
		}

		wg.Add(1)
		go func(i int, inst mention.Instruction, cfg roles.Config) {
			defer wg.Done()
			res := o.runUnit(ctx, inst, cfg, snapshot)
			o.record(res)
			mu.Lock()
			results[i] = res
			settled[i] = true
			mu.Unlock()
		}(i, inst, cfg)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		select {
		case <-done:
		case <-time.After(o.opts.Grace):
			logger.L.Warn("dispatch units still running after grace period", "grace", o.opts.Grace)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]Result, len(instructions))
	for i := range instructions {
		if settled[i] {
			out[i] = results[i]
			continue
		}
		out[i] = Result{
			Role:    instructions[i].Role,
			Content: fmt.Sprintf("role %q was cancelled before completing", instructions[i].Role),
			Outcome: OutcomeCancelled,
		}
	}
	return out
}

// runUnit performs one role call under the per-call budget and classifies
// its outcome.
func (o *Orchestrator) runUnit(ctx context.Context, inst mention.Instruction, cfg roles.Config, snapshot []history.Message) Result {
	u := newUnit(inst.Role, o.opts.Progress)

	u.fire(triggerPrepare)
	callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
	defer cancel()

	u.fire(triggerAwait)
	content, err := o.caller.Call(callCtx, cfg, snapshot, inst.Text)
	u.fire(triggerSettle)

	switch {
	case err == nil:
		return Result{Role: inst.Role, Content: content, Outcome: OutcomeOk}
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return Result{
			Role:    inst.Role,
			Content: fmt.Sprintf("role %q was cancelled", inst.Role),
			Outcome: OutcomeCancelled,
			Err:     err,
		}
	case errors.Is(err, context.DeadlineExceeded):
		return Result{
			Role:    inst.Role,
			Content: fmt.Sprintf("role %q timed out after %s", inst.Role, o.opts.CallTimeout),
			Outcome: OutcomeTimedOut,
			Err:     err,
		}
	default:
		return Result{Role: inst.Role, Content: err.Error(), Outcome: OutcomeFailed, Err: err}
	}
}

// record appends the unit's exchange to history in completion order: the
// role's answer for a success, a system diagnostic for a timeout or
// failure. Cancelled units leave no trace of their own; the caller records
// the dispatch-level cancellation.
func (o *Orchestrator) record(res Result) {
	switch res.Outcome {
	case OutcomeOk:
		o.store.Append(res.Role, res.Content)
	case OutcomeFailed, OutcomeTimedOut:
		o.store.Append(history.SpeakerSystem, fmt.Sprintf("Error from %s: %s", res.Role, res.Content))
	}
}

func (o *Orchestrator) progress(role, status string) {
	if o.opts.Progress != nil {
		o.opts.Progress(role, status)
	}
}
