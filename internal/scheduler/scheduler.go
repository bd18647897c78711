// Package scheduler implements the Priority Scheduler (spec.md §4.7,
// component C7): partitioning a project's hook invocations into
// ascending priority waves, running each wave concurrently under a
// global admission semaphore, honoring require_serial and fail_fast, and
// propagating cancellation.
//
// Wave concurrency is grounded on the teacher's Parallel composition
// (pk/composition.go): errgroup.WithContext fans each wave out and waits
// for it, generalized from "run everything" to "run everything in this
// wave, gated by an admission semaphore so C bounds the whole scheduler
// rather than just one wave's fan-out width." Every wave goroutine
// returns nil; an invocation's error is recorded in its Outcome.
package scheduler

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hookwave/hookwave/internal/hooklog"
)

var log = hooklog.NewWithCategory(true, "scheduler")

// State is an invocation's position in spec.md §4's lifecycle state
// machine: Pending -> Ready -> Running -> {Success, Failure, Cancelled,
// Skipped}.
type State int

const (
	Pending State = iota
	Ready
	Running
	Success
	Failure
	Cancelled
	Skipped
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Cancelled:
		return "cancelled"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Invocation is one HookInvocation (spec.md §3): the unit the scheduler
// orders and runs. HookKey identifies the owning hook for require_serial
// purposes; Priority drives wave partitioning; Exec is called exactly
// once if the invocation reaches the Running state.
type Invocation struct {
	HookKey  string
	Priority uint32
	// RequireSerial hooks hold a per-HookKey mutex so their own chunks
	// never overlap in time (spec.md §4.6/§4.7), independent of wave
	// concurrency.
	RequireSerial bool
	// FailFast, if true, puts the run into fail-fast mode when this
	// invocation fails, per spec.md §4.7, in addition to a scheduler-wide
	// FailFast option.
	FailFast bool
	Exec     func(ctx context.Context) error
}

// Outcome records the terminal state of one invocation, reported via
// Options.OnTransition and the final Run result.
type Outcome struct {
	Invocation *Invocation
	State      State
	Err        error
}

// Options configures one scheduler pass.
type Options struct {
	// Concurrency is the global admission semaphore size C (spec.md
	// §4.7). Zero or a negative value runs with C=1; the CPU-count
	// default (chunk.DefaultConcurrency) and PREK_NO_CONCURRENCY forcing
	// C=1 are resolved by the caller before calling Run.
	Concurrency int
	// FailFast enables the scheduler-wide fail-fast policy (spec.md
	// §4.7) even if no individual invocation sets FailFast.
	FailFast bool
	// OnTransition, if set, is called (concurrently, must be safe for
	// that) every time an invocation changes state. Used by the Output
	// Aggregator to render status lines as they happen rather than only
	// at the end of a run.
	OnTransition func(Outcome)
}

// Run partitions invocations into ascending-priority waves and executes
// them per spec.md §4.7, returning one Outcome per invocation in input
// order (not wave/completion order; callers needing wave order should use
// OnTransition).
func Run(ctx context.Context, invocations []Invocation, opts Options) []Outcome {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	outcomes := make([]Outcome, len(invocations))
	for i := range invocations {
		outcomes[i] = Outcome{Invocation: &invocations[i], State: Pending}
	}

	waves := partitionWaves(invocations)

	sem := semaphore.NewWeighted(int64(concurrency))
	serialMu := newKeyedMutex()

	failFastTriggered := false
	var failedMu sync.Mutex

	for waveIdx, wave := range waves {
		if ctx.Err() != nil {
			log.Debug("wave cancelled", "wave", waveIdx, "size", len(wave))
			markCancelled(wave, outcomes, opts.OnTransition, ctx.Err())
			continue
		}
		if failFastTriggered {
			log.Debug("wave skipped by fail-fast", "wave", waveIdx, "size", len(wave))
			markSkipped(wave, outcomes, opts.OnTransition)
			continue
		}

		log.Debug("wave starting", "wave", waveIdx, "size", len(wave))
		g, gCtx := errgroup.WithContext(ctx)
		for _, idx := range wave {
			idx := idx
			inv := &invocations[idx]

			g.Go(func() error {
				if err := sem.Acquire(gCtx, 1); err != nil {
					outcomes[idx].State = Cancelled
					outcomes[idx].Err = err
					notify(opts.OnTransition, outcomes[idx])
					return nil
				}
				defer sem.Release(1)

				if inv.RequireSerial {
					unlock := serialMu.lock(inv.HookKey)
					defer unlock()
				}

				outcomes[idx].State = Running
				notify(opts.OnTransition, outcomes[idx])

				if gCtx.Err() != nil {
					outcomes[idx].State = Cancelled
					outcomes[idx].Err = gCtx.Err()
					notify(opts.OnTransition, outcomes[idx])
					return nil
				}

				err := inv.Exec(gCtx)
				switch {
				case err != nil && gCtx.Err() != nil:
					outcomes[idx].State = Cancelled
					outcomes[idx].Err = gCtx.Err()
				case err != nil:
					outcomes[idx].State = Failure
					outcomes[idx].Err = err
					if opts.FailFast || inv.FailFast {
						failedMu.Lock()
						failFastTriggered = true
						failedMu.Unlock()
					}
				default:
					outcomes[idx].State = Success
				}
				notify(opts.OnTransition, outcomes[idx])
				return nil
			})
		}
		_ = g.Wait()
	}

	return outcomes
}

// partitionWaves groups invocation indices by priority, ascending, per
// spec.md §4.7's "Wave construction."
func partitionWaves(invocations []Invocation) [][]int {
	byPriority := make(map[uint32][]int)
	for i, inv := range invocations {
		byPriority[inv.Priority] = append(byPriority[inv.Priority], i)
	}
	priorities := make([]uint32, 0, len(byPriority))
	for p := range byPriority {
		priorities = append(priorities, p)
	}
	sort.Slice(priorities, func(i, j int) bool { return priorities[i] < priorities[j] })

	waves := make([][]int, len(priorities))
	for i, p := range priorities {
		waves[i] = byPriority[p]
	}
	return waves
}

func markSkipped(wave []int, outcomes []Outcome, onTransition func(Outcome)) {
	for _, idx := range wave {
		if outcomes[idx].State == Pending {
			outcomes[idx].State = Skipped
			notify(onTransition, outcomes[idx])
		}
	}
}

// markCancelled marks every still-pending invocation in wave as
// Cancelled rather than Skipped: the run was cut short by context
// cancellation, not a fail-fast policy choice, per spec.md §4.7/§5
// ("marks the rest as cancelled").
func markCancelled(wave []int, outcomes []Outcome, onTransition func(Outcome), cause error) {
	for _, idx := range wave {
		if outcomes[idx].State == Pending {
			outcomes[idx].State = Cancelled
			outcomes[idx].Err = cause
			notify(onTransition, outcomes[idx])
		}
	}
}

func notify(onTransition func(Outcome), o Outcome) {
	if onTransition != nil {
		onTransition(o)
	}
}

// keyedMutex hands out a per-key mutex, lazily created, for
// require_serial's "this hook's own chunks never overlap" constraint.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
