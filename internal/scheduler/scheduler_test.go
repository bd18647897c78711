package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder tracks start/end order of invocations, for asserting priority
// wave ordering (spec.md §8 scenario 1).
type recorder struct {
	mu      sync.Mutex
	started []string
	ended   []string
}

func (r *recorder) start(name string) {
	r.mu.Lock()
	r.started = append(r.started, name)
	r.mu.Unlock()
}

func (r *recorder) end(name string) {
	r.mu.Lock()
	r.ended = append(r.ended, name)
	r.mu.Unlock()
}

func TestRun_priorityOrdering(t *testing.T) {
	var rec recorder
	gate := make(chan struct{})

	invocations := []Invocation{
		{HookKey: "A", Priority: 0, Exec: func(ctx context.Context) error {
			rec.start("A")
			rec.end("A")
			return nil
		}},
		{HookKey: "B", Priority: 10, Exec: func(ctx context.Context) error {
			rec.start("B")
			<-gate
			rec.end("B")
			return nil
		}},
		{HookKey: "C", Priority: 10, Exec: func(ctx context.Context) error {
			rec.start("C")
			close(gate)
			rec.end("C")
			return nil
		}},
		{HookKey: "D", Priority: 20, Exec: func(ctx context.Context) error {
			rec.start("D")
			rec.end("D")
			return nil
		}},
	}

	outcomes := Run(context.Background(), invocations, Options{Concurrency: 2})

	require.Len(t, outcomes, 4)
	for _, o := range outcomes {
		assert.Equal(t, Success, o.State)
	}

	// A must complete before B or C start: it is the sole wave-0 member.
	require.Equal(t, "A", rec.ended[0])
	assert.Less(t, indexOf(rec.ended, "A"), indexOf(rec.started, "B"))
	assert.Less(t, indexOf(rec.ended, "A"), indexOf(rec.started, "C"))

	// D starts only after both B and C have ended.
	idxDStart := indexOf(rec.started, "D")
	assert.Greater(t, idxDStart, indexOf(rec.ended, "B"))
	assert.Greater(t, idxDStart, indexOf(rec.ended, "C"))
}

func indexOf(xs []string, v string) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}

func TestRun_failFastMidWaveLetsWaveDrainThenSkips(t *testing.T) {
	var ran int32

	invocations := []Invocation{
		{HookKey: "A", Priority: 0, Exec: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}},
		{HookKey: "B", Priority: 10, FailFast: true, Exec: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return errors.New("boom")
		}},
		{HookKey: "C", Priority: 10, Exec: func(ctx context.Context) error {
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&ran, 1)
			return nil
		}},
		{HookKey: "D", Priority: 20, Exec: func(ctx context.Context) error {
			atomic.AddInt32(&ran, 1)
			return nil
		}},
	}

	outcomes := Run(context.Background(), invocations, Options{Concurrency: 2})
	require.Len(t, outcomes, 4)

	byKey := make(map[string]Outcome)
	for _, o := range outcomes {
		byKey[o.Invocation.HookKey] = o
	}

	assert.Equal(t, Success, byKey["A"].State)
	assert.Equal(t, Failure, byKey["B"].State)
	// C is in the same wave as the failure: it must still be allowed to
	// drain to completion (spec.md §8 scenario 2).
	assert.Equal(t, Success, byKey["C"].State)
	// D's wave never starts.
	assert.Equal(t, Skipped, byKey["D"].State)

	assert.EqualValues(t, 3, atomic.LoadInt32(&ran))
}

func TestRun_requireSerialNeverOverlaps(t *testing.T) {
	var active int32
	var maxActive int32

	track := func() error {
		n := atomic.AddInt32(&active, 1)
		for {
			m := atomic.LoadInt32(&maxActive)
			if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		return nil
	}

	invocations := []Invocation{
		{HookKey: "serial-hook", Priority: 0, RequireSerial: true, Exec: func(ctx context.Context) error { return track() }},
		{HookKey: "serial-hook", Priority: 0, RequireSerial: true, Exec: func(ctx context.Context) error { return track() }},
		{HookKey: "serial-hook", Priority: 0, RequireSerial: true, Exec: func(ctx context.Context) error { return track() }},
	}

	outcomes := Run(context.Background(), invocations, Options{Concurrency: 4})
	require.Len(t, outcomes, 3)
	for _, o := range outcomes {
		assert.Equal(t, Success, o.State)
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&maxActive))
}

func TestRun_concurrencyOneForcesSequential(t *testing.T) {
	var active int32
	var maxActive int32

	invocations := make([]Invocation, 5)
	for i := range invocations {
		invocations[i] = Invocation{
			HookKey:  "h",
			Priority: 10, // all share a wave
			Exec: func(ctx context.Context) error {
				n := atomic.AddInt32(&active, 1)
				if n > atomic.LoadInt32(&maxActive) {
					atomic.StoreInt32(&maxActive, n)
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			},
		}
	}

	Run(context.Background(), invocations, Options{Concurrency: 1})
	assert.EqualValues(t, 1, atomic.LoadInt32(&maxActive))
}

func TestRun_cancellationMarksRemainingCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	invocations := []Invocation{
		{HookKey: "A", Priority: 0, Exec: func(ctx context.Context) error {
			cancel()
			return nil
		}},
		{HookKey: "B", Priority: 10, Exec: func(ctx context.Context) error {
			return nil
		}},
	}

	outcomes := Run(ctx, invocations, Options{Concurrency: 2})
	require.Len(t, outcomes, 2)
	assert.Equal(t, Success, outcomes[0].State)
	assert.Equal(t, Cancelled, outcomes[1].State)
}

func TestRun_onTransitionCalledForEachStateChange(t *testing.T) {
	var mu sync.Mutex
	var transitions []State

	invocations := []Invocation{
		{HookKey: "A", Priority: 0, Exec: func(ctx context.Context) error { return nil }},
	}
	Run(context.Background(), invocations, Options{
		Concurrency: 1,
		OnTransition: func(o Outcome) {
			mu.Lock()
			transitions = append(transitions, o.State)
			mu.Unlock()
		},
	})
	assert.Contains(t, transitions, Running)
	assert.Contains(t, transitions, Success)
}
