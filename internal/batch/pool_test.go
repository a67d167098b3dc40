package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tasks(n int) []Task[int] {
	out := make([]Task[int], n)
	for i := range out {
		out[i] = Task[int]{Name: fmt.Sprintf("t%d", i), Input: i}
	}
	return out
}

func TestRun_OrderAndErrors(t *testing.T) {
	p := NewPool(3, nil)

	out := Run(context.Background(), p, tasks(10), func(_ context.Context, in int) error {
		if in%4 == 0 {
			return fmt.Errorf("bad input %d", in)
		}
		return nil
	})

	require.Len(t, out, 10)
	for i, o := range out {
		assert.Equal(t, i, o.Input)
		assert.Equal(t, fmt.Sprintf("t%d", i), o.Name)
		assert.Equal(t, i%4 == 0, o.Err != nil)
	}

	snap := p.Stats().Snapshot()
	assert.Equal(t, int64(10), snap.Processed)
	assert.Equal(t, int64(3), snap.Failed)
	assert.InDelta(t, 70.0, snap.SuccessRate(), 0.001)

	err := Errors(out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "t4: bad input 4")
}

func TestRun_BoundedConcurrency(t *testing.T) {
	p := NewPool(2, nil)
	var running, peak int32

	Run(context.Background(), p, tasks(8), func(context.Context, int) error {
		n := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	})

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	out := Run(ctx, NewPool(2, nil), tasks(3), func(context.Context, int) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	assert.Zero(t, atomic.LoadInt32(&calls))
	for _, o := range out {
		assert.True(t, errors.Is(o.Err, context.Canceled))
	}
}

func TestRun_PanicBecomesError(t *testing.T) {
	out := Run(context.Background(), NewPool(1, nil), tasks(1), func(context.Context, int) error {
		panic("boom")
	})
	require.Error(t, out[0].Err)
	assert.Contains(t, out[0].Err.Error(), "boom")
}

func TestRun_OnDone(t *testing.T) {
	p := NewPool(4, nil)
	var mu sync.Mutex
	seen := map[string]bool{}
	p.OnDone = func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		seen[name] = err == nil
	}

	Run(context.Background(), p, tasks(5), func(context.Context, int) error { return nil })

	assert.Len(t, seen, 5)
	assert.Nil(t, Errors([]Outcome[int]{{Name: "ok"}}))
}

func TestNewPool_MinimumOneWorker(t *testing.T) {
	assert.Equal(t, 1, NewPool(0, nil).Workers())
	assert.Empty(t, Run(context.Background(), NewPool(0, nil), nil, func(context.Context, int) error { return nil }))
}
