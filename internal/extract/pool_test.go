package extract

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docconvert/internal/document"
)

type funcExtractor func(ctx context.Context, path string, mode Mode) Outcome

func (f funcExtractor) Extract(ctx context.Context, path string, mode Mode) Outcome {
	return f(ctx, path, mode)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	var current, peak atomic.Int64
	ex := funcExtractor(func(context.Context, string, Mode) Outcome {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		current.Add(-1)
		return succeeded(document.Document{})
	})
	pool := NewPool(ex, 2)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, Success, pool.Extract(context.Background(), "x.pdf", Layout).Kind)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(2))
	st := pool.Stats()
	assert.Equal(t, int64(2), st.Workers)
	assert.Equal(t, int64(10), st.Completed)
	assert.Equal(t, int64(0), st.Running)
}

func TestPool_AbandonsOnContextButKeepsSlot(t *testing.T) {
	release := make(chan struct{})
	ex := funcExtractor(func(context.Context, string, Mode) Outcome {
		<-release
		return succeeded(document.Document{})
	})
	pool := NewPool(ex, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	out := pool.Extract(ctx, "x.pdf", Layout)
	require.Equal(t, Fatal, out.Kind)
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)

	// The abandoned attempt still holds the only worker.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	out = pool.Extract(ctx2, "x.pdf", Layout)
	assert.Equal(t, Fatal, out.Kind)

	close(release)
	require.Eventually(t, func() bool { return pool.Stats().Running == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Success, pool.Extract(context.Background(), "x.pdf", Layout).Kind)
}

func TestPool_RecoversExtractorPanic(t *testing.T) {
	pool := NewPool(funcExtractor(func(context.Context, string, Mode) Outcome {
		panic("boom")
	}), 1)

	out := pool.Extract(context.Background(), "x.pdf", Degraded)
	assert.Equal(t, Fatal, out.Kind)
	assert.Contains(t, out.Err.Error(), "boom")
	assert.Equal(t, int64(1), pool.Stats().Failed)
}

func TestKindAndModeStrings(t *testing.T) {
	assert.Equal(t, "success", Success.String())
	assert.Equal(t, "recoverable_defect", RecoverableDefect.String())
	assert.Equal(t, "fatal", Fatal.String())
	assert.Equal(t, "layout", Layout.String())
	assert.Equal(t, "degraded", Degraded.String())
}
