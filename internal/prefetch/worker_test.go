package prefetch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSource is an in-memory FrameSource standing in for an open file,
// with an optional simulated read error at a given offset.
type fakeSource struct {
	channels int
	frames   []int16 // interleaved
	failAt   int
}

func (f *fakeSource) Channels() int { return f.channels }

func (f *fakeSource) ReadFrames(offset int, dst []int16) (int, error) {
	if f.failAt > 0 && offset >= f.failAt {
		return 0, errors.New("simulated read error")
	}
	total := len(dst) / f.channels
	avail := len(f.frames)/f.channels - offset
	if avail < 0 {
		avail = 0
	}
	n := total
	if n > avail {
		n = avail
	}
	copy(dst[:n*f.channels], f.frames[offset*f.channels:(offset+n)*f.channels])
	return n, nil
}

func monoRamp(n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(i % 1000)
	}
	return out
}

func TestPopAssignsFreePipeAndTransitionsToOpening(t *testing.T) {
	w := NewWorker(nil)
	src := &fakeSource{channels: 1, frames: monoRamp(20000)}

	idx, ok := w.Pop(src, 1000, -1, 0)
	require.True(t, ok)
	require.Equal(t, StateOpening, w.Pipe(idx).State())
}

func TestPoolExhaustionReturnsFalseAfterMaxPipesPops(t *testing.T) {
	w := NewWorker(nil)
	src := &fakeSource{channels: 1, frames: monoRamp(4096)}
	for i := 0; i < MaxPipes; i++ {
		_, ok := w.Pop(src, 0, -1, 0)
		require.True(t, ok, "pop %d should succeed", i)
	}
	_, ok := w.Pop(src, 0, -1, 0)
	require.False(t, ok, "pool should be exhausted")
}

func TestScanFillsActivePipeFromSource(t *testing.T) {
	w := NewWorker(nil)
	src := &fakeSource{channels: 1, frames: monoRamp(20000)}

	idx, ok := w.Pop(src, 1500, -1, 0)
	require.True(t, ok)

	w.scanOnce() // opening -> active
	require.Equal(t, StateActive, w.Pipe(idx).State())
	w.scanOnce() // active: fill

	p := w.Pipe(idx)
	require.Greater(t, p.Supply(), int64(0))

	s, ok := p.Read(0, 0)
	require.True(t, ok)
	require.Equal(t, int16(1500%1000), s) // first streamed frame is source frame 1500
}

func TestReadReturnsFalseBeyondProducedSupply(t *testing.T) {
	w := NewWorker(nil)
	src := &fakeSource{channels: 1, frames: monoRamp(100)} // shorter than MinPrefetchFrames
	idx, _ := w.Pop(src, 0, -1, 0)
	w.scanOnce()
	w.scanOnce()

	p := w.Pipe(idx)
	_, ok := p.Read(int(p.Supply())+10, 0)
	require.False(t, ok)
}

func TestFinishedWhenNoLoopAndSourceExhausted(t *testing.T) {
	w := NewWorker(nil)
	src := &fakeSource{channels: 1, frames: monoRamp(500)}
	idx, _ := w.Pop(src, 0, -1, 0) // fileLoopStart == -1: no loop
	w.scanOnce()                   // opening -> active
	w.scanOnce()                   // active: reads all 500 frames, hits EOF

	p := w.Pipe(idx)
	require.True(t, p.Finished())
}

func TestLoopsBackToFileLoopStartInsteadOfFinishing(t *testing.T) {
	w := NewWorker(nil)
	src := &fakeSource{channels: 1, frames: monoRamp(500)}
	idx, _ := w.Pop(src, 0, 100, 500) // loop [100,500)
	w.scanOnce()
	w.scanOnce()

	p := w.Pipe(idx)
	require.False(t, p.Finished())
}

func TestErrorStateOnReadFailure(t *testing.T) {
	w := NewWorker(nil)
	src := &fakeSource{channels: 1, frames: monoRamp(20000), failAt: 1000}
	idx, _ := w.Pop(src, 1000, -1, 0)
	w.scanOnce() // opening -> active
	w.scanOnce() // active: read fails immediately

	p := w.Pipe(idx)
	require.Equal(t, StateError, p.State())
	require.Error(t, p.Err())
}

func TestPushReturnsPipeToFreeListForReuse(t *testing.T) {
	w := NewWorker(nil)
	src := &fakeSource{channels: 1, frames: monoRamp(20000)}
	idx, _ := w.Pop(src, 0, -1, 0)
	w.scanOnce()
	w.Push(idx)
	w.scanOnce() // closing -> free

	require.Equal(t, StateFree, w.Pipe(idx).State())

	// the freed slot should be reusable
	idx2, ok := w.Pop(src, 0, -1, 0)
	require.True(t, ok)
	require.Equal(t, StateOpening, w.Pipe(idx2).State())
}

func TestOverrunResyncsConsumedAndProducedWithoutPanicking(t *testing.T) {
	w := NewWorker(nil)
	src := &fakeSource{channels: 1, frames: monoRamp(20000)}
	idx, _ := w.Pop(src, 0, -1, 0)
	w.scanOnce()
	w.scanOnce()

	p := w.Pipe(idx)
	// Simulate RT having consumed far more than was ever produced
	// (e.g. a prior stall): advance should resync, not underflow.
	p.Advance(int(p.Supply()) + 5000)
	w.scanOnce() // must not panic on negative supply

	require.GreaterOrEqual(t, p.Supply(), int64(0))
}

func TestRunStopsCleanly(t *testing.T) {
	w := NewWorker(nil)
	go w.Run()
	w.Stop() // blocks until Run has returned; must not deadlock or panic
}
