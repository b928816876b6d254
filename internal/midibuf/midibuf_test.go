package midibuf_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/calfbox-go/calfbox/internal/midibuf"
)

func TestWriteEventRoutesShortPayloadsInline(t *testing.T) {
	b := midibuf.NewBuffer()
	require.NoError(t, b.WriteEvent(5, []byte{0x90, 60, 100}))
	require.Equal(t, 1, b.Count())
	tm, payload := b.At(0)
	require.Equal(t, 5, tm)
	require.Equal(t, []byte{0x90, 60, 100}, payload)
}

func TestWriteEventRejectsPastEventCap(t *testing.T) {
	b := midibuf.NewBuffer()
	for i := 0; i < midibuf.MaxEvents; i++ {
		require.NoError(t, b.WriteEvent(i, []byte{0x90, 60, 100}))
	}
	require.Error(t, b.WriteEvent(midibuf.MaxEvents, []byte{0x90, 60, 100}))
}

func TestWriteEventRejectsPastDataArenaCap(t *testing.T) {
	b := midibuf.NewBuffer()
	longPayload := make([]byte, midibuf.InlineBytes+1)
	for i := 0; i*len(longPayload) < midibuf.MaxDataBytes; i++ {
		_ = b.WriteEvent(i, longPayload)
	}
	require.Error(t, b.WriteEvent(999, longPayload))
}

func TestMergeBreaksTiesByInputOrder(t *testing.T) {
	first := midibuf.NewBuffer()
	second := midibuf.NewBuffer()
	require.NoError(t, first.WriteEvent(10, []byte{0x90, 1, 1}))
	require.NoError(t, second.WriteEvent(10, []byte{0x90, 2, 2}))

	out := midibuf.NewBuffer()
	positions := midibuf.NewPositions(2)
	midibuf.Merge(out, []*midibuf.Buffer{first, second}, positions)

	require.Equal(t, 2, out.Count())
	_, p0 := out.At(0)
	_, p1 := out.At(1)
	require.Equal(t, byte(1), p0[1], "earlier input index wins a time tie")
	require.Equal(t, byte(2), p1[1])
}

func TestMergeConsumesEveryInputEvent(t *testing.T) {
	a := midibuf.NewBuffer()
	b := midibuf.NewBuffer()
	require.NoError(t, a.WriteEvent(0, []byte{0x90, 1, 1}))
	require.NoError(t, a.WriteEvent(20, []byte{0x90, 2, 2}))
	require.NoError(t, b.WriteEvent(10, []byte{0x90, 3, 3}))

	out := midibuf.NewBuffer()
	positions := midibuf.NewPositions(2)
	midibuf.Merge(out, []*midibuf.Buffer{a, b}, positions)

	require.Equal(t, 3, out.Count())
	times := []int{}
	for _, ev := range out.Events() {
		times = append(times, ev.Time)
	}
	require.Equal(t, []int{0, 10, 20}, times)
}

func TestMergeOutputIsTimeSorted(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		numBuffers := rapid.IntRange(1, 4).Draw(rt, "numBuffers")
		buffers := make([]*midibuf.Buffer, numBuffers)
		for i := range buffers {
			buffers[i] = midibuf.NewBuffer()
			n := rapid.IntRange(0, 8).Draw(rt, "n")
			last := 0
			for j := 0; j < n; j++ {
				last += rapid.IntRange(0, 5).Draw(rt, "gap")
				if err := buffers[i].WriteEvent(last, []byte{0x90, 60, 100}); err != nil {
					rt.Fatalf("unexpected write error: %v", err)
				}
			}
		}

		out := midibuf.NewBuffer()
		positions := midibuf.NewPositions(numBuffers)
		midibuf.Merge(out, buffers, positions)

		events := out.Events()
		for i := 1; i < len(events); i++ {
			if events[i].Time < events[i-1].Time {
				rt.Fatalf("merge output not time-sorted: %d before %d", events[i-1].Time, events[i].Time)
			}
		}

		wantCount := 0
		for _, buf := range buffers {
			wantCount += buf.Count()
		}
		if out.Count() != wantCount {
			rt.Fatalf("merge dropped events: got %d, want %d", out.Count(), wantCount)
		}
	})
}
