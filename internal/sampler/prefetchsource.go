package sampler

import (
	"github.com/calfbox-go/calfbox/internal/wavebank"
)

// waveformSource adapts a decoded Waveform to prefetch.FrameSource so
// the prefetch worker can "stream" frames beyond a waveform's
// preloaded prefix. Since the wave bank always decodes a file fully
// up front (spec §1 decode scope), there is no separate disk handle to
// read from here; this adapter stands in for it, gating exposure of
// already-resident frames behind the same ring-buffer/produced-
// consumed mechanics real disk streaming would need, so the prefetch
// pipe's state machine and backpressure behaviour (spec §4.7, §8
// scenario 6) are exercised faithfully even though the I/O itself is
// not incremental.
type waveformSource struct {
	w *wavebank.Waveform
}

func (s waveformSource) Channels() int {
	if s.w == nil || s.w.Channels <= 0 {
		return 1
	}
	return s.w.Channels
}

func (s waveformSource) ReadFrames(offset int, dst []int16) (int, error) {
	ch := s.Channels()
	if s.w == nil {
		return 0, nil
	}
	total := len(dst) / ch
	avail := s.w.Frames - offset
	if avail < 0 {
		avail = 0
	}
	n := total
	if n > avail {
		n = avail
	}
	if n > 0 {
		copy(dst[:n*ch], s.w.Data[offset*ch:(offset+n)*ch])
	}
	return n, nil
}
