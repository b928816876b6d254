package prefetch

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// MaxPipes bounds the pipe pool, matching MaxSamplerVoices so every
// voice could in principle hold one streamed waveform concurrently.
const MaxPipes = 128

// RingFrames is each pipe's ring buffer capacity. Sized well above
// MinPrefetchFrames so a single worker scan can refill several blocks
// ahead of the consumer.
const RingFrames = 8192

// Worker owns the fixed pipe array and the free-pipe LIFO, and runs
// the 1ms-sleep scan loop that fills active pipes from their
// FrameSource (spec §4.7 "Worker loop"). Grounded on internal/rtcmd's
// mutex-protected cross-goroutine structures: the free LIFO and each
// pipe's state are the only things shared with the audio thread, so
// they're guarded the same way rtcmd guards its ring buffers.
type Worker struct {
	log *log.Logger

	mu       sync.Mutex
	pipes    [MaxPipes]Pipe
	freeHead int // -1 == empty

	stop chan struct{}
	done chan struct{}
}

// NewWorker returns a Worker with every pipe initially free.
func NewWorker(logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	w := &Worker{log: logger, stop: make(chan struct{}), done: make(chan struct{})}
	for i := range w.pipes {
		w.pipes[i].state = StateFree
		w.pipes[i].nextFree = i + 1
	}
	w.pipes[MaxPipes-1].nextFree = -1
	w.freeHead = 0
	return w
}

// Pop acquires a free pipe for source, seeking past the preloadFrames
// prefix already resident elsewhere (e.g. in the wave bank's in-memory
// prefix), and returns its index (spec §4.7 "Acquire / release": pop
// from the free LIFO, set waveform/loop bounds, reset state, move to
// opening"). Returns ok=false if the pool is exhausted.
func (w *Worker) Pop(source FrameSource, preloadFrames, fileLoopStart, fileLoopEnd int) (idx int, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.freeHead < 0 {
		w.log.Warn("prefetch pipe pool exhausted, streamed waveform will play silence past its preload")
		return 0, false
	}
	idx = w.freeHead
	p := &w.pipes[idx]
	w.freeHead = p.nextFree

	p.source = source
	p.channels = source.Channels()
	if p.channels <= 0 {
		p.channels = 1
	}
	if len(p.ring) != RingFrames*p.channels {
		p.ring = make([]int16, RingFrames*p.channels)
	}
	p.fileCursor = preloadFrames
	p.fileLoopStart = fileLoopStart
	p.fileLoopEnd = fileLoopEnd
	p.produced = 0
	p.consumed = 0
	p.finished = false
	p.err = nil
	p.state = StateOpening
	return idx, true
}

// Push marks pipe idx for closing; the worker will finish any
// in-flight work, close out the pipe, and return it to the free LIFO
// on its next scan (spec §4.7 "push(pipe) marks the pipe for closing
// ... and pushes it back onto the free LIFO").
func (w *Worker) Push(idx int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := &w.pipes[idx]
	if p.state == StateOpening || p.state == StateFree {
		w.freePipeLocked(idx)
		return
	}
	p.state = StateClosing
}

func (w *Worker) freePipeLocked(idx int) {
	p := &w.pipes[idx]
	p.source = nil
	p.state = StateFree
	p.nextFree = w.freeHead
	w.freeHead = idx
}

// Pipe returns a pointer to pipe idx for the audio thread's Read/
// Advance calls. The pointer is stable for the pipe's lifetime in the
// array; only the fields RT touches (state, produced, consumed, ring)
// are safe to read without the worker's lock, matching the spec's
// "barrier on the produced/consumed counters" rather than a full lock.
func (w *Worker) Pipe(idx int) *Pipe { return &w.pipes[idx] }

// Run drives the 1ms scan loop until Stop is called (spec §4.7
// "Worker loop": sleep 1ms; for each pipe, act on state").
func (w *Worker) Run() {
	defer close(w.done)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.scanOnce()
		}
	}
}

// Stop signals Run to return and waits for it to do so.
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}

// Poll runs one scan pass synchronously, without starting the 1ms
// background loop. Used by the offline-render path (no real-time
// worker goroutine running) and by tests that need deterministic
// control over when a pipe gets filled.
func (w *Worker) Poll() { w.scanOnce() }

func (w *Worker) scanOnce() {
	for i := range w.pipes {
		w.mu.Lock()
		p := &w.pipes[i]
		state := p.state
		w.mu.Unlock()

		switch state {
		case StateOpening:
			w.openPipe(i)
		case StateActive:
			w.fillPipe(i)
		case StateClosing:
			w.mu.Lock()
			w.freePipeLocked(i)
			w.mu.Unlock()
		}
	}
}

// openPipe transitions an opening pipe to active. Since this pool's
// FrameSource is already an open, seekable handle (no separate file-
// open syscall to retry), opening can never itself fail; a source
// that can fail is expected to surface that on its first ReadFrames
// call instead, handled by fillPipe.
func (w *Worker) openPipe(idx int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p := &w.pipes[idx]
	if p.state != StateOpening {
		return
	}
	p.state = StateActive
}

// fillPipe implements spec §4.7's "active" worker step: resync on
// overrun, defer small reads, otherwise read up to a buffer-wrap or
// file-loop-wrap boundary (whichever comes first) and loop until the
// ring is topped up or the file loop point is hit.
func (w *Worker) fillPipe(idx int) {
	w.mu.Lock()
	p := &w.pipes[idx]
	if p.state != StateActive {
		w.mu.Unlock()
		return
	}
	rf := ringFramesFor(p)
	if rf == 0 {
		w.mu.Unlock()
		return
	}

	supply := p.produced - p.consumed
	if supply < 0 {
		// Overrun: RT consumed frames the worker never produced (the
		// backing buffer fell behind real time). Resync both cursors
		// forward by the overrun amount rather than replaying it.
		overrun := -supply
		p.fileCursor += int(overrun)
		p.produced = p.consumed
		supply = 0
	}

	loopEndFrames := int64(rf)
	if supply >= loopEndFrames {
		w.mu.Unlock()
		return
	}

	for supply < loopEndFrames {
		readsize := int(loopEndFrames - supply)
		if readsize < MinPrefetchFrames && supply > 0 {
			break // defer: not worth a small read yet
		}

		wrapAt := rf - int(p.produced%int64(rf))
		if readsize > wrapAt {
			readsize = wrapAt
		}
		if p.fileLoopEnd > p.fileLoopStart && p.fileLoopStart >= 0 {
			untilFileLoop := p.fileLoopEnd - p.fileCursor
			if untilFileLoop <= 0 {
				p.fileCursor = p.fileLoopStart
				continue
			}
			if readsize > untilFileLoop {
				readsize = untilFileLoop
			}
		}
		if readsize <= 0 {
			break
		}

		writeSlot := int(p.produced % int64(rf))
		dst := p.ring[writeSlot*p.channels : (writeSlot+readsize)*p.channels]
		source := p.source
		fileCursor := p.fileCursor
		w.mu.Unlock()

		n, err := source.ReadFrames(fileCursor, dst)

		w.mu.Lock()
		if p.state != StateActive {
			w.mu.Unlock()
			return
		}
		if err != nil {
			p.state = StateError
			p.err = err
			w.log.Warn("prefetch read failed, pipe entering error state", "err", err)
			w.mu.Unlock()
			return
		}
		p.fileCursor += n
		p.produced += int64(n)
		supply = p.produced - p.consumed

		if n < readsize {
			// Hit end of file content for this read.
			if p.fileLoopStart < 0 {
				p.finished = true
				w.mu.Unlock()
				return
			}
			p.fileCursor = p.fileLoopStart
		}
	}
	w.mu.Unlock()
}
