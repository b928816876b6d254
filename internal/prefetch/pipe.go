// Package prefetch implements the prefetch pipe stack (spec §4.7): a
// fixed pool of ring buffers, each streaming additional frames of one
// long sample from disk into a per-voice buffer without ever blocking
// the audio thread.
package prefetch

// MinPrefetchFrames is the low-water mark below which the worker
// defers a small read rather than issuing it immediately, avoiding a
// storm of tiny reads (spec §4.7 "≈2048").
const MinPrefetchFrames = 2048

// State is a PrefetchPipe's position in its state machine (spec §4.7
// "Model"): free -> opening -> active -> closing -> free, with
// absorbing finished and error, plus the exitThread shutdown sentinel
// posted to pipe 0.
type State int32

const (
	StateFree State = iota
	StateOpening
	StateActive
	StateClosing
	StateClosed
	StateFinished
	StateError
	StateExitThread
)

// FrameSource is the streamable backing store for one pipe: the
// prefetch worker's view of "the file", abstracted so the worker
// doesn't need to know about WAV decoding or the wave bank directly.
// Frames are interleaved per FrameCount's channel count.
type FrameSource interface {
	// ReadFrames copies up to len(dst)/channels frames starting at
	// file frame offset, returning frames actually copied. Returning
	// fewer frames than requested signals end-of-stream.
	ReadFrames(offset int, dst []int16) (framesRead int, err error)
	Channels() int
}

// Pipe is one bounded ring buffer streaming one waveform's post-
// preload frames (spec §3 "PrefetchPipe"). The ring holds
// RingFrames frames; RT reads only through Read, the worker writes
// only through the internal fill step, and the produced/consumed pair
// is the only state RT and worker share without a lock (spec §5
// "Prefetch ring buffer: single-producer single-consumer with barrier
// on the produced/consumed counters").
type Pipe struct {
	state State

	source   FrameSource
	channels int

	ring []int16 // interleaved, len == ringFrames*channels

	fileCursor    int // next file frame the worker will read
	fileLoopStart int // -1: no loop, stream to EOF then finish
	fileLoopEnd   int

	produced int64 // total frames written into ring (mod ringFrames)
	consumed int64 // total frames read out by RT (mod ringFrames)

	finished bool
	err      error

	nextFree int // free-LIFO intrusive link; valid only while State==StateFree
}

func ringFramesFor(pipe *Pipe) int {
	if pipe.channels == 0 {
		return 0
	}
	return len(pipe.ring) / pipe.channels
}

// Supply reports how many contiguous frames beyond the consumer
// cursor are currently available to read.
func (p *Pipe) Supply() int64 {
	return p.produced - p.consumed
}

// State reports the pipe's current state machine position.
func (p *Pipe) State() State { return p.state }

// Finished reports whether the pipe has reached end-of-stream with no
// loop point (spec §4.7 "subsequent reads fill with silence").
func (p *Pipe) Finished() bool { return p.finished }

// Err reports the error that moved this pipe to StateError, if any.
func (p *Pipe) Err() error { return p.err }

// Read returns the frame at consumer-relative index i (0 == the
// oldest not-yet-consumed frame), or ok=false if it hasn't been
// produced yet (the caller should substitute silence rather than read
// stale ring memory — spec §8 scenario 6). Called from the audio
// thread; never blocks, never allocates.
func (p *Pipe) Read(i int, channel int) (sample int16, ok bool) {
	if p.state != StateActive && p.state != StateClosing && p.state != StateFinished {
		return 0, false
	}
	if int64(i) >= p.Supply() {
		return 0, false
	}
	rf := ringFramesFor(p)
	if rf == 0 || channel < 0 || channel >= p.channels {
		return 0, false
	}
	absFrame := p.consumed + int64(i)
	slot := int(absFrame % int64(rf))
	return p.ring[slot*p.channels+channel], true
}

// Advance moves the consumer cursor forward by n frames (RT calls
// this once it has consumed n frames of the current block from the
// pipe, mirroring how far the voice's own playback position moved).
func (p *Pipe) Advance(n int) {
	p.consumed += int64(n)
}
