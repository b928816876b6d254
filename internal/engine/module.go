// Package engine implements the top-level per-buffer processing
// orchestrator (spec §4.2), the Module plugin contract (spec §4.9),
// and the Scene routing graph (spec §3's "Engine/Scene/Instrument/
// Module").
package engine

import "github.com/calfbox-go/calfbox/internal/midibuf"

// BlockSize is the fixed DSP subchunk size every Module processes at
// once (spec §2, §4.6).
const BlockSize = 16

// Module is the plugin-style audio node interface every instrument
// and effect implements (spec §3, §4.9). ProcessEvent is called once
// per raw MIDI event encountered within a block; ProcessBlock is
// called once per BlockSize-frame subchunk. Implementations must not
// allocate in either method — both run on the audio goroutine.
type Module interface {
	InputCount() int
	OutputCount() int
	ProcessEvent(data []byte)
	ProcessBlock(inputs, outputs [][]float32)
	// Bypassed reports whether this module should pass audio through
	// unmodified (spec §4.9's bypass flag); engines/scenes consult it
	// before calling ProcessBlock to decide whether to copy instead.
	Bypassed() bool
	SetBypassed(bool)
	SampleRate() int
	InstanceName() string
	EngineName() string
}

// ProcessEventsForBlock feeds every MIDI event in buf whose Time falls
// within [blockStart, blockStart+BlockSize) to mod.ProcessEvent, in
// buffer order (which is itself time-ordered thanks to the merger).
func ProcessEventsForBlock(mod Module, buf *midibuf.Buffer, blockStart int) {
	for _, ev := range buf.Events() {
		if ev.Time < blockStart || ev.Time >= blockStart+BlockSize {
			continue
		}
		mod.ProcessEvent(buf.Payload(ev))
	}
}

// SubchunkScratch holds the reusable, fixed-capacity slice-of-slices
// ProcessInSubchunks reslices on every subchunk, so driving a module
// across many callbacks never allocates on the audio goroutine.
type SubchunkScratch struct {
	in  [][]float32
	out [][]float32
}

// NewSubchunkScratch preallocates scratch for the given channel
// counts. Call once per Module at construction time, off the audio
// goroutine.
func NewSubchunkScratch(inChannels, outChannels int) *SubchunkScratch {
	return &SubchunkScratch{
		in:  make([][]float32, inChannels),
		out: make([][]float32, outChannels),
	}
}

// ProcessInSubchunks drives a Module across nframes frames of input/
// output buffers in fixed BlockSize subchunks (spec §2 "each
// instrument's sampler ... module fills its output buffers in fixed
// BLOCK_SIZE subchunks"), dispatching the matching slice of MIDI
// events to ProcessEvent before each ProcessBlock call. scratch is
// reused across calls and across callbacks; it must be sized to match
// inputs/outputs' channel counts.
func ProcessInSubchunks(mod Module, midi *midibuf.Buffer, inputs, outputs [][]float32, nframes int, scratch *SubchunkScratch) {
	for start := 0; start < nframes; start += BlockSize {
		end := start + BlockSize
		if end > nframes {
			end = nframes
		}
		if midi != nil {
			ProcessEventsForBlock(mod, midi, start)
		}
		resliceInto(scratch.in, inputs, start, end)
		resliceInto(scratch.out, outputs, start, end)
		if mod.Bypassed() {
			copyBuffers(scratch.out, scratch.in)
			continue
		}
		mod.ProcessBlock(scratch.in, scratch.out)
	}
}

func resliceInto(dst, bufs [][]float32, start, end int) {
	for i, b := range bufs {
		if i < len(dst) {
			dst[i] = b[start:end]
		}
	}
}

func copyBuffers(dst, src [][]float32) {
	for i := range dst {
		if i < len(src) {
			copy(dst[i], src[i])
		}
	}
}
