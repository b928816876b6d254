// Package wavebank implements the reference-counted, process-wide
// registry of decoded PCM Waveforms (spec §3 "Waveform", §4.8 "Wave
// bank").
package wavebank

// Waveform is an immutable interleaved 16-bit PCM payload plus its
// framing metadata. Shared by every SamplerLayer that references it;
// lifetime is governed by reference count, not by any single owner.
type Waveform struct {
	ID            int64
	CanonicalPath string
	Channels      int // 1 or 2
	Frames        int
	SourceRate    int
	Data          []int16 // interleaved, len == Frames*Channels

	// PreloadedFrames is how many leading frames a voice reads from
	// Data directly; when a prefetch worker is attached, frames past it
	// are read through a prefetch pipe (spec §4.7). Data always holds
	// every frame, and the wave bank sets PreloadedFrames to Frames.
	PreloadedFrames int

	refcount int
	bytes    int64
}

// Bytes returns the PCM payload size in bytes, matching the wave
// bank's accounting formula (channels * 2 bytes/sample * (frames+1),
// the +1 guarding against the cubic interpolator's lookahead read at
// the very end of a non-looping sample).
func (w *Waveform) Bytes() int64 { return w.bytes }

// Refcount returns the current reference count (invariant: >=1 while
// registered in a bank).
func (w *Waveform) Refcount() int { return w.refcount }

// Sample returns the PCM sample at the given frame/channel, or 0 if
// the frame or channel is outside the waveform. Frames past
// PreloadedFrames are read from Data like any other.
func (w *Waveform) Sample(frame, channel int) int16 {
	if frame < 0 || frame >= w.Frames || channel < 0 || channel >= w.Channels {
		return 0
	}
	return w.Data[frame*w.Channels+channel]
}
