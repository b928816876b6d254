// Package midibuf implements the bounded, append-only MIDI event buffer
// and the stable K-way time-ordered merge used to combine MIDI sources
// within one audio callback (spec §4.10).
package midibuf

import "github.com/calfbox-go/calfbox/internal/cerrors"

// MaxEvents is the per-buffer event capacity.
const MaxEvents = 256

// MaxDataBytes is the per-buffer capacity for event payloads longer
// than the inline threshold.
const MaxDataBytes = 256

// InlineBytes is the largest payload stored inline in the event struct
// itself, avoiding a separate allocation/copy for the overwhelming
// majority of MIDI messages (status + up to 2 data bytes, or a 4-byte
// sysex fragment).
const InlineBytes = 4

// Event is one timestamped MIDI message within a buffer. Payloads of
// InlineBytes or fewer live in Inline; longer payloads are sliced out
// of the owning Buffer's data arena via Offset/Size.
type Event struct {
	Time   int // delta time in samples from the start of the buffer's window
	Size   int
	Inline [InlineBytes]byte
	Offset int // valid only when Size > InlineBytes
}

// Buffer is a bounded, append-only sequence of time-ordered-on-write
// MIDI events plus a byte arena for payloads that don't fit inline.
type Buffer struct {
	events []Event
	data   [MaxDataBytes]byte
	dataAt int
}

// NewBuffer returns an empty buffer ready for writes.
func NewBuffer() *Buffer {
	b := &Buffer{}
	b.Clear()
	return b
}

// Clear resets the buffer to empty without reallocating.
func (b *Buffer) Clear() {
	b.events = b.events[:0]
	b.dataAt = 0
}

// Count returns the number of events currently stored.
func (b *Buffer) Count() int { return len(b.events) }

// WriteInline appends an event whose payload is InlineBytes or fewer.
// Returns a resource error (never panics, never allocates) when the
// event-count cap is reached; the caller is expected to drop the event
// and, on the control thread, log it.
func (b *Buffer) WriteInline(time int, payload []byte) error {
	if len(payload) > InlineBytes {
		return cerrors.New(cerrors.KindCommand, "payload too long for WriteInline")
	}
	if len(b.events) >= MaxEvents {
		return cerrors.New(cerrors.KindResource, "midi buffer event cap reached")
	}
	var ev Event
	ev.Time = time
	ev.Size = len(payload)
	copy(ev.Inline[:], payload)
	b.events = append(b.events, ev)
	return nil
}

// WriteEvent appends an event of arbitrary length, storing payloads
// over InlineBytes in the buffer's data arena. Returns a resource error
// when either the event-count cap or the data-arena cap is reached.
func (b *Buffer) WriteEvent(time int, payload []byte) error {
	if len(payload) <= InlineBytes {
		return b.WriteInline(time, payload)
	}
	if len(b.events) >= MaxEvents {
		return cerrors.New(cerrors.KindResource, "midi buffer event cap reached")
	}
	if b.dataAt+len(payload) > MaxDataBytes {
		return cerrors.New(cerrors.KindResource, "midi buffer data cap reached")
	}
	var ev Event
	ev.Time = time
	ev.Size = len(payload)
	ev.Offset = b.dataAt
	copy(b.data[b.dataAt:], payload)
	b.dataAt += len(payload)
	b.events = append(b.events, ev)
	return nil
}

// At returns the payload bytes for event i.
func (b *Buffer) At(i int) (time int, payload []byte) {
	ev := b.events[i]
	if ev.Size <= InlineBytes {
		return ev.Time, ev.Inline[:ev.Size]
	}
	return ev.Time, b.data[ev.Offset : ev.Offset+ev.Size]
}

// Events exposes the event list for read-only iteration (e.g. by the
// merger, or by a module scanning for note-on/off).
func (b *Buffer) Events() []Event { return b.events }

// Payload returns the payload bytes backing a single Event obtained
// from Events(); callers must pass an Event from the same Buffer.
func (b *Buffer) Payload(ev Event) []byte {
	if ev.Size <= InlineBytes {
		return ev.Inline[:ev.Size]
	}
	return b.data[ev.Offset : ev.Offset+ev.Size]
}

// Positions tracks K read cursors into K input buffers across possibly
// multiple partial Merge calls, so a caller can resume a merge after
// consuming only part of the available events (e.g. to stay within a
// sub-window of a larger render).
type Positions []int

// NewPositions returns a zeroed cursor set for n inputs.
func NewPositions(n int) Positions { return make(Positions, n) }

// Merge performs a stable K-way merge of inputs by event Time, writing
// into out and advancing positions in place. Ties resolve in input
// order (earliest index wins), matching spec §4.10's merge contract.
// Merge stops early (without error) if out's caps are reached; the
// caller inspects positions to see how much of each input was
// consumed and may resume later.
func Merge(out *Buffer, inputs []*Buffer, positions Positions) {
	for {
		best := -1
		bestTime := 0
		for i, in := range inputs {
			if positions[i] >= in.Count() {
				continue
			}
			ev := in.events[positions[i]]
			if best == -1 || ev.Time < bestTime {
				best = i
				bestTime = ev.Time
			}
		}
		if best == -1 {
			return
		}
		in := inputs[best]
		ev := in.events[positions[best]]
		payload := in.Payload(ev)
		if err := out.WriteEvent(ev.Time, payload); err != nil {
			return
		}
		positions[best]++
	}
}
