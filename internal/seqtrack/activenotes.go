package seqtrack

import (
	"math/bits"

	"github.com/calfbox-go/calfbox/internal/midibuf"
)

// ActiveNotes is a per-channel 128-bit bitmap of notes currently
// sounding due to playback (spec §3 "ActiveNotes"), used to
// synthesise note-offs at stop/seek without tracking individual Voice
// references.
type ActiveNotes struct {
	bits [16][2]uint64 // [channel][0]=notes 0-63, [1]=notes 64-127
}

// Track updates the bitmap from one raw MIDI event: note-on (velocity
// > 0) sets the bit, note-off (or note-on velocity 0, already
// normalised upstream) clears it. Poly-aftertouch and other messages
// are ignored for tracking purposes, per spec §4.4.
func (a *ActiveNotes) Track(channel int, data []byte) {
	if len(data) < 3 {
		return
	}
	status := data[0] & 0xf0
	note := data[1]
	switch status {
	case 0x90:
		if data[2] == 0 {
			a.clear(channel, note)
		} else {
			a.set(channel, note)
		}
	case 0x80:
		a.clear(channel, note)
	}
}

func (a *ActiveNotes) set(channel int, note byte) {
	word, bit := wordBit(note)
	a.bits[channel&0x0f][word] |= 1 << bit
}

func (a *ActiveNotes) clear(channel int, note byte) {
	word, bit := wordBit(note)
	a.bits[channel&0x0f][word] &^= 1 << bit
}

func wordBit(note byte) (word, bit int) {
	if note >= 64 {
		return 1, int(note - 64)
	}
	return 0, int(note)
}

// ReleaseAll emits a note-off for every set bit at the given delta
// time (spec §4.5 "Active-notes release"), clearing the bitmap as it
// goes. Returns false if buf filled before every note-off could be
// emitted, in which case the caller should retry later (the still-set
// bits remain set).
func (a *ActiveNotes) ReleaseAll(buf *midibuf.Buffer, deltaTime int) bool {
	for ch := 0; ch < 16; ch++ {
		for word := 0; word < 2; word++ {
			remaining := a.bits[ch][word]
			for remaining != 0 {
				bit := bits.TrailingZeros64(remaining)
				note := byte(word*64 + bit)
				if err := buf.WriteEvent(deltaTime, []byte{byte(0x80 | ch), note, 0}); err != nil {
					return false
				}
				remaining &^= 1 << uint(bit)
				a.bits[ch][word] &^= 1 << uint(bit)
			}
		}
	}
	return true
}
