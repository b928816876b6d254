package midibuf

// MessageSize returns the canonical byte count for a MIDI status byte,
// per spec §6: 3 for 8x/9x/Ax/Bx/Ex, 2 for Cx/Dx, 1 for Fx (system
// messages). Running status is never expanded here — callers must
// pre-expand running-status input streams before handing bytes to this
// package.
func MessageSize(status byte) int {
	switch status & 0xF0 {
	case 0x80, 0x90, 0xA0, 0xB0, 0xE0:
		return 3
	case 0xC0, 0xD0:
		return 2
	case 0xF0:
		return 1
	default:
		return 1
	}
}

// NormalizeNoteOn rewrites a note-on with velocity 0 into a note-off
// with the same note and velocity 0, matching spec §6's input
// normalization rule. Other messages pass through unchanged.
func NormalizeNoteOn(msg []byte) []byte {
	if len(msg) == 3 && msg[0]&0xF0 == 0x90 && msg[2] == 0 {
		out := make([]byte, 3)
		out[0] = 0x80 | (msg[0] & 0x0F)
		out[1] = msg[1]
		out[2] = 0
		return out
	}
	return msg
}

// IsNoteOn reports whether msg is a note-on with nonzero velocity.
func IsNoteOn(msg []byte) bool {
	return len(msg) == 3 && msg[0]&0xF0 == 0x90 && msg[2] != 0
}

// IsNoteOff reports whether msg is a note-off, or a note-on with zero
// velocity (spec §6 normalization — some callers may not have
// normalized yet).
func IsNoteOff(msg []byte) bool {
	if len(msg) != 3 {
		return false
	}
	switch msg[0] & 0xF0 {
	case 0x80:
		return true
	case 0x90:
		return msg[2] == 0
	}
	return false
}

// Channel returns the MIDI channel (0-15) encoded in a status byte.
func Channel(status byte) int { return int(status & 0x0F) }
