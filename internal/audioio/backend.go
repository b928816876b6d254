// Package audioio defines the abstract audio backend contract the
// engine drives its per-callback render loop through (spec §1 scopes
// the concrete backends themselves — "a callback-driven pro-audio
// client and a direct USB isochronous driver" — out as external
// collaborators; this package is the "abstract I/O contract they must
// satisfy" the spec still requires).
package audioio

import "github.com/calfbox-go/calfbox/internal/cerrors"

// Callback is invoked once per hardware buffer with non-interleaved
// per-channel input and output slices, each sized framesPerBuffer.
// Implementations must not allocate or block.
type Callback func(inputs, outputs [][]float32)

// Backend is the abstract audio I/O contract (spec §3 "Engine/Scene/
// Instrument/Module" — the engine owns at most one attached backend at
// a time; the offline "render N frames" primitive is refused while that
// backend has been started, spec §4.2).
type Backend interface {
	// Open configures and opens the device-level stream at the given
	// sample rate, channel counts and buffer size, registering cb to
	// be called once per hardware buffer once Start is called.
	Open(sampleRate float64, inputs, outputs, framesPerBuffer int, cb Callback) error
	Start() error
	Stop() error
	Close() error
}

// NullBackend is a Backend that never opens a real device: it lets
// the engine run in the offline "render N frames" mode (spec §4.2)
// without an attached backend, and lets tests exercise engine wiring
// without portaudio or a real audio device present.
type NullBackend struct{}

func (NullBackend) Open(float64, int, int, int, Callback) error { return nil }
func (NullBackend) Start() error                                { return nil }
func (NullBackend) Stop() error                                 { return nil }
func (NullBackend) Close() error                                { return nil }

// errBackendUnavailable is the sentinel recovery-policy kind for "no
// matching audio device found" (spec §6 exit code 2, "backend not
// available", as distinct from exit code 1's general init failure).
func errBackendUnavailable(message string, cause error) error {
	return cerrors.Wrap(cerrors.KindDevice, message, cause)
}
