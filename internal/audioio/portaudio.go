package audioio

import (
	"github.com/gordonklaus/portaudio"

	"github.com/calfbox-go/calfbox/internal/cerrors"
)

// paStream abstracts the subset of *portaudio.Stream the backend
// needs, the same seam other_examples' client-audio.go uses ("paStream
// abstracts a PortAudio stream for testing") so PortAudioBackend's
// Start/Stop/Close logic is exercisable without a real device.
type paStream interface {
	Start() error
	Stop() error
	Close() error
}

// PortAudioBackend is the default pro-audio Backend, wrapping
// github.com/gordonklaus/portaudio's default-device callback stream
// (grounded on other_examples' modplayer main.go: `portaudio.Initialize`
// once, `OpenDefaultStream(inputs, outputs, sampleRate,
// framesPerBuffer, callback)`, then `Start`/`Stop`/`Close` around
// playback — generalised here to take any Callback rather than one
// hardcoded player and to report Open failures as typed cerrors
// instead of log.Fatal).
type PortAudioBackend struct {
	stream      paStream
	initialised bool
}

// NewPortAudioBackend returns an unopened backend. Open must be called
// before Start.
func NewPortAudioBackend() *PortAudioBackend { return &PortAudioBackend{} }

// Open initialises the PortAudio library (once per backend) and opens
// its default stream. A failure to initialise the library is an
// IOError (spec §6 exit code 1); a failure to find/open a matching
// device is a DeviceError (exit code 2).
func (b *PortAudioBackend) Open(sampleRate float64, inputs, outputs, framesPerBuffer int, cb Callback) error {
	if !b.initialised {
		if err := portaudio.Initialize(); err != nil {
			return cerrors.Wrap(cerrors.KindIO, "portaudio initialize", err)
		}
		b.initialised = true
	}

	stream, err := portaudio.OpenDefaultStream(inputs, outputs, sampleRate, framesPerBuffer,
		func(in, out [][]float32) { cb(in, out) })
	if err != nil {
		portaudio.Terminate()
		b.initialised = false
		return errBackendUnavailable("open portaudio default stream", err)
	}
	b.stream = stream
	return nil
}

func (b *PortAudioBackend) Start() error {
	if b.stream == nil {
		return cerrors.New(cerrors.KindCommand, "portaudio backend started before Open")
	}
	if err := b.stream.Start(); err != nil {
		return cerrors.Wrap(cerrors.KindIO, "start portaudio stream", err)
	}
	return nil
}

func (b *PortAudioBackend) Stop() error {
	if b.stream == nil {
		return nil
	}
	if err := b.stream.Stop(); err != nil {
		return cerrors.Wrap(cerrors.KindIO, "stop portaudio stream", err)
	}
	return nil
}

// Close closes the stream and terminates the PortAudio library. Safe
// to call even if Open never succeeded.
func (b *PortAudioBackend) Close() error {
	var err error
	if b.stream != nil {
		err = b.stream.Close()
		b.stream = nil
	}
	if b.initialised {
		portaudio.Terminate()
		b.initialised = false
	}
	if err != nil {
		return cerrors.Wrap(cerrors.KindIO, "close portaudio stream", err)
	}
	return nil
}
