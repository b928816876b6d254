package audioio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNullBackendNeverErrorsAndNeverCallsBack(t *testing.T) {
	var b NullBackend
	called := false
	require.NoError(t, b.Open(48000, 2, 2, 16, func(in, out [][]float32) { called = true }))
	require.NoError(t, b.Start())
	require.NoError(t, b.Stop())
	require.NoError(t, b.Close())
	require.False(t, called, "NullBackend must never invoke its callback")
}

type fakeStream struct {
	startErr, stopErr, closeErr error
	started, stopped, closed    bool
}

func (f *fakeStream) Start() error { f.started = true; return f.startErr }
func (f *fakeStream) Stop() error  { f.stopped = true; return f.stopErr }
func (f *fakeStream) Close() error { f.closed = true; return f.closeErr }

func TestPortAudioBackendDelegatesLifecycleToStream(t *testing.T) {
	fs := &fakeStream{}
	b := &PortAudioBackend{stream: fs, initialised: true}

	require.NoError(t, b.Start())
	require.True(t, fs.started)

	require.NoError(t, b.Stop())
	require.True(t, fs.stopped)

	require.NoError(t, b.Close())
	require.True(t, fs.closed)
	require.Nil(t, b.stream)
	require.False(t, b.initialised)
}

func TestPortAudioBackendStartBeforeOpenErrors(t *testing.T) {
	b := NewPortAudioBackend()
	require.Error(t, b.Start())
}

func TestPortAudioBackendWrapsStreamErrors(t *testing.T) {
	fs := &fakeStream{startErr: errors.New("boom"), stopErr: errors.New("boom")}
	b := &PortAudioBackend{stream: fs}

	require.Error(t, b.Start())
	require.Error(t, b.Stop())
}

func TestPortAudioBackendCloseIsSafeWithoutOpen(t *testing.T) {
	b := NewPortAudioBackend()
	require.NoError(t, b.Close())
}
