package engine

import (
	"github.com/charmbracelet/log"

	"github.com/calfbox-go/calfbox/internal/audioio"
	"github.com/calfbox-go/calfbox/internal/cerrors"
)

// Engine is the top-level orchestrator (spec §4.2): it owns at most
// one attached audio Backend and drives one Scene's Render once per
// hardware callback, or offline in caller-chosen chunks when no
// backend is running.
type Engine struct {
	logger     *log.Logger
	sampleRate int
	bufferSize int
	backend    audioio.Backend
	scene      *Scene

	started       bool
	windowSamples int64
}

// New returns an Engine bound to backend and scene. Start must be
// called before the backend produces any audio.
func New(sampleRate, bufferSize int, backend audioio.Backend, scene *Scene, logger *log.Logger) *Engine {
	return &Engine{
		logger:     logger,
		sampleRate: sampleRate,
		bufferSize: bufferSize,
		backend:    backend,
		scene:      scene,
	}
}

// Scene returns the engine's attached scene.
func (e *Engine) Scene() *Scene { return e.scene }

// Start opens and starts the backend, which drives e.callback once per
// hardware buffer from here on.
func (e *Engine) Start() error {
	if e.started {
		return cerrors.New(cerrors.KindCommand, "engine already started")
	}
	if err := e.backend.Open(float64(e.sampleRate), 0, 2, e.bufferSize, e.callback); err != nil {
		return err
	}
	if err := e.backend.Start(); err != nil {
		return err
	}
	e.started = true
	return nil
}

// Stop stops the backend without closing it; Start may be called
// again afterwards.
func (e *Engine) Stop() error {
	if !e.started {
		return nil
	}
	if err := e.backend.Stop(); err != nil {
		return err
	}
	e.started = false
	return nil
}

// Close stops the engine (if running) and closes its backend. Safe to
// call even if Start was never called.
func (e *Engine) Close() error {
	_ = e.Stop()
	return e.backend.Close()
}

func (e *Engine) callback(inputs, outputs [][]float32) {
	n := 0
	if len(outputs) > 0 {
		n = len(outputs[0])
	}
	e.scene.Render(e.windowSamples, outputs, n)
	e.windowSamples += int64(n)
}

// RenderOffline renders nFrames of the scene's output directly,
// without going through a backend callback (spec §4.2's offline
// "render N frames" primitive). It is refused while the engine's
// backend is running, so an offline render can never interleave with
// a live callback mutating the same scene's voice state.
func (e *Engine) RenderOffline(nFrames int) ([][]float32, error) {
	if e.started {
		return nil, cerrors.New(cerrors.KindCommand, "cannot render offline while the audio backend is running")
	}
	out := make([][]float32, e.scene.Module.OutputCount())
	for i := range out {
		out[i] = make([]float32, nFrames)
	}
	e.scene.Render(e.windowSamples, out, nFrames)
	e.windowSamples += int64(nFrames)
	return out, nil
}
