// Command calfboxd is the calfbox audio/MIDI engine daemon: it loads
// an EngineConfig, opens the configured audio backend, builds the
// first configured scene, and runs until interrupted (spec §6 "Exit
// codes").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/calfbox-go/calfbox/internal/audioio"
	"github.com/calfbox-go/calfbox/internal/cerrors"
	"github.com/calfbox-go/calfbox/internal/config"
	"github.com/calfbox-go/calfbox/internal/engine"
	"github.com/calfbox-go/calfbox/internal/prefetch"
	"github.com/calfbox-go/calfbox/internal/sfz"
	"github.com/calfbox-go/calfbox/internal/wavebank"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := pflag.StringP("config", "c", "calfbox.yaml", "Engine config file (YAML).")
	help := pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "calfboxd - the calfbox audio/MIDI engine daemon.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: calfboxd [options]\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		return 0
	}

	logger := log.New(os.Stderr)

	f, err := os.Open(*configPath)
	if err != nil {
		logger.Error("opening engine config", "path", *configPath, "err", err)
		return 1
	}
	engCfg, err := config.LoadEngineConfig(f)
	f.Close()
	if err != nil {
		logger.Error("loading engine config", "err", err)
		return 1
	}
	logger.SetLevel(parseLogLevel(engCfg.LogLevel))

	if len(engCfg.SceneFiles) == 0 {
		logger.Error("engine config lists no scene_files")
		return 1
	}
	if len(engCfg.SceneFiles) > 1 {
		logger.Warn("multiple scene_files configured; calfboxd currently runs only the first", "scene_files", engCfg.SceneFiles)
	}

	sf, err := os.Open(engCfg.SceneFiles[0])
	if err != nil {
		logger.Error("opening scene file", "path", engCfg.SceneFiles[0], "err", err)
		return 1
	}
	sceneCfg, err := config.ParseScene(sf)
	sf.Close()
	if err != nil {
		logger.Error("parsing scene file", "err", err)
		return 1
	}

	bank := wavebank.New(wavebank.WavDecoder{}, logger)
	defer bank.Close()

	worker := prefetch.NewWorker(logger)
	go worker.Run()
	defer worker.Stop()

	loader := &sfz.BankLoader{Bank: bank, Context: "scene"}
	scene, err := engine.BuildScene(sceneCfg, loader, engCfg.SampleRate, logger)
	if err != nil {
		logger.Error("building scene", "err", err)
		return 1
	}
	scene.Module.AttachPrefetchWorker(worker)

	backend, err := newBackend(engCfg.Backend)
	if err != nil {
		logger.Error("selecting audio backend", "err", err)
		return 1
	}

	eng := engine.New(engCfg.SampleRate, engCfg.BufferSize, backend, scene, logger)
	if err := eng.Start(); err != nil {
		logger.Error("starting engine", "err", err)
		if cerr, ok := err.(*cerrors.Error); ok && cerr.Kind == cerrors.KindDevice {
			return 2
		}
		return 1
	}
	defer eng.Close()

	logger.Info("calfboxd running", "sample_rate", engCfg.SampleRate, "buffer_size", engCfg.BufferSize, "backend", engCfg.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("calfboxd shutting down")
	return 0
}

func newBackend(name string) (audioio.Backend, error) {
	switch name {
	case "", "portaudio":
		return audioio.NewPortAudioBackend(), nil
	case "null":
		return &audioio.NullBackend{}, nil
	default:
		return nil, cerrors.New(cerrors.KindConfig, fmt.Sprintf("unknown backend %q", name))
	}
}

func parseLogLevel(level string) log.Level {
	switch level {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
