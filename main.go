// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"musicviz/cmd"
	"musicviz/internal/audio"
	"musicviz/internal/config"
	"musicviz/internal/log"
	"musicviz/internal/pipeline"
	"musicviz/internal/render"
	"musicviz/internal/source"
	"musicviz/internal/transport"
	"musicviz/internal/transport/udp"
	"musicviz/internal/tui"
	"musicviz/pkg/build"
)

// main is the entry point for the visualizer.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and configuration
//   - Initialize PortAudio when capturing or listing
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Producer: PortAudio callback or file player pushes frames
//   - Consumer: render loop analyzes and publishes frames
//   - Transports: WebSocket and UDP fan-out
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop the producer, then the consumer
//   - Save analyzer state and close transports
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		log.Debugf("Build: %v, using development defaults", err)
	}

	inv, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}
	if inv == nil {
		return // help or version
	}
	cfg := inv.Config
	if err := log.Configure(cfg.LogLevel); err != nil {
		log.Fatalf("%v", err)
	}

	// One OS thread for the audio callback, one for the render loop and
	// one for transport I/O.
	runtime.GOMAXPROCS(3)

	host := inv.Command == cmd.CommandList || cfg.Source.File == ""
	if host {
		if err := audio.Initialize(); err != nil {
			log.Fatalf("%v", err)
		}
		defer audio.Terminate()
	}

	if inv.Command == cmd.CommandList {
		if err := listDevices(inv.Plain); err != nil {
			log.Errorf("%v", err)
		}
		return
	}

	if inv.Pick && cfg.Source.File == "" {
		sel, ok, err := tui.PickDevice()
		if err != nil {
			log.Fatalf("%v", err)
		}
		if !ok {
			return
		}
		cfg.Audio.InputDevice = sel.DeviceID
		cfg.Audio.SampleRate = sel.SampleRate
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Errorf("%v", err)
		stop()
		if host {
			audio.Terminate()
		}
		os.Exit(1)
	}
}

func listDevices(plain bool) error {
	if plain {
		return audio.ListDevices(os.Stdout)
	}
	sel, ok, err := tui.PickDevice()
	if err != nil || !ok {
		return err
	}
	fmt.Printf("Selected [%d] %s at %.0f Hz. Run with --device %d\n", sel.DeviceID, sel.Name, sel.SampleRate, sel.DeviceID)
	return nil
}

// producer is the audio side: the capture engine or the file player.
type producer interface {
	stop() error
	done() <-chan struct{}
}

func run(ctx context.Context, cfg *config.Config) error {
	pcfg, err := cfg.Pipeline()
	if err != nil {
		return err
	}
	p, err := pipeline.New(pcfg)
	if err != nil {
		return err
	}
	if cfg.StateFile != "" {
		s, err := config.LoadStateFile(cfg.StateFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			log.Warnf("State: Not restored: %v", err)
		default:
			if err := p.RestoreState(s); err != nil {
				log.Warnf("State: Not restored: %v", err)
			}
		}
	}

	// The loop is created after the transports, but WebSocket commands may
	// only arrive once the server starts below.
	var loop *render.Loop
	out, startTransports, err := buildTransports(cfg, func(c transport.Command) { loop.HandleCommand(c) })
	if err != nil {
		return err
	}
	loop, err = render.NewLoop(p, out, cfg.Render.FPS)
	if err != nil {
		out.Close()
		return err
	}
	if err := startTransports(); err != nil {
		out.Close()
		return err
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	loop.Start()
	prod, err := startProducer(ctx, cfg, p, loop)
	if err != nil {
		loop.Stop()
		out.Close()
		return err
	}

	select {
	case <-ctx.Done():
		log.Infof("Shutting down")
	case <-prod.done():
		log.Infof("Playback finished")
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	var errs []error
	errs = append(errs, prod.stop())
	loop.Stop()
	if cfg.StateFile != "" {
		if err := config.SaveStateFile(cfg.StateFile, p.SaveState()); err != nil {
			errs = append(errs, fmt.Errorf("saving state: %w", err))
		}
	}
	errs = append(errs, out.Close())
	return errors.Join(errs...)
}

// buildTransports assembles the configured sinks. The returned start
// function opens listeners and publisher goroutines.
func buildTransports(cfg *config.Config, onCommand transport.CommandHandler) (transport.Multi, func() error, error) {
	var (
		out    transport.Multi
		starts []func() error
	)

	if cfg.Transport.LogFrames {
		out = append(out, transport.NewLoggingTransport())
	}
	if cfg.Transport.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddr, onCommand)
		out = append(out, ws)
		starts = append(starts, ws.Start)
	}
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			out.Close()
			return nil, nil, err
		}
		pub, err := udp.NewPublisher(cfg.Transport.UDPSendInterval, sender)
		if err != nil {
			sender.Close()
			out.Close()
			return nil, nil, err
		}
		out = append(out, pub)
		starts = append(starts, func() error { pub.Start(); return nil })
	}
	if len(out) == 0 {
		log.Warnf("Transport: No outputs enabled, frames will only be logged")
		out = append(out, transport.NewLoggingTransport())
	}

	start := func() error {
		for _, s := range starts {
			if err := s(); err != nil {
				return err
			}
		}
		return nil
	}
	return out, start, nil
}

type captureProducer struct{ engine *audio.Engine }

func (c captureProducer) stop() error           { return c.engine.Close() }
func (c captureProducer) done() <-chan struct{} { return nil }

type fileProducer struct{ player *source.Player }

func (f fileProducer) stop() error           { f.player.Stop(); return nil }
func (f fileProducer) done() <-chan struct{} { return f.player.Done() }

func startProducer(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline, loop *render.Loop) (producer, error) {
	if cfg.Source.File != "" {
		track, err := source.Load(cfg.Source.File)
		if err != nil {
			return nil, err
		}
		if cfg.Recording.Enabled {
			log.Warnf("Recording: Ignored while playing a file")
		}
		logBuckets(p, float64(track.SampleRate))
		player, err := source.NewPlayer(track, p, cfg.Source.ChunkFrames, cfg.Source.Loop)
		if err != nil {
			return nil, err
		}
		// A new pass must not blend into the previous one. The clear lands
		// before the first chunk of the pass is pushed.
		player.OnTrackStart = func(ctx context.Context) {
			if err := loop.Apply(ctx, transport.Command{Op: transport.OpClear}); err != nil && ctx.Err() == nil {
				log.Warnf("FilePlayer: Clear on track start failed: %v", err)
			}
		}
		player.Start(ctx)
		return fileProducer{player}, nil
	}

	logBuckets(p, cfg.Audio.SampleRate)
	engine, err := audio.NewEngine(cfg, p)
	if err != nil {
		return nil, err
	}
	// CRITICAL: Start of real-time audio processing.
	if err := engine.StartInputStream(); err != nil {
		return nil, err
	}
	if cfg.Recording.Enabled {
		path := cfg.RecordingPath(time.Now())
		if err := engine.StartRecording(path); err != nil {
			engine.Close()
			return nil, err
		}
		fmt.Printf("Recording to %s\n", path)
	}
	return captureProducer{engine}, nil
}

// logBuckets reports the frequency range the bars cover at sampleRate.
func logBuckets(p *pipeline.Pipeline, sampleRate float64) {
	freqs := p.Spectrum().BucketFrequencies(sampleRate)
	if len(freqs) == 0 {
		return
	}
	log.Infof("Analysis: %d bars from %.1f Hz to %.1f Hz at %.0f Hz",
		len(freqs), freqs[0], freqs[len(freqs)-1], sampleRate)
}
