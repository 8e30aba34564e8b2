// internal/cli/run/run.go
// Package run drives one interactive bridge session for the wklink command.
package run

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ColonelBlimp/wklink/internal/bridge"
	"github.com/ColonelBlimp/wklink/internal/config"
	"github.com/ColonelBlimp/wklink/internal/inject"
	"github.com/ColonelBlimp/wklink/internal/keyer"
	"github.com/ColonelBlimp/wklink/internal/logger"
	"github.com/ColonelBlimp/wklink/internal/port"
	"github.com/ColonelBlimp/wklink/internal/recovery"
	"github.com/ColonelBlimp/wklink/internal/telemetry"
)

// ErrSessionEnded indicates the keyer link failed while running
var ErrSessionEnded = errors.New("session ended by link fault")

const help = "commands: m = toggle sidetone mute, s = toggle paddle swap, q = quit"

// Options are the pieces tests replace. Zero values use the real thing.
type Options struct {
	In  io.Reader
	Out io.Writer
	Log logger.Logger
	// Injector overrides the one named in the settings
	Injector keyer.Injector
	// Open overrides the serial opener
	Open port.OpenFunc
}

// Run connects to the keyer and bridges until ctx is done, the user quits, or
// the link fails. Keys are always released before it returns.
func Run(ctx context.Context, s *config.Settings, opts Options) error {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Log == nil {
		opts.Log = logger.Default()
	}
	log := opts.Log

	path, err := port.Resolve(s.Port)
	if err != nil {
		return fmt.Errorf("resolve port: %w", err)
	}

	injector := opts.Injector
	if injector == nil {
		if injector, err = inject.New(s.Injector, log); err != nil {
			return fmt.Errorf("injector: %w", err)
		}
	}

	hub := telemetry.NewHub(s.TelemetryBuffer, log)
	hub.Subscribe(telemetry.NewLogSink(log))
	if s.MQTTBroker != "" {
		sink, derr := telemetry.DialMQTT(s.MQTT(), log)
		if derr != nil {
			log.Warn("mqtt disabled", "error", derr)
		} else {
			hub.Subscribe(sink)
			defer sink.Close()
		}
	}
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go func() { _ = hub.Run(hubCtx) }()
	defer hub.Close()

	ctl, err := bridge.NewController(injector, hub, log)
	if err != nil {
		return err
	}
	defer func() {
		if derr := ctl.Disconnect(); derr != nil {
			log.Warn("disconnect", "error", derr)
		}
	}()
	defer recovery.HandlePanicFunc(func() { _ = ctl.Disconnect() })

	cfg := s.Bridge()
	if opts.Open != nil {
		cfg.Port.Open = opts.Open
	}
	if err := ctl.Connect(ctx, path, cfg); err != nil {
		return err
	}
	printConnected(opts.Out, ctl, path)
	if opts.In != nil {
		_, _ = fmt.Fprintln(opts.Out, help)
	}

	stop := make(chan struct{})
	defer close(stop)
	commands := readCommands(opts.In, stop)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ctl.Done():
			return ErrSessionEnded
		case line, ok := <-commands:
			if !ok {
				// stdin closed; keep bridging until a signal
				commands = nil
				continue
			}
			if quit := handle(opts.Out, ctl, line); quit {
				return nil
			}
		}
	}
}

func printConnected(out io.Writer, ctl *bridge.Controller, path string) {
	if ver, ok := ctl.Firmware(); ok {
		_, _ = fmt.Fprintf(out, "connected to %s (firmware %d)\n", path, ver)
		return
	}
	_, _ = fmt.Fprintf(out, "connected to %s\n", path)
}

// handle runs one command line and reports whether to quit.
func handle(out io.Writer, ctl *bridge.Controller, line string) bool {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
	case "q", "quit", "exit":
		return true
	case "m", "mute":
		muted := !ctl.Muted()
		if err := ctl.SetSidetoneMuted(muted); err != nil {
			_, _ = fmt.Fprintf(out, "sidetone: %v\n", err)
			break
		}
		_, _ = fmt.Fprintf(out, "sidetone muted: %v\n", muted)
	case "s", "swap":
		swapped := !ctl.Swapped()
		if err := ctl.SetSwapPaddles(swapped); err != nil {
			_, _ = fmt.Fprintf(out, "swap: %v\n", err)
			break
		}
		_, _ = fmt.Fprintf(out, "paddles swapped: %v\n", swapped)
	default:
		_, _ = fmt.Fprintln(out, help)
	}
	return false
}

// readCommands delivers lines from in until EOF or stop. A nil reader yields a
// nil channel, which never fires.
func readCommands(in io.Reader, stop <-chan struct{}) <-chan string {
	if in == nil {
		return nil
	}
	ch := make(chan string)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case ch <- scanner.Text():
			case <-stop:
				return
			}
		}
	}()
	return ch
}
