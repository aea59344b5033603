// Command geventd runs an event base with the timers described by a YAML
// configuration file, logging each firing as JSON lines to stderr.
//
// Run with: go run ./cmd/geventd -config geventd.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/joeycumines/go-gevent"
	"github.com/joeycumines/go-gevent/internal/config"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stderr))
}

func run(ctx context.Context, args []string, stdin *os.File, stderr io.Writer) int {
	flags := flag.NewFlagSet("geventd", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "path to a YAML configuration file")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(stderr, err)
			return 2
		}
	}

	level, _ := cfg.Level()
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(stderr)),
		stumpy.L.WithLevel(level),
	).Logger()

	if err := serve(ctx, cfg, logger, stdin); err != nil {
		logger.Err().Err(err).Log("geventd failed")
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *config.Config, logger *logiface.Logger[logiface.Event], stdin *os.File) (err error) {
	opts, err := cfg.Options(logger)
	if err != nil {
		return err
	}

	base, err := gevent.NewBase(opts...)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, base.Destroy())
	}()

	for _, t := range cfg.Timers {
		ev, err := gevent.NewTimerEvent(t.Period, t.TimerType(), tickLogger(logger), t.Name)
		if err != nil {
			return fmt.Errorf("timer %q: %w", t.Name, err)
		}
		if err := base.AddTracked(ev); err != nil {
			_ = ev.Destroy()
			return fmt.Errorf("timer %q: %w", t.Name, err)
		}
	}

	if cfg.Stdin && stdin != nil {
		in := &stdinReader{base: base, file: stdin, logger: logger}
		if err := in.register(); err != nil {
			return err
		}
		// untracked, unregistered and destroyed here rather than by the base
		defer in.close()
	}

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	if err := base.RunAsync(); err != nil {
		return err
	}
	logger.Info().
		Str("backend", cfg.Backend).
		Int("timers", len(cfg.Timers)).
		Log("reactor running")

	<-ctx.Done()

	logger.Info().Log("stopping")
	return base.StopAsync()
}

func tickLogger(logger *logiface.Logger[logiface.Event]) gevent.Callback {
	var count atomic.Uint64
	return func(fd int, arg any) {
		logger.Info().
			Str("timer", arg.(string)).
			Uint64("count", count.Add(1)).
			Log("tick")
	}
}

// stdinReader counts lines read from stdin, unregistering at EOF.
type stdinReader struct {
	base   *gevent.Base
	file   *os.File
	logger *logiface.Logger[logiface.Event]
	event  *gevent.Event
	lines  int
	done   bool
}

func (x *stdinReader) register() error {
	ev, err := gevent.NewIOEvent(int(x.file.Fd()), gevent.IOCallbacks{
		OnReadable: x.onReadable,
		OnError:    x.onError,
	}, nil)
	if err != nil {
		return err
	}
	if err := x.base.Add(ev); err != nil {
		_ = ev.Destroy()
		return fmt.Errorf("stdin: %w", err)
	}
	x.event = ev
	return nil
}

func (x *stdinReader) onReadable(int, any) {
	var buf [4096]byte
	n, err := x.file.Read(buf[:])
	for _, b := range buf[:n] {
		if b == '\n' {
			x.lines++
		}
	}
	if n > 0 {
		x.logger.Info().
			Int("bytes", n).
			Int("lines", x.lines).
			Log("stdin")
	}
	if err != nil || n == 0 {
		x.unregister()
	}
}

func (x *stdinReader) onError(int, any) {
	x.unregister()
}

func (x *stdinReader) unregister() {
	if x.done {
		return
	}
	x.done = true
	if err := x.base.Del(x.event); err != nil {
		x.logger.Warning().Err(err).Log("stdin unregister failed")
		return
	}
	x.logger.Info().Int("lines", x.lines).Log("stdin closed")
}

func (x *stdinReader) close() {
	if !x.done {
		x.done = true
		_ = x.base.Del(x.event)
	}
	_ = x.event.Destroy()
}
