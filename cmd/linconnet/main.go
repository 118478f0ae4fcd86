// Command linconnet opens a LIN port, prints every frame on the line and
// sends master requests and responses on key press.
//
// Usage:
//
//	linconnet [-config file] [-backend native|sim] [-device sel] [-port n] [-bitrate rate] [-slave] [-trace file]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"golang.org/x/sync/errgroup"

	"github.com/LoveWonYoung/vci4go/config"
	"github.com/LoveWonYoung/vci4go/trace"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(args []string) (config.Config, error) {
	fs := flag.NewFlagSet("linconnet", flag.ContinueOnError)
	path := fs.String("config", "", "YAML or INI configuration file")
	backend := fs.String("backend", "", "native or sim")
	device := fs.String("device", "", "device index or hardware id")
	port := fs.Int("port", -1, "LIN port")
	bitrate := fs.String("bitrate", "", "LIN bitrate in bit/s or auto")
	slave := fs.Bool("slave", false, "init the line as slave")
	traceFile := fs.String("trace", "", "CBOR trace file")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	cfg := config.Default()
	if *path != "" {
		var err error
		if cfg, err = config.Load(*path); err != nil {
			return config.Config{}, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = *backend
		case "device":
			cfg.Device = *device
		case "port":
			cfg.LIN.Port = *port
		case "bitrate":
			cfg.LIN.Bitrate = *bitrate
		case "slave":
			cfg.LIN.Master = !*slave
		case "trace":
			cfg.Trace = *traceFile
		}
	})
	return cfg, cfg.Validate()
}

func run(cfg config.Config) error {
	backend, err := cfg.OpenBackend()
	if err != nil {
		return err
	}
	defer backend.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "lin> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	closeReadline := sync.OnceValue(rl.Close)
	defer closeReadline()
	log.SetOutput(rl.Stderr())

	var rec *trace.Recorder
	if cfg.Trace != "" {
		if rec, err = trace.NewRecorder(cfg.Trace); err != nil {
			return err
		}
		defer rec.Close()
	}

	s, err := openSession(backend.Server, cfg, rec, rl.Stdout())
	if err != nil {
		return err
	}
	defer s.Close()
	fmt.Fprintln(rl.Stdout(), helpText)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.receive(ctx) })
	g.Go(func() error {
		<-ctx.Done()
		return closeReadline()
	})
	g.Go(func() error {
		defer cancel()
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if err != nil {
				return nil
			}
			quit, err := s.exec(strings.TrimSpace(line))
			if err != nil {
				fmt.Fprintln(rl.Stderr(), "Error:", err)
			}
			if quit {
				return nil
			}
		}
	})
	return g.Wait()
}
