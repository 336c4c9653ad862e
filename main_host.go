//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"rhombus/app"
	"rhombus/hal"
)

func main() {
	var hcfg hal.HeadlessConfig
	var cfg app.Config
	flag.BoolVar(&hcfg.Enabled, "headless", false, "Run without a window.")
	flag.IntVar(&hcfg.Hz, "hz", 60, "Host steps per second in headless mode.")
	flag.Uint64Var(&hcfg.Ticks, "ticks", 0, "Stop after N host steps in headless mode (0 = run until shutdown).")
	flag.StringVar(&cfg.Cmdline, "cmdline", "", `Kernel command line, e.g. "mem=16M depth=32 trace".`)
	flag.IntVar(&cfg.Quantum, "quantum", 0, "Timer ticks between preemptions (0 = default).")
	flag.IntVar(&cfg.Steps, "steps", 0, "Instructions per host step (0 = default).")
	flag.Parse()

	newApp := func(h hal.HAL) (func() error, error) {
		return app.New(h, cfg)
	}

	var err error
	if hcfg.Enabled {
		cfg.ExitOnHalt = true
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		err = hal.RunHeadless(ctx, newApp, hcfg)
	} else {
		err = hal.RunWindow(newApp)
	}

	switch {
	case err == nil, errors.Is(err, app.ErrShutdown), errors.Is(err, context.Canceled):
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
