/*
Lumen renders the sandbox scene: scattered cubes over a ground plane, lit by
an orbiting light, through the frame renderer. With --headless frames are
recorded against an in-memory device and nothing is shown.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/lumen/engine"
	"github.com/spaghettifunk/lumen/engine/core"
	"github.com/spaghettifunk/lumen/testbed"
)

func main() {
	configPath := flag.String("config", "assets/config.toml", "path to the TOML configuration")
	headless := flag.Bool("headless", false, "record frames without a window or GPU")
	frames := flag.Uint64("frames", 0, "stop after this many frames, 0 runs until quit")
	cubes := flag.Int("cubes", 2000, "number of cubes scattered in the sandbox")
	seed := flag.Uint64("seed", 42, "seed of the sandbox scatter")
	flag.Parse()

	config, err := core.LoadConfig(*configPath)
	if err != nil {
		core.LogFatal("loading configuration: %s", err)
	}
	if *headless {
		config.Application.Headless = true
	}
	if *frames > 0 {
		config.Application.MaxFrames = *frames
	}

	game := engine.NewGame(config, testbed.NewSandbox(*seed, *cubes))
	e, err := engine.New(game)
	if err != nil {
		core.LogFatal("creating engine: %s", err)
	}
	if err := e.Initialize(); err != nil {
		core.LogFatal("initializing engine: %s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		e.Stop()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		core.LogFatal("engine stopped: %s", runErr)
	}
}
