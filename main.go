/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/vkbridge/engine"
	"github.com/spaghettifunk/vkbridge/engine/core"
	"github.com/spaghettifunk/vkbridge/testbed"
)

func main() {
	configPath := flag.String("config", "config/vkbridge.toml", "path of the TOML configuration")
	flag.Parse()

	tb := testbed.NewTestGame(*configPath)

	e, err := engine.New(tb.Game)
	if err != nil {
		core.LogFatal("failed to create the engine: %s", err.Error())
	}

	if err := e.Initialize(); err != nil {
		core.LogError("failed to initialize the engine: %s", err.Error())
		_ = e.Shutdown()
		os.Exit(1)
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
		core.LogError("shutdown: %s", err.Error())
	}
	if runErr != nil {
		core.LogError("engine stopped: %s", runErr.Error())
		os.Exit(1)
	}
}
