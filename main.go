// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"spectro/cmd"
	"spectro/internal/log"
	"spectro/pkg/build"
)

// main has three phases:
//
// 1. Startup: build information and the command line.
// 2. Run: the chosen command, usually the display loop with its source,
// outputs and terminal view.
// 3. Shutdown: an interrupt or SIGTERM cancels the context; every
// component releases its device, sockets and files before Execute returns.
func main() {
	if err := build.Initialize(); err != nil {
		log.Debugf("Main: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		stop()
		log.Fatalf("Main: %v", err)
	}
}
