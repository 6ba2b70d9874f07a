package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gs := newGlobalState()
	if err := newRootCmd(gs).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(gs.stderr, err)
		stop()
		os.Exit(1)
	}
}
