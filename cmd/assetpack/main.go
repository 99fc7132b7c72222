// Command assetpack bundles multi-entry script projects.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/assetpack/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
