// Command codestatus-worker reads status lines on stdin and publishes each
// one to the configured presence provider. It is started by codestatus.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/codestatus/internal/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := 0
	c := cmd.NewWorkerCommand(func(n int) { code = n })
	c.SetArgs(os.Args[1:])
	if err := c.ExecuteContext(ctx); err != nil {
		code = 1
	}
	stop()
	os.Exit(code)
}
