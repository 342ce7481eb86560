// Command netsim runs network simulation scenarios.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/tebeka/atexit"

	"github.com/sarchlab/netsim/netsim/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := cmd.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	atexit.Exit(code)
}
