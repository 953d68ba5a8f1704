// Command yn-master provisions users, shards and applications and drives the
// shard agents.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/thaispalmer/yn-automation/internal/master"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := master.Main(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
