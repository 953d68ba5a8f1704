// Command yn-shard manages applications on a shard host. The master runs it
// over SSH for one operation at a time, or it serves the agent RPC API.
package main

import (
	"context"
	"os"

	"github.com/thaispalmer/yn-automation/internal/shard"
)

func main() {
	os.Exit(shard.Main(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
