package remote

import (
	"context"

	"github.com/thaispalmer/yn-automation/internal/common"
)

// Dispatcher runs agent commands on a shard identified by host (its ip).
// A command that ran and failed is reported as *common.RemoteCommandFailed.
// Nothing is retried.
type Dispatcher interface {
	Run(ctx context.Context, host string, cmd Command) (string, error)
	InstallKeys(ctx context.Context, host, username string, pair common.KeyPair) error
}
