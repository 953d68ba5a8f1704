package services

import (
	"context"
	"time"

	"github.com/thaispalmer/yn-automation/internal/logging"
)

// DefaultCompensationTimeout bounds the rollback of a failed workflow.
const DefaultCompensationTimeout = 2 * time.Minute

type compensation struct {
	name string
	fn   func(ctx context.Context) error
}

// saga collects undo steps while a multi-step workflow makes progress and
// runs them in reverse order when it fails.
type saga struct {
	log     logging.Logger
	timeout time.Duration
	undo    []compensation
}

func newSaga(l logging.Logger, timeout time.Duration) *saga {
	if timeout <= 0 {
		timeout = DefaultCompensationTimeout
	}
	return &saga{log: l, timeout: timeout}
}

func (s *saga) onRollback(name string, fn func(ctx context.Context) error) {
	s.undo = append(s.undo, compensation{name: name, fn: fn})
}

// rollback runs every registered compensation, newest first. It uses a
// fresh context so an interrupted workflow still cleans up. Failures are
// logged and do not stop the remaining steps.
func (s *saga) rollback(ctx context.Context) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	for i := len(s.undo) - 1; i >= 0; i-- {
		c := s.undo[i]
		if err := c.fn(rctx); err != nil {
			s.log.Warn(rctx, "compensation failed", "step", c.name, "err", err)
			continue
		}
		s.log.Info(rctx, "compensation done", "step", c.name)
	}
	s.undo = nil
}
