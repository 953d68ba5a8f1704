// Package execxtest provides a recording execx.Runner for tests.
package execxtest

import (
	"context"
	"strings"
	"sync"

	"github.com/thaispalmer/yn-automation/internal/execx"
)

// Fake records every command and answers from a table keyed by the command
// line ("systemctl start yn_alice-blog.service"). Unknown commands succeed
// with empty output.
type Fake struct {
	mu        sync.Mutex
	Calls     []execx.Cmd
	Responses map[string]Response
}

// Response is the canned answer for one command line.
type Response struct {
	Stdout string
	Err    error
	// Hook runs before the response is returned, e.g. to create files a
	// real git clone would have produced.
	Hook func(cmd execx.Cmd)
}

func New() *Fake {
	return &Fake{Responses: map[string]Response{}}
}

// On registers a response for a command line.
func (f *Fake) On(line string, r Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses[line] = r
	return f
}

func (f *Fake) Run(_ context.Context, cmd execx.Cmd) (execx.Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, cmd)
	r, ok := f.Responses[cmd.String()]
	f.mu.Unlock()

	if !ok {
		return execx.Result{}, nil
	}
	if r.Hook != nil {
		r.Hook(cmd)
	}
	return execx.Result{Stdout: r.Stdout}, r.Err
}

// Lines returns the recorded command lines in order.
func (f *Fake) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Calls))
	for i, c := range f.Calls {
		out[i] = c.String()
	}
	return out
}

// Ran reports whether a command line starting with prefix was executed.
func (f *Fake) Ran(prefix string) bool {
	for _, l := range f.Lines() {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}
