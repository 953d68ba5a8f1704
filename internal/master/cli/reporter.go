package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode"
	"unicode/utf8"

	"golang.org/x/term"

	"github.com/thaispalmer/yn-automation/internal/common"
	"github.com/thaispalmer/yn-automation/internal/logging"
)

const (
	OutputText = "text"
	OutputJSON = "json"
)

var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// Reporter prints operator-facing status lines and mirrors them into the
// log. In JSON mode every command prints exactly one JSON document.
type Reporter struct {
	out   io.Writer
	log   logging.Logger
	mode  string
	color bool
}

// NewReporter writes to out in mode ("text" or "json"). Color is used only
// when out is a terminal.
func NewReporter(out io.Writer, mode string, l logging.Logger) *Reporter {
	if l == nil {
		l = logging.Nop()
	}
	return &Reporter{out: out, log: l, mode: mode, color: mode != OutputJSON && isTerminal(out)}
}

type result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (r *Reporter) writeJSON(v any) {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func (r *Reporter) tag(label, color string) string {
	if r.color {
		return color + label + ansiReset
	}
	return label
}

// OK reports a successful command.
func (r *Reporter) OK(ctx context.Context, data any, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.log.Info(ctx, "[OK] "+msg)
	if r.mode == OutputJSON {
		r.writeJSON(result{OK: true, Message: msg, Data: data})
		return
	}
	fmt.Fprintln(r.out, r.tag("[OK]", ansiGreen), msg)
}

// Fail reports a failed command. Remote failures carry the shard's stderr
// into the log.
func (r *Reporter) Fail(ctx context.Context, err error) {
	msg := Message(err)

	args := []any{"err", err}
	var rcf *common.RemoteCommandFailed
	if errors.As(err, &rcf) {
		args = append(args, "host", rcf.Host, "command", rcf.Command, "exit_code", rcf.ExitCode, "stderr", rcf.Stderr)
	}
	r.log.Error(ctx, "[Error] "+msg, args...)

	if r.mode == OutputJSON {
		r.writeJSON(result{OK: false, Error: msg})
		return
	}
	fmt.Fprintln(r.out, r.tag("[Error]", ansiRed), msg)
}

// Listing prints a header, one line per item and a total, or empty when
// there are no items. JSON mode prints data instead.
func (r *Reporter) Listing(ctx context.Context, data any, header string, lines []string, total, empty string) {
	r.log.Debug(ctx, "listing", "header", header, "count", len(lines))
	if r.mode == OutputJSON {
		r.writeJSON(result{OK: true, Data: data})
		return
	}
	fmt.Fprintln(r.out, header)
	fmt.Fprintln(r.out)
	if len(lines) == 0 {
		fmt.Fprintln(r.out, empty)
		return
	}
	for _, l := range lines {
		fmt.Fprintln(r.out, l)
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, total)
}

// Message turns an error into the sentence shown after "[Error]".
func Message(err error) string {
	s := err.Error()
	first, size := utf8.DecodeRuneInString(s)
	if first == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(first)) + s[size:]
}
