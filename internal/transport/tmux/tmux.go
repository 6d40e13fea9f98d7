// Package tmux delivers messages by typing them into a tmux pane, either with
// tmux send-keys or through an external helper executable.
package tmux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/zulandar/switchboard/internal/transport"
)

// DefaultTimeout bounds a single delivery when Options.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Options configures a Transport.
type Options struct {
	Binary  string        // tmux executable, "tmux" when empty
	Helper  string        // when set, run "<helper> <addr> <text>" instead of send-keys
	Timeout time.Duration // per delivery
	Logger  *slog.Logger
}

// Transport injects text into panes. It is safe for concurrent use.
type Transport struct {
	binary  string
	helper  string
	timeout time.Duration
	logger  *slog.Logger
}

var _ transport.Transport = (*Transport)(nil)

// New creates a Transport from opts.
func New(opts Options) *Transport {
	t := &Transport{
		binary:  opts.Binary,
		helper:  opts.Helper,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
	if t.binary == "" {
		t.binary = "tmux"
	}
	if t.timeout <= 0 {
		t.timeout = DefaultTimeout
	}
	if t.logger == nil {
		t.logger = slog.Default().With("component", "tmux")
	}
	return t
}

func (t *Transport) Name() string { return "tmux" }

// Address returns the pane target supplied at registration.
func (t *Transport) Address(agentID, hint string) string {
	return hint
}

// Deliver types d.Text into the pane at d.Address and presses Enter. The
// whole attempt, including the Enter keystroke, shares one timeout.
func (t *Transport) Deliver(ctx context.Context, d transport.Delivery) transport.Result {
	if d.Address == "" {
		return transport.Failed("no route target")
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	if t.helper != "" {
		return t.run(ctx, t.helper, d.Address, d.Text)
	}
	// -l sends the text literally so key names inside the message are not
	// interpreted.
	if res := t.run(ctx, t.binary, "send-keys", "-t", d.Address, "-l", d.Text); !res.OK {
		return res
	}
	return t.run(ctx, t.binary, "send-keys", "-t", d.Address, "Enter")
}

// run executes name with args and maps the outcome onto a Result.
func (t *Transport) run(ctx context.Context, name string, args ...string) transport.Result {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return transport.Delivered()
	}

	if ctx.Err() == context.DeadlineExceeded {
		t.logger.Warn("delivery timed out", "cmd", name, "timeout", t.timeout)
		return transport.Result{Reason: fmt.Sprintf("timed out after %s", t.timeout), ExitCode: -1}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		reason := strings.TrimSpace(string(out))
		if reason == "" {
			reason = exitErr.Error()
		}
		return transport.Result{Reason: reason, ExitCode: exitErr.ExitCode()}
	}
	// The process never started.
	return transport.Failed(err.Error())
}

// CurrentPane returns the session:window.pane target of the pane the caller
// is running in.
func (t *Transport) CurrentPane(ctx context.Context) (string, error) {
	if os.Getenv("TMUX") == "" {
		return "", fmt.Errorf("tmux: not running inside a tmux session")
	}
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	args := []string{"display-message", "-p"}
	if pane := os.Getenv("TMUX_PANE"); pane != "" {
		args = append(args, "-t", pane)
	}
	args = append(args, "#{session_name}:#{window_index}.#{pane_index}")

	out, err := exec.CommandContext(ctx, t.binary, args...).Output()
	if err != nil {
		return "", fmt.Errorf("tmux: detect current pane: %w", err)
	}
	target := strings.TrimSpace(string(out))
	if target == "" {
		return "", fmt.Errorf("tmux: detect current pane: empty output")
	}
	return target, nil
}
