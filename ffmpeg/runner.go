package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediaconv/cmdrun"
	"mediaconv/logging"
	"mediaconv/metrics"
)

// Runner invokes the ffmpeg binary with prepared argument lists.
type Runner struct {
	bin string
	log zerolog.Logger
}

// NewRunner checks that bin is executable and returns a Runner for it.
func NewRunner(bin string) (*Runner, error) {
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found or not in PATH: %s", bin)
	}
	return &Runner{bin: bin, log: logging.WithComponent("ffmpeg")}, nil
}

// Run executes one ffmpeg invocation bounded by timeout. Output is limited
// to errors so a failure's stderr starts with the cause.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, args []string) error {
	args = append([]string{"-hide_banner", "-nostdin", "-loglevel", "error"}, args...)
	r.log.Debug().Str("cmd", r.bin+" "+strings.Join(args, " ")).Dur("timeout", timeout).Msg("executing")

	res, err := cmdrun.Run(ctx, timeout, r.bin, args...)
	metrics.ObserveTool("ffmpeg", res.Duration.Seconds(), err)
	if err != nil {
		r.log.Warn().Err(err).Str("stderr", tail(res.Stderr, 400)).Msg("ffmpeg invocation failed")
		return err
	}
	return nil
}

// tail keeps the last n bytes of s, where ffmpeg puts the actual error.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
