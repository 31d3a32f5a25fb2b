package ffmpeg

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediaconv/cmdrun"
	"mediaconv/logging"
	"mediaconv/metrics"
)

// DefaultProbeTimeout bounds a single ffprobe call.
const DefaultProbeTimeout = 15 * time.Second

// Prober answers best-effort questions about media files. It never returns
// errors: a failed, timed out or unparsable probe is "no" / "unknown".
type Prober struct {
	bin     string
	timeout time.Duration
	log     zerolog.Logger
}

// NewProber returns a Prober running bin (usually "ffprobe").
func NewProber(bin string, timeout time.Duration) *Prober {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &Prober{bin: bin, timeout: timeout, log: logging.WithComponent("ffprobe")}
}

// HasAudioStream reports whether path contains at least one audio stream.
func (p *Prober) HasAudioStream(ctx context.Context, path string) bool {
	args := []string{
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=codec_type",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	res, err := cmdrun.Run(ctx, p.timeout, p.bin, args...)
	metrics.ObserveTool("ffprobe", res.Duration.Seconds(), err)
	if err != nil {
		p.log.Debug().Err(err).Str("path", path).Msg("audio probe failed")
		return false
	}
	return parseAudioStreams(res.Stdout)
}

// Duration returns the container duration of path in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, bool) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	res, err := cmdrun.Run(ctx, p.timeout, p.bin, args...)
	metrics.ObserveTool("ffprobe", res.Duration.Seconds(), err)
	if err != nil {
		p.log.Debug().Err(err).Str("path", path).Msg("duration probe failed")
		return 0, false
	}
	return parseDuration(res.Stdout)
}

func parseAudioStreams(out string) bool {
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "audio" {
			return true
		}
	}
	return false
}

func parseDuration(out string) (float64, bool) {
	value := strings.TrimSpace(out)
	if i := strings.IndexByte(value, '\n'); i >= 0 {
		value = strings.TrimSpace(value[:i])
	}
	if value == "" {
		return 0, false
	}
	d, err := strconv.ParseFloat(value, 64)
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}
