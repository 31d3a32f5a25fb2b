package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mediaconv/cmdrun"
	"mediaconv/logging"
	"mediaconv/metrics"
)

// Format selectors passed to -f.
const (
	SelectorBestAudio = "bestaudio"
	SelectorBest      = "best"
)

// VideoSelector prefers the best video in the target container merged with
// the best audio, falling back to the best single file.
func VideoSelector(ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	if ext == "" {
		return "bestvideo+bestaudio/best"
	}
	return fmt.Sprintf("bestvideo[ext=%s]+bestaudio/best", ext)
}

// Info is the metadata-only view of a remote resource.
type Info struct {
	Title           string   `json:"title"`
	Thumbnail       string   `json:"thumbnail"`
	Duration        string   `json:"duration"`
	DurationSeconds float64  `json:"duration_seconds"`
	WebpageURL      string   `json:"webpage_url"`
	Formats         []Format `json:"formats"`
}

type thumbnail struct {
	URL string `json:"url"`
}

type infoDoc struct {
	Title      string      `json:"title"`
	Duration   *float64    `json:"duration"`
	Thumbnail  string      `json:"thumbnail"`
	Thumbnails []thumbnail `json:"thumbnails"`
	WebpageURL string      `json:"webpage_url"`
	Formats    []rawFormat `json:"formats"`
}

// Client drives the yt-dlp binary.
type Client struct {
	bin       string
	extraArgs []string
	log       zerolog.Logger
}

// NewClient returns a client for bin. extraArgs are appended to every call
// and should come from ParseExtraArgs.
func NewClient(bin string, extraArgs []string) (*Client, error) {
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("yt-dlp binary not found or not in PATH: %s", bin)
	}
	return &Client{bin: bin, extraArgs: extraArgs, log: logging.WithComponent("ytdlp")}, nil
}

// Download fetches url using the given format selector into outputTemplate
// (a yt-dlp "-o" template such as "dir/name.%(ext)s").
func (c *Client) Download(ctx context.Context, timeout time.Duration, url, selector, outputTemplate string) error {
	args := []string{"-f", selector, "-o", outputTemplate, "--no-playlist", "--no-progress"}
	args = append(args, c.extraArgs...)
	args = append(args, url)

	c.log.Debug().Str("url", url).Str("selector", selector).Msg("downloading")
	res, err := cmdrun.Run(ctx, timeout, c.bin, args...)
	metrics.ObserveTool("yt-dlp", res.Duration.Seconds(), err)
	return err
}

// Info queries metadata without downloading.
func (c *Client) Info(ctx context.Context, timeout time.Duration, url string) (*Info, error) {
	args := []string{"--dump-json", "--no-playlist", "--skip-download"}
	args = append(args, c.extraArgs...)
	args = append(args, url)

	res, err := cmdrun.Run(ctx, timeout, c.bin, args...)
	metrics.ObserveTool("yt-dlp", res.Duration.Seconds(), err)
	if err != nil {
		return nil, err
	}
	return ParseInfo([]byte(res.Stdout))
}

// ParseInfo converts a yt-dlp JSON document into Info.
func ParseInfo(data []byte) (*Info, error) {
	var doc infoDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode info document: %w", err)
	}

	info := &Info{
		Title:      doc.Title,
		Thumbnail:  doc.Thumbnail,
		WebpageURL: doc.WebpageURL,
		Formats:    normalizeFormats(doc.Formats),
	}
	if info.Title == "" {
		info.Title = "Untitled"
	}
	if info.Thumbnail == "" && len(doc.Thumbnails) > 0 {
		info.Thumbnail = doc.Thumbnails[len(doc.Thumbnails)-1].URL
	}
	if doc.Duration != nil {
		info.DurationSeconds = *doc.Duration
	}
	info.Duration = FormatDuration(info.DurationSeconds)
	return info, nil
}
