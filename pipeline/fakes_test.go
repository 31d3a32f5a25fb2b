package pipeline

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"mediaconv/config"
	"mediaconv/task"
)

func testConfig(dir string) *config.Config {
	return &config.Config{
		StorageDir:        dir,
		DownloadTimeout:   time.Minute,
		AudioFetchTimeout: 30 * time.Second,
		ConvertTimeout:    time.Minute,
		VideoTimeout:      2 * time.Minute,
		MuxTimeout:        30 * time.Second,
	}
}

type dlCall struct {
	timeout  time.Duration
	url      string
	selector string
	template string
}

// fakeDownloader records calls; downloadFunc decides what happens.
type fakeDownloader struct {
	mu           sync.Mutex
	calls        []dlCall
	downloadFunc func(call dlCall) error
}

func (f *fakeDownloader) Download(ctx context.Context, timeout time.Duration, url, selector, template string) error {
	call := dlCall{timeout: timeout, url: url, selector: selector, template: template}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
	if f.downloadFunc != nil {
		return f.downloadFunc(call)
	}
	return writeTemplate(call.template, "mp4")
}

func (f *fakeDownloader) selectors() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.selector
	}
	return out
}

// writeTemplate creates the file a real download would leave behind.
func writeTemplate(template, ext string) error {
	return os.WriteFile(strings.Replace(template, "%(ext)s", ext, 1), []byte("media"), 0o644)
}

// fakeToolkit writes the last argument (the output file) unless runFunc fails.
type fakeToolkit struct {
	mu      sync.Mutex
	calls   [][]string
	runFunc func(args []string) error
}

func (f *fakeToolkit) Run(ctx context.Context, timeout time.Duration, args []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()
	if f.runFunc != nil {
		if err := f.runFunc(args); err != nil {
			return err
		}
	}
	return os.WriteFile(args[len(args)-1], []byte("converted"), 0o644)
}

func (f *fakeToolkit) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeToolkit) call(i int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type fakeProber struct {
	hasAudio func(path string) bool
}

func (f fakeProber) HasAudioStream(ctx context.Context, path string) bool {
	if f.hasAudio == nil {
		return false
	}
	return f.hasAudio(path)
}

type fakeReporter struct {
	mu       sync.Mutex
	messages []string
	audio    []task.AudioState
}

func (f *fakeReporter) Message(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
}

func (f *fakeReporter) Audio(state task.AudioState, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, state)
	if msg != "" {
		f.messages = append(f.messages, msg)
	}
}

// containsSeq reports whether args contains seq as a contiguous run.
func containsSeq(args []string, seq ...string) bool {
	for i := 0; i+len(seq) <= len(args); i++ {
		match := true
		for j := range seq {
			if args[i+j] != seq[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}
}
