package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseAudioStreams(t *testing.T) {
	assert.True(t, parseAudioStreams("audio\n"))
	assert.True(t, parseAudioStreams("audio\naudio\n"))
	assert.False(t, parseAudioStreams(""))
	assert.False(t, parseAudioStreams("\n\n"))
	assert.False(t, parseAudioStreams("garbage"))
}

func TestParseDuration(t *testing.T) {
	d, ok := parseDuration("12.345000\n")
	assert.True(t, ok)
	assert.InDelta(t, 12.345, d, 1e-9)

	_, ok = parseDuration("N/A\n")
	assert.False(t, ok)
	_, ok = parseDuration("")
	assert.False(t, ok)
	_, ok = parseDuration("-1")
	assert.False(t, ok)
}

// fakeProbe writes an executable shell script standing in for ffprobe.
func fakeProbe(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "ffprobe")
	err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755)
	if err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProber(t *testing.T) {
	ctx := context.Background()

	t.Run("reports audio and duration", func(t *testing.T) {
		bin := fakeProbe(t, `case "$*" in *select_streams*) echo audio;; *) echo 20.5;; esac`)
		p := NewProber(bin, time.Second)
		assert.True(t, p.HasAudioStream(ctx, "in.mp4"))
		d, ok := p.Duration(ctx, "in.mp4")
		assert.True(t, ok)
		assert.InDelta(t, 20.5, d, 1e-9)
	})

	t.Run("no audio streams", func(t *testing.T) {
		bin := fakeProbe(t, `exit 0`)
		p := NewProber(bin, time.Second)
		assert.False(t, p.HasAudioStream(ctx, "in.mp4"))
	})

	t.Run("errors are negative answers", func(t *testing.T) {
		bin := fakeProbe(t, `echo boom >&2; exit 1`)
		p := NewProber(bin, time.Second)
		assert.False(t, p.HasAudioStream(ctx, "in.mp4"))
		_, ok := p.Duration(ctx, "in.mp4")
		assert.False(t, ok)
	})

	t.Run("timeout is no result", func(t *testing.T) {
		bin := fakeProbe(t, `sleep 5; echo audio`)
		p := NewProber(bin, 100*time.Millisecond)
		assert.False(t, p.HasAudioStream(ctx, "in.mp4"))
	})

	t.Run("missing binary", func(t *testing.T) {
		p := NewProber(filepath.Join(t.TempDir(), "nope"), time.Second)
		assert.False(t, p.HasAudioStream(ctx, "in.mp4"))
	})
}
