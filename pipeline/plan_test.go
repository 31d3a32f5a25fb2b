package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaconv/task"
)

func ptr(v float64) *float64 { return &v }

func TestComputeTrim(t *testing.T) {
	tests := []struct {
		name  string
		start float64
		end   *float64
		want  TrimWindow
	}{
		{"no trim", 0, nil, TrimWindow{}},
		{"window", 10, ptr(15), TrimWindow{Start: 10, Duration: 5}},
		{"start only trims to end", 7, nil, TrimWindow{Start: 7}},
		{"end within epsilon ignored", 10, ptr(10.04), TrimWindow{Start: 10}},
		{"end before start ignored", 10, ptr(3), TrimWindow{Start: 10}},
		{"negative start clamps", -4, ptr(2), TrimWindow{Duration: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTrim(tt.start, tt.end)
			assert.InDelta(t, tt.want.Start, got.Start, 1e-9)
			assert.InDelta(t, tt.want.Duration, got.Duration, 1e-9)
		})
	}
}

func TestTrimWindow_InputArgs(t *testing.T) {
	assert.Empty(t, TrimWindow{}.InputArgs())
	assert.False(t, TrimWindow{}.Active())
	assert.Equal(t, []string{"-ss", "10.000", "-t", "5.000"}, ComputeTrim(10, ptr(15)).InputArgs())
	assert.Equal(t, []string{"-ss", "2.500"}, TrimWindow{Start: 2.5}.InputArgs())
	assert.Equal(t, []string{"-t", "3.000"}, TrimWindow{Duration: 3}.InputArgs())
}

func TestScaleFilter(t *testing.T) {
	assert.Equal(t, "scale=-2:720", ScaleFilter("720"))
	assert.Equal(t, "scale=-2:480", ScaleFilter("480p"))
	assert.Equal(t, "", ScaleFilter("original"))
	assert.Equal(t, "", ScaleFilter(""))
	assert.Equal(t, "", ScaleFilter("big"))
	assert.Equal(t, "", ScaleFilter("-5"))
}

func TestSupportedTarget(t *testing.T) {
	for _, ext := range []string{"mp4", ".MKV", "webm", "mp3", "wav", "ogg", "opus", "m4a", "gif", "png", "jpg"} {
		assert.True(t, SupportedTarget(ext), ext)
	}
	for _, ext := range []string{"", "exe", "mp4;rm", "../mp4"} {
		assert.False(t, SupportedTarget(ext), ext)
	}
}

func TestDecide(t *testing.T) {
	cfg := testConfig(t.TempDir())

	tests := []struct {
		name    string
		image   bool
		req     task.Request
		kind    Kind
		codec   string
		bitrate string
		timeout time.Duration
	}{
		{"image source wins", true, task.Request{TargetExt: "mp4"}, KindImage, "", "", cfg.ConvertTimeout},
		{"mp3", false, task.Request{TargetExt: "mp3"}, KindAudio, "libmp3lame", "192k", cfg.ConvertTimeout},
		{"wav has no bitrate", false, task.Request{TargetExt: "wav"}, KindAudio, "pcm_s16le", "", cfg.ConvertTimeout},
		{"ogg", false, task.Request{TargetExt: "ogg"}, KindAudio, "libvorbis", "160k", cfg.ConvertTimeout},
		{"opus", false, task.Request{TargetExt: "opus"}, KindAudio, "libopus", "128k", cfg.ConvertTimeout},
		{"m4a defaults to aac", false, task.Request{TargetExt: "m4a"}, KindAudio, "aac", "192k", cfg.ConvertTimeout},
		{"gif", false, task.Request{TargetExt: "GIF"}, KindGIF, "", "", cfg.ConvertTimeout},
		{"still from video", false, task.Request{TargetExt: "png"}, KindFrame, "", "", cfg.ConvertTimeout},
		{"jpeg still", false, task.Request{TargetExt: ".JPEG"}, KindFrame, "", "", cfg.ConvertTimeout},
		{"video", false, task.Request{TargetExt: "mp4"}, KindVideo, "aac", "128k", cfg.VideoTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Decide(cfg, tt.image, tt.req)
			assert.Equal(t, tt.kind, p.Kind)
			assert.Equal(t, tt.codec, p.Audio.Codec)
			assert.Equal(t, tt.bitrate, p.Audio.Bitrate)
			assert.Equal(t, tt.timeout, p.Timeout)
		})
	}
}

func TestPlanPasses_Video(t *testing.T) {
	cfg := testConfig(t.TempDir())
	p := Decide(cfg, false, task.Request{TargetExt: "mp4", Start: 10, End: ptr(15), Resolution: "720"})

	t.Run("with audio", func(t *testing.T) {
		p.WithAudio = true
		passes := p.Passes("in.webm", "out.mp4", "")
		require.Len(t, passes, 1)
		args := passes[0]
		assert.True(t, containsSeq(args, "-ss", "10.000", "-t", "5.000", "-i", "in.webm"))
		assert.True(t, containsSeq(args, "-vf", "scale=-2:720"))
		assert.True(t, containsSeq(args, "-c:v", "libx264", "-preset", "fast", "-crf", "23"))
		assert.True(t, containsSeq(args, "-c:a", "aac", "-b:a", "128k"))
		assert.NotContains(t, args, "copy")
		assert.Equal(t, "out.mp4", args[len(args)-1])
	})

	t.Run("without audio", func(t *testing.T) {
		p.WithAudio = false
		args := p.Passes("in.webm", "out.mp4", "")[0]
		assert.Contains(t, args, "-an")
		assert.NotContains(t, args, "-c:a")
	})

	t.Run("original resolution has no scale", func(t *testing.T) {
		q := Decide(cfg, false, task.Request{TargetExt: "mp4", Resolution: "original"})
		args := q.Passes("in.webm", "out.mp4", "")[0]
		assert.NotContains(t, args, "-vf")
		assert.NotContains(t, args, "-ss")
		assert.NotContains(t, args, "-t")
	})

	t.Run("webm uses vp9 and opus", func(t *testing.T) {
		q := Decide(cfg, false, task.Request{TargetExt: "webm"})
		q.WithAudio = true
		args := q.Passes("in.mp4", "out.webm", "")[0]
		assert.True(t, containsSeq(args, "-c:v", "libvpx-vp9"))
		assert.True(t, containsSeq(args, "-c:a", "libopus", "-b:a", "128k"))
	})
}

func TestPlanPasses_Audio(t *testing.T) {
	cfg := testConfig(t.TempDir())

	args := Decide(cfg, false, task.Request{TargetExt: "mp3", Start: 3}).Passes("in.mp4", "out.mp3", "")[0]
	assert.Equal(t, []string{"-y", "-ss", "3.000", "-i", "in.mp4", "-vn", "-c:a", "libmp3lame", "-b:a", "192k", "out.mp3"}, args)

	args = Decide(cfg, false, task.Request{TargetExt: "wav"}).Passes("in.mp4", "out.wav", "")[0]
	assert.Equal(t, []string{"-y", "-i", "in.mp4", "-vn", "-c:a", "pcm_s16le", "out.wav"}, args)
}

func TestPlanPasses_GIF(t *testing.T) {
	cfg := testConfig(t.TempDir())
	p := Decide(cfg, false, task.Request{TargetExt: "gif", Start: 1, End: ptr(4), Resolution: "240"})

	passes := p.Passes("in.mp4", "out.gif", "pal.png")
	require.Len(t, passes, 2)

	first, second := passes[0], passes[1]
	assert.True(t, containsSeq(first, "-ss", "1.000", "-t", "3.000", "-i", "in.mp4"))
	assert.True(t, containsSeq(first, "-vf", "fps=12,scale=-2:240:flags=lanczos,palettegen", "pal.png"))

	assert.True(t, containsSeq(second, "-ss", "1.000", "-t", "3.000", "-i", "in.mp4", "-i", "pal.png"))
	assert.True(t, containsSeq(second, "-lavfi", "fps=12,scale=-2:240:flags=lanczos[x];[x][1:v]paletteuse"))
	assert.True(t, containsSeq(second, "-loop", "0", "out.gif"))
}

func TestPlanPasses_Image(t *testing.T) {
	p := Decide(testConfig(t.TempDir()), true, task.Request{TargetExt: "png", Start: 5})
	assert.Equal(t, [][]string{{"-y", "-i", "in.jpg", "out.png"}}, p.Passes("in.jpg", "out.png", ""))
}

func TestPlanPasses_Frame(t *testing.T) {
	cfg := testConfig(t.TempDir())

	p := Decide(cfg, false, task.Request{TargetExt: "png"})
	assert.Equal(t, [][]string{{"-y", "-i", "in.mp4", "-frames:v", "1", "out.png"}}, p.Passes("in.mp4", "out.png", ""))

	end := 20.0
	p = Decide(cfg, false, task.Request{TargetExt: "jpg", Start: 12.5, End: &end, Resolution: "480p"})
	assert.Equal(t, TrimWindow{Start: 12.5}, p.Trim)
	passes := p.Passes("in.mp4", "out.jpg", "")
	require.Len(t, passes, 1)
	assert.Equal(t, []string{"-y", "-ss", "12.500", "-i", "in.mp4", "-vf", "scale=-2:480", "-frames:v", "1", "out.jpg"}, passes[0])
	for _, flag := range []string{"-c:v", "-c:a", "-pix_fmt", "-t"} {
		assert.NotContains(t, passes[0], flag)
	}
}

func TestMuxArgs(t *testing.T) {
	enc := Encoder{Codec: "aac", Bitrate: "128k"}
	args := MuxArgs("v.mp4", "a.webm", "v_merged.mp4", TrimWindow{}, enc)
	assert.Equal(t, []string{
		"-y", "-i", "v.mp4", "-i", "a.webm",
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "copy", "-c:a", "aac", "-b:a", "128k",
		"-shortest", "v_merged.mp4",
	}, args)

	args = MuxArgs("v.mp4", "a.webm", "out.mp4", TrimWindow{Start: 10, Duration: 5}, enc)
	assert.True(t, containsSeq(args, "-ss", "10.000", "-i", "a.webm"))
}

func TestSelector(t *testing.T) {
	assert.Equal(t, "bestaudio", Selector("mp3"))
	assert.Equal(t, "bestaudio", Selector("wav"))
	assert.Equal(t, "bestvideo[ext=mp4]+bestaudio/best", Selector("mp4"))
	assert.Equal(t, "bestvideo[ext=webm]+bestaudio/best", Selector("webm"))
	assert.Equal(t, "bestvideo[ext=mp4]+bestaudio/best", Selector("gif"))
	assert.Equal(t, "bestvideo[ext=mp4]+bestaudio/best", Selector("png"))
}
