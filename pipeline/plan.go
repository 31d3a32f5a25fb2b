package pipeline

import (
	"math"
	"strconv"
	"strings"
	"time"

	"mediaconv/config"
	"mediaconv/task"
)

// Kind selects the transcode branch.
type Kind string

const (
	KindImage Kind = "image"
	KindAudio Kind = "audio"
	KindGIF   Kind = "gif"
	KindVideo Kind = "video"
	// KindFrame grabs one still from a non-image source.
	KindFrame Kind = "frame"
)

const (
	// trimEpsilon is the smallest end-start gap treated as a real window.
	trimEpsilon = 0.05
	minDuration = 0.001

	gifFPS = 12
)

// Encoder is a codec with an optional bitrate.
type Encoder struct {
	Codec   string
	Bitrate string
}

var audioEncoders = map[string]Encoder{
	"mp3":  {Codec: "libmp3lame", Bitrate: "192k"},
	"wav":  {Codec: "pcm_s16le"},
	"ogg":  {Codec: "libvorbis", Bitrate: "160k"},
	"opus": {Codec: "libopus", Bitrate: "128k"},
	"flac": {Codec: "flac"},
}

var defaultAudioEncoder = Encoder{Codec: "aac", Bitrate: "192k"}

var audioTargets = map[string]bool{
	"mp3": true, "wav": true, "ogg": true, "opus": true, "flac": true, "m4a": true, "aac": true,
}

var videoTargets = map[string]bool{
	"mp4": true, "mkv": true, "webm": true, "mov": true, "avi": true,
}

var imageTargets = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "webp": true, "bmp": true,
}

// SupportedTarget reports whether ext (without dot) can be requested.
func SupportedTarget(ext string) bool {
	ext = NormalizeExt(ext)
	return ext == "gif" || audioTargets[ext] || videoTargets[ext] || imageTargets[ext]
}

// IsAudioTarget reports whether ext is one of the audio-only outputs.
func IsAudioTarget(ext string) bool { return audioTargets[NormalizeExt(ext)] }

// NormalizeExt lowercases ext and strips a leading dot.
func NormalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// TrimWindow is the part of the source to encode. Duration 0 means up to
// the end of the source.
type TrimWindow struct {
	Start    float64
	Duration float64
}

// ComputeTrim derives the window for start and an optional end. The end is
// honoured only when it exceeds start by more than trimEpsilon.
func ComputeTrim(start float64, end *float64) TrimWindow {
	if start < 0 || math.IsNaN(start) {
		start = 0
	}
	w := TrimWindow{Start: start}
	if end != nil && *end-start > trimEpsilon {
		w.Duration = math.Max(*end-start, minDuration)
	}
	return w
}

// Active reports whether any trimming happens.
func (w TrimWindow) Active() bool { return w.Start > 0 || w.Duration > 0 }

// InputArgs are the seek and length options placed before "-i".
func (w TrimWindow) InputArgs() []string {
	var args []string
	if w.Start > 0 {
		args = append(args, "-ss", seconds(w.Start))
	}
	if w.Duration > 0 {
		args = append(args, "-t", seconds(w.Duration))
	}
	return args
}

func seconds(v float64) string { return strconv.FormatFloat(v, 'f', 3, 64) }

// ParseHeight returns the requested output height, or 0 for "original",
// empty or unparsable values.
func ParseHeight(resolution string) int {
	r := strings.ToLower(strings.TrimSpace(resolution))
	r = strings.TrimSuffix(r, "p")
	if r == "" || r == "original" {
		return 0
	}
	h, err := strconv.Atoi(r)
	if err != nil || h <= 0 {
		return 0
	}
	return h
}

// ScaleFilter returns "scale=-2:<h>" for a requested height, "" otherwise.
func ScaleFilter(resolution string) string {
	h := ParseHeight(resolution)
	if h == 0 {
		return ""
	}
	return "scale=-2:" + strconv.Itoa(h)
}

// Plan is the encode recipe for one job. It is pure data; Passes turns it
// into toolkit argument lists. WithAudio is only meaningful for the video
// branch and is filled in after probing the source.
type Plan struct {
	Kind      Kind
	Ext       string
	Trim      TrimWindow
	Scale     string
	Video     Encoder
	Preset    string
	CRF       int
	Audio     Encoder
	WithAudio bool
	Timeout   time.Duration
}

// Decide maps the source classification and request to a Plan.
func Decide(cfg *config.Config, sourceIsImage bool, req task.Request) Plan {
	ext := NormalizeExt(req.TargetExt)
	p := Plan{Ext: ext, Timeout: cfg.ConvertTimeout}

	switch {
	case sourceIsImage:
		p.Kind = KindImage
	case imageTargets[ext]:
		p.Kind = KindFrame
		p.Trim = TrimWindow{Start: ComputeTrim(req.Start, req.End).Start}
		p.Scale = ScaleFilter(req.Resolution)
	case audioTargets[ext]:
		p.Kind = KindAudio
		p.Trim = ComputeTrim(req.Start, req.End)
		p.Audio = defaultAudioEncoder
		if enc, ok := audioEncoders[ext]; ok {
			p.Audio = enc
		}
	case ext == "gif":
		p.Kind = KindGIF
		p.Trim = ComputeTrim(req.Start, req.End)
		p.Scale = ScaleFilter(req.Resolution)
	default:
		p.Kind = KindVideo
		p.Trim = ComputeTrim(req.Start, req.End)
		p.Scale = ScaleFilter(req.Resolution)
		p.Video = Encoder{Codec: "libx264"}
		p.Preset = "fast"
		p.CRF = 23
		p.Audio = Encoder{Codec: "aac", Bitrate: "128k"}
		if ext == "webm" {
			// webm cannot carry h264/aac
			p.Video = Encoder{Codec: "libvpx-vp9"}
			p.Preset = ""
			p.CRF = 32
			p.Audio = Encoder{Codec: "libopus", Bitrate: "128k"}
		}
		p.Timeout = cfg.VideoTimeout
	}
	return p
}

// Passes returns the ordered toolkit invocations for the plan. palette is
// the intermediate image used by the GIF branch.
func (p Plan) Passes(src, out, palette string) [][]string {
	switch p.Kind {
	case KindImage:
		return [][]string{{"-y", "-i", src, out}}

	case KindFrame:
		args := []string{"-y"}
		args = append(args, p.Trim.InputArgs()...)
		args = append(args, "-i", src)
		if p.Scale != "" {
			args = append(args, "-vf", p.Scale)
		}
		return [][]string{append(args, "-frames:v", "1", out)}

	case KindAudio:
		args := []string{"-y"}
		args = append(args, p.Trim.InputArgs()...)
		args = append(args, "-i", src, "-vn", "-c:a", p.Audio.Codec)
		if p.Audio.Bitrate != "" {
			args = append(args, "-b:a", p.Audio.Bitrate)
		}
		return [][]string{append(args, out)}

	case KindGIF:
		filters := []string{"fps=" + strconv.Itoa(gifFPS)}
		if p.Scale != "" {
			filters = append(filters, p.Scale+":flags=lanczos")
		}
		chain := strings.Join(filters, ",")

		first := []string{"-y"}
		first = append(first, p.Trim.InputArgs()...)
		first = append(first, "-i", src, "-vf", chain+",palettegen", palette)

		second := []string{"-y"}
		second = append(second, p.Trim.InputArgs()...)
		second = append(second, "-i", src, "-i", palette,
			"-lavfi", chain+"[x];[x][1:v]paletteuse", "-loop", "0", out)
		return [][]string{first, second}

	default:
		args := []string{"-y"}
		args = append(args, p.Trim.InputArgs()...)
		args = append(args, "-i", src)
		if p.Scale != "" {
			args = append(args, "-vf", p.Scale)
		}
		args = append(args, "-c:v", p.Video.Codec)
		if p.Preset != "" {
			args = append(args, "-preset", p.Preset)
		}
		args = append(args, "-crf", strconv.Itoa(p.CRF))
		if p.Video.Codec == "libvpx-vp9" {
			args = append(args, "-b:v", "0")
		} else {
			args = append(args, "-pix_fmt", "yuv420p")
		}
		if p.WithAudio {
			args = append(args, "-c:a", p.Audio.Codec, "-b:a", p.Audio.Bitrate)
		} else {
			args = append(args, "-an")
		}
		return [][]string{append(args, out)}
	}
}
