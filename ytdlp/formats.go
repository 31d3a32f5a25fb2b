package ytdlp

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// AudioOnly is the resolution sentinel for formats without a video stream.
const AudioOnly = "audio-only"

// Format describes one downloadable variant reported by the info query.
type Format struct {
	FormatID   string   `json:"format_id"`
	Ext        string   `json:"ext"`
	Resolution string   `json:"resolution"`
	Bitrate    *float64 `json:"tbr"`
	VideoCodec string   `json:"vcodec"`
	AudioCodec string   `json:"acodec"`
	FileSize   *int64   `json:"filesize"`
}

// IsAudioOnly reports whether the format carries audio but no video.
func (f Format) IsAudioOnly() bool {
	if f.Resolution == AudioOnly {
		return true
	}
	return f.VideoCodec == "none" && f.AudioCodec != "" && f.AudioCodec != "none"
}

// Height returns the vertical resolution parsed from "WxH", or 0 when the
// resolution cannot be parsed.
func (f Format) Height() int {
	_, h, ok := strings.Cut(f.Resolution, "x")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SortFormats orders formats audio-only first, then by descending height.
// Formats with an unparsable resolution sort last within their group.
func SortFormats(formats []Format) {
	sort.SliceStable(formats, func(i, j int) bool {
		ai, aj := formats[i].IsAudioOnly(), formats[j].IsAudioOnly()
		if ai != aj {
			return ai
		}
		return formats[i].Height() > formats[j].Height()
	})
}

type rawFormat struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	Resolution     string   `json:"resolution"`
	Tbr            *float64 `json:"tbr"`
	VCodec         string   `json:"vcodec"`
	ACodec         string   `json:"acodec"`
	FileSize       *int64   `json:"filesize"`
	FileSizeApprox *int64   `json:"filesize_approx"`
}

// normalizeFormats drops unusable entries and fills defaults.
func normalizeFormats(raw []rawFormat) []Format {
	formats := make([]Format, 0, len(raw))
	for _, r := range raw {
		if r.FormatID == "" || r.Ext == "" {
			continue
		}
		// dynamic range compressed duplicates of audio formats
		if strings.Contains(r.FormatID, "-drc") {
			continue
		}
		f := Format{
			FormatID:   r.FormatID,
			Ext:        r.Ext,
			Resolution: r.Resolution,
			Bitrate:    r.Tbr,
			VideoCodec: orNone(r.VCodec),
			AudioCodec: orNone(r.ACodec),
			FileSize:   r.FileSize,
		}
		if f.FileSize == nil {
			f.FileSize = r.FileSizeApprox
		}
		switch f.Resolution {
		case "":
			f.Resolution = "—"
		case "audio only":
			f.Resolution = AudioOnly
		}
		formats = append(formats, f)
	}
	SortFormats(formats)
	return formats
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}

// FormatDuration renders seconds as m:ss, or "—" when unknown.
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "—"
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
