package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"mediaconv/cmdrun"
	"mediaconv/config"
	"mediaconv/naming"
	"mediaconv/task"
	"mediaconv/ytdlp"
)

// Downloader fetches a remote locator into a file matching outputTemplate.
type Downloader interface {
	Download(ctx context.Context, timeout time.Duration, url, selector, outputTemplate string) error
}

// Acquired is a concrete local source file.
type Acquired struct {
	Path    string
	IsImage bool
}

// Acquirer resolves a task's source to a local file in the storage root.
type Acquirer struct {
	cfg *config.Config
	dl  Downloader
	log zerolog.Logger
}

func NewAcquirer(cfg *config.Config, dl Downloader, log zerolog.Logger) *Acquirer {
	return &Acquirer{cfg: cfg, dl: dl, log: log}
}

// Selector chooses the download format for a target extension.
func Selector(targetExt string) string {
	ext := NormalizeExt(targetExt)
	if IsAudioTarget(ext) {
		return ytdlp.SelectorBestAudio
	}
	if ext == "gif" || imageTargets[ext] {
		// nobody serves these as a download container
		ext = "mp4"
	}
	return ytdlp.VideoSelector(ext)
}

// Acquire returns the local source for t. Remote sources are downloaded with
// the target's selector first and a single unconstrained retry second.
func (a *Acquirer) Acquire(ctx context.Context, t task.Task, r task.Reporter) (Acquired, error) {
	if !t.Source.IsRemote() {
		return a.local(t.Source)
	}

	base := fmt.Sprintf("%s_%s_src", naming.SafeTitle(t.Request.Title, naming.DefaultMaxLen), t.ID)
	template := filepath.Join(a.cfg.StorageDir, base+".%(ext)s")

	err := a.dl.Download(ctx, a.cfg.DownloadTimeout, t.Source.URL, Selector(t.Request.TargetExt), template)
	if err != nil {
		a.log.Warn().Err(err).Msg("primary download failed, retrying with best format")
		r.Message("Download failed, retrying with the best available format...")
		err = a.dl.Download(ctx, a.cfg.DownloadTimeout, t.Source.URL, ytdlp.SelectorBest, template)
		if err != nil {
			sweep(a.cfg.StorageDir, base, "", a.log)
			return Acquired{}, fmt.Errorf("download failed: %s", diagnostic(err))
		}
	}

	path, err := Locate(a.cfg.StorageDir, base)
	if err != nil {
		sweep(a.cfg.StorageDir, base, "", a.log)
		return Acquired{}, err
	}
	sweep(a.cfg.StorageDir, base, path, a.log)
	return Acquired{Path: path, IsImage: isImageFile(path, "")}, nil
}

func (a *Acquirer) local(src task.Source) (Acquired, error) {
	name := filepath.Base(src.LocalFile)
	if name != src.LocalFile || name == "." || name == ".." {
		return Acquired{}, fmt.Errorf("invalid source file name %q", src.LocalFile)
	}
	path := filepath.Join(a.cfg.StorageDir, name)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Acquired{}, fmt.Errorf("source file %s not found", name)
	}
	return Acquired{Path: path, IsImage: isImageFile(path, src.MediaType)}, nil
}

// ErrNotLocated is returned when a download left no matching file behind.
var ErrNotLocated = errors.New("file not found after download")

// Locate finds the most recently modified file in dir named base.<ext>.
// Partial download leftovers are ignored.
func Locate(dir, base string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, base+".*"))
	if err != nil {
		return "", err
	}
	type candidate struct {
		path    string
		modTime time.Time
	}
	var found []candidate
	for _, m := range matches {
		if isPartial(m) {
			continue
		}
		info, err := os.Stat(m)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		found = append(found, candidate{path: m, modTime: info.ModTime()})
	}
	if len(found) == 0 {
		return "", ErrNotLocated
	}
	sort.Slice(found, func(i, j int) bool { return found[i].modTime.After(found[j].modTime) })
	return found[0].path, nil
}

// sweep removes every base.<ext> file in dir except keep. yt-dlp leaves
// .part files and per-format streams behind when it fails or merges.
func sweep(dir, base, keep string, log zerolog.Logger) {
	matches, err := filepath.Glob(filepath.Join(dir, base+".*"))
	if err != nil {
		return
	}
	for _, m := range matches {
		if m == keep {
			continue
		}
		removeQuietly(m, log)
	}
}

func isPartial(path string) bool {
	for _, suffix := range []string{".part", ".ytdl", ".temp", ".tmp"} {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// isImageFile classifies by the declared media type, detecting it from the
// file content when none was declared.
func isImageFile(path, declared string) bool {
	if declared == "" {
		mt, err := mimetype.DetectFile(path)
		if err != nil {
			return false
		}
		declared = mt.String()
	}
	return strings.HasPrefix(declared, "image/")
}

// diagnostic extracts the first lines of a tool's error output.
func diagnostic(err error) string {
	var exitErr *cmdrun.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.TimedOut {
			return "timed out"
		}
		if d := cmdrun.Diagnostic(exitErr.Stderr, 3); d != "" {
			return d
		}
	}
	return err.Error()
}
