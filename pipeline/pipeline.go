package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"mediaconv/config"
	"mediaconv/logging"
	"mediaconv/naming"
	"mediaconv/task"
)

// Toolkit runs one media toolkit invocation.
type Toolkit interface {
	Run(ctx context.Context, timeout time.Duration, args []string) error
}

// Prober reports whether a file has an audio stream. It never fails; an
// unknown answer is false.
type Prober interface {
	HasAudioStream(ctx context.Context, path string) bool
}

// Pipeline turns a task into a finished artifact in the storage root. It
// implements task.Runner.
type Pipeline struct {
	cfg      *config.Config
	dl       Downloader
	probe    Prober
	toolkit  Toolkit
	acquirer *Acquirer
	log      zerolog.Logger
}

func New(cfg *config.Config, dl Downloader, probe Prober, toolkit Toolkit) *Pipeline {
	log := logging.WithComponent("pipeline")
	return &Pipeline{
		cfg:      cfg,
		dl:       dl,
		probe:    probe,
		toolkit:  toolkit,
		acquirer: NewAcquirer(cfg, dl, log),
		log:      log,
	}
}

// outcome is the artifact produced by executing a plan.
type outcome struct {
	file      string // name relative to the storage root
	converted bool
	diag      string
}

func (p *Pipeline) Run(ctx context.Context, t task.Task, r task.Reporter) (task.Result, error) {
	log := p.log.With().Str("task_id", t.ID).Logger()

	src, err := p.acquirer.Acquire(ctx, t, r)
	if err != nil {
		return task.Result{}, task.InPhase(task.PhaseAcquire, err)
	}

	plan := Decide(p.cfg, src.IsImage, t.Request)
	out := p.outputPath(t, plan.Ext, src.Path)
	log.Info().Str("plan", string(plan.Kind)).Str("source", filepath.Base(src.Path)).Msg("source acquired")

	if plan.Kind == KindVideo {
		return p.runVideo(ctx, t, plan, src.Path, out, r, log), nil
	}

	r.Message("Converting...")
	o := p.execute(ctx, plan, src.Path, out, log)
	res := finish(plan, o, "Done!")
	if plan.Kind == KindAudio && o.converted {
		res.Audio = task.AudioOK
	}
	return res, nil
}

func (p *Pipeline) runVideo(ctx context.Context, t task.Task, plan Plan, src, out string, r task.Reporter, log zerolog.Logger) task.Result {
	hasAudio := p.probe.HasAudioStream(ctx, src)
	plan.WithAudio = hasAudio
	log.Debug().Str("phase", string(task.PhaseProbe)).Bool("has_audio", hasAudio).Msg("source probed")

	r.Message("Converting...")
	o := p.execute(ctx, plan, src, out, log)
	if !o.converted {
		res := finish(plan, o, "")
		if hasAudio {
			res.Audio = task.AudioOK
		}
		return res
	}

	switch {
	case hasAudio:
		return task.Result{FilePath: o.file, Message: "Done!", Audio: task.AudioOK, Plan: string(plan.Kind)}
	case t.Request.IncludeAudio:
		return p.attachAudio(ctx, t, plan, o.file, r, log)
	default:
		return p.markNoAudio(o.file, task.AudioNone, "Done (no audio)", log)
	}
}

// execute runs every pass of plan. Toolkit failures are not job failures:
// the source itself becomes the result and the outcome is not converted.
func (p *Pipeline) execute(ctx context.Context, plan Plan, src, out string, log zerolog.Logger) outcome {
	palette := ""
	if plan.Kind == KindGIF {
		palette = naming.WithExt(naming.WithSuffix(out, "_palette"), "png")
		defer removeQuietly(palette, log)
	}

	for i, args := range plan.Passes(src, out, palette) {
		if err := p.toolkit.Run(ctx, plan.Timeout, args); err != nil {
			log.Warn().Err(err).Str("phase", string(task.PhaseTranscode)).Int("pass", i+1).Str("plan", string(plan.Kind)).Msg("conversion failed, returning source")
			removeQuietly(out, log)
			return outcome{file: filepath.Base(src), diag: diagnostic(err)}
		}
	}
	if !regularFile(out) {
		return outcome{file: filepath.Base(src), diag: "no output produced"}
	}
	removeQuietly(src, log)
	return outcome{file: filepath.Base(out), converted: true}
}

func finish(plan Plan, o outcome, okMsg string) task.Result {
	if o.converted {
		return task.Result{FilePath: o.file, Message: okMsg, Plan: string(plan.Kind)}
	}
	return task.Result{
		FilePath: o.file,
		Message:  fmt.Sprintf("Done, but conversion to %s failed (%s); the original file is returned", plan.Ext, o.diag),
		Degraded: true,
		Plan:     string(plan.Kind),
	}
}

func (p *Pipeline) outputPath(t task.Task, ext, src string) string {
	name := fmt.Sprintf("%s_%s.%s", naming.SafeTitle(t.Request.Title, naming.DefaultMaxLen), t.ID, ext)
	out := filepath.Join(p.cfg.StorageDir, name)
	if out == src {
		out = naming.WithSuffix(out, "_converted")
	}
	return out
}

func regularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// removeQuietly deletes path; failures never affect the job.
func removeQuietly(path string, log zerolog.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Str("file", path).Msg("could not remove file")
	}
}
