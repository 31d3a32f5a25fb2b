package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"mediaconv/naming"
	"mediaconv/task"
	"mediaconv/ytdlp"
)

const (
	suffixNoAudio = "_noaudio"
	suffixMerged  = "_merged"
)

// attachAudio tries to add a separately fetched audio track to a video-only
// result. Every failure degrades to the video renamed with _noaudio.
func (p *Pipeline) attachAudio(ctx context.Context, t task.Task, plan Plan, video string, r task.Reporter, log zerolog.Logger) task.Result {
	r.Audio(task.AudioPending, "Audio track missing, trying to add it...")
	if !t.Source.IsRemote() {
		return p.markNoAudio(video, task.AudioFailed, "Done (audio not found)", log)
	}

	dir := p.cfg.StorageDir
	base := "tmp_audio_" + t.ID
	template := filepath.Join(dir, base+".%(ext)s")
	defer sweep(dir, base, "", log)
	if err := p.dl.Download(ctx, p.cfg.AudioFetchTimeout, t.Source.URL, ytdlp.SelectorBestAudio, template); err != nil {
		log.Warn().Err(err).Str("phase", string(task.PhaseMerge)).Msg("audio download failed")
		return p.markNoAudio(video, task.AudioFailed, "Done (audio not found)", log)
	}
	audioPath, err := Locate(dir, base)
	if err != nil {
		log.Warn().Err(err).Str("phase", string(task.PhaseMerge)).Msg("audio download produced no file")
		return p.markNoAudio(video, task.AudioFailed, "Done (audio not found)", log)
	}

	videoPath := filepath.Join(dir, video)
	merged := naming.WithSuffix(video, suffixMerged)
	mergedPath := filepath.Join(dir, merged)

	r.Message("Merging audio...")
	err = p.toolkit.Run(ctx, p.cfg.MuxTimeout, MuxArgs(videoPath, audioPath, mergedPath, plan.Trim, plan.Audio))
	if err == nil && regularFile(mergedPath) {
		removeQuietly(videoPath, log)
		removeQuietly(audioPath, log)
		return task.Result{FilePath: merged, Message: "Done! (audio added)", Audio: task.AudioOK, Plan: string(plan.Kind)}
	}

	log.Warn().Err(err).Str("phase", string(task.PhaseMerge)).Msg("audio merge failed")
	removeQuietly(mergedPath, log)
	removeQuietly(audioPath, log)
	return p.markNoAudio(video, task.AudioFailed, "Done (audio merge failed)", log)
}

// MuxArgs stream-copies video's first video stream and encodes audio's first
// audio stream, seeking the audio by the video's trim start so both stay
// aligned. The output ends with the shorter input.
func MuxArgs(video, audio, out string, trim TrimWindow, enc Encoder) []string {
	args := []string{"-y", "-i", video}
	if trim.Start > 0 {
		args = append(args, "-ss", seconds(trim.Start))
	}
	args = append(args, "-i", audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", enc.Codec,
	)
	if enc.Bitrate != "" {
		args = append(args, "-b:a", enc.Bitrate)
	}
	return append(args, "-shortest", out)
}

// markNoAudio renames file with the _noaudio suffix. When the rename fails
// the file keeps its name.
func (p *Pipeline) markNoAudio(file string, state task.AudioState, msg string, log zerolog.Logger) task.Result {
	name := naming.WithSuffix(file, suffixNoAudio)
	from := filepath.Join(p.cfg.StorageDir, file)
	to := filepath.Join(p.cfg.StorageDir, name)
	if err := os.Rename(from, to); err != nil {
		log.Warn().Err(err).Str("file", from).Msg("could not mark file as audio-less")
		name = file
	}
	return task.Result{FilePath: name, Message: msg, Audio: state, Plan: string(KindVideo)}
}
