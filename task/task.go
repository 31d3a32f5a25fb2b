package task

import (
	"time"
)

type Status string

const (
	StatusPending     Status = "pending"
	StatusDownloading Status = "downloading"
	StatusDone        Status = "done"
	StatusFailed      Status = "failed"
)

// statusTransitions lists the allowed forward moves. Terminal states have none.
var statusTransitions = map[Status][]Status{
	StatusPending:     {StatusDownloading, StatusFailed},
	StatusDownloading: {StatusDone, StatusFailed},
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// CanTransition reports whether a task may move from s to next.
// Staying in the same state is always allowed.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AudioState tracks the audio track of the result, independent of Status.
type AudioState string

const (
	AudioNone    AudioState = "none"
	AudioPending AudioState = "pending"
	AudioOK      AudioState = "ok"
	AudioFailed  AudioState = "failed"
)

var audioTransitions = map[AudioState][]AudioState{
	AudioNone:    {AudioPending, AudioOK, AudioFailed},
	AudioPending: {AudioOK, AudioFailed},
}

func (a AudioState) CanTransition(next AudioState) bool {
	if a == next {
		return true
	}
	for _, allowed := range audioTransitions[a] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Source is the job input: a file already in the storage root or a remote locator.
type Source struct {
	LocalFile string // name relative to the storage root
	MediaType string // declared media type of LocalFile
	URL       string
}

func (s Source) IsRemote() bool { return s.LocalFile == "" && s.URL != "" }

// Request holds the conversion parameters of one job.
type Request struct {
	TargetExt    string
	Start        float64
	End          *float64 // nil means to the end of the source
	Resolution   string   // target height or "original"
	Title        string
	IncludeAudio bool
}

// Task is the tracked state of one submitted job. Values returned by the
// Store are copies.
type Task struct {
	ID          string
	Status      Status
	Message     string
	FilePath    string // set only together with StatusDone
	Source      Source
	Request     Request
	AudioState  AudioState
	Degraded    bool // done, but not converted as requested
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Result is what a Runner hands back for a successful job.
type Result struct {
	FilePath string
	Message  string
	Audio    AudioState
	Degraded bool
	Plan     string
}
