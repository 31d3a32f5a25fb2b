package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"

	"mediaconv/config"
	"mediaconv/logging"
	"mediaconv/metrics"
)

// Reporter lets a Runner publish progress for the task it owns.
type Reporter interface {
	Message(msg string)
	Audio(state AudioState, msg string)
}

// Runner executes the conversion pipeline for one task.
type Runner interface {
	Run(ctx context.Context, t Task, r Reporter) (Result, error)
}

// Admitter decides whether a new submission may be accepted.
type Admitter interface {
	Check() error
}

// Manager accepts submissions and drives each task to a terminal status on
// a bounded pool of MaxConcurrency workers fed by a QueueSize queue. A full
// queue rejects the submission. Running jobs are never cancelled.
type Manager struct {
	cfg    *config.Config
	store  *Store
	runner Runner
	admit  Admitter
	queue  chan string
	wg     sync.WaitGroup
	log    zerolog.Logger
	now    func() time.Time
}

func NewManager(cfg *config.Config, store *Store, runner Runner, admit Admitter) (*Manager, error) {
	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("max concurrency must be at least 1, got %d", cfg.MaxConcurrency)
	}
	if cfg.QueueSize < 1 {
		return nil, fmt.Errorf("queue size must be at least 1, got %d", cfg.QueueSize)
	}
	if store == nil {
		store = NewStore()
	}
	return &Manager{
		cfg:    cfg,
		store:  store,
		runner: runner,
		admit:  admit,
		queue:  make(chan string, cfg.QueueSize),
		log:    logging.WithComponent("task"),
		now:    time.Now,
	}, nil
}

// Start launches the workers and the cleanup loop. They stop picking up new
// work when ctx is done; Wait blocks until they have returned.
func (m *Manager) Start(ctx context.Context) {
	m.log.Info().Int("workers", m.cfg.MaxConcurrency).Int("queue", m.cfg.QueueSize).Msg("task manager started")
	for i := 0; i < m.cfg.MaxConcurrency; i++ {
		m.wg.Add(1)
		go m.workerLoop(ctx)
	}
	if m.cfg.OutputLifetime > 0 {
		m.wg.Add(1)
		go m.cleanupLoop(ctx)
	}
}

// Wait blocks until all goroutines started by Start have returned, then
// fails the tasks still waiting in the queue.
func (m *Manager) Wait() {
	m.wg.Wait()
	for {
		select {
		case id := <-m.queue:
			metrics.QueueDepth.Dec()
			m.fail(id, PhaseRunner, "service shutting down before the job started")
		default:
			return
		}
	}
}

func (m *Manager) workerLoop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.queue:
			metrics.QueueDepth.Dec()
			// In-flight jobs have no cancellation; shutdown waits for them.
			m.processTask(context.WithoutCancel(ctx), id)
		}
	}
}

// processTask is the outermost boundary of a job: every path ends in a
// terminal status.
func (m *Manager) processTask(ctx context.Context, id string) {
	t, ok := m.store.Get(id)
	if !ok {
		return
	}
	log := m.log.With().Str("task_id", id).Logger()
	started := m.now()
	metrics.JobsRunning.Inc()
	defer metrics.JobsRunning.Dec()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("phase", string(PhaseRunner)).Msg("job panicked")
			m.fail(id, PhaseRunner, fmt.Sprintf("internal error: %v", r))
		}
		if cur, ok := m.store.Get(id); ok {
			metrics.JobDuration.WithLabelValues(string(cur.Status)).Observe(m.now().Sub(started).Seconds())
		}
	}()

	msg := "Preparing source..."
	if t.Source.IsRemote() {
		msg = "Downloading..."
	}
	err := m.store.Update(id, func(t *Task) {
		t.Status = StatusDownloading
		t.Message = msg
		t.StartedAt = started
	})
	if err != nil {
		log.Error().Err(err).Msg("could not start task")
		m.fail(id, PhaseRunner, err.Error())
		return
	}
	t, _ = m.store.Get(id)

	log.Info().Str("target", t.Request.TargetExt).Bool("remote", t.Source.IsRemote()).Msg("processing task")
	res, err := m.runner.Run(ctx, t, &reporter{store: m.store, id: id, log: log})
	if err != nil {
		phase, desc := phaseOf(err)
		log.Error().Err(err).Str("phase", string(phase)).Msg("task failed")
		m.fail(id, phase, desc)
		return
	}
	m.complete(id, res, log)
}

func (m *Manager) complete(id string, res Result, log zerolog.Logger) {
	err := m.store.Update(id, func(t *Task) {
		t.Status = StatusDone
		t.FilePath = res.FilePath
		t.Message = res.Message
		t.Degraded = res.Degraded
		t.CompletedAt = m.now()
		if res.Audio != "" {
			t.AudioState = res.Audio
		}
	})
	if err != nil {
		log.Error().Err(err).Str("phase", string(PhaseFinalize)).Msg("could not record result")
		m.fail(id, PhaseFinalize, err.Error())
		return
	}
	metrics.JobsFinished.WithLabelValues(string(StatusDone)).Inc()
	if res.Degraded {
		metrics.JobsDegraded.WithLabelValues(res.Plan).Inc()
	}
	log.Info().Str("file", res.FilePath).Bool("degraded", res.Degraded).Str("audio", string(res.Audio)).Msg("task completed")
}

// fail moves the task to failed. A pending audio attempt is resolved as failed too.
func (m *Manager) fail(id string, phase Phase, msg string) {
	changed := false
	err := m.store.Update(id, func(t *Task) {
		if t.Status.Terminal() {
			return
		}
		changed = true
		t.Status = StatusFailed
		t.Message = msg
		t.FilePath = ""
		t.CompletedAt = m.now()
		if t.AudioState == AudioPending {
			t.AudioState = AudioFailed
		}
	})
	if err != nil {
		m.log.Error().Err(err).Str("task_id", id).Str("phase", string(phase)).Msg("could not mark task failed")
		return
	}
	if !changed {
		return
	}
	metrics.JobsFinished.WithLabelValues(string(StatusFailed)).Inc()
}

// cleanupLoop evicts terminal tasks older than OutputLifetime and deletes
// their artifacts.
func (m *Manager) cleanupLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.OutputLifetime / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *Manager) cleanup() {
	for _, t := range m.store.List() {
		if !t.Status.Terminal() || m.now().Sub(t.CompletedAt) <= m.cfg.OutputLifetime {
			continue
		}
		if t.FilePath != "" {
			path := filepath.Join(m.cfg.StorageDir, t.FilePath)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				m.log.Warn().Err(err).Str("file", path).Msg("could not remove expired output")
			} else {
				m.log.Info().Str("task_id", t.ID).Str("file", path).Msg("removed expired output")
			}
		}
		m.store.Delete(t.ID)
	}
}

// Submit registers a pending task and queues it. It fails with ErrQueueFull
// when no queue slot is free, or with the Admitter's error.
func (m *Manager) Submit(src Source, req Request) (Task, error) {
	if m.admit != nil {
		if err := m.admit.Check(); err != nil {
			metrics.JobsSubmitted.WithLabelValues("throttled").Inc()
			return Task{}, err
		}
	}

	now := m.now()
	t := Task{
		ID:         newID(now),
		Status:     StatusPending,
		Message:    "Queued",
		Source:     src,
		Request:    req,
		AudioState: AudioNone,
		CreatedAt:  now,
	}
	if err := m.store.Create(t); err != nil {
		return Task{}, err
	}

	select {
	case m.queue <- t.ID:
		metrics.QueueDepth.Inc()
	default:
		m.store.Delete(t.ID)
		metrics.JobsSubmitted.WithLabelValues("rejected").Inc()
		return Task{}, ErrQueueFull
	}
	metrics.JobsSubmitted.WithLabelValues("accepted").Inc()
	m.log.Info().Str("task_id", t.ID).Msg("task submitted to queue")
	return copyTask(&t), nil
}

// Get returns a snapshot of the task.
func (m *Manager) Get(id string) (Task, bool) {
	return m.store.Get(id)
}

// List returns snapshots of all known tasks.
func (m *Manager) List() []Task {
	return m.store.List()
}

// newID derives a sortable id from the submission time plus a random suffix.
func newID(now time.Time) string {
	return fmt.Sprintf("%d_%s", now.UnixMilli(), shortuuid.New())
}

type reporter struct {
	store *Store
	id    string
	log   zerolog.Logger
}

func (r *reporter) Message(msg string) {
	if err := r.store.SetMessage(r.id, msg); err != nil {
		r.log.Warn().Err(err).Msg("could not update message")
	}
}

func (r *reporter) Audio(state AudioState, msg string) {
	if err := r.store.SetAudio(r.id, state, msg); err != nil {
		r.log.Warn().Err(err).Msg("could not update audio state")
	}
}
