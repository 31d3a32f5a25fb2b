package task

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Store is the concurrency-safe registry of tasks. Every mutation goes
// through Update, which validates the status and audio transition tables.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewStore() *Store {
	return &Store{tasks: make(map[string]*Task)}
}

// Create registers a new task.
func (s *Store) Create(t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[t.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, t.ID)
	}
	s.tasks[t.ID] = &t
	return nil
}

// Get returns a copy of the task.
func (s *Store) Get(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return copyTask(t), true
}

// Update applies fn to a copy of the task and stores the result if it is a
// valid successor of the current state.
func (s *Store) Update(id string, fn func(t *Task)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := copyTask(cur)
	fn(&next)
	if err := validate(cur, &next); err != nil {
		return err
	}
	*cur = next
	return nil
}

func validate(cur, next *Task) error {
	if next.ID != cur.ID || next.CreatedAt != cur.CreatedAt {
		return fmt.Errorf("%w: identity fields are immutable", ErrInvalidTransition)
	}
	if next.Source != cur.Source || !sameRequest(cur.Request, next.Request) {
		return fmt.Errorf("%w: source and request are immutable", ErrInvalidTransition)
	}
	if cur.Status.Terminal() && mutableFields(*cur) != mutableFields(*next) {
		return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, cur.ID, cur.Status)
	}
	if !cur.Status.CanTransition(next.Status) {
		return fmt.Errorf("%w: status %s -> %s", ErrInvalidTransition, cur.Status, next.Status)
	}
	if !cur.AudioState.CanTransition(next.AudioState) {
		return fmt.Errorf("%w: audio %s -> %s", ErrInvalidTransition, cur.AudioState, next.AudioState)
	}
	if next.Status == StatusDone && next.FilePath == "" {
		return fmt.Errorf("%w: done without a file", ErrInvalidTransition)
	}
	if next.FilePath != "" && next.Status != StatusDone {
		return fmt.Errorf("%w: file set while %s", ErrInvalidTransition, next.Status)
	}
	return nil
}

// Delete removes the task.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

// List returns copies of all tasks ordered by id.
func (s *Store) List() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		list = append(list, copyTask(t))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// SetMessage updates the progress message.
func (s *Store) SetMessage(id, msg string) error {
	return s.Update(id, func(t *Task) { t.Message = msg })
}

// SetAudio updates audio state and message together.
func (s *Store) SetAudio(id string, state AudioState, msg string) error {
	return s.Update(id, func(t *Task) {
		t.AudioState = state
		if msg != "" {
			t.Message = msg
		}
	})
}

type mutable struct {
	status      Status
	message     string
	filePath    string
	audio       AudioState
	degraded    bool
	startedAt   time.Time
	completedAt time.Time
}

func mutableFields(t Task) mutable {
	return mutable{t.Status, t.Message, t.FilePath, t.AudioState, t.Degraded, t.StartedAt, t.CompletedAt}
}

func sameRequest(a, b Request) bool {
	if (a.End == nil) != (b.End == nil) {
		return false
	}
	if a.End != nil && *a.End != *b.End {
		return false
	}
	a.End, b.End = nil, nil
	return a == b
}

func copyTask(t *Task) Task {
	c := *t
	if t.Request.End != nil {
		end := *t.Request.End
		c.Request.End = &end
	}
	return c
}
