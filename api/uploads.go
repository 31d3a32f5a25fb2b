package api

import "sync"

// uploadSet holds stored uploads no task has taken yet, keyed by file name
// with the detected media type as value. A conversion consumes its source,
// so each upload feeds at most one task.
type uploadSet struct {
	mu    sync.Mutex
	names map[string]string
}

func newUploadSet() *uploadSet {
	return &uploadSet{names: make(map[string]string)}
}

func (s *uploadSet) add(name, mime string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[name] = mime
}

// claim takes name out of the set. It fails for names /upload never minted
// and for uploads another task already holds.
func (s *uploadSet) claim(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mime, ok := s.names[name]
	if ok {
		delete(s.names, name)
	}
	return mime, ok
}
