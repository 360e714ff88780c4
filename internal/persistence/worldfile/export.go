package worldfile

import (
	"io"
)

// Export calls fn with the store's stats and a reader over every byte from
// the header to the end of the last record. Saves block until fn returns, so
// the bytes fn sees form a consistent world file.
func (s *Store) Export(fn func(st Stats, r io.Reader) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if err := s.ensureIndexLocked(); err != nil {
		return err
	}
	st, err := s.statsLocked()
	if err != nil {
		return err
	}
	st.FileSize = s.end
	return fn(st, io.NewSectionReader(s.f, 0, s.end))
}
