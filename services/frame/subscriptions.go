package frame

import "sync"

// subscriptions holds the release functions acquired during a mount and runs
// each of them exactly once.
type subscriptions struct {
	mu       sync.Mutex
	releases []func()
	released bool
}

// add records release. If the list was already released, release runs
// immediately and add reports false.
func (s *subscriptions) add(release func()) bool {
	if release == nil {
		return true
	}
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		release()
		return false
	}
	s.releases = append(s.releases, release)
	s.mu.Unlock()
	return true
}

// releaseAll runs every release function in reverse order of acquisition.
func (s *subscriptions) releaseAll() int {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return 0
	}
	s.released = true
	releases := s.releases
	s.releases = nil
	s.mu.Unlock()

	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
	return len(releases)
}
