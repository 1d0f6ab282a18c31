package memory

import (
	"context"
	"sync"
	"time"

	"github.com/R3E-Network/frame_layer/services/frame"
	"github.com/R3E-Network/frame_layer/services/frame/store"
)

// Store is an in-memory notification store. It is safe for concurrent use
// and intended for tests and single-instance deployments.
type Store struct {
	mu      sync.RWMutex
	records map[int64]store.Record
}

var _ store.NotificationStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[int64]store.Record)}
}

func (s *Store) Save(_ context.Context, fid int64, details frame.NotificationDetails) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[fid] = store.Record{
		FID:       fid,
		URL:       details.URL,
		Token:     details.Token,
		UpdatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *Store) Get(_ context.Context, fid int64) (store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[fid]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) Delete(_ context.Context, fid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, fid)
	return nil
}

func (s *Store) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}
