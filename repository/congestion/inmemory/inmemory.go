package inmemory

import (
	"context"
	"sync"

	"github.com/desain-gratis/congestion/repository/congestion"
	"github.com/desain-gratis/congestion/types/entity"
)

var (
	_ congestion.Fetcher    = &fetcher{}
	_ congestion.StateStore = &store{}
)

type fetcher struct {
	lock     *sync.RWMutex
	snapshot entity.Snapshot
	err      error
}

// NewFetcher serves a fixed snapshot. Useful for local runs without an
// upstream API key.
func NewFetcher(snapshot entity.Snapshot) *fetcher {
	return &fetcher{
		lock:     &sync.RWMutex{},
		snapshot: snapshot.Clone(),
	}
}

// Set replaces the snapshot (and error) returned by the next fetches
func (f *fetcher) Set(snapshot entity.Snapshot, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.snapshot = snapshot.Clone()
	f.err = err
}

func (f *fetcher) Fetch(ctx context.Context) (entity.Snapshot, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	f.lock.RLock()
	defer f.lock.RUnlock()

	if f.err != nil {
		return nil, f.err
	}

	return f.snapshot.Clone(), nil
}

type store struct {
	lock     *sync.RWMutex
	snapshot entity.Snapshot
}

func NewStore() *store {
	return &store{
		lock:     &sync.RWMutex{},
		snapshot: entity.Snapshot{},
	}
}

func (s *store) Load(context.Context) (entity.Snapshot, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.snapshot.Clone(), nil
}

func (s *store) Save(_ context.Context, snapshot entity.Snapshot) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.snapshot = snapshot.Clone()
	return nil
}
