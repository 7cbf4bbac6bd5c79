// Package memory provides an in-memory recordstore.Store.
package memory

import (
	"context"
	"sync"

	"receipts/internal/core"
)

type Store struct {
	mu      sync.RWMutex
	records map[core.Period]core.Aggregate
}

func New() *Store {
	return &Store{records: make(map[core.Period]core.Aggregate)}
}

func (s *Store) Put(ctx context.Context, agg core.Aggregate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.records[agg.Period()] = agg
	s.mu.Unlock()
	return nil
}

func (s *Store) Get(ctx context.Context, p core.Period) (*core.Aggregate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	agg, ok := s.records[p]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return &agg, nil
}

func (s *Store) Delete(ctx context.Context, p core.Period) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.records, p)
	s.mu.Unlock()
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
