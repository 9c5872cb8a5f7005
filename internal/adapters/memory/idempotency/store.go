package idempotency

import (
	"context"
	"sync"

	"github.com/iglesia-ietq/asistencia-api/internal/ports/out/idempotency"
)

// Store is an in-memory idempotency store keyed on the full request
// fingerprint. Records live for the lifetime of the process.
type Store struct {
	mu      sync.RWMutex
	records map[idempotency.Fingerprint]idempotency.Record
}

func NewStore() *Store {
	return &Store{records: make(map[idempotency.Fingerprint]idempotency.Record)}
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[fp]
	if !ok {
		return idempotency.Record{}, false, nil
	}
	out := rec
	out.Body = append([]byte(nil), rec.Body...)
	return out, true, nil
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := rec
	stored.Body = append([]byte(nil), rec.Body...)
	s.records[fp] = stored
	return nil
}
