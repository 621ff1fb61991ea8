package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"offline-wallet/internal/core/domain"
)

// RemoteStore implements ports.RemoteStore in memory with the same merge
// semantics as the network backends.
type RemoteStore struct {
	mu      sync.Mutex
	records map[string]map[string]*domain.RemoteRecord
	now     func() time.Time

	// FailUpsert, when set, is consulted before every upsert.
	FailUpsert func(collection, id string) error
	// FailQuery, when set, is consulted before every query.
	FailQuery func(collection string) error
}

// NewRemoteStore creates an empty in-memory remote mirror.
func NewRemoteStore() *RemoteStore {
	return &RemoteStore{
		records: make(map[string]map[string]*domain.RemoteRecord),
		now:     time.Now,
	}
}

func (s *RemoteStore) Upsert(ctx context.Context, collection, id string, fields map[string]any, policy domain.MergePolicy) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailUpsert != nil {
		if err := s.FailUpsert(collection, id); err != nil {
			return err
		}
	}

	coll, ok := s.records[collection]
	if !ok {
		coll = make(map[string]*domain.RemoteRecord)
		s.records[collection] = coll
	}

	rec, ok := coll[id]
	if !ok || policy == domain.Replace {
		rec = &domain.RemoteRecord{Collection: collection, ID: id, Fields: make(map[string]any)}
		coll[id] = rec
	}
	maps.Copy(rec.Fields, fields)
	rec.ServerTime = s.now()
	return nil
}

func (s *RemoteStore) Query(ctx context.Context, collection string, filter domain.RemoteFilter) ([]domain.RemoteRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailQuery != nil {
		if err := s.FailQuery(collection); err != nil {
			return nil, err
		}
	}

	var out []domain.RemoteRecord
	for _, rec := range s.records[collection] {
		if matches(rec, filter) {
			out = append(out, domain.RemoteRecord{
				Collection: rec.Collection,
				ID:         rec.ID,
				Fields:     maps.Clone(rec.Fields),
				ServerTime: rec.ServerTime,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ServerTime.Equal(out[j].ServerTime) {
			return out[i].ServerTime.Before(out[j].ServerTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Get returns a copy of one record, for assertions.
func (s *RemoteStore) Get(collection, id string) (domain.RemoteRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[collection][id]
	if !ok {
		return domain.RemoteRecord{}, false
	}
	return domain.RemoteRecord{Collection: collection, ID: id, Fields: maps.Clone(rec.Fields), ServerTime: rec.ServerTime}, true
}

func matches(rec *domain.RemoteRecord, filter domain.RemoteFilter) bool {
	if len(filter.AnyOf) == 0 {
		return true
	}
	for field, want := range filter.AnyOf {
		if got, ok := rec.Fields[field].(string); ok && got == want {
			return true
		}
	}
	return false
}
