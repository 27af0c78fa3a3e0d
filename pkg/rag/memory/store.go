// Package memory implements rag.VectorStore in process memory using brute-force cosine similarity.
// Nothing is persisted; it is meant for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/edgeflare/pgrag/pkg/rag"
	"github.com/google/uuid"
)

var _ rag.VectorStore = (*Store)(nil)

// Store is an in-memory vector store keyed by collection name.
type Store struct {
	collections map[string][]rag.Record
	mu          sync.RWMutex
}

func NewStore() *Store {
	return &Store{collections: make(map[string][]rag.Record)}
}

// Add appends records to the collection, assigning each a new ID.
func (s *Store) Add(_ context.Context, collection string, records []rag.Record) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ids := appendRecords(s.collections[collection], records)
	s.collections[collection] = stored
	return ids, nil
}

// Replace drops the records of sources and appends records while holding the lock,
// so searches never observe the collection in between.
func (s *Store) Replace(_ context.Context, collection string, sources []string, records []rag.Record) (int64, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.collections[collection]
	kept := make([]rag.Record, 0, len(old)+len(records))
	for _, r := range old {
		if !slices.Contains(sources, r.Metadata.Source) {
			kept = append(kept, r)
		}
	}
	deleted := int64(len(old) - len(kept))

	stored, ids := appendRecords(kept, records)
	s.collections[collection] = stored
	return deleted, ids, nil
}

func appendRecords(stored, records []rag.Record) ([]rag.Record, []string) {
	ids := make([]string, len(records))
	for i, r := range records {
		r.ID = uuid.NewString()
		r.Vector = slices.Clone(r.Vector)
		stored = append(stored, r)
		ids[i] = r.ID
	}
	return stored, ids
}

// Search returns up to k records ordered by descending cosine similarity.
// Ties keep insertion order. k must be at least 1.
func (s *Store) Search(_ context.Context, collection string, vector []float32, k int) ([]rag.SearchResult, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", rag.ErrConfiguration, k)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", rag.ErrCollectionNotFound, collection)
	}

	results := make([]rag.SearchResult, len(records))
	for i, r := range records {
		results[i] = rag.SearchResult{Record: r, Score: cosine(r.Vector, vector)}
	}
	slices.SortStableFunc(results, func(a, b rag.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// DeleteSource removes the records whose metadata source equals source.
func (s *Store) DeleteSource(_ context.Context, collection, source string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}
	kept := slices.DeleteFunc(records, func(r rag.Record) bool {
		return r.Metadata.Source == source
	})
	s.collections[collection] = kept
	return int64(len(records) - len(kept)), nil
}

// Records returns a copy of the records stored in the collection.
func (s *Store) Records(collection string) []rag.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.collections[collection])
}

// cosine returns 0 when either vector has zero magnitude or the dimensions differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
