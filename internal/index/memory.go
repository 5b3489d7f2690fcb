package index

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Memory is an exact-cosine in-memory Index. It backs tests and small
// single-process deployments; it is safe for concurrent use and strongly
// consistent.
type Memory struct {
	mu     sync.RWMutex
	points map[string]Point
}

func NewMemory() *Memory {
	return &Memory{points: make(map[string]Point)}
}

func (m *Memory) Upsert(_ context.Context, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID] = p
	}
	return nil
}

func (m *Memory) DeleteByDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.points {
		if p.DocumentID == documentID {
			delete(m.points, id)
		}
	}
	return nil
}

func (m *Memory) HasDocument(_ context.Context, documentID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.points {
		if p.DocumentID == documentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Query(_ context.Context, vector []float32, limit int, filter *Filter) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]SearchResult, 0, len(m.points))
	for _, p := range m.points {
		if !matches(p, filter) {
			continue
		}
		results = append(results, SearchResult{
			ChunkID:    p.ID,
			DocumentID: p.DocumentID,
			ChunkIndex: p.ChunkIndex,
			Title:      p.Meta.Title,
			Text:       p.Text,
			Score:      cosine(vector, p.Vector),
		})
	}

	// Tie-break on chunk id so result order is deterministic.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func matches(p Point, f *Filter) bool {
	if f == nil {
		return true
	}
	if f.DocumentID != "" && p.DocumentID != f.DocumentID {
		return false
	}
	if f.Category != "" && p.Meta.Category != f.Category {
		return false
	}
	for _, want := range f.Tags {
		found := false
		for _, tag := range p.Meta.Tags {
			if tag == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

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

func (m *Memory) Count(_ context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.points)), nil
}

func (m *Memory) Health(_ context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
