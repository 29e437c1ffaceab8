package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Metric selects how similarity is scored. Cosine is the default; vectors
// are L2-normalized once at upsert so a cosine query is a plain dot product.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricDot    Metric = "dot"
)

// Metadata is the fixed, versioned schema attached to every record. Extra is
// the open extension map for fields the core does not interpret.
type Metadata struct {
	DocumentID string            `json:"document_id"`
	ChunkIndex int               `json:"chunk_index"`
	SourceType string            `json:"source_type"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Result is one ranked query hit.
type Result struct {
	ID    string
	Score float32
	Meta  Metadata
}

// FilterFunc restricts a query to records whose metadata it accepts. A nil
// filter accepts everything.
type FilterFunc func(Metadata) bool

type record struct {
	id   string
	unit []float32 // L2-normalized
	norm float32   // original L2 norm, recovers raw dot product
	meta Metadata
	seq  uint64 // insertion order, breaks score ties deterministically
}

type namespace struct {
	mu      sync.RWMutex
	dim     int
	records map[string]*record
}

// Index is a namespaced, brute-force exact-search vector index. Records are
// never mutated in place: an upsert installs a fresh record under the
// namespace write lock, so a concurrent query sees either the full old or the
// full new record.
type Index struct {
	mu         sync.RWMutex
	namespaces map[string]*namespace
	seq        atomic.Uint64

	mirror   Mirror
	degraded atomic.Bool
}

func New() *Index {
	return &Index{namespaces: make(map[string]*namespace)}
}

// NewMirrored builds an index that forwards writes to a durable store.
func NewMirrored(mirror Mirror) *Index {
	idx := New()
	idx.mirror = mirror
	return idx
}

func (x *Index) ns(name string, create bool) *namespace {
	x.mu.RLock()
	n := x.namespaces[name]
	x.mu.RUnlock()
	if n != nil || !create {
		return n
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if n = x.namespaces[name]; n == nil {
		n = &namespace{records: make(map[string]*record)}
		x.namespaces[name] = n
	}
	return n
}

// Upsert inserts or replaces the record with this id in the namespace. The
// first vector establishes the namespace dimension; later vectors must agree.
// Mirror failures degrade the session, they never fail the upsert.
func (x *Index) Upsert(ctx context.Context, nsName, id string, vector []float32, meta Metadata) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector for id %q", ErrDimensionMismatch, id)
	}
	n := x.ns(nsName, true)

	unit, norm := normalize(vector)
	rec := &record{id: id, unit: unit, norm: norm, meta: meta, seq: x.seq.Add(1)}

	n.mu.Lock()
	if n.dim == 0 {
		n.dim = len(vector)
	} else if n.dim != len(vector) {
		n.mu.Unlock()
		return fmt.Errorf("%w: namespace %q holds dimension %d, got %d", ErrDimensionMismatch, nsName, n.dim, len(vector))
	}
	if prev, ok := n.records[id]; ok {
		rec.seq = prev.seq // replacement keeps its slot in tie ordering
	}
	n.records[id] = rec
	n.mu.Unlock()

	x.mirrorPut(ctx, nsName, id, vector, meta)
	return nil
}

// Delete removes the record if present; deleting an absent id is a no-op.
func (x *Index) Delete(ctx context.Context, nsName, id string) error {
	if n := x.ns(nsName, false); n != nil {
		n.mu.Lock()
		delete(n.records, id)
		n.mu.Unlock()
	}
	x.mirrorDelete(ctx, nsName, id)
	return nil
}

// DeleteDocument removes every record belonging to the document and returns
// the deleted ids.
func (x *Index) DeleteDocument(ctx context.Context, nsName, documentID string) ([]string, error) {
	n := x.ns(nsName, false)
	if n == nil {
		return nil, nil
	}

	n.mu.Lock()
	var ids []string
	for id, rec := range n.records {
		if rec.meta.DocumentID == documentID {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(n.records, id)
	}
	n.mu.Unlock()

	sort.Strings(ids)
	for _, id := range ids {
		x.mirrorDelete(ctx, nsName, id)
	}
	return ids, nil
}

// Query returns the k most similar records, descending by score, ties broken
// by insertion order. An unknown namespace returns an empty result, not an
// error.
func (x *Index) Query(nsName string, vector []float32, k int, metric Metric, filter FilterFunc) ([]Result, error) {
	if k <= 0 {
		return nil, nil
	}
	n := x.ns(nsName, false)
	if n == nil {
		return nil, nil
	}
	if metric == "" {
		metric = MetricCosine
	}

	qUnit, qNorm := normalize(vector)

	n.mu.RLock()
	if n.dim != 0 && n.dim != len(vector) {
		n.mu.RUnlock()
		return nil, fmt.Errorf("%w: namespace %q holds dimension %d, query has %d", ErrDimensionMismatch, nsName, n.dim, len(vector))
	}

	type scored struct {
		rec   *record
		score float32
	}
	candidates := make([]scored, 0, len(n.records))
	for _, rec := range n.records {
		if filter != nil && !filter(rec.meta) {
			continue
		}
		s := dot(rec.unit, qUnit)
		if metric == MetricDot {
			s *= rec.norm * qNorm
		}
		candidates = append(candidates, scored{rec: rec, score: s})
	}
	n.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].rec.seq < candidates[j].rec.seq
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	results := make([]Result, 0, k)
	for _, c := range candidates[:k] {
		results = append(results, Result{ID: c.rec.id, Score: c.score, Meta: c.rec.meta})
	}
	return results, nil
}

// Count reports how many records the namespace holds.
func (x *Index) Count(nsName string) int {
	n := x.ns(nsName, false)
	if n == nil {
		return 0
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.records)
}

// Stats reports the record count of every namespace.
func (x *Index) Stats() map[string]int {
	x.mu.RLock()
	names := make([]string, 0, len(x.namespaces))
	for name := range x.namespaces {
		names = append(names, name)
	}
	x.mu.RUnlock()

	stats := make(map[string]int, len(names))
	for _, name := range names {
		stats[name] = x.Count(name)
	}
	return stats
}

// Degraded reports whether a mirror write has failed this session.
func (x *Index) Degraded() bool { return x.degraded.Load() }

func (x *Index) mirrorPut(ctx context.Context, nsName, id string, vector []float32, meta Metadata) {
	if x.mirror == nil {
		return
	}
	if err := x.mirror.Put(ctx, nsName, id, vector, meta); err != nil {
		x.degraded.Store(true)
		slog.WarnContext(ctx, "durable mirror write failed, continuing in-memory",
			"namespace", nsName, "id", id, "error", fmt.Errorf("%w: %v", ErrMirror, err))
	}
}

func (x *Index) mirrorDelete(ctx context.Context, nsName, id string) {
	if x.mirror == nil {
		return
	}
	if err := x.mirror.Delete(ctx, nsName, id); err != nil {
		x.degraded.Store(true)
		slog.WarnContext(ctx, "durable mirror delete failed, continuing in-memory",
			"namespace", nsName, "id", id, "error", fmt.Errorf("%w: %v", ErrMirror, err))
	}
}

func normalize(v []float32) (unit []float32, norm float32) {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	norm = float32(math.Sqrt(sum))
	unit = make([]float32, len(v))
	if norm == 0 {
		copy(unit, v)
		return unit, 0
	}
	for i, f := range v {
		unit[i] = f / norm
	}
	return unit, norm
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
