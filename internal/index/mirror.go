package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var ErrMirror = errors.New("durable vector store unavailable")

// StoredRecord is the durable form of an index record.
type StoredRecord struct {
	Namespace string
	ID        string
	Vector    []float32
	Meta      Metadata
}

// Mirror is the minimal put/delete/list contract of an optional durable
// vector store. The in-memory index stays authoritative for the session;
// the mirror is authoritative across restarts.
type Mirror interface {
	Put(ctx context.Context, namespace, id string, vector []float32, meta Metadata) error
	Delete(ctx context.Context, namespace, id string) error
	List(ctx context.Context) ([]StoredRecord, error)
}

// Rebuild replaces all in-memory state with the durable store's contents.
// Called at startup, before the index takes traffic, so it swaps the
// namespace table wholesale.
func (x *Index) Rebuild(ctx context.Context) error {
	if x.mirror == nil {
		return nil
	}
	stored, err := x.mirror.List(ctx)
	if err != nil {
		return fmt.Errorf("%w: list: %v", ErrMirror, err)
	}

	fresh := make(map[string]*namespace)
	for _, rec := range stored {
		n := fresh[rec.Namespace]
		if n == nil {
			n = &namespace{records: make(map[string]*record)}
			fresh[rec.Namespace] = n
		}
		if n.dim == 0 {
			n.dim = len(rec.Vector)
		} else if n.dim != len(rec.Vector) {
			return fmt.Errorf("%w: namespace %q holds dimension %d, durable record %q has %d",
				ErrDimensionMismatch, rec.Namespace, n.dim, rec.ID, len(rec.Vector))
		}
		unit, norm := normalize(rec.Vector)
		n.records[rec.ID] = &record{id: rec.ID, unit: unit, norm: norm, meta: rec.Meta, seq: x.seq.Add(1)}
	}

	x.mu.Lock()
	x.namespaces = fresh
	x.mu.Unlock()

	slog.InfoContext(ctx, "index rebuilt from durable store", "records", len(stored), "namespaces", len(fresh))
	return nil
}
