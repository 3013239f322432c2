package blobstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// In-memory ObjectStore and RecordStore. Used by tests and by local
// development runs that have no MinIO or Postgres at hand.

type MemoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemoryObjects() *MemoryObjects {
	return &MemoryObjects{objects: make(map[string][]byte)}
}

func (m *MemoryObjects) Put(ctx context.Context, id string, r io.Reader, size int64, contentType string) (int64, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id] = b
	return int64(len(b)), nil
}

func (m *MemoryObjects) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *MemoryObjects) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, id)
	return nil
}

func (m *MemoryObjects) Ping(ctx context.Context) error { return nil }

// Len reports how many payload objects are held. Handy for asserting that
// aborted uploads left nothing behind.
func (m *MemoryObjects) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type MemoryRecords struct {
	mu   sync.Mutex
	recs []Record
}

func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{}
}

func (m *MemoryRecords) Insert(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *MemoryRecords) Get(ctx context.Context, id uuid.UUID) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.recs {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Record{}, ErrNotFound
}

func (m *MemoryRecords) List(ctx context.Context, f Filter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Record{}
	for _, rec := range m.recs {
		if f.Owner == uuid.Nil || rec.Owner == f.Owner {
			out = append(out, rec)
		}
	}
	if f.ByUploadTime {
		sort.Slice(out, func(i, j int) bool { return out[i].UploadedAt.Before(out[j].UploadedAt) })
	}
	return out, nil
}

func (m *MemoryRecords) Delete(ctx context.Context, id, owner uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rec := range m.recs {
		if rec.ID != id {
			continue
		}
		if owner != uuid.Nil && rec.Owner != owner {
			return ErrNotFound
		}
		m.recs = append(m.recs[:i], m.recs[i+1:]...)
		return nil
	}
	return ErrNotFound
}

func (m *MemoryRecords) Ping(ctx context.Context) error { return nil }
