// Package blobstore stores binary payloads in an object bucket and their
// metadata records in PostgreSQL, tied together by a store-generated blob id.
// A record and its payload exist together or not at all.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no blob record matches the requested id
// (or the id/owner combination).
var ErrNotFound = errors.New("blob not found")

// Record is the metadata half of a blob. The payload is addressed by ID
// in the object store.
type Record struct {
	ID          uuid.UUID `json:"blobId"`
	Owner       uuid.UUID `json:"owner"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	Label       string    `json:"label,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Filter selects records for List.
type Filter struct {
	Owner uuid.UUID // uuid.Nil matches all owners
	// ByUploadTime orders results by upload timestamp instead of
	// insertion order.
	ByUploadTime bool
}

// ObjectStore persists raw payload bytes addressed by blob id.
type ObjectStore interface {
	Put(ctx context.Context, id string, r io.Reader, size int64, contentType string) (int64, error)
	Get(ctx context.Context, id string) (io.ReadCloser, error)
	Remove(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// RecordStore persists blob metadata records.
type RecordStore interface {
	Insert(ctx context.Context, rec Record) error
	Get(ctx context.Context, id uuid.UUID) (Record, error)
	List(ctx context.Context, f Filter) ([]Record, error)
	// Delete removes the record for id. If owner is not uuid.Nil the
	// record must also belong to that owner. Returns ErrNotFound when
	// nothing matched.
	Delete(ctx context.Context, id, owner uuid.UUID) error
	Ping(ctx context.Context) error
}

// Store is the blob store adapter. The underlying clients are opened once
// at process start and shared by all requests; they do their own pooling.
type Store struct {
	objects ObjectStore
	records RecordStore
}

func New(objects ObjectStore, records RecordStore) *Store {
	return &Store{objects: objects, records: records}
}

// UploadInfo describes an upload at open time. Owner is fixed here and
// immutable for the life of the blob.
type UploadInfo struct {
	Owner       uuid.UUID
	Filename    string
	ContentType string
	Size        int64 // advisory; -1 if unknown
	Label       string
}

// Upload is a write sink for one blob payload. Bytes written are streamed
// into the object store; Finish persists the metadata record once the
// payload write has completed. Abort discards any partial payload.
type Upload struct {
	ID uuid.UUID

	store *Store
	info  UploadInfo
	pw    *io.PipeWriter
	done  chan struct{} // closed when the Put goroutine returns
	n     int64         // bytes persisted, valid after done
	err   error         // Put result, valid after done
}

// OpenUpload generates a blob id and opens a write sink for its payload.
// Nothing is persisted until Finish returns nil.
func (s *Store) OpenUpload(ctx context.Context, info UploadInfo) *Upload {
	pr, pw := io.Pipe()
	u := &Upload{
		ID:    uuid.New(),
		store: s,
		info:  info,
		pw:    pw,
		done:  make(chan struct{}),
	}

	go func() {
		defer close(u.done)
		n, err := s.objects.Put(ctx, u.ID.String(), pr, info.Size, info.ContentType)
		if err != nil {
			// Unblock a writer stuck in Write.
			_ = pr.CloseWithError(err)
			u.err = err
			return
		}
		u.n = n
	}()

	return u
}

func (u *Upload) Write(p []byte) (int, error) {
	return u.pw.Write(p)
}

// Finish signals end of payload, waits for the object write to complete,
// and persists the metadata record. If the record insert fails the payload
// is removed so no orphan survives.
func (u *Upload) Finish(ctx context.Context) (Record, error) {
	_ = u.pw.Close()
	<-u.done
	if u.err != nil {
		return Record{}, fmt.Errorf("payload write: %w", u.err)
	}

	rec := Record{
		ID:          u.ID,
		Owner:       u.info.Owner,
		Filename:    u.info.Filename,
		ContentType: u.info.ContentType,
		Size:        u.n,
		Label:       u.info.Label,
		UploadedAt:  time.Now().UTC(),
	}
	if err := u.store.records.Insert(ctx, rec); err != nil {
		_ = u.store.objects.Remove(context.WithoutCancel(ctx), u.ID.String())
		return Record{}, fmt.Errorf("record insert: %w", err)
	}
	return rec, nil
}

// Abort terminates the upload and discards whatever payload was written.
// Safe to call after a failed Finish.
func (u *Upload) Abort() {
	_ = u.pw.CloseWithError(errors.New("upload aborted"))
	<-u.done
	// The object store may or may not have kept partial state; removal of
	// a missing object is a no-op.
	_ = u.store.objects.Remove(context.Background(), u.ID.String())
}

// Fetch resolves a blob by exact {id, owner} match and opens its payload
// for reading. A missing id and an owner mismatch are indistinguishable:
// both return ErrNotFound.
func (s *Store) Fetch(ctx context.Context, id, owner uuid.UUID) (io.ReadCloser, Record, error) {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, Record{}, err
	}
	if owner != uuid.Nil && rec.Owner != owner {
		return nil, Record{}, ErrNotFound
	}
	rc, err := s.objects.Get(ctx, id.String())
	if err != nil {
		return nil, Record{}, fmt.Errorf("open payload %s: %w", id, err)
	}
	return rc, rec, nil
}

// List returns the records matching f in the store's natural order.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	return s.records.List(ctx, f)
}

// Delete removes a blob's record and payload. If owner is not uuid.Nil the
// blob must belong to that owner; a mismatch reports ErrNotFound, the same
// as a missing id.
func (s *Store) Delete(ctx context.Context, id, owner uuid.UUID) error {
	if err := s.records.Delete(ctx, id, owner); err != nil {
		return err
	}
	// The record is gone; a leftover payload object is invisible to every
	// read path, so a failure here is not surfaced to the caller.
	_ = s.objects.Remove(ctx, id.String())
	return nil
}

// Ready reports whether both halves of the store are reachable.
func (s *Store) Ready(ctx context.Context) error {
	if err := s.records.Ping(ctx); err != nil {
		return fmt.Errorf("record store: %w", err)
	}
	if err := s.objects.Ping(ctx); err != nil {
		return fmt.Errorf("object store: %w", err)
	}
	return nil
}
