package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
)

func newMemoryStore() (*Store, *MemoryObjects, *MemoryRecords) {
	objects := NewMemoryObjects()
	records := NewMemoryRecords()
	return New(objects, records), objects, records
}

func upload(t *testing.T, s *Store, owner uuid.UUID, name string, body []byte) Record {
	t.Helper()
	u := s.OpenUpload(context.Background(), UploadInfo{
		Owner:       owner,
		Filename:    name,
		ContentType: "application/octet-stream",
		Size:        int64(len(body)),
	})
	if _, err := u.Write(body); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec, err := u.Finish(context.Background())
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	return rec
}

func TestUploadRoundTrip(t *testing.T) {
	s, _, _ := newMemoryStore()
	owner := uuid.New()
	body := []byte("some payload bytes")

	rec := upload(t, s, owner, "a.pdf", body)

	if rec.Size != int64(len(body)) {
		t.Errorf("recorded size = %d, want %d", rec.Size, len(body))
	}
	if rec.ID == uuid.Nil {
		t.Error("blob id not generated")
	}

	rc, got, err := s.Fetch(context.Background(), rec.ID, owner)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	defer rc.Close()

	back, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if !bytes.Equal(back, body) {
		t.Errorf("payload mismatch: got %q, want %q", back, body)
	}
	if got.Filename != "a.pdf" {
		t.Errorf("filename = %q, want %q", got.Filename, "a.pdf")
	}
}

func TestFetchOwnerMismatch(t *testing.T) {
	s, _, _ := newMemoryStore()
	owner := uuid.New()
	rec := upload(t, s, owner, "secret.txt", []byte("payload"))

	_, _, err := s.Fetch(context.Background(), rec.ID, uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("fetch with wrong owner: got %v, want ErrNotFound", err)
	}

	// Unknown id reads the same.
	_, _, err = s.Fetch(context.Background(), uuid.New(), owner)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("fetch with unknown id: got %v, want ErrNotFound", err)
	}
}

func TestAbortDiscardsPayload(t *testing.T) {
	s, objects, records := newMemoryStore()

	u := s.OpenUpload(context.Background(), UploadInfo{
		Owner:    uuid.New(),
		Filename: "partial.bin",
		Size:     -1,
	})
	if _, err := u.Write([]byte("half written")); err != nil {
		t.Fatalf("write: %v", err)
	}
	u.Abort()

	if objects.Len() != 0 {
		t.Errorf("aborted upload left %d payload objects", objects.Len())
	}
	recs, _ := records.List(context.Background(), Filter{})
	if len(recs) != 0 {
		t.Errorf("aborted upload left %d records", len(recs))
	}
}

// failingRecords refuses every insert, simulating an unreachable metadata
// store at finish time.
type failingRecords struct {
	*MemoryRecords
}

func (f *failingRecords) Insert(ctx context.Context, rec Record) error {
	return errors.New("record store unreachable")
}

func TestFinishRecordFailureRemovesPayload(t *testing.T) {
	objects := NewMemoryObjects()
	s := New(objects, &failingRecords{NewMemoryRecords()})

	u := s.OpenUpload(context.Background(), UploadInfo{
		Owner:    uuid.New(),
		Filename: "doomed.txt",
		Size:     -1,
	})
	if _, err := u.Write([]byte("payload")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := u.Finish(context.Background()); err == nil {
		t.Fatal("expected finish to fail")
	}
	if objects.Len() != 0 {
		t.Errorf("failed finish left %d payload objects", objects.Len())
	}
}

func TestFinishAfterWriteErrorPersistsNothing(t *testing.T) {
	objects := NewMemoryObjects()
	records := NewMemoryRecords()
	s := New(objects, records)

	ctx, cancel := context.WithCancel(context.Background())
	u := s.OpenUpload(ctx, UploadInfo{Owner: uuid.New(), Filename: "cut.bin", Size: -1})
	_, _ = u.Write([]byte("first chunk"))
	cancel() // connection dropped mid-upload
	u.Abort()

	if objects.Len() != 0 {
		t.Errorf("cancelled upload left %d payload objects", objects.Len())
	}
	recs, _ := records.List(context.Background(), Filter{})
	if len(recs) != 0 {
		t.Errorf("cancelled upload left %d records", len(recs))
	}
}

func TestListScopedToOwner(t *testing.T) {
	s, _, _ := newMemoryStore()
	u1 := uuid.New()
	u2 := uuid.New()

	upload(t, s, u1, "a.pdf", bytes.Repeat([]byte("x"), 10))
	upload(t, s, u1, "b.png", bytes.Repeat([]byte("y"), 20))
	upload(t, s, u2, "c.txt", []byte("z"))

	recs, err := s.List(context.Background(), Filter{Owner: u1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("list(u1) returned %d records, want 2", len(recs))
	}
	if recs[0].Filename != "a.pdf" || recs[1].Filename != "b.png" {
		t.Errorf("list order = %q, %q; want insertion order a.pdf, b.png",
			recs[0].Filename, recs[1].Filename)
	}
	if recs[0].Size != 10 || recs[1].Size != 20 {
		t.Errorf("sizes = %d, %d; want 10, 20", recs[0].Size, recs[1].Size)
	}

	recs, err = s.List(context.Background(), Filter{Owner: uuid.New()})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("list(unknown owner) returned %d records, want 0", len(recs))
	}
}

func TestDeleteTwice(t *testing.T) {
	s, objects, _ := newMemoryStore()
	owner := uuid.New()
	rec := upload(t, s, owner, "once.txt", []byte("payload"))

	if err := s.Delete(context.Background(), rec.ID, owner); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if objects.Len() != 0 {
		t.Errorf("delete left %d payload objects", objects.Len())
	}

	err := s.Delete(context.Background(), rec.ID, owner)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: got %v, want ErrNotFound", err)
	}
}

func TestDeleteOwnerMismatch(t *testing.T) {
	s, _, _ := newMemoryStore()
	owner := uuid.New()
	rec := upload(t, s, owner, "mine.txt", []byte("payload"))

	err := s.Delete(context.Background(), rec.ID, uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("delete with wrong owner: got %v, want ErrNotFound", err)
	}

	// Still fetchable by the real owner.
	rc, _, err := s.Fetch(context.Background(), rec.ID, owner)
	if err != nil {
		t.Fatalf("fetch after rejected delete: %v", err)
	}
	rc.Close()
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantHost   string
		wantSecure bool
		wantErr    bool
	}{
		{name: "bare host port", raw: "minio:9000", wantHost: "minio:9000"},
		{name: "http scheme", raw: "http://minio:9000", wantHost: "minio:9000"},
		{name: "https scheme", raw: "https://minio.example.com", wantHost: "minio.example.com", wantSecure: true},
		{name: "empty", raw: "", wantErr: true},
		{name: "path rejected", raw: "http://minio:9000/bucket", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, secure, err := normaliseEndpoint(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if host != tt.wantHost || secure != tt.wantSecure {
				t.Errorf("got (%q, %v), want (%q, %v)", host, secure, tt.wantHost, tt.wantSecure)
			}
		})
	}
}
