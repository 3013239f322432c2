// ingest.go - Multipart file ingestion into the blob store.
//
// Each file part is spooled to a local temp file first, then every spool is
// streamed into its own upload sink concurrently. The spool files are
// removed on every exit path; that is the resource-safety contract of this
// handler.
package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"applicant-portal/internal/blobstore"
)

// maxFieldBytes bounds non-file form fields (owner, label).
const maxFieldBytes = 1024

type spooledFile struct {
	path        string
	filename    string
	contentType string
	size        int64
}

type uploadedFile struct {
	BlobID      uuid.UUID `json:"blobId"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
}

// uploadFilesHandler handles POST /files (multipart form: owner identifier
// plus one or more "files" parts). The response lists one entry per input
// file, in input order, or the whole request fails; there is no
// partial-success shape. Blobs completed for sibling files before a failure
// are not rolled back.
func (cfg Config) uploadFilesHandler(w http.ResponseWriter, r *http.Request) {
	if cfg.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
	}

	// The owner id must be known to be well-formed before any file stream
	// is touched. It can come as a query parameter or as a form field
	// preceding the file parts.
	var (
		owner    uuid.UUID
		hasOwner bool
	)
	if q := r.URL.Query().Get("owner"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid owner id")
			return
		}
		owner, hasOwner = id, true
	}

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected multipart form data")
		return
	}

	var (
		spools []spooledFile
		label  string
	)
	// Spool cleanup is unconditional: success, store error, or abort.
	defer func() {
		for _, sp := range spools {
			if err := os.Remove(sp.path); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Printf("ingest: spool remove failed path=%s err=%v", sp.path, err)
			}
		}
	}()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeError(w, multipartStatus(err), "bad multipart body")
			return
		}

		if part.FileName() == "" {
			val, err := readField(part)
			if err != nil {
				writeError(w, http.StatusBadRequest, "bad multipart body")
				return
			}
			switch part.FormName() {
			case "owner":
				id, err := uuid.Parse(val)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid owner id")
					return
				}
				owner, hasOwner = id, true
			case "label":
				label = val
			}
			continue
		}

		// File part. The owner must already be validated; otherwise we
		// would be spooling bytes for a request that can never succeed.
		if !hasOwner {
			writeError(w, http.StatusBadRequest, "owner identifier must precede file parts")
			return
		}

		sp, err := cfg.spoolPart(part)
		if err != nil {
			log.Printf("ingest: spool failed file=%q err=%v", part.FileName(), err)
			writeError(w, multipartStatus(err), "failed to read file part")
			return
		}
		spools = append(spools, sp)
	}

	if !hasOwner {
		writeError(w, http.StatusBadRequest, "owner identifier is required")
		return
	}
	if len(spools) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	// Open every sink before awaiting any of them, then pipe each spool
	// concurrently. The first failure cancels the group context, which
	// aborts the in-flight sinks.
	g, ctx := errgroup.WithContext(r.Context())

	uploads := make([]*blobstore.Upload, len(spools))
	for i, sp := range spools {
		uploads[i] = cfg.Blobs.OpenUpload(ctx, blobstore.UploadInfo{
			Owner:       owner,
			Filename:    sp.filename,
			ContentType: sp.contentType,
			Size:        sp.size,
			Label:       label,
		})
	}

	// Results keep input order regardless of completion order.
	results := make([]uploadedFile, len(spools))
	for i := range spools {
		sp, up := spools[i], uploads[i]
		g.Go(func() error {
			f, err := os.Open(sp.path)
			if err != nil {
				up.Abort()
				return fmt.Errorf("%s: %w", sp.filename, err)
			}
			defer f.Close()

			if _, err := io.Copy(up, f); err != nil {
				up.Abort()
				return fmt.Errorf("%s: %w", sp.filename, err)
			}
			rec, err := up.Finish(ctx)
			if err != nil {
				up.Abort()
				return fmt.Errorf("%s: %w", sp.filename, err)
			}
			results[i] = uploadedFile{
				BlobID:      rec.ID,
				Filename:    sp.filename,
				ContentType: rec.ContentType,
				Size:        rec.Size,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		rid := RequestIDFromContext(r.Context())
		log.Printf("rid=%s msg=upload_failed owner=%s err=%v", rid, owner, err)
		writeError(w, http.StatusInternalServerError, "upload failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Files uploaded",
		"files":   results,
	})
}

// spoolPart copies one multipart file part to a temp file and records its
// name, content type, and byte size.
func (cfg Config) spoolPart(part *multipart.Part) (spooledFile, error) {
	f, err := os.CreateTemp(cfg.SpoolDir, "portal-spool-*")
	if err != nil {
		return spooledFile{}, err
	}

	n, err := io.Copy(f, part)
	cerr := f.Close()
	if err != nil || cerr != nil {
		_ = os.Remove(f.Name())
		if err == nil {
			err = cerr
		}
		return spooledFile{}, err
	}

	contentType := part.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return spooledFile{
		path:        f.Name(),
		filename:    part.FileName(),
		contentType: contentType,
		size:        n,
	}, nil
}

// readField reads a small non-file form field.
func readField(part io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// multipartStatus maps a body-read failure to a status: a tripped
// MaxBytesReader means the request was too large, anything else is a
// malformed body.
func multipartStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}
