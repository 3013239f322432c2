// files.go - Owner-scoped listing, streamed fetch, and deletion of blobs.
package server

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"applicant-portal/internal/blobstore"
)

// listFilesHandler handles GET /files?owner=<id>. Returns the blob records
// owned by the given applicant, in insertion order. No pagination.
func (cfg Config) listFilesHandler(w http.ResponseWriter, r *http.Request) {
	owner, err := uuid.Parse(r.URL.Query().Get("owner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid owner id")
		return
	}

	recs, err := cfg.Blobs.List(r.Context(), blobstore.Filter{Owner: owner})
	if err != nil {
		log.Printf("files: list failed owner=%s err=%v", owner, err)
		writeError(w, http.StatusInternalServerError, "could not fetch files")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"files": recs})
}

// fetchFileHandler handles GET /files/{id}?owner=<id>. Streams the payload
// with its recorded content type and suggested filename. A missing id and
// an owner mismatch both answer 404; the response does not reveal which.
func (cfg Config) fetchFileHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file id")
		return
	}
	owner, err := uuid.Parse(r.URL.Query().Get("owner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid owner id")
		return
	}

	rc, rec, err := cfg.Blobs.Fetch(r.Context(), id, owner)
	if errors.Is(err, blobstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		log.Printf("files: fetch failed id=%s err=%v", id, err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	defer rc.Close()

	contentType := rec.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if rec.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename=%q`, rec.Filename))
	w.WriteHeader(http.StatusOK)

	// Streamed straight through; no in-memory buffering of the payload.
	_, _ = io.Copy(w, rc)
}

// deleteFileHandler handles DELETE /files/{id}. The blob must belong to the
// authenticated applicant; an owner mismatch reads the same as a missing
// id.
func (cfg Config) deleteFileHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file id")
		return
	}

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	owner, err := uuid.Parse(claims.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	err = cfg.Blobs.Delete(r.Context(), id, owner)
	if errors.Is(err, blobstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		log.Printf("files: delete failed id=%s err=%v", id, err)
		writeError(w, http.StatusInternalServerError, "could not delete file")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
