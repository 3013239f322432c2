package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"applicant-portal/internal/blobstore"
)

// Config wires the shared resources into the HTTP handlers. The DB pool and
// blob store are opened once at process start and injected here; handlers
// never open their own connections.
type Config struct {
	Addr  string // e.g. ":8080"
	Auth  AuthConfig
	DB    *sql.DB
	Blobs *blobstore.Store

	// SpoolDir is where upload spool files are staged. Empty means the
	// system temp dir.
	SpoolDir string
	// MaxUploadBytes caps the request body of POST /files. 0 = no limit.
	MaxUploadBytes int64
}

type Server struct {
	httpServer *http.Server
}

func New(cfg Config) *Server {
	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           cfg.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &Server{httpServer: s}
}

// Routes builds the full handler chain. Exposed separately so tests can
// drive the router without a listening socket.
func (cfg Config) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	// Reflect the request origin; the portal frontend is served from a
	// separate host and sends the session cookie cross-origin.
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  func(r *http.Request, origin string) bool { return true },
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Set-Cookie"},
		AllowCredentials: true,
	}))

	r.Get("/health", cfg.healthHandler)
	r.Get("/ready", cfg.readyHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", cfg.registerHandler)
		r.Post("/login", cfg.loginHandler)
		r.Post("/logout", cfg.logoutHandler)
		r.Get("/auth/status", cfg.authStatusHandler)
		r.With(cfg.Auth.requireAuth).Put("/profile", cfg.updateProfileHandler)
	})

	r.Group(func(r chi.Router) {
		r.Use(cfg.Auth.requireAuth)
		r.Post("/files", cfg.uploadFilesHandler)
		r.Get("/files", cfg.listFilesHandler)
		r.Get("/files/{id}", cfg.fetchFileHandler)
		r.Delete("/files/{id}", cfg.deleteFileHandler)
	})

	return r
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// writeJSON writes v with the given status. Encoding failures are ignored;
// the status line is already on the wire.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the machine-readable error shape shared by all handlers.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"error": detail})
}
