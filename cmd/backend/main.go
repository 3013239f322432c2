package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"applicant-portal/internal/blobstore"
	"applicant-portal/internal/db"
	"applicant-portal/internal/server"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	addr := getenvDefault("PORTAL_ADDR", ":8080")

	auth := server.AuthConfig{
		Secret:     os.Getenv("PORTAL_SESSION_SECRET"),
		TTL:        getenvDuration("PORTAL_SESSION_TTL", 24*time.Hour),
		CookieName: "portal_session",
		Secure:     os.Getenv("PORTAL_ENV") == "production",
	}

	// Safety: refuse to start without a signing secret.
	if auth.Secret == "" {
		log.Printf("service=backend msg=%q", "missing PORTAL_SESSION_SECRET")
		os.Exit(1)
	}

	dbConn, err := server.OpenDB(os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Printf("service=backend msg=%q err=%v", "db_connect_failed", err)
		os.Exit(1)
	}
	defer func() { _ = dbConn.Close() }()

	log.Printf("service=backend msg=%q", "running_migrations")
	if err := db.RunMigrations(dbConn); err != nil {
		log.Printf("service=backend msg=%q err=%v", "migration_failed", err)
		os.Exit(1)
	}
	log.Printf("service=backend msg=%q", "migrations_complete")

	// The bucket client is a process-wide singleton: opened once here,
	// shared by every request, never re-acquired per request.
	objects, err := blobstore.NewMinioObjects(context.Background(), blobstore.MinioConfig{
		Endpoint:  os.Getenv("PORTAL_S3_ENDPOINT"),
		AccessKey: os.Getenv("PORTAL_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("PORTAL_S3_SECRET_KEY"),
		Bucket:    os.Getenv("PORTAL_BUCKET"),
	})
	if err != nil {
		log.Printf("service=backend msg=%q err=%v", "object_store_connect_failed", err)
		os.Exit(1)
	}

	store := blobstore.New(objects, blobstore.NewPGRecords(dbConn))

	srv := server.New(server.Config{
		Addr:           addr,
		Auth:           auth,
		DB:             dbConn,
		Blobs:          store,
		MaxUploadBytes: getenvInt64("PORTAL_MAX_UPLOAD_BYTES", 0),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Printf("service=backend msg=%q addr=%s", "starting", addr)
		errCh <- srv.Start()
	}()

	// Graceful shutdown on SIGINT (Ctrl+C) or SIGTERM (container stop).
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("service=backend msg=%q signal=%s", "shutting_down", sig.String())
		// Give in-flight requests 5 seconds to finish.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("service=backend msg=%q err=%v", "shutdown_error", err)
			os.Exit(1)
		}
		log.Printf("service=backend msg=%q", "shutdown_complete")
	case err := <-errCh:
		if err != nil {
			log.Printf("service=backend msg=%q err=%v", "server_error", err)
			os.Exit(1)
		}
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
