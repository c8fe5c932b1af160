package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/lingoreel/lingoreel/internal/admin"
	"github.com/lingoreel/lingoreel/internal/database"
	"github.com/lingoreel/lingoreel/internal/email"
	"github.com/lingoreel/lingoreel/internal/geoip"
	"github.com/lingoreel/lingoreel/internal/notify"
	"github.com/lingoreel/lingoreel/internal/playback"
	"github.com/lingoreel/lingoreel/internal/server"
	slackpkg "github.com/lingoreel/lingoreel/internal/slack"
	"github.com/lingoreel/lingoreel/internal/storage"
	"github.com/lingoreel/lingoreel/internal/stream"
	"github.com/lingoreel/lingoreel/internal/video"
	webhookpkg "github.com/lingoreel/lingoreel/internal/webhook"
)

func main() {
	port := getEnv("PORT", "8080")

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, databaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(databaseURL); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}
	log.Println("database migrations applied")

	// Object storage only archives uploaded SRT files, so the service runs
	// without it.
	var objectStore video.ObjectStorage
	if endpoint := os.Getenv("S3_ENDPOINT"); endpoint != "" {
		store, err := storage.New(ctx, storage.Config{
			Endpoint:       endpoint,
			PublicEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
			Bucket:         getEnv("S3_BUCKET", "lingoreel"),
			AccessKey:      os.Getenv("S3_ACCESS_KEY"),
			SecretKey:      os.Getenv("S3_SECRET_KEY"),
			Region:         getEnv("S3_REGION", "auto"),
		})
		if err != nil {
			log.Fatalf("storage initialization failed: %v", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			log.Fatalf("storage bucket check failed: %v", err)
		}
		objectStore = store
		log.Println("storage bucket ready")
	} else {
		log.Println("S3_ENDPOINT not set, subtitle archiving disabled")
	}

	streamClient := stream.New(stream.Config{
		AccountID:    os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
		Token:        os.Getenv("CLOUDFLARE_STREAM_TOKEN"),
		CustomerCode: os.Getenv("CLOUDFLARE_CUSTOMER_CODE"),
	})
	if !streamClient.Configured() {
		log.Println("Cloudflare Stream credentials not set, uploads and sync disabled")
	}

	geo, err := geoip.New(os.Getenv("GEOIP_DB_PATH"))
	if err != nil {
		log.Fatalf("geoip initialization failed: %v", err)
	}
	defer func() { _ = geo.Close() }()

	baseURL := getEnv("BASE_URL", "http://localhost:8080")
	adminEmails := parseList(os.Getenv("ADMIN_EMAILS"))

	emailClient := email.New(email.Config{
		BaseURL:                os.Getenv("LISTMONK_URL"),
		Username:               getEnv("LISTMONK_USER", "admin"),
		Password:               os.Getenv("LISTMONK_PASSWORD"),
		RegistrationTemplateID: int(getEnvInt64("LISTMONK_REGISTRATION_TEMPLATE_ID", 0)),
		ApprovalTemplateID:     int(getEnvInt64("LISTMONK_APPROVAL_TEMPLATE_ID", 0)),
		AdminEmails:            adminEmails,
		AppURL:                 baseURL,
	})
	webhookClient := webhookpkg.New(db.Pool, os.Getenv("WEBHOOK_URL"), os.Getenv("WEBHOOK_SECRET"))
	notifier := buildNotifier(emailClient, os.Getenv("SLACK_WEBHOOK_URL"), baseURL, webhookClient)

	var webhookLog admin.DeliveryLog
	if webhookClient.Configured() {
		webhookLog = webhookClient
	}

	var webFS fs.FS
	if dir := os.Getenv("WEB_DIR"); dir != "" {
		webFS = os.DirFS(dir)
		log.Printf("serving frontend from %s", dir)
	} else {
		log.Println("WEB_DIR not set, SPA serving disabled")
	}

	saver := playback.NewDebouncer(getEnvDuration("PROGRESS_SAVE_DELAY", playback.DefaultSaveDelay))

	srv := server.New(server.Config{
		DB:                    db.Pool,
		Pinger:                db,
		Storage:               objectStore,
		Stream:                streamClient,
		Geo:                   geo,
		Notifier:              notifier,
		WebhookLog:            webhookLog,
		ProgressSaver:         saver,
		WebFS:                 webFS,
		JWTSecret:             jwtSecret,
		BaseURL:               baseURL,
		AdminEmails:           adminEmails,
		MaxSRTBytes:           getEnvInt64("MAX_SRT_BYTES", video.DefaultMaxSRTBytes),
		S3PublicEndpoint:      os.Getenv("S3_PUBLIC_ENDPOINT"),
		AllowedFrameAncestors: os.Getenv("ALLOWED_FRAME_ANCESTORS"),
		EnableDocs:            getEnvBool("API_DOCS_ENABLED", false),
	})

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	video.StartCleanupLoop(cleanupCtx, db.Pool, objectStore, getEnvDuration("CLEANUP_INTERVAL", 10*time.Minute))

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("lingoreel listening on :%s", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-shutdownCh
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown failed: %v", err)
	}

	// Positions still waiting out the debounce window are written before the
	// pool closes.
	if n := saver.Pending(); n > 0 {
		slog.Info("progress: flushing pending saves", "count", n)
	}
	saver.Flush()
	log.Println("shutdown complete")
}

// buildNotifier fans admin and learner notifications out to every configured
// channel. Email is always wired; it logs instead of sending when Listmonk is
// not configured.
func buildNotifier(emailClient *email.Client, slackURL, baseURL string, webhookClient *webhookpkg.Client) *notify.Multi {
	channels := []notify.Notifier{emailClient}
	if slackURL != "" {
		channels = append(channels, slackpkg.New(slackURL, baseURL))
	}
	if webhookClient != nil && webhookClient.Configured() {
		channels = append(channels, webhookClient)
	}
	return notify.NewMulti(channels...)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// parseList splits a comma-separated variable, dropping blanks.
func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
