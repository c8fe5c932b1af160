package server

import (
	"context"
	"io/fs"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lingoreel/lingoreel/internal/admin"
	"github.com/lingoreel/lingoreel/internal/auth"
	"github.com/lingoreel/lingoreel/internal/collection"
	"github.com/lingoreel/lingoreel/internal/database"
	"github.com/lingoreel/lingoreel/internal/docs"
	"github.com/lingoreel/lingoreel/internal/httputil"
	"github.com/lingoreel/lingoreel/internal/notify"
	"github.com/lingoreel/lingoreel/internal/playback"
	"github.com/lingoreel/lingoreel/internal/ratelimit"
	"github.com/lingoreel/lingoreel/internal/validate"
	"github.com/lingoreel/lingoreel/internal/video"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	DB                    database.DBTX
	Pinger                Pinger
	Storage               video.ObjectStorage
	Stream                video.StreamClient
	Geo                   video.GeoResolver
	Notifier              notify.Notifier
	WebhookLog            admin.DeliveryLog
	ProgressSaver         *playback.Debouncer
	WebFS                 fs.FS
	JWTSecret             string
	BaseURL               string
	AdminEmails           []string
	MaxSRTBytes           int64
	S3PublicEndpoint      string
	AllowedFrameAncestors string
	EnableDocs            bool
}

type Server struct {
	router            chi.Router
	pinger            Pinger
	authHandler       *auth.Handler
	videoHandler      *video.Handler
	adminHandler      *admin.Handler
	collectionHandler *collection.Handler
	webFS             fs.FS
	maxSRTBytes       int64
	enableDocs        bool
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(slogMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders(SecurityConfig{
		BaseURL:               cfg.BaseURL,
		StorageEndpoint:       cfg.S3PublicEndpoint,
		AllowedFrameAncestors: cfg.AllowedFrameAncestors,
	}))

	maxSRTBytes := cfg.MaxSRTBytes
	if maxSRTBytes <= 0 {
		maxSRTBytes = video.DefaultMaxSRTBytes
	}
	s := &Server{
		router:      r,
		pinger:      cfg.Pinger,
		webFS:       cfg.WebFS,
		maxSRTBytes: maxSRTBytes,
		enableDocs:  cfg.EnableDocs,
	}

	if cfg.DB != nil {
		jwtSecret := cfg.JWTSecret
		if jwtSecret == "" {
			log.Fatal("JWT_SECRET is required; set the environment variable")
		}

		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:8080"
		}

		secureCookies := strings.HasPrefix(baseURL, "https://")
		s.authHandler = auth.NewHandler(cfg.DB, jwtSecret, secureCookies)
		s.authHandler.SetAdminEmails(cfg.AdminEmails)

		s.videoHandler = video.NewHandler(cfg.DB, cfg.Storage, cfg.Stream, maxSRTBytes)
		if cfg.Geo != nil {
			s.videoHandler.SetGeoResolver(cfg.Geo)
		}
		if cfg.ProgressSaver != nil {
			s.videoHandler.SetProgressSaver(cfg.ProgressSaver)
		}

		s.adminHandler = admin.NewHandler(cfg.DB)
		s.adminHandler.SetProfileDecorator(s.authHandler)
		if cfg.WebhookLog != nil {
			s.adminHandler.SetDeliveryLog(cfg.WebhookLog)
		}

		if cfg.Notifier != nil {
			s.authHandler.SetNotifier(cfg.Notifier)
			s.videoHandler.SetNotifier(cfg.Notifier)
			s.adminHandler.SetNotifier(cfg.Notifier)
		}

		s.collectionHandler = collection.NewHandler(cfg.DB)
	}

	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/limits", s.handleLimits)

	if s.enableDocs {
		s.router.Get("/api/docs", docs.HandleDocs)
		s.router.Get("/api/docs/openapi.yaml", docs.HandleSpec)
	}

	if s.authHandler != nil {
		authLimiter := ratelimit.NewLimiter(0.5, 5)
		s.router.Route("/api/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(authLimiter.Middleware)
				r.Post("/register", s.authHandler.Register)
				r.Post("/login", s.authHandler.Login)
				r.Post("/refresh", s.authHandler.Refresh)
				r.Post("/logout", s.authHandler.Logout)
			})
			r.With(s.authHandler.Middleware).Get("/me", s.authHandler.Me)
		})
	}

	if s.videoHandler != nil {
		// Learners write progress every few seconds while watching, so writes
		// are limited per user rather than per address.
		writeLimiter := ratelimit.NewLimiter(2, 20)
		byUser := writeLimiter.MiddlewareBy(func(r *http.Request) string {
			return auth.UserIDFromContext(r.Context())
		})

		s.router.Group(func(r chi.Router) {
			r.Use(s.authHandler.Middleware)
			r.Use(s.authHandler.RequireApproved)

			r.Route("/api/videos", func(r chi.Router) {
				r.Get("/", s.videoHandler.List)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.videoHandler.Get)
					r.Get("/subtitles", s.videoHandler.Subtitles)
					r.Get("/subtitles/export", s.videoHandler.Export)
					r.Get("/words", s.videoHandler.Words)
					r.Get("/progress", s.videoHandler.GetProgress)
					r.Group(func(r chi.Router) {
						r.Use(byUser)
						r.Put("/progress", s.videoHandler.SaveProgress)
						r.Post("/progress/complete", s.videoHandler.Complete)
						r.Delete("/progress", s.videoHandler.ResetProgress)
					})
				})
			})

			r.Get("/api/progress", s.videoHandler.Recent)

			r.Route("/api/collections", func(r chi.Router) {
				r.Get("/", s.collectionHandler.List)
				r.Get("/{word}", s.collectionHandler.Check)
				r.With(byUser).Post("/", s.collectionHandler.Add)
				r.With(byUser).Delete("/", s.collectionHandler.Remove)
			})
		})

		s.router.Route("/api/admin", func(r chi.Router) {
			r.Use(s.authHandler.Middleware)
			r.Use(s.authHandler.RequireAdmin)

			r.Get("/users", s.adminHandler.ListUsers)
			r.Post("/users/{id}/approve", s.adminHandler.Approve)
			r.Post("/users/{id}/reject", s.adminHandler.Reject)
			r.Post("/users/{id}/role", s.adminHandler.UpdateRole)
			r.Get("/stats", s.adminHandler.Stats)
			r.Get("/webhooks/deliveries", s.adminHandler.WebhookDeliveries)

			r.Route("/videos", func(r chi.Router) {
				r.Get("/", s.videoHandler.AdminList)
				r.Post("/", s.videoHandler.Create)
				r.Route("/{id}", func(r chi.Router) {
					r.Put("/", s.videoHandler.Update)
					r.Delete("/", s.videoHandler.Delete)
					r.Post("/publish", s.videoHandler.Publish)
					r.Post("/unpublish", s.videoHandler.Unpublish)
					r.Post("/toggle", s.videoHandler.Toggle)
					r.Post("/sync", s.videoHandler.Sync)

					r.Post("/subtitles", s.videoHandler.Upload)
					r.Post("/subtitles/preview", s.videoHandler.Preview)
					r.Delete("/subtitles", s.videoHandler.DeleteAllSubtitles)
					r.Get("/subtitles/stats", s.videoHandler.SubtitleStats)
					r.Get("/subtitles/sources", s.videoHandler.SubtitleSources)

					r.Post("/words", s.videoHandler.CreateWord)
				})
			})

			r.Patch("/subtitles/{subtitleId}", s.videoHandler.UpdateSubtitle)
			r.Delete("/subtitles/{subtitleId}", s.videoHandler.DeleteSubtitle)
			r.Delete("/words/{wordId}", s.videoHandler.DeleteWord)
		})
	}

	if s.webFS != nil {
		spa := newSPAFileServer(s.webFS)
		s.router.NotFound(spa.ServeHTTP)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"database unreachable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

type limitsResponse struct {
	Fields       map[string]int `json:"fields"`
	MaxSRTBytes  int64          `json:"maxSrtBytes"`
	Difficulties []string       `json:"difficulties"`
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, limitsResponse{
		Fields:       validate.FieldLimits(),
		MaxSRTBytes:  s.maxSRTBytes,
		Difficulties: validate.Difficulties,
	})
}
