package httpapi

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	"awake/backend/internal/auth"
	"awake/backend/internal/chat"
	"awake/backend/internal/config"
	"awake/backend/internal/openrouter"
	"awake/backend/internal/ratelimit"
	"awake/backend/internal/serper"
	"awake/backend/internal/store"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(cfg config.Config, database *sql.DB) http.Handler {
	conversationStore := store.NewSQLStore(database)
	limiter := ratelimit.NewLimiter(cfg.RateLimitWindow, cfg.RateLimitMax)
	completions := openrouter.NewClient(cfg, nil)
	search := serper.NewClient(cfg, nil)
	chatService := chat.NewService(conversationStore, limiter, completions, search, cfg.MaxMessageChars)
	verifier := auth.NewVerifier(cfg)

	files, err := newObjectStore(cfg)
	if err != nil {
		// Uploads degrade to 503; everything else keeps working.
		log.Printf("upload storage unavailable: err=%v", err)
	}

	h := NewHandler(cfg, database, conversationStore, chatService, verifier, completions, files)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Test-User"},
		ExposedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", h.Health)

		api.Group(func(p chi.Router) {
			p.Use(h.RequireIdentity)
			p.Get("/conversations", h.ListConversations)
			p.Get("/conversations/{conversationID}/messages", h.ListConversationMessages)
			p.Post("/chat", h.Chat)
			p.Post("/upload", h.Upload)
			p.Get("/models", h.ListModels)
		})
	})

	if local, ok := files.(*localObjectStore); ok {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(local.rootDir))))
	}

	return r
}

func newObjectStore(cfg config.Config) (objectStore, error) {
	if cfg.GCSBucket != "" {
		gcs, err := newGCSObjectStore(context.Background(), cfg.GCSBucket)
		if err != nil {
			return nil, err
		}
		return gcs, nil
	}

	local, err := newLocalObjectStore(cfg.LocalUploadDir)
	if err != nil {
		return nil, err
	}
	return local, nil
}
