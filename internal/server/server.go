package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/taskhub/apiserver/config"
	"github.com/taskhub/apiserver/internal/auth"
	"github.com/taskhub/apiserver/internal/db"
	"github.com/taskhub/apiserver/internal/handlers"
	"github.com/taskhub/apiserver/internal/mq"
	"github.com/taskhub/apiserver/internal/services"
	"github.com/taskhub/apiserver/internal/storage"
	"github.com/taskhub/apiserver/internal/store"
)

const requestTimeout = 60 * time.Second

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	queue      *mq.MQ
	logger     *slog.Logger
}

// Deps are the collaborators the router is built from. Objects and Events
// are optional.
type Deps struct {
	DB      *sql.DB
	Objects services.ObjectStore
	Events  services.EventPublisher
}

// New opens the database and the optional storage and queue backends, then
// builds the router.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	deps := Deps{DB: dbConn}

	objects, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if objects != nil {
		deps.Objects = objects
		logger.Info("attachments enabled", slog.String("backend", cfg.Storage.Backend), slog.String("bucket", objects.Bucket()))
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("open mq: %w", err)
	}
	if queue != nil {
		deps.Events = queue
		logger.Info("task events enabled", slog.String("backend", cfg.MQ.Backend), slog.String("channel", cfg.MQ.TaskEventsChannel))
	}

	router, err := NewRouter(cfg, logger, deps)
	if err != nil {
		if queue != nil {
			_ = queue.Close()
		}
		_ = dbConn.Close()
		return nil, err
	}

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		db:         dbConn,
		queue:      queue,
		logger:     logger,
	}, nil
}

// NewRouter wires the auth core and services over deps and mounts the API
// under /api.
func NewRouter(cfg config.Config, logger *slog.Logger, deps Deps) (*chi.Mux, error) {
	if cfg.Auth.InsecureSecret() {
		logger.Warn("JWT_SECRET is not set; using the insecure development secret")
	}

	tokens, err := auth.NewTokenCodec(auth.TokenConfig{
		Secret:     cfg.Auth.JWTSecret,
		AccessTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTTL: cfg.Auth.RefreshTokenTTL,
	})
	if err != nil {
		return nil, err
	}

	userService := services.NewUserService(store.NewUserRepository(deps.DB))

	taskOpts := []services.TaskOption{services.WithTaskLogger(logger)}
	if deps.Objects != nil {
		taskOpts = append(taskOpts, services.WithObjectStore(deps.Objects))
	}
	if deps.Events != nil {
		taskOpts = append(taskOpts, services.WithEventPublisher(deps.Events, cfg.MQ.TaskEventsChannel))
	}
	taskService := services.NewTaskService(store.NewTaskRepository(deps.DB), taskOpts...)

	authenticator, err := auth.NewAuthenticator(userService, auth.NewPasswordHasher(cfg.Auth.BcryptCost), tokens)
	if err != nil {
		return nil, err
	}
	authMiddleware := handlers.RequireAuth(auth.NewAuthorizer(userService, tokens))

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		requestLogger(logger),
		middleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Content-Disposition", "ETag"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		middleware.Timeout(requestTimeout),
	)
	router.Get("/", handlers.Banner)
	router.Get("/healthz", handlers.Healthz(deps.DB))
	router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			handlers.AuthRouter(r, authenticator)
		})
		r.Route("/users", func(r chi.Router) {
			handlers.UserRouter(r, authenticator, authMiddleware)
		})
		r.Route("/tasks", func(r chi.Router) {
			handlers.TaskRouter(r, taskService, authMiddleware)
		})
	})

	return router, nil
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the queue and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.queue != nil {
		if qerr := s.queue.Close(); qerr != nil {
			s.logger.Warn("close mq", slog.Any("error", qerr))
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
