// Package server is the composition root: it opens the stores, builds the
// services and handlers, and maps them onto routes.
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config ─→ sqlite.DB ─→ UserDB / SessionDB / SaveGameDB / BlacklistDB
//	               ↘ redis.Blacklist (TOKEN_BLACKLIST_BACKEND=redis)
//	               ↘ auth.KakaoProvider, auth.TokenService, llm.Client
//	stores + clients ─→ AuthService / SaveGameService / CityService ─→ handlers
//
// Nothing below this package constructs its own dependencies.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/ecocity-backend/internal/auth"
	"github.com/sakif/ecocity-backend/internal/config"
	"github.com/sakif/ecocity-backend/internal/handler"
	"github.com/sakif/ecocity-backend/internal/llm"
	"github.com/sakif/ecocity-backend/internal/middleware"
	"github.com/sakif/ecocity-backend/internal/repository"
	redisRepo "github.com/sakif/ecocity-backend/internal/repository/redis"
	sqliteRepo "github.com/sakif/ecocity-backend/internal/repository/sqlite"
	"github.com/sakif/ecocity-backend/internal/service"
)

// Server owns the router and every resource that must be closed on shutdown.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	db      *sqliteRepo.DB
	closers []io.Closer
}

// New opens the database, wires everything and registers the routes.
// Missing Kakao or OpenAI credentials do not fail startup; those endpoints
// report a configuration error per request instead.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(ctx); err != nil {
		s.close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// AuthDeps builds the AuthService collaborators from cfg and db. The admin
// CLI uses it too, so both entry points authenticate against the same
// stores the same way.
func AuthDeps(ctx context.Context, cfg *config.Config, db *sqliteRepo.DB) (service.AuthDeps, io.Closer, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		return service.AuthDeps{}, nil, err
	}

	blacklist, closer, err := newBlacklist(ctx, cfg, db)
	if err != nil {
		return service.AuthDeps{}, nil, err
	}

	return service.AuthDeps{
		Users:     db.Users(),
		Sessions:  db.Sessions(),
		Blacklist: blacklist,
		Tokens:    tokens,
		Passwords: auth.NewPasswordService(0),
		Provider: auth.NewKakaoProvider(auth.KakaoConfig{
			ClientID:     cfg.KakaoClientID,
			ClientSecret: cfg.KakaoClientSecret,
			RedirectURL:  cfg.KakaoRedirectURL,
			Timeout:      cfg.UpstreamTimeout,
		}),
		SessionTTL: cfg.AuthSessionTTL,
	}, closer, nil
}

// newBlacklist picks the revoked-token store. The returned closer is nil
// for SQLite, whose connection the server closes anyway.
func newBlacklist(ctx context.Context, cfg *config.Config, db *sqliteRepo.DB) (repository.TokenBlacklist, io.Closer, error) {
	switch cfg.BlacklistBackend {
	case config.BlacklistRedis:
		bl, err := redisRepo.New(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis blacklist: %w", err)
		}
		return bl, bl, nil
	default:
		return db.Blacklist(), nil, nil
	}
}

// setupRoutes configures middleware and routes.
//
// ROUTE STRUCTURE (trailing slashes optional everywhere):
//
//	GET  /users/kakao/login      → Kakao authorize URL
//	GET  /users/kakao/callback   → finish Kakao login
//	POST /users/login            → username/password token pair
//	POST /users/token/refresh    → new access token
//	GET  /users/profile          → current user        [bearer]
//	POST /users/logout           → blacklist refresh   [bearer]
//	POST /save-game              → overwrite snapshot
//	GET  /load-game              → read snapshot
//	GET  /check-saved-data       → snapshot exists?
//	POST /name-city              → LLM city name
//	GET  /healthz, GET /metrics
//
// MIDDLEWARE ORDER:
// RequestID and RealIP first so the logger sees both. Logger wraps
// Recoverer, so a recovered panic is still logged as a 500. StripSlashes
// rewrites the routing path before chi matches it.
func (s *Server) setupRoutes(ctx context.Context) error {
	deps, closer, err := AuthDeps(ctx, s.config, s.db)
	if err != nil {
		return err
	}
	if closer != nil {
		s.closers = append(s.closers, closer)
	}

	registry := middleware.NewRegistry()
	httpMetrics := middleware.NewHTTPMetrics(registry)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.StripSlashes)
	s.router.Use(httpMetrics.Middleware)

	authService := service.NewAuthService(deps, s.logger)
	saveService := service.NewSaveGameService(deps.Users, s.db.SaveGames(), s.logger)
	cityService := service.NewCityService(llm.New(llm.Config{
		APIKey:  s.config.OpenAIAPIKey,
		BaseURL: s.config.OpenAIBaseURL,
		Timeout: s.config.UpstreamTimeout,
	}), s.logger)

	authHandler := handler.NewAuthHandler(authService, handler.CookieOptions{
		Secure:     !s.config.Debug,
		AccessTTL:  deps.Tokens.AccessTTL(),
		RefreshTTL: deps.Tokens.RefreshTTL(),
	}, s.logger)
	saveHandler := handler.NewSaveGameHandler(saveService, s.logger)
	cityHandler := handler.NewCityHandler(cityService, s.logger)

	pingers := map[string]handler.Pinger{"sqlite": s.db}
	if p, ok := deps.Blacklist.(handler.Pinger); ok {
		pingers["redis"] = p
	}
	healthHandler := handler.NewHealthHandler(pingers)

	s.router.Get("/healthz", healthHandler.HandleHealth)
	s.router.Handle("/metrics", middleware.MetricsHandler(registry))

	s.router.Route("/users", func(r chi.Router) {
		r.Get("/kakao/login", authHandler.HandleKakaoLogin)
		r.Get("/kakao/callback", authHandler.HandleKakaoCallback)
		r.Post("/login", authHandler.HandleTokenLogin)
		r.Post("/token/refresh", authHandler.HandleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(deps.Tokens))
			r.Get("/profile", authHandler.HandleMe)
			r.Post("/logout", authHandler.HandleLogout)
		})
	})

	s.router.Post("/save-game", saveHandler.HandleSave)
	s.router.Get("/load-game", saveHandler.HandleLoad)
	s.router.Get("/check-saved-data", saveHandler.HandleExists)
	s.router.Post("/name-city", cityHandler.HandleNameCity)

	return nil
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests and
// closes the stores.
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: s.router,
		// Kakao and OpenAI calls may take up to UpstreamTimeout each.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*s.config.UpstreamTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.String("blacklist", s.config.BlacklistBackend),
			slog.Bool("debug", s.config.Debug),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close releases the stores without serving. Start does this itself.
func (s *Server) Close() {
	s.close()
}

func (s *Server) close() {
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.logger.Warn("closing resource", slog.String("error", err.Error()))
		}
	}
	s.closers = nil
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("closing database", slog.String("error", err.Error()))
		}
		s.db = nil
	}
}
