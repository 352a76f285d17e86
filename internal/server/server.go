// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "wiring" layer. It decides:
// - which credential store backs the service (SQLite or PostgreSQL)
// - which URL patterns map to which handler functions
// - which middleware guards which routes
// - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → store (sqlite.DB | postgres.DB)
//	              → auth.Tokens, auth.PasswordService, mail.Notifier
//	              → service.AccountService
//	              → handler.AccountHandler, handler.GitHubHandler, handler.HealthHandler
//
// All dependencies are wired here and nowhere else.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/account-service/internal/auth"
	"github.com/sakif/account-service/internal/config"
	"github.com/sakif/account-service/internal/handler"
	"github.com/sakif/account-service/internal/mail"
	"github.com/sakif/account-service/internal/middleware"
	"github.com/sakif/account-service/internal/model"
	"github.com/sakif/account-service/internal/repository"
	postgresRepo "github.com/sakif/account-service/internal/repository/postgres"
	sqliteRepo "github.com/sakif/account-service/internal/repository/sqlite"
	"github.com/sakif/account-service/internal/service"
)

// Store is a credential store the server owns and closes on shutdown.
type Store interface {
	repository.UserRepository
	Close() error
}

// Deps are the collaborators the router needs. Tests build them directly.
type Deps struct {
	Accounts *service.AccountService
	Tokens   *auth.Tokens
	Store    handler.Pinger
	GitHub   handler.GitHubOAuth // nil disables GitHub sign-in
	Cookies  handler.CookieConfig
	// ClientURL is where GitHub sign-in redirects afterwards.
	ClientURL string
	Logger    *slog.Logger
}

// Server represents the HTTP server and all its dependencies.
//
// The server owns the store connection and closes it after the HTTP server
// has drained.
type Server struct {
	router http.Handler
	config *config.Config
	logger *slog.Logger
	store  Store
}

// New opens the store and wires the dependency graph. notifier may be nil,
// in which case links are written to the log.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, notifier mail.Notifier) (*Server, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	tokens, err := auth.NewTokens(auth.TokenConfig{
		ActivationSecret: cfg.ActivationSecret,
		AccessSecret:     cfg.AccessSecret,
		RefreshSecret:    cfg.RefreshSecret,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating token services: %w", err)
	}

	if notifier == nil {
		notifier = mail.NewLogNotifier(logger)
	}

	accounts := service.NewAccountService(
		service.Config{ClientURL: cfg.ClientURL},
		store,
		tokens,
		auth.NewPasswordService(cfg.BcryptCost),
		notifier,
		logger,
	)

	deps := Deps{
		Accounts:  accounts,
		Tokens:    tokens,
		Store:     store,
		Cookies:   handler.CookieConfig{Secure: cfg.CookieSecure, MaxAge: tokens.Refresh.TTL()},
		ClientURL: cfg.ClientURL,
		Logger:    logger,
	}
	if cfg.GitHubEnabled() {
		deps.GitHub = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	} else {
		logger.Info("GitHub sign-in disabled: GITHUB_CLIENT_ID/GITHUB_CLIENT_SECRET not set")
	}

	return &Server{
		router: NewRouter(deps),
		config: cfg,
		logger: logger,
		store:  store,
	}, nil
}

// OpenStore opens the credential store selected by cfg.DBDriver and brings
// its schema up to date.
func OpenStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgresRepo.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "sqlite", "":
		if cfg.DBPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}

// NewRouter builds the route table.
//
// ROUTE STRUCTURE:
//
//	POST   /user/register            → register
//	POST   /user/activation          → activate email
//	POST   /user/login               → login, sets refresh cookie
//	POST   /user/refresh_token       → new access token from cookie
//	POST   /user/forgot              → mail reset link
//	GET    /user/logout              → clear refresh cookie
//	POST   /user/reset               → [auth] set new password
//	GET    /user/infor               → [auth] own profile
//	PATCH  /user/update              → [auth] own username/avatar
//	GET    /user/all_infor           → [auth+admin] all users
//	PATCH  /user/update_role/{id}    → [auth+admin] set role
//	DELETE /user/delete/{id}         → [auth+admin] delete user
//	GET    /auth/github/login        → GitHub sign-in (when configured)
//	GET    /auth/github/callback
//	GET    /healthz                  → store ping
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs before Logger so every log line carries the ID. Recoverer
// sits inside Logger so a recovered panic is logged as a 500.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimiddleware.Recoverer)

	accounts := handler.NewAccountHandler(d.Accounts, d.Cookies, d.Logger)
	requireAuth := auth.RequireAuth(d.Tokens.Access)
	requireAdmin := auth.RequireRole(d.Accounts, model.RoleAdmin)

	r.Get("/healthz", handler.NewHealthHandler(d.Store, d.Logger).HandleHealth)

	r.Route("/user", func(r chi.Router) {
		r.Post("/register", accounts.HandleRegister)
		r.Post("/activation", accounts.HandleActivate)
		r.Post("/login", accounts.HandleLogin)
		r.Post("/refresh_token", accounts.HandleRefreshToken)
		r.Post("/forgot", accounts.HandleForgot)
		r.Get("/logout", accounts.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/reset", accounts.HandleReset)
			r.Get("/infor", accounts.HandleInfo)
			r.Patch("/update", accounts.HandleUpdate)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Get("/all_infor", accounts.HandleListUsers)
				r.Patch("/update_role/{id}", accounts.HandleUpdateRole)
				r.Delete("/delete/{id}", accounts.HandleDelete)
			})
		})
	})

	if d.GitHub != nil {
		gh := handler.NewGitHubHandler(d.GitHub, d.Accounts, d.Cookies, d.ClientURL, d.Logger)
		r.Get("/auth/github/login", gh.HandleLogin)
		r.Get("/auth/github/callback", gh.HandleCallback)
	}

	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down:
//  1. stop accepting new connections
//  2. wait for in-flight requests (ShutdownTimeout)
//  3. close the store
func (s *Server) Start() error {
	defer s.store.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("driver", s.config.DBDriver),
			slog.String("client_url", s.config.ClientURL),
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

		ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
