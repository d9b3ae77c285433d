// Package server wires handlers, middleware and routes together and runs
// the HTTP server.
//
// It is the composition root: every repository, service and handler is
// built in New, and nothing below this package knows how its dependencies
// were constructed.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/sakif/devxboard/internal/auth"
	"github.com/sakif/devxboard/internal/handler"
	"github.com/sakif/devxboard/internal/middleware"
	"github.com/sakif/devxboard/internal/repository/sqlstore"
	"github.com/sakif/devxboard/internal/runner"
	"github.com/sakif/devxboard/internal/service"
	"github.com/sakif/devxboard/internal/unfurl"
)

type Config struct {
	Port               int
	CORSOrigins        []string
	AuthRedirectURL    string
	SecureCookies      bool
	AssistPerMinute    int
	WriteRatePerMinute int
}

// Deps are the server's collaborators. DB and Tokens are required; a nil
// optional integration makes its routes answer 503.
type Deps struct {
	DB       *sqlstore.DB
	Tokens   *auth.TokenService
	Unfurler service.Unfurler

	Identity  auth.IdentityProvider
	Completer service.Completer
	Covers    handler.CoverPresigner
	Runner    runner.Runner
}

type Server struct {
	router http.Handler
	config Config
	logger *slog.Logger
	db     *sqlstore.DB
}

func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if deps.DB == nil || deps.Tokens == nil {
		return nil, fmt.Errorf("server: database and token service are required")
	}
	if deps.Unfurler == nil {
		deps.Unfurler = unfurl.New(0)
	}
	s := &Server{config: cfg, logger: logger, db: deps.DB}
	s.router = s.routes(deps)
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// routes builds the router.
//
//	GET    /healthz
//	GET    /auth/github/login | /auth/github/callback,  POST /auth/logout
//	GET    /api/feed
//	GET    /api/templates/{id} | /api/templates/{id}/comments
//	POST   /api/templates/{id}/blocks/{index}/run
//	GET    /api/profiles | /api/profiles/check | /api/profiles/{username}
//	...    everything else under /api requires a session
func (s *Server) routes(deps Deps) http.Handler {
	db := deps.DB
	logger := s.logger

	profileService := service.NewProfileService(db, logger)
	sharingService := service.NewSharingService(db, db, db, logger)
	templateService := service.NewTemplateService(db, sharingService, logger)
	engagementService := service.NewEngagementService(db, db, db, sharingService, logger)
	feedService := service.NewFeedService(db, db, db, logger)
	cardService := service.NewCardService(db, deps.Unfurler, logger)
	authService := service.NewAuthService(db, deps.Tokens, logger)

	profiles := handler.NewProfileHandler(profileService, logger)
	templates := handler.NewTemplateHandler(templateService, sharingService, logger)
	engagement := handler.NewEngagementHandler(engagementService, logger)
	feed := handler.NewFeedHandler(feedService, logger)
	cards := handler.NewCardHandler(cardService, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	r.Get("/healthz", handler.Health(db, logger))

	r.Route("/auth", func(r chi.Router) {
		h := handler.NewAuthHandler(deps.Identity, authService, deps.Tokens,
			s.config.AuthRedirectURL, s.config.SecureCookies, logger)
		if deps.Identity != nil {
			r.Get("/github/login", h.Login)
			r.Get("/github/callback", h.Callback)
		} else {
			r.Get("/github/login", handler.Unavailable("GitHub sign-in"))
			r.Get("/github/callback", handler.Unavailable("GitHub sign-in"))
		}
		r.Post("/logout", h.Logout)
	})

	writes := middleware.NewRateLimiter(s.config.WriteRatePerMinute, 0)
	assistLimit := middleware.NewRateLimiter(s.config.AssistPerMinute, 0)

	runBlock := handler.Unavailable("code runner")
	if deps.Runner != nil {
		runService := service.NewRunnerService(db, sharingService, deps.Runner, logger)
		runBlock = handler.NewRunnerHandler(runService, logger).RunBlock
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.OptionalAuth(deps.Tokens))

		// Anonymous viewers allowed; visibility is checked per request.
		r.Get("/feed", feed.List)
		r.Get("/templates/{id}", templates.Get)
		r.Get("/templates/{id}/comments", engagement.ListComments)
		r.With(writes.Middleware).Post("/templates/{id}/blocks/{index}/run", runBlock)
		r.Get("/profiles", profiles.Search)
		r.Get("/profiles/check", profiles.CheckUsername)
		r.Get("/profiles/{username}", profiles.ByUsername)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(deps.Tokens))

			r.Get("/me", profiles.Me)
			r.Get("/templates/mine", templates.Mine)
			r.Get("/templates/shared-by-me", templates.SharedByMe)
			r.Get("/templates/shared-with-me", templates.SharedWithMe)
			r.Get("/cards", cards.List)

			r.Group(func(r chi.Router) {
				r.Use(writes.Middleware)

				r.Put("/me", profiles.UpdateMe)

				r.Post("/templates", templates.Save)
				r.Put("/templates/{id}", templates.Update)
				r.Delete("/templates/{id}", templates.Delete)
				r.Put("/templates/{id}/shares", templates.ReplaceShares)

				r.Post("/templates/{id}/like", engagement.ToggleLike)
				r.Post("/templates/{id}/save", engagement.ToggleSave)
				r.Post("/templates/{id}/comments", engagement.AddComment)
				r.Delete("/comments/{id}", engagement.DeleteComment)

				r.Post("/cards", cards.Create)
				r.Put("/cards/{id}", cards.Update)
				r.Delete("/cards/{id}", cards.Delete)
				r.Post("/cards/unfurl", cards.Unfurl)

				if deps.Covers != nil {
					r.Post("/uploads/cover", handler.NewUploadHandler(deps.Covers, logger).Cover)
				} else {
					r.Post("/uploads/cover", handler.Unavailable("cover uploads"))
				}
			})

			r.Group(func(r chi.Router) {
				r.Use(assistLimit.Middleware)
				if deps.Completer != nil {
					a := handler.NewAssistHandler(service.NewAssistService(deps.Completer, db, logger), logger)
					r.Post("/assist/text", a.CorrectText)
					r.Post("/assist/code", a.CorrectCode)
					r.Post("/templates/{id}/blocks/{index}/correct", a.CorrectBlock)
				} else {
					unavailable := handler.Unavailable("the assistant")
					r.Post("/assist/text", unavailable)
					r.Post("/assist/code", unavailable)
					r.Post("/templates/{id}/blocks/{index}/correct", unavailable)
				}
			})
		})
	})

	return r
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer func() {
		if err := s.db.Close(); err != nil {
			s.logger.Error("closing database", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Assist calls and code runs can take a while.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", string(s.db.Dialect())),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
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
