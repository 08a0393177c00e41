// Package server is the composition root: it builds the session, the
// services and the router, and runs them together.
//
// DEPENDENCY FLOW:
//
//	config ─► sqlite.DB ─────────────► SketchService, AuthService ─► handlers
//	       └► session.Session ─► executor.Service ─► RunService ─┘
//	                         └► hub.Hub (websocket)
//
// WHY AN ERRGROUP?
// Two things must run for the IDE to work: the UI loop (session.Run) and
// the HTTP server. If either dies the other is useless, so both run under
// one errgroup and the first failure takes the whole server down.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/livecanvas/internal/auth"
	"github.com/sakif/livecanvas/internal/canvas"
	"github.com/sakif/livecanvas/internal/config"
	"github.com/sakif/livecanvas/internal/console"
	"github.com/sakif/livecanvas/internal/executor"
	"github.com/sakif/livecanvas/internal/handler"
	"github.com/sakif/livecanvas/internal/hub"
	"github.com/sakif/livecanvas/internal/middleware"
	sqliteRepo "github.com/sakif/livecanvas/internal/repository/sqlite"
	"github.com/sakif/livecanvas/internal/service"
	"github.com/sakif/livecanvas/internal/session"
	"github.com/sakif/livecanvas/internal/sound"
	"github.com/sakif/livecanvas/web"
)

type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	router  *chi.Mux
	db      *sqliteRepo.DB
	session *session.Session
	runs    *service.RunService
	hub     *hub.Hub
	limiter *middleware.RateLimiter
	tokens  *auth.TokenService // nil when auth is off
}

// New wires everything. Nothing runs until Run or Start.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if err := ensureDir(cfg.Server.DBPath); err != nil {
		return nil, err
	}
	db, err := sqliteRepo.New(cfg.Server.DBPath)
	if err != nil {
		return nil, fmt.Errorf("server: opening database: %w", err)
	}

	sess := session.New(session.Options{
		Canvas:     canvas.Size{Width: cfg.Engine.CanvasWidth, Height: cfg.Engine.CanvasHeight},
		Input:      cfg.Engine.Input(),
		Scrollback: cfg.Engine.ConsoleScrollback,
	}, logger)
	exec := executor.NewService(cfg.Engine.Executor(), sess.Diagnostics(), logger)

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		router:  chi.NewRouter(),
		db:      db,
		session: sess,
		runs:    service.NewRunService(exec, sess, db, logger),
		hub:     hub.New(sess, logger, nil),
		limiter: middleware.NewRateLimiter(cfg.RateLimit.RunsPerSecond, cfg.RateLimit.Burst),
	}
	s.stream()

	if err := s.setupRoutes(exec); err != nil {
		db.Close()
		return nil, fmt.Errorf("server: setting up routes: %w", err)
	}
	return s, nil
}

// stream forwards everything the browser has to see to the hub.
func (s *Server) stream() {
	s.session.OnSceneOp(func(op canvas.Op) { s.hub.Broadcast(hub.TypeScene, op) })
	s.session.OnConsole(func(c console.Chunk) { s.hub.Broadcast(hub.TypeConsole, c) })
	s.session.OnTone(func(t sound.Tone) { s.hub.Broadcast(hub.TypeTone, t) })
	s.runs.Observe(func(st service.RunStatus) { s.hub.Broadcast(hub.TypeRun, st) })
}

// setupRoutes
//
//	GET    /                        playground page
//	GET    /static/*                css, js
//	GET    /healthz                 liveness + database ping
//	GET    /api/ws                  websocket (not gzipped: it hijacks)
//	POST   /api/run                 start a program (rate limited)
//	POST   /api/stop                stop it
//	GET    /api/run                 running program, or idle
//	GET    /api/run/{id}            one run; ?wait=1 blocks until done
//	GET    /api/runs                history
//	POST   /api/check               compile only
//	GET    /api/canvas.svg          the canvas as SVG
//	GET    /api/sketches[/{id}]     saved sketches
//	POST   /api/sketches            create     (auth when enabled)
//	PUT    /api/sketches/{id}       update     (auth when enabled)
//	DELETE /api/sketches/{id}       delete     (auth when enabled)
//	/auth/*, GET /api/me            sign-in, when JWT_SECRET is set
func (s *Server) setupRoutes(exec *executor.Service) error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Recoverer(s.logger))
	s.router.Use(middleware.Logger(s.logger))

	page, err := handler.NewPlaygroundHandler(web.Templates(s.cfg.Server.TemplateDir), handler.PageInfo{
		Title:         "LiveCanvas",
		CanvasWidth:   s.cfg.Engine.CanvasWidth,
		CanvasHeight:  s.cfg.Engine.CanvasHeight,
		AuthEnabled:   s.cfg.Auth.Enabled(),
		GitHubEnabled: s.cfg.Auth.GitHubEnabled(),
	}, s.logger)
	if err != nil {
		return fmt.Errorf("creating playground handler: %w", err)
	}

	runHandler := handler.NewRunHandler(s.runs, exec, s.session, s.logger)
	sketchHandler := handler.NewSketchHandler(service.NewSketchService(s.db, s.logger), s.logger)

	var authHandler *handler.AuthHandler
	if s.cfg.Auth.Enabled() {
		s.tokens, err = auth.NewTokenService(s.cfg.Auth.JWTSecret, s.cfg.Auth.TokenTTL.Std())
		if err != nil {
			return fmt.Errorf("creating token service: %w", err)
		}
		var github *auth.GitHubProvider
		if s.cfg.Auth.GitHubEnabled() {
			github = auth.NewGitHubProvider(s.cfg.Auth.GitHubClientID, s.cfg.Auth.GitHubClientSecret, s.cfg.Auth.GitHubCallbackURL)
		}
		authService := service.NewAuthService(s.db, s.tokens, auth.NewPasswordService(), s.logger)
		secure := strings.HasPrefix(s.cfg.Auth.GitHubCallbackURL, "https://")
		authHandler = handler.NewAuthHandler(authService, github, s.tokens.TTL(), secure, s.logger)
	} else {
		s.logger.Warn("JWT_SECRET not set, sign-in is disabled and sketches are anonymous")
	}

	// The websocket sits outside the gzip group: gzip's writer cannot be
	// hijacked, and websocket frames carry their own compression.
	s.router.Get("/api/ws", s.hub.ServeHTTP)

	s.router.Group(func(r chi.Router) {
		r.Use(gzip)
		if s.tokens != nil {
			r.Use(auth.OptionalAuth(s.tokens))
		}

		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(web.Static(s.cfg.Server.StaticDir))))
		r.Get("/", page.HandlePlayground)
		r.Get("/healthz", s.handleHealth)

		r.Route("/api", func(r chi.Router) {
			r.With(s.limiter.Middleware).Post("/run", runHandler.HandleStart)
			r.Post("/stop", runHandler.HandleStop)
			r.Get("/run", runHandler.HandleActive)
			r.Get("/run/{id}", runHandler.HandleStatus)
			r.Get("/runs", runHandler.HandleHistory)
			r.Post("/check", runHandler.HandleCheck)
			r.Get("/canvas.svg", runHandler.HandleSVG)

			r.Get("/sketches", sketchHandler.HandleList)
			r.Get("/sketches/{id}", sketchHandler.HandleGet)
			r.Group(func(r chi.Router) {
				if s.tokens != nil {
					r.Use(auth.RequireAuth(s.tokens))
				}
				r.Post("/sketches", sketchHandler.HandleCreate)
				r.Put("/sketches/{id}", sketchHandler.HandleUpdate)
				r.Delete("/sketches/{id}", sketchHandler.HandleDelete)
			})

			if authHandler != nil {
				r.With(auth.RequireAuth(s.tokens)).Get("/me", authHandler.HandleMe)
			}
		})

		if authHandler != nil {
			r.Route("/auth", func(r chi.Router) {
				r.Get("/github/login", authHandler.HandleGitHubLogin)
				r.Get("/github/callback", authHandler.HandleGitHubCallback)
				r.With(s.limiter.Middleware).Post("/register", authHandler.HandleRegister)
				r.With(s.limiter.Middleware).Post("/login", authHandler.HandleLogin)
				r.Post("/logout", authHandler.HandleLogout)
			})
		}
	})
	return nil
}

// gzip adapts gzhttp to chi: GzipHandler returns an http.HandlerFunc,
// and chi's Use wants a func returning http.Handler.
func gzip(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok\n"))
}

// Handler is the router, for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Session is the live session, for tests and the CLI.
func (s *Server) Session() *session.Session { return s.session }

// Serve runs the UI loop and serves HTTP on ln until ctx ends, then shuts
// down: stop the running program, disconnect websockets, drain requests,
// close the database.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.db.Close()

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: /api/run/{id}?wait=1 and websockets stay open.
	}

	// The UI loop outlives gctx: a program being stopped during shutdown
	// still posts to it while it unwinds.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.session.Run(loopCtx)
	})
	g.Go(func() error {
		return s.limiter.Run(gctx)
	})
	g.Go(func() error {
		s.logger.Info("server starting",
			slog.String("addr", ln.Addr().String()),
			slog.String("database", s.cfg.Server.DBPath),
		)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: serving: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout.Std())
		defer cancel()

		// The program first: its last output should still reach the
		// websockets before they close.
		if err := s.runs.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("program did not stop in time", slog.String("error", err.Error()))
		}
		s.hub.Close()
		stopLoop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	})
	return g.Wait()
}

// Start listens on the configured port and serves until SIGINT or SIGTERM.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Server.Port))
	if err != nil {
		s.db.Close()
		return fmt.Errorf("server: listening: %w", err)
	}
	return s.Serve(ctx, ln)
}

// ensureDir creates the database's directory. In-memory and URI paths are
// left alone.
func ensureDir(dbPath string) error {
	if dbPath == ":memory:" || strings.HasPrefix(dbPath, "file:") {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("server: creating database directory %s: %w", dir, err)
	}
	return nil
}
