// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-passkey/internal/config"
	"github.com/jeremyhahn/go-passkey/pkg/health"
	"github.com/jeremyhahn/go-passkey/pkg/logging"
	"github.com/jeremyhahn/go-passkey/pkg/metrics"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	passkeyhttp "github.com/jeremyhahn/go-passkey/pkg/passkey/http"
	"github.com/jeremyhahn/go-passkey/pkg/passkey/sqlite"
	"github.com/jeremyhahn/go-passkey/pkg/ratelimit"
)

// Server assembles the passkey service, storage, and HTTP surface and runs
// them as one process.
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	service *passkey.Service
	router  chi.Router

	sqliteStore   *sqlite.Store
	limiter       *ratelimit.Limiter
	healthChecker *health.Checker
	httpServer    *http.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new server from the configuration.
func New(cfg *config.Config) (*Server, error) {
	logger := logging.New(cfg.Logging)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:        cfg,
		logger:        logger,
		healthChecker: health.NewChecker(),
		ctx:           ctx,
		cancel:        cancel,
	}

	creds, challenges, err := s.initializeStorage()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	tokens, err := s.initializeTokens()
	if err != nil {
		cancel()
		s.closeStorage()
		return nil, fmt.Errorf("failed to initialize token generator: %w", err)
	}

	service, err := passkey.NewService(passkey.ServiceParams{
		Config:      &cfg.Passkey,
		Credentials: creds,
		Challenges:  challenges,
		Tokens:      tokens,
		Logger:      logger,
	})
	if err != nil {
		cancel()
		s.closeStorage()
		return nil, fmt.Errorf("failed to create passkey service: %w", err)
	}
	s.service = service

	s.limiter = ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
		Burst:             cfg.RateLimit.Burst,
	})

	s.router = s.buildRouter()
	return s, nil
}

// initializeStorage opens the configured storage backend.
func (s *Server) initializeStorage() (passkey.CredentialRepository, passkey.ChallengeStore, error) {
	switch s.config.Storage.Backend {
	case "sqlite":
		store, err := sqlite.Open(s.config.Storage.Path)
		if err != nil {
			return nil, nil, err
		}
		s.sqliteStore = store
		s.healthChecker.RegisterCheck("sqlite", func(ctx context.Context) health.CheckResult {
			if err := store.Ping(); err != nil {
				return health.CheckResult{
					Name:   "sqlite",
					Status: health.StatusUnhealthy,
					Error:  err.Error(),
				}
			}
			return health.CheckResult{
				Name:    "sqlite",
				Status:  health.StatusHealthy,
				Message: "Database reachable",
			}
		})
		return sqlite.NewCredentialRepository(store), sqlite.NewChallengeStore(store), nil
	case "memory", "":
		s.logger.Warn("using in-memory storage, state is lost on restart")
		return passkey.NewMemoryCredentialRepository(), passkey.NewMemoryChallengeStore(), nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend: %s", s.config.Storage.Backend)
	}
}

// initializeTokens builds the optional JWT generator.
func (s *Server) initializeTokens() (passkey.TokenGenerator, error) {
	if !s.config.Token.Enabled {
		return nil, nil
	}
	return passkey.NewDefaultJWTGenerator(&passkey.JWTGeneratorConfig{
		PrivateKey: []byte(s.config.Token.Secret),
		Issuer:     s.config.Token.Issuer,
		Audience:   s.config.Token.Audience,
		ExpiresIn:  s.config.Token.ExpiresIn,
	})
}

// buildRouter assembles the chi router with middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.config.Metrics.Enabled {
		r.Use(metrics.HTTPMiddleware)
	}
	if s.limiter.IsEnabled() {
		r.Use(ratelimit.Middleware(s.limiter))
	}

	handler := passkeyhttp.NewHandler(s.service).WithLogger(s.logger)
	r.Route("/api/v1/passkey", func(r chi.Router) {
		passkeyhttp.MountChi(r, handler)
	})

	health.MountChi(r, health.NewHandler(s.healthChecker))

	if s.config.Metrics.Enabled {
		path := s.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	return r
}

// Handler returns the assembled HTTP handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving HTTP traffic. It blocks until the listener fails or
// Stop is called.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Server.Host, strconv.Itoa(s.config.Server.Port))
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	// Background workers
	s.service.Ledger().StartCleanup(s.ctx, s.config.Server.ChallengeCleanupInterval)
	if s.config.Metrics.Enabled {
		metrics.StartResourceCollector(s.ctx, 30*time.Second)
	}

	s.healthChecker.MarkStarted()
	s.logger.Info("server listening",
		"addr", addr,
		"rp_id", s.config.Passkey.RPID,
		"storage", s.config.Storage.Backend)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("server shutting down")
	s.healthChecker.MarkNotStarted()
	s.cancel()
	s.limiter.Stop()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.closeStorage()
	return err
}

func (s *Server) closeStorage() {
	if s.sqliteStore != nil {
		if err := s.sqliteStore.Close(); err != nil {
			s.logger.Error("failed to close sqlite store", "error", err)
		}
	}
}
