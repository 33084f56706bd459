// dbgrid: distributed SQL coordinator over a partitioned columnar dataset.
// SPDX-License-Identifier: MIT
//
// JSON-over-HTTP surface: /query, /distributed-query, /status, /live,
// /ready. The coordinator is itself a valid worker, so the same handler
// backs both a standalone node and a node dispatched to by a scheduler.

package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"dbgrid/internal/config"
	"dbgrid/internal/coordinator"
	"dbgrid/internal/logging"
)

// Dependencies bundles everything a handler needs, following the same
// wiring idiom the rest of the service uses for its components.
type Dependencies struct {
	Config      config.Config
	Logger      *zap.Logger
	Coordinator *coordinator.Service
}

type Server struct {
	cfg     config.Config
	logger  *zap.Logger
	httpSrv *http.Server
}

func New(deps Dependencies) *Server {
	h := &handler{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(deps.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}))

	r.Post("/query", h.handleQuery)
	r.Post("/distributed-query", h.handleDistributedQuery)
	r.Get("/status", h.handleStatus)
	r.Get("/live", h.handleLive)
	r.Get("/ready", h.handleReady)

	addr := fmt.Sprintf("%s:%d", deps.Config.HTTPAddr, deps.Config.HTTPPort)
	return &Server{
		cfg:    deps.Config,
		logger: deps.Logger,
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

func (s *Server) Addr() string { return s.httpSrv.Addr }

func (s *Server) ListenAndServe() error {
	s.logger.Info("httpserver.listening", zap.String("addr", s.httpSrv.Addr))
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	base := logging.WithComponent(logger, "httpserver")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logging.WithRequest(base, middleware.GetReqID(r.Context())).Debug("httpserver.request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
