// Package ops serves health and metrics endpoints next to the bot.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/m3rciful/shopbot/core/logger"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure the ops server.
type Options struct {
	Listen   string
	Ready    Pinger
	Registry *prometheus.Registry
}

// Server exposes /healthz, /readyz and /metrics.
type Server struct {
	http *http.Server
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// New builds the server without starting it.
func New(opts Options) *Server {
	return &Server{http: &http.Server{
		Addr:              opts.Listen,
		Handler:           Router(opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}}
}

// Router returns the ops routes.
func Router(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Second))
	r.Use(accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, statusResponse{Status: "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if opts.Ready != nil {
			if err := opts.Ready.Ping(req.Context()); err != nil {
				writeStatus(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable", Error: err.Error()})
				return
			}
		}
		writeStatus(w, http.StatusOK, statusResponse{Status: "ready"})
	})
	if opts.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{Registry: opts.Registry}))
	}
	return r
}

// Start listens in the background. The returned error covers binding only.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	logger.Info(context.Background(), "ops", "ops.listen", slog.String("addr", ln.Addr().String()))
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "ops", "ops.serve", slog.String("err", err.Error()))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeStatus(w http.ResponseWriter, code int, body statusResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Debug(r.Context(), "ops", "http.request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("took", logger.Took(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
