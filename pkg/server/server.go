package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// RouteRegistrar is implemented by handler bundles that attach
// themselves to a mux.
type RouteRegistrar interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Server is the single-process HTTP listener both services run on.
// maxConcurrent > 0 caps simultaneously served requests, matching the
// worker-count setting of the reference deployment; zero means no cap.
type Server struct {
	addr          string
	maxConcurrent int
	registrars    []RouteRegistrar
	extraRoutes   map[string]http.Handler
}

func NewServer(addr string, maxConcurrent int, registrars ...RouteRegistrar) *Server {
	return &Server{
		addr:          addr,
		maxConcurrent: maxConcurrent,
		registrars:    registrars,
		extraRoutes:   make(map[string]http.Handler),
	}
}

// Handle mounts an extra handler (e.g. the metrics endpoint) outside
// the registrar bundles.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.extraRoutes[pattern] = handler
}

func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	for _, reg := range s.registrars {
		reg.RegisterRoutes(mux)
	}
	for pattern, handler := range s.extraRoutes {
		mux.Handle(pattern, handler)
	}

	var handler http.Handler = mux
	if s.maxConcurrent > 0 {
		handler = limitConcurrency(handler, s.maxConcurrent)
	}

	srv := &http.Server{
		Addr:    s.addr,
		Handler: handler,
	}

	slog.Info("HTTP server starting",
		"addr", s.addr,
		"workers", s.maxConcurrent)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// limitConcurrency bounds in-flight requests with a semaphore. Within
// a request, processing stays strictly sequential; this only bounds
// how many requests are resident at once.
func limitConcurrency(next http.Handler, n int) http.Handler {
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sem <- struct{}{}
		defer func() { <-sem }()
		next.ServeHTTP(w, r)
	})
}
