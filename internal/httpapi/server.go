package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/vk/funcmesh/internal/ctxlog"
)

// Server wraps the API in a net/http server. It exists for the common
// case; hosts with their own HTTP stack call Dispatch directly.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds a server bound to addr.
func NewServer(addr string, api *API, logger *slog.Logger) *Server {
	s := &Server{logger: logger}
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "unreadable body", http.StatusBadRequest)
				return
			}
			ctx := ctxlog.WithLogger(r.Context(), logger)
			status, contentType, out := api.Dispatch(ctx, r.Method, r.URL.RequestURI(), r.Header.Get("Content-Type"), r.Header.Get("Accept"), body)
			w.Header().Set("Content-Type", contentType)
			w.WriteHeader(status)
			if len(out) > 0 {
				_, _ = w.Write(out)
			}
		}),
	}
	return s
}

// Start runs the listener in a goroutine so it doesn't block.
func (s *Server) Start() {
	go func() {
		s.logger.Info("HTTP adapter listening.", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP adapter failed unexpectedly", "error", err)
		}
	}()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP adapter...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP adapter shutdown failed", "error", err)
		return err
	}
	s.logger.Debug("HTTP adapter shut down gracefully.")
	return nil
}
