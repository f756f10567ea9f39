// Package metricsserver exposes the harvester's Prometheus metrics and a
// liveness endpoint over HTTP, mirroring the teacher's gorilla/mux +
// gorilla/handlers router setup in its own server.go.
package metricsserver

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/crawlforge/harvester/pkg/log"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves /metrics and /healthz on a dedicated address.
type Server struct {
	http *http.Server
}

// New builds a Server listening on addr. It does not start listening until
// Serve is called.
func New(addr string) *Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Use(requestIDMiddleware)
	handler := handlers.CustomLoggingHandler(io.Discard, r, func(w io.Writer, params handlers.LogFormatterParams) {
		log.Debugf("metricsserver: %s %s (%d, %d bytes)", params.Request.Method, params.URL.RequestURI(), params.StatusCode, params.Size)
	})

	return &Server{
		http: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", uuid.NewString())
		next.ServeHTTP(w, r)
	})
}

// Serve blocks until the server stops or ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
