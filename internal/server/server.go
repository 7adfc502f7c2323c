package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sjawhar/call-insights/internal/session"
)

// HTTPMetrics records per-route request counts and latency.
type HTTPMetrics interface {
	RecordHTTPRequest(method, endpoint, statusCode string, elapsed time.Duration)
}

// Deps wires the handler to the rest of the service. Store, Metrics and
// Gatherer may be nil; the routes that need them degrade accordingly.
type Deps struct {
	Hub         *Hub
	Registry    SessionRegistry
	Store       SessionStore
	Normalizer  session.Normalizer
	Transcriber session.Transcriber
	Classifier  session.Classifier
	Metrics     HTTPMetrics
	Gatherer    prometheus.Gatherer
	Warnings    []string
	Logger      *slog.Logger
	// WriteTimeout bounds each result write on a streaming connection.
	WriteTimeout time.Duration
}

func Handler(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Hub == nil {
		d.Hub = NewHub(d.Logger)
	}

	mux := http.NewServeMux()

	registerMonitorRoute(mux, d.Hub, d.Logger)
	if d.Registry != nil {
		registerStreamRoute(mux, d.Registry, d.WriteTimeout, d.Logger)
	}
	registerAPIRoutes(mux, d)

	if d.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	return corsMiddleware(mux)
}

// corsMiddleware opens the REST API to browser clients on any origin and
// answers preflight requests itself.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/") || websocket.IsWebSocketUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Serve runs the HTTP server until ctx is canceled, then shuts it down
// within shutdownTimeout.
func Serve(ctx context.Context, addr string, h http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("http server shutting down")
	return srv.Shutdown(shutdownCtx)
}

// instrument wraps a route with request metrics. Websocket routes are left
// unwrapped so the upgrader can hijack the connection.
func (d Deps) instrument(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	if d.Metrics == nil {
		return handler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(ww, r)
		d.Metrics.RecordHTTPRequest(r.Method, endpoint, strconv.Itoa(ww.statusCode), time.Since(start))
	}
}

// responseWriter captures the status code written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
