// Package mockapi serves JSONP responses shaped like the Edmunds API for
// local development and tests.
package mockapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HangPrefix marks paths that never answer until the client goes away.
const HangPrefix = "/hang/"

// Echo is the payload the mock passes to the callback.
type Echo struct {
	Method    string            `json:"method"`
	Params    map[string]string `json:"params"`
	Format    string            `json:"format"`
	CacheBust bool              `json:"cache_bust"`
}

// reservedParams are consumed by the mock and not echoed back.
var reservedParams = map[string]bool{
	"api_key":  true,
	"fmt":      true,
	"callback": true,
	"_dc":      true,
}

// Server is a JSONP fixture server.
type Server struct {
	router   chi.Router
	logger   *slog.Logger
	latency  time.Duration
	requests atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithLatency delays every response by d.
func WithLatency(d time.Duration) Option {
	return func(s *Server) { s.latency = d }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a fixture server.
func New(opts ...Option) *Server {
	s := &Server{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get(HangPrefix+"*", s.handleHang)
	r.Get("/*", s.handleEcho)
	s.router = r

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)
	s.router.ServeHTTP(w, r)
}

// Requests returns how many requests the server has received.
func (s *Server) Requests() int64 {
	return s.requests.Load()
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	callback := q.Get("callback")
	if callback == "" {
		http.Error(w, "missing callback parameter", http.StatusBadRequest)
		return
	}
	if q.Get("api_key") == "" {
		http.Error(w, "missing api_key parameter", http.StatusUnauthorized)
		return
	}

	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-r.Context().Done():
			return
		}
	}

	echo := Echo{
		Method:    r.URL.Path,
		Params:    make(map[string]string),
		Format:    q.Get("fmt"),
		CacheBust: q.Has("_dc"),
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !reservedParams[k] {
			echo.Params[k] = q.Get(k)
		}
	}

	body, err := json.Marshal(echo)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.logger.Debug("mockapi: answering", "method", echo.Method, "callback", callback)

	w.Header().Set("Content-Type", "application/javascript")
	fmt.Fprintf(w, "%s(%s);", callback, body)
}

func (s *Server) handleHang(w http.ResponseWriter, r *http.Request) {
	<-r.Context().Done()
}

// Run listens on addr until ctx is cancelled or a shutdown signal arrives.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mock api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
