package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
	"github.com/SmitUplenchwar2687/quota/internal/limiter"
	"github.com/SmitUplenchwar2687/quota/internal/metrics"
	"github.com/SmitUplenchwar2687/quota/internal/middleware"
	"github.com/SmitUplenchwar2687/quota/internal/recorder"
)

// Options holds the optional collaborators of a Server.
type Options struct {
	Hub      *Hub               // live dashboard; nil disables /ws and /dashboard/
	Recorder *recorder.Recorder // captures every decision for later replay
	Metrics  *metrics.Metrics   // nil disables /metrics
	Logger   *zap.Logger
	Amount   int64 // points consumed per guarded /mw request, default 1
}

// Server is the demo HTTP server that exposes the limiter over HTTP.
type Server struct {
	httpServer *http.Server
	limiter    limiter.Limiter
	clock      clock.Clock
	router     chi.Router
	opts       Options
	logger     *zap.Logger
}

// New creates a new server. When opts.Metrics is set the limiter is
// instrumented before any route uses it.
func New(addr string, lim limiter.Limiter, clk clock.Clock, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Metrics != nil {
		lim = metrics.Instrument(lim, opts.Metrics)
	}
	s := &Server{
		limiter: lim,
		clock:   clk,
		router:  chi.NewRouter(),
		opts:    opts,
		logger:  logger.Named("server"),
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler. Tests use it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/consume/{key}", s.handleConsume)
		r.Post("/consume/{key}", s.handleConsume)
		r.Get("/check/{key}", s.handleCheck)
	})

	guard := middleware.New(s.limiter,
		middleware.WithAmount(s.opts.Amount),
		middleware.WithKeyFunc(func(r *http.Request) string { return chi.URLParam(r, "userId") }),
		middleware.WithObserver(s.observe),
		middleware.WithLogger(s.logger),
	)
	r.With(guard).HandleFunc("/mw/{userId}", s.handleGuarded)

	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}
	if s.opts.Hub != nil {
		r.Get("/ws", s.opts.Hub.HandleWebSocket)
		r.Get("/dashboard", http.RedirectHandler("/dashboard/", http.StatusMovedPermanently).ServeHTTP)
		r.Get("/dashboard/", handleDashboard)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service":   "quota",
		"status":    "running",
		"algorithm": string(s.limiter.Algorithm()),
		"time":      s.clock.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleConsume consumes ?amount= points (default 1) from {key}, with an
// optional ?points= limit override.
func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, true, s.limiter.Consume)
}

// handleCheck reports the key's state without consuming.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	s.decide(w, r, false, s.limiter.Check)
}

type decideFunc func(ctx context.Context, id string, opts ...limiter.ConsumeOption) (limiter.Result, error)

func (s *Server) decide(w http.ResponseWriter, r *http.Request, consume bool, fn decideFunc) {
	key := chi.URLParam(r, "key")
	opts, err := callOptions(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	res, err := fn(r.Context(), key, opts...)
	s.publish(r, key, consume, res, err)

	switch {
	case err == nil:
		writeResult(w, http.StatusOK, res)
	case errors.Is(err, limiter.ErrQuotaExceeded):
		writeResult(w, http.StatusTooManyRequests, res)
	case errors.Is(err, limiter.ErrInvalidAmount),
		errors.Is(err, limiter.ErrInvalidPoints),
		errors.Is(err, limiter.ErrEmptyIdentifier):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		s.logger.Error("limiter failed", zap.String("key", key), zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "limiter unavailable"})
	}
}

func (s *Server) handleGuarded(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"user":    chi.URLParam(r, "userId"),
		"message": "request admitted",
	})
}

// observe is the middleware observer for guarded routes.
func (s *Server) observe(r *http.Request, key string, res limiter.Result, err error) {
	s.publish(r, key, true, res, err)
}

// publish records consuming decisions for replay and pushes every decision
// to dashboard clients.
func (s *Server) publish(r *http.Request, key string, consumed bool, res limiter.Result, err error) {
	if s.opts.Recorder == nil && s.opts.Hub == nil {
		return
	}

	rec := recorder.NewTrafficRecord(s.clock.Now(), key, r.Method+" "+r.URL.Path, s.opts.Amount)
	q := r.URL.Query()
	if n, perr := strconv.ParseInt(q.Get("amount"), 10, 64); perr == nil {
		rec.Amount = n
	}
	if n, perr := strconv.ParseInt(q.Get("points"), 10, 64); perr == nil {
		rec.Points = n
	}
	if id := chimw.GetReqID(r.Context()); id != "" {
		rec.Metadata = map[string]string{"request_id": id}
	}

	decided := err == nil || errors.Is(err, limiter.ErrQuotaExceeded)
	if consumed && decided && s.opts.Recorder != nil {
		if rerr := s.opts.Recorder.Record(rec); rerr != nil {
			s.logger.Warn("record traffic", zap.Error(rerr))
		}
	}
	if s.opts.Hub != nil {
		ev := recorder.DecisionEvent{
			Record:    rec,
			Algorithm: s.limiter.Algorithm(),
			Result:    res,
			Time:      rec.Timestamp,
		}
		if !decided {
			ev.Error = err.Error()
		}
		s.opts.Hub.Broadcast(&ev)
	}
}

func callOptions(r *http.Request) ([]limiter.ConsumeOption, error) {
	var opts []limiter.ConsumeOption
	q := r.URL.Query()
	if v := q.Get("amount"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q", v)
		}
		opts = append(opts, limiter.WithAmount(n))
	}
	if v := q.Get("points"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid points %q", v)
		}
		opts = append(opts, limiter.WithPoints(n))
	}
	return opts, nil
}

func writeResult(w http.ResponseWriter, status int, res limiter.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start begins listening. It blocks until the server is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.StartOnListener(ln)
}

// StartOnListener begins serving on the provided listener.
// Useful for tests that need to pick an ephemeral port.
func (s *Server) StartOnListener(ln net.Listener) error {
	s.logger.Info("quota server listening", zap.String("addr", ln.Addr().String()))
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server and disconnects dashboard clients.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.opts.Hub != nil {
		s.opts.Hub.Close()
	}
	return s.httpServer.Shutdown(ctx)
}
