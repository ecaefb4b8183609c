package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/quota/internal/limiter"
)

// DefaultRejectMessage is the body written by the default reject handler.
const DefaultRejectMessage = "Too many requests, please try again later."

// KeyFunc extracts the identifier a request is limited by. An empty key
// lets the request through without consuming anything.
type KeyFunc func(r *http.Request) string

// RejectHandler writes the response for a request over its quota.
type RejectHandler func(w http.ResponseWriter, r *http.Request, res limiter.Result)

// ErrorHandler writes the response when the limiter itself failed.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Observer is called after every limiter decision, including failures.
type Observer func(r *http.Request, key string, res limiter.Result, err error)

// Option configures the middleware.
type Option func(*config)

type config struct {
	amount   int64
	points   int64
	interval time.Duration
	keyFunc  KeyFunc
	onReject RejectHandler
	onError  ErrorHandler
	observer Observer
	logger   *zap.Logger
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		amount:   1,
		keyFunc:  ClientIP,
		onReject: defaultReject,
		onError:  defaultError,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithAmount sets the points each request consumes. Defaults to 1.
func WithAmount(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.amount = n
		}
	}
}

// WithPoints overrides the limiter's configured limit for guarded requests.
func WithPoints(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.points = n
		}
	}
}

// WithBucketInterval overrides the bucket width of a sliding window counter
// for guarded requests. Other algorithms ignore it.
func WithBucketInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithKeyFunc sets how requests are identified. Defaults to ClientIP.
func WithKeyFunc(f KeyFunc) Option {
	return func(c *config) {
		if f != nil {
			c.keyFunc = f
		}
	}
}

// WithRejectHandler sets the response for rejected requests.
func WithRejectHandler(f RejectHandler) Option {
	return func(c *config) {
		if f != nil {
			c.onReject = f
		}
	}
}

// WithErrorHandler sets the response for limiter failures. The default
// fails closed with 503.
func WithErrorHandler(f ErrorHandler) Option {
	return func(c *config) {
		if f != nil {
			c.onError = f
		}
	}
}

// WithObserver registers a callback for every decision.
func WithObserver(f Observer) Option {
	return func(c *config) { c.observer = f }
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// ClientIP returns the first X-Forwarded-For hop, or the host part of
// RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func defaultReject(w http.ResponseWriter, _ *http.Request, _ limiter.Result) {
	http.Error(w, DefaultRejectMessage, http.StatusTooManyRequests)
}

func defaultError(w http.ResponseWriter, _ *http.Request, _ error) {
	http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
}
