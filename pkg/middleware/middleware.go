// Package middleware exposes the HTTP admission middleware for net/http and gin.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	internalmw "github.com/SmitUplenchwar2687/quota/internal/middleware"
	"github.com/SmitUplenchwar2687/quota/pkg/limiter"
)

type (
	KeyFunc       = internalmw.KeyFunc
	RejectHandler = internalmw.RejectHandler
	ErrorHandler  = internalmw.ErrorHandler
	Observer      = internalmw.Observer
	Option        = internalmw.Option
)

// New returns net/http middleware that consumes one call per request.
func New(lim limiter.Limiter, opts ...Option) func(http.Handler) http.Handler {
	return internalmw.New(lim, opts...)
}

// Gin is New for gin routers.
func Gin(lim limiter.Limiter, opts ...Option) gin.HandlerFunc {
	return internalmw.Gin(lim, opts...)
}

func WithAmount(n int64) Option                 { return internalmw.WithAmount(n) }
func WithPoints(n int64) Option                 { return internalmw.WithPoints(n) }
func WithBucketInterval(d time.Duration) Option { return internalmw.WithBucketInterval(d) }
func WithKeyFunc(f KeyFunc) Option              { return internalmw.WithKeyFunc(f) }
func WithRejectHandler(f RejectHandler) Option  { return internalmw.WithRejectHandler(f) }
func WithErrorHandler(f ErrorHandler) Option    { return internalmw.WithErrorHandler(f) }
func WithObserver(f Observer) Option            { return internalmw.WithObserver(f) }
func WithLogger(l *zap.Logger) Option           { return internalmw.WithLogger(l) }

// ClientIP is the default key: first X-Forwarded-For hop, else the RemoteAddr host.
func ClientIP(r *http.Request) string { return internalmw.ClientIP(r) }
