// Package middleware guards HTTP handlers with a limiter.
package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/quota/internal/limiter"
)

// New returns net/http middleware that consumes from lim for every request.
//
// Admitted requests reach next with X-RateLimit-Limit and
// X-RateLimit-Remaining set. Rejected requests go to the reject handler
// (429 by default). Limiter failures go to the error handler (503 by
// default) and never reach next.
func New(lim limiter.Limiter, opts ...Option) func(http.Handler) http.Handler {
	cfg := newConfig(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.admit(lim, w, r) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// Gin returns the gin equivalent of New.
func Gin(lim limiter.Limiter, opts ...Option) gin.HandlerFunc {
	cfg := newConfig(opts...)

	return func(c *gin.Context) {
		if !cfg.admit(lim, c.Writer, c.Request) {
			c.Abort()
			return
		}
		c.Next()
	}
}

// admit runs one decision and reports whether the request may proceed.
// Every other outcome has already been written to w.
func (cfg *config) admit(lim limiter.Limiter, w http.ResponseWriter, r *http.Request) bool {
	key := cfg.keyFunc(r)
	if key == "" {
		return true
	}

	callOpts := []limiter.ConsumeOption{limiter.WithAmount(cfg.amount)}
	if cfg.points > 0 {
		callOpts = append(callOpts, limiter.WithPoints(cfg.points))
	}
	if cfg.interval > 0 {
		callOpts = append(callOpts, limiter.WithBucketInterval(cfg.interval))
	}

	res, err := lim.Consume(r.Context(), key, callOpts...)
	if cfg.observer != nil {
		cfg.observer(r, key, res, err)
	}

	switch {
	case err == nil:
		setHeaders(w, res)
		cfg.logger.Debug("request admitted",
			zap.String("key", key),
			zap.Int64("consumed", res.Consumed),
			zap.Int64("limit", res.Limit),
		)
		return true

	case errors.Is(err, limiter.ErrQuotaExceeded):
		setHeaders(w, res)
		cfg.logger.Debug("request rejected",
			zap.String("key", key),
			zap.Int64("consumed", res.Consumed),
			zap.Int64("limit", res.Limit),
		)
		cfg.onReject(w, r, res)
		return false

	default:
		cfg.logger.Error("limiter failed", zap.String("key", key), zap.Error(err))
		cfg.onError(w, r, err)
		return false
	}
}

func setHeaders(w http.ResponseWriter, res limiter.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
}
