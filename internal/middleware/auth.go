package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/shibbolizer/internal/auth"
)

// Authentication results recorded in authenticationsTotal.
const (
	resultSuccess = "success"
	resultFailure = "failure"
	resultError   = "error"
)

var authenticationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "authentications_total",
		Help:      "Total number of header authentication attempts by result",
	},
	[]string{"scheme", "result"},
)

var errNoResult = errors.New("authenticator returned neither a result nor an error")

// publicPaths are paths that don't require authentication.
var publicPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// schemer is implemented by authenticators that know their scheme name.
type schemer interface {
	Scheme() string
}

// Auth returns a middleware that authenticates requests from identity
// headers.
//
// A successful result stores the ticket in the request context. A failed
// result is answered with 401 when challenge is true; otherwise the request
// continues without a ticket. An authenticator error is a server fault and
// is answered with 500 without exposing its details; so is a nil result,
// which no authenticator should return.
func Auth(
	authenticator auth.Authenticator,
	challenge bool,
	logger *zap.Logger,
) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(
			w http.ResponseWriter,
			r *http.Request,
		) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			scheme := schemeOf(authenticator)
			note := authNoteFrom(r.Context())

			result, err := authenticator.Authenticate(r)
			if err == nil && result == nil {
				err = errNoResult
			}
			if err != nil {
				authenticationsTotal.WithLabelValues(scheme, resultError).Inc()
				note.record(scheme, resultError, "")
				logger.Error("authentication error",
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("scheme", scheme),
					zap.String("request_id", getRequestID(r)),
					zap.Error(err),
				)
				writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
				return
			}

			if !result.Succeeded() {
				authenticationsTotal.WithLabelValues(scheme, resultFailure).Inc()
				note.record(scheme, resultFailure, "")
				logger.Warn("authentication failed",
					zap.String("path", r.URL.Path),
					zap.String("method", r.Method),
					zap.String("remote_addr", r.RemoteAddr),
					zap.String("scheme", scheme),
					zap.String("request_id", getRequestID(r)),
					zap.String("reason", result.Failure),
				)
				if challenge {
					w.Header().Set("WWW-Authenticate", scheme)
					writeError(w, http.StatusUnauthorized, result.Failure)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			authenticationsTotal.WithLabelValues(result.Ticket.Scheme, resultSuccess).Inc()
			note.record(result.Ticket.Scheme, resultSuccess, result.Ticket.Identity.Name)
			logger.Debug("authentication successful",
				zap.String("subject", result.Ticket.Identity.Name),
				zap.String("scheme", result.Ticket.Scheme),
				zap.String("path", r.URL.Path),
			)

			ctx := auth.WithTicket(r.Context(), result.Ticket)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func schemeOf(a auth.Authenticator) string {
	if s, ok := a.(schemer); ok {
		return s.Scheme()
	}
	return string(a.Method())
}

// isPublicPath checks whether the given path is a public path that
// does not require authentication. Matches exact public paths and
// their sub-paths (e.g. /health and /health/live), but rejects
// paths that merely share a prefix without a path separator
// (e.g. /healthXXX is not public).
func isPublicPath(path string) bool {
	if publicPaths[path] {
		return true
	}

	for p := range publicPaths {
		if strings.HasPrefix(path, p+"/") {
			return true
		}
	}

	return false
}
