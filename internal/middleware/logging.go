package middleware

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// quietPaths are logged at Debug level; orchestrators poll them constantly.
var quietPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

type authNoteKey struct{}

// authNote carries the authentication outcome from Auth back out to the
// access log. It is created by Logging and filled in by Auth.
type authNote struct {
	scheme  string
	result  string
	subject string
}

func withAuthNote(ctx context.Context) (context.Context, *authNote) {
	note := &authNote{}
	return context.WithValue(ctx, authNoteKey{}, note), note
}

func authNoteFrom(ctx context.Context) *authNote {
	note, _ := ctx.Value(authNoteKey{}).(*authNote)
	return note
}

// record is a no-op on a nil note, so Auth works without Logging in front.
func (n *authNote) record(scheme, result, subject string) {
	if n == nil {
		return
	}
	n.scheme = scheme
	n.result = result
	n.subject = subject
}

func (n *authNote) fields() []zap.Field {
	if n == nil || n.result == "" {
		return nil
	}
	fields := []zap.Field{
		zap.String("scheme", n.scheme),
		zap.String("auth_result", n.result),
	}
	if n.subject != "" {
		fields = append(fields, zap.String("subject", n.subject))
	}
	return fields
}

// Logging writes one access log entry per request. Requests that went
// through Auth also carry the scheme, the authentication result and, on
// success, the authenticated subject.
func Logging(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := wrapStatus(w)
			ctx, note := withAuthNote(r.Context())

			next.ServeHTTP(sw, r.WithContext(ctx))

			fields := append([]zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.String("request_id", getRequestID(r)),
			}, note.fields()...)

			if quietPaths[r.URL.Path] {
				logger.Debug("http request", fields...)
				return
			}
			logger.Info("http request", fields...)
		})
	}
}
