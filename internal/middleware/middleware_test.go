package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vyrodovalexey/shibbolizer/internal/auth"
)

func TestStatusWriter_CapturesStatus(t *testing.T) {
	tests := []struct {
		name       string
		write      func(sw *statusWriter)
		wantStatus int
	}{
		{
			name:       "default is 200",
			write:      func(*statusWriter) {},
			wantStatus: http.StatusOK,
		},
		{
			name:       "explicit status",
			write:      func(sw *statusWriter) { sw.WriteHeader(http.StatusUnauthorized) },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "first WriteHeader wins",
			write: func(sw *statusWriter) {
				sw.WriteHeader(http.StatusInternalServerError)
				sw.WriteHeader(http.StatusOK)
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "Write implies 200",
			write: func(sw *statusWriter) {
				_, _ = sw.Write([]byte("body"))
				sw.WriteHeader(http.StatusNotFound)
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			rec := httptest.NewRecorder()
			sw := wrapStatus(rec)

			// Act
			tt.write(sw)

			// Assert
			if sw.status != tt.wantStatus {
				t.Errorf("status = %d, want %d", sw.status, tt.wantStatus)
			}
		})
	}
}

func TestChain_Order(t *testing.T) {
	// Arrange
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	})

	// Act
	Chain(tag("outer"), tag("inner"))(handler).ServeHTTP(
		httptest.NewRecorder(),
		httptest.NewRequest(http.MethodGet, "/", nil),
	)

	// Assert
	want := "outer,inner,handler"
	if got := strings.Join(order, ","); got != want {
		t.Errorf("order = %s, want %s", got, want)
	}
}

func TestChain_Empty(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rr := httptest.NewRecorder()

	Chain()(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusTeapot)
	}
}

func TestLogging_PassesThrough(t *testing.T) {
	paths := []string{"/api/v1/whoami", "/health"}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			// Arrange
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			})
			rr := httptest.NewRecorder()

			// Act
			Logging(zap.NewNop())(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))

			// Assert
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestRecovery_RecoversPanic(t *testing.T) {
	// Arrange
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("parser exploded")
	})
	rr := httptest.NewRecorder()

	// Act
	Recovery(zap.NewNop())(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil))

	// Assert
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}
	var body errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	want := errorResponse{Code: http.StatusInternalServerError, Message: "Internal Server Error"}
	if body != want {
		t.Errorf("body = %+v, want %+v", body, want)
	}
}

func TestRecovery_RepanicsAbortHandler(t *testing.T) {
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	})

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	Recovery(zap.NewNop())(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestWrapStatus_ReusesWrapper(t *testing.T) {
	sw := wrapStatus(httptest.NewRecorder())

	if again := wrapStatus(sw); again != sw {
		t.Error("wrapStatus() wrapped an existing statusWriter again")
	}
}

func TestLogging_RecordsAuthOutcome(t *testing.T) {
	authenticator, err := auth.NewHeaderAuthenticator(auth.Options{UsernameHeader: "userID", Scheme: "sso"})
	if err != nil {
		t.Fatalf("NewHeaderAuthenticator() error = %v", err)
	}

	tests := []struct {
		name        string
		path        string
		username    string
		challenge   bool
		wantStatus  int
		wantResult  string
		wantSubject string
	}{
		{
			name:        "success carries subject",
			path:        "/api/v1/whoami",
			username:    "jlost",
			challenge:   true,
			wantStatus:  http.StatusOK,
			wantResult:  resultSuccess,
			wantSubject: "jlost",
		},
		{
			name:       "challenged failure",
			path:       "/api/v1/whoami",
			challenge:  true,
			wantStatus: http.StatusUnauthorized,
			wantResult: resultFailure,
		},
		{
			name:       "anonymous failure",
			path:       "/api/v1/whoami",
			wantStatus: http.StatusOK,
			wantResult: resultFailure,
		},
		{
			name:       "public path has no auth fields",
			path:       "/health",
			challenge:  true,
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			core, logs := observer.New(zapcore.DebugLevel)
			logger := zap.New(core)
			handler := Chain(Logging(logger), Auth(authenticator, tt.challenge, zap.NewNop()))(
				http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }),
			)
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.username != "" {
				req.Header.Set("userID", tt.username)
			}
			rr := httptest.NewRecorder()

			// Act
			handler.ServeHTTP(rr, req)

			// Assert
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			entries := logs.FilterMessage("http request").All()
			if len(entries) != 1 {
				t.Fatalf("got %d access log entries, want 1", len(entries))
			}
			fields := entries[0].ContextMap()

			if got := fields["status"]; got != int64(tt.wantStatus) {
				t.Errorf("status field = %v, want %d", got, tt.wantStatus)
			}
			if tt.wantResult == "" {
				if _, ok := fields["auth_result"]; ok {
					t.Errorf("auth_result logged for public path: %v", fields["auth_result"])
				}
				return
			}
			if got := fields["auth_result"]; got != tt.wantResult {
				t.Errorf("auth_result = %v, want %s", got, tt.wantResult)
			}
			if got := fields["scheme"]; got != "sso" {
				t.Errorf("scheme = %v, want sso", got)
			}
			subject, ok := fields["subject"]
			if tt.wantSubject == "" && ok {
				t.Errorf("subject = %v, want none", subject)
			}
			if tt.wantSubject != "" && subject != tt.wantSubject {
				t.Errorf("subject = %v, want %s", subject, tt.wantSubject)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{name: "generated when absent", incoming: ""},
		{name: "propagated when present", incoming: "req-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			var seenHeader, seenContext string
			handler := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seenHeader = getRequestID(r)
				seenContext, _ = r.Context().Value(RequestIDKey).(string)
			})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(RequestIDHeader, tt.incoming)
			}
			rr := httptest.NewRecorder()

			// Act
			RequestID()(handler).ServeHTTP(rr, req)

			// Assert
			got := rr.Header().Get(RequestIDHeader)
			if got == "" {
				t.Fatal("response has no request ID")
			}
			if tt.incoming != "" && got != tt.incoming {
				t.Errorf("request ID = %s, want %s", got, tt.incoming)
			}
			if seenHeader != got || seenContext != got {
				t.Errorf("handler saw header %q context %q, want %q", seenHeader, seenContext, got)
			}
		})
	}
}

func TestRequestID_Unique(t *testing.T) {
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	wrapped := RequestID()(handler)

	ids := make(map[string]bool)
	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		wrapped.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		ids[rr.Header().Get(RequestIDHeader)] = true
	}

	if len(ids) != 50 {
		t.Errorf("generated %d unique IDs, want 50", len(ids))
	}
}

func TestMetrics_PassesStatus(t *testing.T) {
	codes := []int{http.StatusOK, http.StatusUnauthorized, http.StatusInternalServerError}

	for _, code := range codes {
		t.Run(http.StatusText(code), func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(code)
			})
			rr := httptest.NewRecorder()

			Metrics()(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil))

			if rr.Code != code {
				t.Errorf("status = %d, want %d", rr.Code, code)
			}
		})
	}
}

func TestRouteTemplate(t *testing.T) {
	// Arrange
	var got string
	router := mux.NewRouter()
	router.HandleFunc("/api/v1/users/{id}", func(_ http.ResponseWriter, r *http.Request) {
		got = routeTemplate(r)
	})

	// Act
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/users/42", nil))

	// Assert
	if got != "/api/v1/users/{id}" {
		t.Errorf("routeTemplate() = %s, want /api/v1/users/{id}", got)
	}

	unrouted := httptest.NewRequest(http.MethodGet, "/raw/path", nil)
	if p := routeTemplate(unrouted); p != "/raw/path" {
		t.Errorf("routeTemplate() = %s, want /raw/path", p)
	}
}

func TestProxyHeaders(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		value      string
		wantRemote string
		wantScheme string
	}{
		{
			name:       "X-Forwarded-For",
			header:     "X-Forwarded-For",
			value:      "203.0.113.7",
			wantRemote: "203.0.113.7",
		},
		{
			name:       "X-Real-IP",
			header:     "X-Real-IP",
			value:      "198.51.100.4",
			wantRemote: "198.51.100.4",
		},
		{
			name:       "X-Forwarded-Proto",
			header:     "X-Forwarded-Proto",
			value:      "https",
			wantRemote: "192.0.2.1:1234",
			wantScheme: "https",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			var remote, scheme string
			handler := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				remote = r.RemoteAddr
				scheme = r.URL.Scheme
			})
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set(tt.header, tt.value)

			// Act
			ProxyHeaders()(handler).ServeHTTP(httptest.NewRecorder(), req)

			// Assert
			if remote != tt.wantRemote {
				t.Errorf("RemoteAddr = %s, want %s", remote, tt.wantRemote)
			}
			if tt.wantScheme != "" && scheme != tt.wantScheme {
				t.Errorf("URL.Scheme = %s, want %s", scheme, tt.wantScheme)
			}
		})
	}
}

func TestMiddlewareChainIntegration(t *testing.T) {
	// Arrange
	logger := zap.NewNop()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(RequestIDHeader) == "" {
			t.Error("request ID should be set by middleware")
		}
		w.WriteHeader(http.StatusOK)
	})

	chain := Chain(
		Recovery(logger),
		ProxyHeaders(),
		RequestID(),
		Metrics(),
		Logging(logger),
	)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	rr := httptest.NewRecorder()

	// Act
	chain(handler).ServeHTTP(rr, req)

	// Assert
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("response should carry a request ID")
	}
}
