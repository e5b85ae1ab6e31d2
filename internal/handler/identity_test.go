package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/shibbolizer/internal/auth"
	"github.com/vyrodovalexey/shibbolizer/internal/model"
)

func newTestRouter() *mux.Router {
	router := mux.NewRouter()
	NewIdentityHandler(zap.NewNop()).RegisterRoutes(router)
	return router
}

func TestIdentityHandler_HealthCheck(t *testing.T) {
	// Arrange
	router := newTestRouter()
	rr := httptest.NewRecorder()

	// Act
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	// Assert
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp model.APIResponse[HealthResponse]
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.Data.Status != "healthy" || resp.Data.Version != Version {
		t.Errorf("response = %+v", resp)
	}
}

func TestIdentityHandler_ReadyCheck(t *testing.T) {
	router := newTestRouter()
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

	var resp model.APIResponse[ReadyResponse]
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rr.Code != http.StatusOK || resp.Data.Status != "ready" {
		t.Errorf("status = %d, response = %+v", rr.Code, resp)
	}
}

func TestIdentityHandler_WhoAmI(t *testing.T) {
	authenticated := &auth.Ticket{
		Identity: &auth.Identity{
			Name:               "jlost",
			Issuer:             auth.DefaultIssuer,
			AuthenticationType: auth.DefaultIssuer,
			Claims: []auth.Claim{
				{Type: "email", Value: "jlost@co.com", ValueType: auth.ClaimValueTypeString, Issuer: auth.DefaultIssuer},
				{Type: auth.NameClaimType, Value: "jlost", ValueType: auth.ClaimValueTypeString, Issuer: auth.DefaultIssuer},
			},
		},
		Scheme: auth.DefaultScheme,
	}

	tests := []struct {
		name       string
		ticket     *auth.Ticket
		wantName   string
		wantAuth   bool
		wantClaims int
	}{
		{"authenticated", authenticated, "jlost", true, 2},
		{"anonymous", nil, "", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			router := newTestRouter()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/whoami", nil)
			if tt.ticket != nil {
				req = req.WithContext(auth.WithTicket(req.Context(), tt.ticket))
			}
			rr := httptest.NewRecorder()

			// Act
			router.ServeHTTP(rr, req)

			// Assert
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %s, want application/json", ct)
			}

			var resp model.APIResponse[model.IdentityResponse]
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Data.Name != tt.wantName {
				t.Errorf("name = %q, want %q", resp.Data.Name, tt.wantName)
			}
			if resp.Data.IsAuthenticated != tt.wantAuth {
				t.Errorf("is_authenticated = %v, want %v", resp.Data.IsAuthenticated, tt.wantAuth)
			}
			if len(resp.Data.Claims) != tt.wantClaims {
				t.Errorf("len(claims) = %d, want %d", len(resp.Data.Claims), tt.wantClaims)
			}
		})
	}
}

func TestIdentityHandler_MethodNotAllowed(t *testing.T) {
	router := newTestRouter()
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/whoami", nil))

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusMethodNotAllowed)
	}
}

func TestIdentityHandler_NotFound(t *testing.T) {
	router := newTestRouter()
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/items", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}

	var resp model.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Code != http.StatusNotFound {
		t.Errorf("code = %d, want %d", resp.Code, http.StatusNotFound)
	}
}
