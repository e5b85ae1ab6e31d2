package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/shibbolizer/internal/auth"
	"github.com/vyrodovalexey/shibbolizer/internal/model"
)

// Version is the application version.
const Version = "1.0.0"

// IdentityHandler serves the health endpoints and echoes the caller's identity.
type IdentityHandler struct {
	logger *zap.Logger
}

// NewIdentityHandler creates a new IdentityHandler instance.
func NewIdentityHandler(logger *zap.Logger) *IdentityHandler {
	return &IdentityHandler{logger: logger}
}

// RegisterRoutes registers the handler's routes with the router.
func (h *IdentityHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	router.HandleFunc("/ready", h.ReadyCheck).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/whoami", h.WhoAmI).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(h.NotFound)
}

// HealthCheck handles GET /health requests.
func (h *IdentityHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: Version,
	}
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(response))
}

// ReadyCheck handles GET /ready requests.
func (h *IdentityHandler) ReadyCheck(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(ReadyResponse{Status: "ready"}))
}

// WhoAmI handles GET /api/v1/whoami requests. Requests that reached the
// handler without a ticket are reported as anonymous.
func (h *IdentityHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	ticket, _ := auth.FromContext(r.Context())
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(model.NewIdentityResponse(ticket)))
}

// NotFound answers unknown routes.
func (h *IdentityHandler) NotFound(w http.ResponseWriter, _ *http.Request) {
	h.writeError(w, http.StatusNotFound, "resource not found")
}

// writeJSON writes a JSON response with the given status code.
func (h *IdentityHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeError writes an error response with the given status code and message.
func (h *IdentityHandler) writeError(w http.ResponseWriter, status int, message string) {
	response := model.ErrorResponse{
		Code:    status,
		Message: message,
	}
	h.writeJSON(w, status, response)
}
