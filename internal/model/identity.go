package model

import "github.com/vyrodovalexey/shibbolizer/internal/auth"

// ClaimResponse is one claim as echoed by the whoami endpoint.
type ClaimResponse struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	ValueType string `json:"value_type"`
	Issuer    string `json:"issuer"`
}

// IdentityResponse describes the caller as seen by the application.
type IdentityResponse struct {
	Name            string          `json:"name"`
	IsAuthenticated bool            `json:"is_authenticated"`
	Issuer          string          `json:"issuer,omitempty"`
	Scheme          string          `json:"scheme,omitempty"`
	Claims          []ClaimResponse `json:"claims"`
}

// NewIdentityResponse converts a ticket into its response form. A nil
// ticket describes an anonymous caller.
func NewIdentityResponse(ticket *auth.Ticket) IdentityResponse {
	if ticket == nil || ticket.Identity == nil {
		return IdentityResponse{Claims: []ClaimResponse{}}
	}

	id := ticket.Identity
	claims := make([]ClaimResponse, 0, len(id.Claims))
	for _, c := range id.Claims {
		claims = append(claims, ClaimResponse{
			Type:      c.Type,
			Value:     c.Value,
			ValueType: c.ValueType,
			Issuer:    c.Issuer,
		})
	}

	return IdentityResponse{
		Name:            id.Name,
		IsAuthenticated: id.IsAuthenticated(),
		Issuer:          id.Issuer,
		Scheme:          ticket.Scheme,
		Claims:          claims,
	}
}
