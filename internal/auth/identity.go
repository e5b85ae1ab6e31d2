package auth

import "strings"

// Well-known claim type and value type URIs.
const (
	NameClaimType        = "http://schemas.xmlsoap.org/ws/2005/05/identity/claims/name"
	ClaimValueTypeString = "http://www.w3.org/2001/XMLSchema#string"
)

// Claim is a typed statement about an identity made by an issuer.
type Claim struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	ValueType string `json:"value_type"`
	Issuer    string `json:"issuer"`
}

// Identity is the principal asserted for a single request. Claims keep
// insertion order and may contain duplicates.
type Identity struct {
	Name               string
	Issuer             string
	AuthenticationType string
	Claims             []Claim
}

// IsAuthenticated reports whether the identity came from an authenticator.
func (i *Identity) IsAuthenticated() bool {
	return i != nil && i.AuthenticationType != ""
}

// FindAll returns every claim of the given type in order. Like the other
// lookups it treats a nil identity as having no claims.
func (i *Identity) FindAll(claimType string) []Claim {
	if i == nil {
		return nil
	}

	var out []Claim
	for _, c := range i.Claims {
		if strings.EqualFold(c.Type, claimType) {
			out = append(out, c)
		}
	}
	return out
}

// FindFirst returns the first claim of the given type.
func (i *Identity) FindFirst(claimType string) (Claim, bool) {
	if i == nil {
		return Claim{}, false
	}
	for _, c := range i.Claims {
		if strings.EqualFold(c.Type, claimType) {
			return c, true
		}
	}
	return Claim{}, false
}

// HasClaim reports whether a claim with the given type and exact value
// exists.
func (i *Identity) HasClaim(claimType, value string) bool {
	if i == nil {
		return false
	}
	for _, c := range i.Claims {
		if strings.EqualFold(c.Type, claimType) && c.Value == value {
			return true
		}
	}
	return false
}

// Values returns the values of every claim of the given type.
func (i *Identity) Values(claimType string) []string {
	claims := i.FindAll(claimType)
	if len(claims) == 0 {
		return nil
	}

	values := make([]string, len(claims))
	for n, c := range claims {
		values[n] = c.Value
	}
	return values
}
