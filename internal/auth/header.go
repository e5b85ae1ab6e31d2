package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// Outcome is what the claims extractor produces for one set of headers:
// an Identity, or the reason there is none.
type Outcome struct {
	Identity *Identity
	Failure  string
}

// Succeeded reports whether the outcome carries an identity.
func (o Outcome) Succeeded() bool {
	return o.Identity != nil
}

// HeaderAuthenticator authenticates requests from identity headers set by
// a trusted reverse proxy. It holds no per-request state and is safe for
// concurrent use.
type HeaderAuthenticator struct {
	opts Options
}

// NewHeaderAuthenticator validates opts and creates a HeaderAuthenticator.
// The returned error matches ErrConfiguration.
func NewHeaderAuthenticator(opts Options) (*HeaderAuthenticator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &HeaderAuthenticator{opts: opts.withDefaults()}, nil
}

// Options returns a copy of the effective options.
func (a *HeaderAuthenticator) Options() Options {
	return a.opts.withDefaults()
}

// Extract builds the identity asserted by headers.
//
// The only failed Outcome is a missing or blank username header. Absent
// claim headers are skipped. A parser error is returned as err, wrapping
// ErrParserFailed.
func (a *HeaderAuthenticator) Extract(headers HeaderView) (Outcome, error) {
	username, ok := headers.Lookup(a.opts.UsernameHeader)
	if !ok || strings.TrimSpace(username) == "" {
		return Outcome{
			Failure: fmt.Sprintf(
				"Username header: %s does not exist or contains no value.",
				a.opts.UsernameHeader,
			),
		}, nil
	}

	issuer := a.opts.Issuer
	claims := make([]Claim, 0, len(a.opts.ClaimHeaders)+1)

	for _, name := range a.opts.ClaimHeaders {
		value, ok := headers.Lookup(name)
		if !ok {
			continue
		}
		claims = append(claims, newClaim(name, value, issuer))
	}

	for _, mch := range a.opts.MultiClaimHeaders {
		value, ok := headers.Lookup(mch.Header)
		if !ok {
			continue
		}

		tokens, err := mch.Parser.Parse(value)
		if err != nil {
			return Outcome{}, fmt.Errorf("%w: header %s: %w", ErrParserFailed, mch.Header, err)
		}
		for _, token := range tokens {
			claims = append(claims, newClaim(mch.Header, token, issuer))
		}
	}

	claims = append(claims, newClaim(NameClaimType, username, issuer))

	return Outcome{
		Identity: &Identity{
			Name:               username,
			Issuer:             issuer,
			AuthenticationType: issuer,
			Claims:             claims,
		},
	}, nil
}

// AuthenticateHeaders extracts the identity from headers and wraps it in a
// Ticket for the configured scheme. A failure reason is passed through
// unchanged.
func (a *HeaderAuthenticator) AuthenticateHeaders(headers HeaderView) (*Result, error) {
	outcome, err := a.Extract(headers)
	if err != nil {
		return nil, err
	}

	if !outcome.Succeeded() {
		return Fail(outcome.Failure), nil
	}

	return Success(&Ticket{
		Identity: outcome.Identity,
		Scheme:   a.opts.Scheme,
	}), nil
}

// Authenticate implements Authenticator.
func (a *HeaderAuthenticator) Authenticate(r *http.Request) (*Result, error) {
	return a.AuthenticateHeaders(HTTPHeaderView(r.Header))
}

// Method returns the authentication method type.
func (a *HeaderAuthenticator) Method() AuthMethod {
	return AuthMethodHeader
}

// Scheme returns the configured authentication scheme name.
func (a *HeaderAuthenticator) Scheme() string {
	return a.opts.Scheme
}

func newClaim(claimType, value, issuer string) Claim {
	return Claim{
		Type:      claimType,
		Value:     value,
		ValueType: ClaimValueTypeString,
		Issuer:    issuer,
	}
}
