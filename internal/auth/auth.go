// Package auth turns identity headers asserted by a trusted SSO reverse
// proxy into an authenticated identity with claims.
package auth

import (
	"context"
	"errors"
	"net/http"
)

// AuthMethod represents the authentication method used.
type AuthMethod string

const (
	// AuthMethodHeader indicates identity asserted through request headers.
	AuthMethodHeader AuthMethod = "header"
)

// Authenticator validates a request and returns the authentication result.
//
// A nil error with a failed Result is an ordinary unauthenticated request.
// A non-nil error is a fault in the authenticator's configuration and must
// not be reported to the client as "unauthenticated".
type Authenticator interface {
	Authenticate(r *http.Request) (*Result, error)
	Method() AuthMethod
}

// Sentinel errors.
var (
	ErrConfiguration = errors.New("invalid authenticator configuration")
	ErrParserFailed  = errors.New("multi-value header parser failed")
)

// Ticket is what a successful authentication hands to the rest of the
// pipeline.
type Ticket struct {
	Identity *Identity
	Scheme   string
}

// Result is the outcome of one authentication attempt: either a Ticket or
// a human-readable failure reason.
type Result struct {
	Ticket  *Ticket
	Failure string
}

// Succeeded reports whether the result carries a ticket.
func (r *Result) Succeeded() bool {
	return r != nil && r.Ticket != nil
}

// Success returns a successful Result.
func Success(ticket *Ticket) *Result {
	return &Result{Ticket: ticket}
}

// Fail returns a failed Result with the given reason.
func Fail(reason string) *Result {
	return &Result{Failure: reason}
}

// contextKey is the type for context keys in this package.
type contextKey string

// ticketKey is the context key for Ticket.
const ticketKey contextKey = "auth_ticket"

// FromContext retrieves the Ticket from the context.
func FromContext(ctx context.Context) (*Ticket, bool) {
	ticket, ok := ctx.Value(ticketKey).(*Ticket)
	return ticket, ok
}

// WithTicket stores the Ticket in the context.
func WithTicket(ctx context.Context, ticket *Ticket) context.Context {
	return context.WithValue(ctx, ticketKey, ticket)
}
