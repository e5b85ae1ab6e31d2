package auth

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// ReloadableAuthenticator delegates to a HeaderAuthenticator that can be
// replaced while requests are being served. A request uses whichever
// instance was current when it started.
type ReloadableAuthenticator struct {
	current atomic.Pointer[HeaderAuthenticator]
}

// NewReloadableAuthenticator creates a ReloadableAuthenticator serving a.
// A nil a is rejected with an error matching ErrConfiguration.
func NewReloadableAuthenticator(a *HeaderAuthenticator) (*ReloadableAuthenticator, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: reloadable authenticator needs an initial authenticator", ErrConfiguration)
	}

	r := &ReloadableAuthenticator{}
	r.current.Store(a)
	return r, nil
}

// Swap installs a as the current authenticator and returns the previous
// one. A nil a is ignored.
func (r *ReloadableAuthenticator) Swap(a *HeaderAuthenticator) *HeaderAuthenticator {
	if a == nil {
		return r.current.Load()
	}
	return r.current.Swap(a)
}

// Current returns the authenticator in use.
func (r *ReloadableAuthenticator) Current() *HeaderAuthenticator {
	return r.current.Load()
}

// Authenticate implements Authenticator.
func (r *ReloadableAuthenticator) Authenticate(req *http.Request) (*Result, error) {
	return r.current.Load().Authenticate(req)
}

// Method returns the authentication method type.
func (r *ReloadableAuthenticator) Method() AuthMethod {
	return AuthMethodHeader
}

// Scheme returns the scheme of the current authenticator.
func (r *ReloadableAuthenticator) Scheme() string {
	return r.current.Load().Scheme()
}
