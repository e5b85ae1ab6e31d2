package auth

import (
	"fmt"
	"strings"
)

// Defaults applied by NewHeaderAuthenticator.
const (
	DefaultIssuer = "Shibbolizer"
	DefaultScheme = "Shibbolizer"
)

// MultiClaimHeader maps one header to a parser that splits its value into
// several claims of the same type.
type MultiClaimHeader struct {
	Header string
	Parser Parser
}

// Options configures a HeaderAuthenticator.
type Options struct {
	// UsernameHeader holds the primary identifier. Required.
	UsernameHeader string
	// ClaimHeaders each yield one claim typed by the header name.
	ClaimHeaders []string
	// MultiClaimHeaders each yield one claim per parsed token.
	MultiClaimHeaders []MultiClaimHeader
	// Issuer tags the identity and every claim. Defaults to DefaultIssuer.
	Issuer string
	// Scheme names the authentication scheme on the ticket. Defaults to
	// DefaultScheme.
	Scheme string
}

// ConfigurationError reports an unusable Options value.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrConfiguration, e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrConfiguration) match any ConfigurationError.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// Validate checks that the options can authenticate requests.
func (o Options) Validate() error {
	if strings.TrimSpace(o.UsernameHeader) == "" {
		return &ConfigurationError{
			Field:  "UsernameHeader",
			Reason: "must not be empty",
		}
	}

	for i, mch := range o.MultiClaimHeaders {
		if mch.Parser == nil {
			return &ConfigurationError{
				Field:  fmt.Sprintf("MultiClaimHeaders[%d] (%s)", i, mch.Header),
				Reason: "has no parser",
			}
		}
	}

	return nil
}

// withDefaults returns a copy of o with defaults applied and slices cloned
// so later changes by the caller cannot reach the authenticator.
func (o Options) withDefaults() Options {
	if o.Issuer == "" {
		o.Issuer = DefaultIssuer
	}
	if o.Scheme == "" {
		o.Scheme = DefaultScheme
	}

	o.ClaimHeaders = append([]string(nil), o.ClaimHeaders...)
	o.MultiClaimHeaders = append([]MultiClaimHeader(nil), o.MultiClaimHeaders...)

	return o
}
