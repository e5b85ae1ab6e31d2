package auth

import (
	"net/http"
	"slices"
	"strings"
)

// HeaderView is a read-only view of one request's headers. Lookup must
// match names case-insensitively, return the same answer on every call, and
// report a present header with an empty value as ("", true).
type HeaderView interface {
	Lookup(name string) (string, bool)
}

// HTTPHeaderView adapts http.Header. Repeated field lines are joined with
// a comma.
type HTTPHeaderView http.Header

// Lookup implements HeaderView. Keys written to the map directly may differ
// from the canonical form only in case; all such variants are merged, the
// canonical key first and the rest in sorted order.
func (h HTTPHeaderView) Lookup(name string) (string, bool) {
	canonical := http.CanonicalHeaderKey(name)

	var values []string
	for _, k := range matchingKeys(map[string][]string(h), name, canonical) {
		values = append(values, h[k]...)
	}
	if len(values) == 0 {
		return "", false
	}

	return strings.Join(values, ","), true
}

// HeaderMap is a HeaderView over a plain single-valued map. An exact key
// match wins; otherwise the smallest case variant in byte order is used.
type HeaderMap map[string]string

// Lookup implements HeaderView.
func (h HeaderMap) Lookup(name string) (string, bool) {
	keys := matchingKeys(map[string]string(h), name, name)
	if len(keys) == 0 {
		return "", false
	}

	return h[keys[0]], true
}

// matchingKeys returns the keys of m equal to name ignoring case, with
// preferred first when present and the others sorted.
func matchingKeys[V any](m map[string]V, name, preferred string) []string {
	var rest []string
	for k := range m {
		if k != preferred && strings.EqualFold(k, name) {
			rest = append(rest, k)
		}
	}
	slices.Sort(rest)

	if _, ok := m[preferred]; ok {
		return append([]string{preferred}, rest...)
	}
	return rest
}
