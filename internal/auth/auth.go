// Package auth scopes a bearer access token to the URI prefixes that belong
// to the current collection, so the token is never sent to another tenant.
package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	// ErrInvalidURI is returned when a collection URI is not an absolute
	// http(s) URI with a host.
	ErrInvalidURI = errors.New("invalid collection URI")
	// ErrUnscopedToken is returned when a token is supplied without prefixes.
	ErrUnscopedToken = errors.New("access token has no URI prefixes")
)

// Info carries an access token together with the URI prefixes it may be
// attached to. It is immutable after construction.
type Info struct {
	uriPrefixes []string
	accessToken string
}

// NewInfo builds an Info. A non-empty token requires at least one prefix.
func NewInfo(uriPrefixes []string, accessToken string) (Info, error) {
	if accessToken != "" && len(uriPrefixes) == 0 {
		return Info{}, ErrUnscopedToken
	}
	return Info{
		uriPrefixes: append([]string(nil), uriPrefixes...),
		accessToken: accessToken,
	}, nil
}

// URIPrefixes returns a copy of the scoping prefixes.
func (i Info) URIPrefixes() []string {
	return append([]string(nil), i.uriPrefixes...)
}

// AccessToken returns the bearer token.
func (i Info) AccessToken() string {
	return i.accessToken
}

// Matches reports whether uri starts with one of the prefixes, ignoring case.
func (i Info) Matches(uri string) bool {
	upper := strings.ToUpper(uri)
	for _, prefix := range i.uriPrefixes {
		if prefix != "" && strings.HasPrefix(upper, strings.ToUpper(prefix)) {
			return true
		}
	}
	return false
}

// ParseCollectionURI parses and validates a collection base URI.
func ParseCollectionURI(collectionURI string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(collectionURI))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURI, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q is not an http(s) URI", ErrInvalidURI, collectionURI)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidURI, collectionURI)
	}
	return u, nil
}
