package discovery

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Scope is the site a root URL belongs to: its registrable domain (eTLD+1)
// and every subdomain of it. Hosts without a public suffix, such as IP
// addresses and single-label names, scope to themselves.
type Scope struct {
	site string
}

// NewScope derives the scope of rootURL.
func NewScope(rootURL string) (*Scope, error) {
	u, err := url.Parse(rootURL)
	if err != nil {
		return nil, fmt.Errorf("invalid root url %q: %w", rootURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("root url %q must be http or https", rootURL)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("root url %q has no hostname", rootURL)
	}
	if net.ParseIP(host) != nil {
		return &Scope{site: host}, nil
	}
	// publicsuffix handles multi-label suffixes such as co.jp.
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		site = host
	}
	return &Scope{site: site}, nil
}

// Site returns the registrable domain.
func (s *Scope) Site() string { return s.site }

// Contains reports whether raw is an http(s) URL on the site.
func (s *Scope) Contains(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == s.site || strings.HasSuffix(host, "."+s.site)
}
