package wiki

import (
	"fmt"
	"strings"
)

// SiteCapabilities describes what a remote site supports and how to reach it.
// Callers and the client depend on this interface rather than a concrete
// site type, so site-family variants compose instead of subclassing.
type SiteCapabilities interface {
	// APIURL is the endpoint every request goes to.
	APIURL() string

	// Domain is the endpoint identity recorded in session snapshots.
	Domain() string

	// PageLimit is the per-request page size: elevated once the session has
	// confirmed the high-request-quota capability.
	PageLimit(elevated bool) int

	// Signature is appended to the client's User-Agent.
	Signature() string
}

// Site is a standalone wiki reached through a single API endpoint.
type Site struct {
	domain string
	apiURL string
}

// NewSite builds capabilities for a standalone wiki from its hostname.
func NewSite(domain string) *Site {
	return &Site{
		domain: domain,
		apiURL: fmt.Sprintf("https://%s/w/api.php", domain),
	}
}

// siteForEndpoint derives a Site from a full API URL.
func siteForEndpoint(endpoint string) *Site {
	domain := endpoint
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	if i := strings.IndexByte(domain, '/'); i >= 0 {
		domain = domain[:i]
	}
	return &Site{domain: domain, apiURL: endpoint}
}

func (s *Site) APIURL() string { return s.apiURL }
func (s *Site) Domain() string { return s.domain }

func (s *Site) PageLimit(elevated bool) int {
	if elevated {
		return ElevatedQueryLimit
	}
	return DefaultQueryLimit
}

func (s *Site) Signature() string { return "" }

// FarmSite is a member of a wiki farm. Farm members share a central login
// domain, carry a farm marker in the client signature, and an account whose
// session was invalidated on one member must be treated as logged out on all
// of them.
type FarmSite struct {
	Site
	farm string
}

// NewFarmSite builds capabilities for a wiki that belongs to the named farm.
func NewFarmSite(domain, farm string) *FarmSite {
	return &FarmSite{
		Site: Site{
			domain: domain,
			apiURL: fmt.Sprintf("https://%s/w/api.php", domain),
		},
		farm: farm,
	}
}

// Farm is the central domain the member belongs to.
func (s *FarmSite) Farm() string { return s.farm }

func (s *FarmSite) Signature() string {
	return fmt.Sprintf("farm/%s", s.farm)
}
