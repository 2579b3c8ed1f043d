// Package crisis detects help-seeking destinations that bypass concern detection.
package crisis

import (
	_ "embed"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/idna"
	"gopkg.in/yaml.v3"
)

//go:embed domains.yaml
var embeddedDomains []byte

// Domain is a protected help-seeking destination.
type Domain struct {
	Host string `yaml:"host"`
	Name string `yaml:"name"`
}

type domainList struct {
	Domains []Domain `yaml:"domains"`
}

// Detector matches URLs against the protected domain set.
// A Detector is immutable after construction and safe for concurrent use.
type Detector struct {
	domains map[string]Domain
}

// New builds a Detector from the embedded domain list plus any extra hosts.
func New(extra ...string) (*Detector, error) {
	var list domainList
	if err := yaml.Unmarshal(embeddedDomains, &list); err != nil {
		return nil, fmt.Errorf("parse embedded crisis domains: %w", err)
	}

	for _, host := range extra {
		list.Domains = append(list.Domains, Domain{Host: host})
	}

	return NewFromDomains(list.Domains)
}

// NewFromDomains builds a Detector from an explicit domain set.
func NewFromDomains(domains []Domain) (*Detector, error) {
	d := &Detector{domains: make(map[string]Domain, len(domains))}

	for _, domain := range domains {
		host, err := NormalizeHost(domain.Host)
		if err != nil || host == "" {
			return nil, fmt.Errorf("invalid crisis domain %q: %v", domain.Host, err)
		}
		domain.Host = host
		d.domains[host] = domain
	}

	return d, nil
}

// IsProtected reports whether rawURL points at a protected destination.
// Nil, empty, malformed and non-http(s) URLs are never protected.
func (d *Detector) IsProtected(rawURL *string) bool {
	if rawURL == nil {
		return false
	}
	_, ok := d.Match(*rawURL)
	return ok
}

// Match returns the protected domain rawURL resolves to, matching the
// hostname exactly or on any dot-boundary ancestor.
func (d *Detector) Match(rawURL string) (Domain, bool) {
	host, ok := hostname(rawURL)
	if !ok {
		return Domain{}, false
	}

	for candidate := host; candidate != ""; {
		if domain, ok := d.domains[candidate]; ok {
			return domain, true
		}
		_, parent, found := strings.Cut(candidate, ".")
		if !found {
			break
		}
		candidate = parent
	}

	return Domain{}, false
}

// Domains returns the protected domains sorted by host.
func (d *Detector) Domains() []Domain {
	out := make([]Domain, 0, len(d.domains))
	for _, domain := range d.domains {
		out = append(out, domain)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Host < out[j].Host })
	return out
}

// NormalizeHost lowercases host, strips a trailing dot, and converts
// internationalized labels to their ASCII form.
func NormalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	if host == "" {
		return "", nil
	}
	return idna.Punycode.ToASCII(host)
}

func hostname(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	host, err := NormalizeHost(u.Hostname())
	if err != nil || host == "" {
		return "", false
	}

	return host, true
}
