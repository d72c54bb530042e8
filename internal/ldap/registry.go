package ldap

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// ServerRegistry is the ordered list of configured directory servers shared
// by all authentication attempts of one Authenticator.
type ServerRegistry struct {
	mu      sync.Mutex
	servers []*url.URL
}

// NewServerRegistry creates an empty registry.
func NewServerRegistry() *ServerRegistry {
	return &ServerRegistry{}
}

// Clear removes all configured servers.
func (r *ServerRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.servers = nil
}

// Add appends a server to the end of the list. Duplicates are kept.
func (r *ServerRegistry) Add(u *url.URL) {
	if u == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.servers = append(r.servers, cloneURL(u))
}

// Replace swaps the whole list in a single critical section, so a concurrent
// Pick never observes the list half-rebuilt.
func (r *ServerRegistry) Replace(urls ...*url.URL) {
	servers := make([]*url.URL, 0, len(urls))
	for _, u := range urls {
		if u != nil {
			servers = append(servers, cloneURL(u))
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.servers = servers
}

// Pick returns the server to use for the next attempt: currently the first
// configured one.
func (r *ServerRegistry) Pick() (*url.URL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.servers) == 0 {
		return nil, newError(KindNoServerConfigured)
	}
	return cloneURL(r.servers[0]), nil
}

// Servers returns a copy of the configured list.
func (r *ServerRegistry) Servers() []*url.URL {
	r.mu.Lock()
	defer r.mu.Unlock()

	servers := make([]*url.URL, len(r.servers))
	for i, u := range r.servers {
		servers[i] = cloneURL(u)
	}
	return servers
}

// Len returns the number of configured servers.
func (r *ServerRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.servers)
}

func cloneURL(u *url.URL) *url.URL {
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}

// ParseServerURL parses and validates an LDAP server URL.
// Supported formats:
//   - ldap://host:port
//   - ldaps://host:port
//   - ldap://host (default port 389)
//   - ldaps://host (default port 636)
func ParseServerURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("server URL cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", raw, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "ldap", "ldaps":
		u.Scheme = strings.ToLower(u.Scheme)
	default:
		return nil, fmt.Errorf("unsupported scheme %q in server URL %q (expected ldap or ldaps)", u.Scheme, raw)
	}

	if u.Hostname() == "" {
		return nil, fmt.Errorf("server URL %q has no host", raw)
	}

	return u, nil
}

// isImplicitTLS reports whether the URL scheme requests TLS from connection start.
func isImplicitTLS(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, "ldaps")
}
