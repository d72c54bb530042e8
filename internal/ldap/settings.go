package ldap

import (
	"errors"
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-ldap/ldap/v3"
)

// Settings holds every tunable for one authentication attempt.
//
// Settings is passed by value into each attempt, so a caller changing its own
// copy afterwards never affects a request in flight. Empty strings mean
// "not set".
type Settings struct {
	// TLS settings
	UseStartTLS    bool   // Negotiate STARTTLS over an ldap:// URL
	CACertPath     string // PEM CA certificate added to the trusted roots
	ClientCertPath string // PEM client certificate for mutual TLS
	ClientKeyPath  string // PEM private key matching ClientCertPath

	// Direct bind: DN = BindDNPrefix + username + BindDNSuffix
	BindDNPrefix string
	BindDNSuffix string

	// Search-then-bind settings
	SearchBase         string
	SearchScope        SearchScope `default:"sub"`
	SearchFilter       string      `default:"objectClass=*"`
	SearchAttribute    string      `default:"uid"`
	SearchBindDN       string
	SearchBindPassword string
	SearchDNAttribute  string `default:"entryDN"`

	// EscapeUsername escapes the username before it is interpolated into a DN
	// or a search filter. Off by default for compatibility with existing
	// configurations that rely on raw interpolation.
	EscapeUsername bool
}

// WithDefaults returns a copy with unset fields filled from their defaults.
// A recognised scope spelling such as "subtree" is normalised to its short
// form; an unrecognised one is left for ValidateSearch to report.
func (s Settings) WithDefaults() (Settings, error) {
	if err := defaults.Set(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to set default values: %w", err)
	}
	if scope, err := ParseSearchScope(string(s.SearchScope)); err == nil {
		s.SearchScope = scope
	}
	return s, nil
}

// ValidateSearch checks the search settings after defaults have been
// applied. Direct bind does not use them.
func (s Settings) ValidateSearch() error {
	if _, err := s.SearchScope.ldapScope(); err != nil {
		return err
	}
	if s.SearchDNAttribute == "" {
		return errors.New("search DN attribute cannot be empty")
	}
	return nil
}

// requiresClientCert reports whether mutual TLS material is configured.
func (s Settings) requiresClientCert() bool {
	return s.ClientCertPath != ""
}

// hasServiceAccount reports whether a service-account bind precedes the search.
func (s Settings) hasServiceAccount() bool {
	return s.SearchBindDN != "" && s.SearchBindPassword != ""
}

// UserDN synthesizes the direct-bind DN for username.
func (s Settings) UserDN(username string) string {
	if s.EscapeUsername {
		username = EscapeDNValue(username)
	}
	return s.BindDNPrefix + username + s.BindDNSuffix
}

// UserFilter composes the search filter used to locate username.
func (s Settings) UserFilter(username string) string {
	filter := s.SearchFilter
	if filter == "" {
		filter = "objectClass=*"
	}
	attribute := s.SearchAttribute
	if attribute == "" {
		attribute = "uid"
	}
	if s.EscapeUsername {
		username = ldap.EscapeFilter(username)
	}
	return fmt.Sprintf("(&(%s)(%s=%s))", filter, attribute, username)
}
