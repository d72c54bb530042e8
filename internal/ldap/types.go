package ldap

import (
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Conn is the subset of *ldap.Conn used by an authentication attempt.
type Conn interface {
	Bind(username, password string) error
	Search(searchRequest *ldap.SearchRequest) (*ldap.SearchResult, error)
	StartTLS(config *tls.Config) error
	Unbind() error
}

// Dialer opens a connection to a single LDAP URL.
type Dialer interface {
	DialURL(addr string, opts ...ldap.DialOpt) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(addr string, opts ...ldap.DialOpt) (Conn, error)

func (f DialerFunc) DialURL(addr string, opts ...ldap.DialOpt) (Conn, error) {
	return f(addr, opts...)
}

// StandardDialer dials with go-ldap.
type StandardDialer struct{}

// DialURL connects to addr and returns the live *ldap.Conn.
func (StandardDialer) DialURL(addr string, opts ...ldap.DialOpt) (Conn, error) {
	conn, err := ldap.DialURL(addr, opts...)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// SearchScope defines LDAP search scope.
type SearchScope string

const (
	ScopeBaseObject   SearchScope = "base"
	ScopeSingleLevel  SearchScope = "one"
	ScopeWholeSubtree SearchScope = "sub"
)

// ParseSearchScope accepts the short names as well as the spelled-out forms
// used by most directory tooling.
func ParseSearchScope(s string) (SearchScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "base", "baseobject":
		return ScopeBaseObject, nil
	case "one", "onelevel", "singlelevel":
		return ScopeSingleLevel, nil
	case "sub", "subtree", "wholesubtree":
		return ScopeWholeSubtree, nil
	default:
		return "", fmt.Errorf("unknown search scope %q (expected base, one or sub)", s)
	}
}

func (s SearchScope) String() string {
	return string(s)
}

// ldapScope converts the scope to the go-ldap wire constant.
func (s SearchScope) ldapScope() (int, error) {
	switch s {
	case ScopeBaseObject:
		return ldap.ScopeBaseObject, nil
	case ScopeSingleLevel:
		return ldap.ScopeSingleLevel, nil
	case ScopeWholeSubtree:
		return ldap.ScopeWholeSubtree, nil
	default:
		return 0, fmt.Errorf("unknown search scope %q", string(s))
	}
}

// Strategy names an authentication strategy in logs and metrics.
type Strategy string

const (
	StrategyBind          Strategy = "bind"
	StrategySearchAndBind Strategy = "search_and_bind"
)
