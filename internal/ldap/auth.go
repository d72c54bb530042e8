package ldap

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Authenticator verifies user credentials against the configured directory
// servers. It is safe for concurrent use; each call opens and releases its
// own connection.
type Authenticator struct {
	registry *ServerRegistry
	dialer   Dialer
	metrics  *Metrics
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithDialer replaces the go-ldap dialer.
func WithDialer(d Dialer) Option {
	return func(a *Authenticator) {
		if d != nil {
			a.dialer = d
		}
	}
}

// WithRegistry shares an existing server registry.
func WithRegistry(r *ServerRegistry) Option {
	return func(a *Authenticator) {
		if r != nil {
			a.registry = r
		}
	}
}

// WithMetrics records attempt outcomes into m.
func WithMetrics(m *Metrics) Option {
	return func(a *Authenticator) {
		a.metrics = m
	}
}

// NewAuthenticator creates an Authenticator with an empty server registry.
func NewAuthenticator(opts ...Option) *Authenticator {
	a := &Authenticator{
		registry: NewServerRegistry(),
		dialer:   StandardDialer{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Registry returns the server registry used by a.
func (a *Authenticator) Registry() *ServerRegistry {
	return a.registry
}

// ReplaceServers replaces the configured server list.
func (a *Authenticator) ReplaceServers(servers ...*url.URL) {
	a.registry.Replace(servers...)
}

// AddServer appends a server to the configured list.
func (a *Authenticator) AddServer(server *url.URL) {
	a.registry.Add(server)
}

// Bind authenticates username by binding directly as the DN synthesized from
// the configured prefix and suffix.
func (a *Authenticator) Bind(ctx context.Context, settings Settings, username, password string) error {
	return a.run(ctx, StrategyBind, settings, username, func(s *Session) error {
		return s.bind(s.settings.UserDN(username), password, KindBind)
	})
}

// SearchAndBind authenticates username by locating its entry with a directory
// search, optionally as a service account, and then binding as the DN found.
func (a *Authenticator) SearchAndBind(ctx context.Context, settings Settings, username, password string) error {
	return a.run(ctx, StrategySearchAndBind, settings, username, func(s *Session) error {
		dn, err := s.search(username)
		if err != nil {
			return err
		}
		return s.bind(dn, password, KindBind)
	})
}

// run applies defaults, opens a session against the picked server, runs fn
// and always releases the session.
func (a *Authenticator) run(ctx context.Context, strategy Strategy, settings Settings, username string, fn func(*Session) error) error {
	start := time.Now()

	fields := map[string]any{
		"attempt_id": uuid.NewString(),
		"strategy":   string(strategy),
		"username":   username,
	}

	err := LogOperation(ctx, subsystemLDAP, "authenticate", fields, func() error {
		resolved, err := settings.WithDefaults()
		if err != nil {
			return err
		}
		if strategy == StrategySearchAndBind {
			if err := resolved.ValidateSearch(); err != nil {
				return fmt.Errorf("invalid settings: %w", err)
			}
		}

		server, err := a.registry.Pick()
		if err != nil {
			return err
		}

		session, err := openSession(ctx, a.dialer, resolved, server)
		if err != nil {
			return err
		}
		defer session.Close()

		return fn(session)
	})

	a.metrics.observe(strategy, err, time.Since(start))

	if err == nil {
		tflog.SubsystemInfo(ctx, subsystemLDAP, "Authentication successful", map[string]any{
			"strategy": string(strategy),
			"username": username,
		})
	}

	return err
}
