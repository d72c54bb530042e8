package ldap

import (
	"context"
	"crypto/tls"
	"net/url"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// Session owns one live LDAP connection plus the settings that produced it.
// It lives for exactly one authentication attempt.
type Session struct {
	ctx      context.Context // Logging context with the ldap subsystem
	conn     Conn
	settings Settings
	server   *url.URL
	closed   bool
}

// openSession connects to server using the transport security that settings
// and the URL scheme call for.
func openSession(ctx context.Context, dialer Dialer, settings Settings, server *url.URL) (*Session, error) {
	implicitTLS := isImplicitTLS(server)
	startTLS := settings.UseStartTLS && !implicitTLS

	fields := map[string]any{
		"server":       redactURL(server),
		"implicit_tls": implicitTLS,
		"start_tls":    startTLS,
	}

	var tlsConfig *tls.Config
	var opts []ldap.DialOpt
	if implicitTLS || startTLS {
		var err error
		tlsConfig, err = buildTLSConfig(settings, server.Hostname())
		if err != nil {
			fields["error"] = err.Error()
			tflog.SubsystemError(ctx, subsystemLDAP, "Failed to prepare TLS configuration", fields)
			return nil, err
		}
		fields["ca_cert"] = settings.CACertPath != ""
		fields["client_cert"] = settings.requiresClientCert()
		if implicitTLS {
			opts = append(opts, ldap.DialWithTLSConfig(tlsConfig))
		}
	}

	LogConnectionEvent(ctx, "connection_attempt", fields)

	conn, err := dialer.DialURL(server.String(), opts...)
	if err != nil {
		LogLDAPError(ctx, subsystemLDAP, "dial", err, fields)
		return nil, newProtocolError(KindCreateContext, "", err)
	}

	if startTLS {
		if err := conn.StartTLS(tlsConfig); err != nil {
			_ = conn.Unbind()
			LogLDAPError(ctx, subsystemLDAP, "start_tls", err, fields)
			return nil, newProtocolError(KindCreateContext, "", err)
		}
	}

	LogConnectionEvent(ctx, "connection_established", fields)

	return &Session{
		ctx:      ctx,
		conn:     conn,
		settings: settings,
		server:   server,
	}, nil
}

// Close unbinds and releases the connection. It is safe to call more than
// once; only the first call touches the connection and its error is dropped.
func (s *Session) Close() {
	if s == nil || s.closed {
		return
	}
	s.closed = true

	if err := s.conn.Unbind(); err != nil {
		tflog.SubsystemTrace(s.ctx, subsystemLDAP, "Ignoring unbind failure", map[string]any{
			"error": err.Error(),
		})
	}
}

// bind performs a simple bind as dn. kind selects which error the failure
// is reported as.
func (s *Session) bind(dn, password string, kind ErrorKind) error {
	fields := map[string]any{
		"dn":        dn,
		"bind_kind": kind.String(),
	}

	tflog.SubsystemDebug(s.ctx, subsystemLDAP, "Performing simple bind", fields)

	if err := s.conn.Bind(dn, password); err != nil {
		LogLDAPError(s.ctx, subsystemLDAP, "simple_bind", err, fields)
		return newProtocolError(kind, dn, err)
	}

	tflog.SubsystemDebug(s.ctx, subsystemLDAP, "Simple bind successful", fields)
	return nil
}

// search resolves username to the DN of its single directory entry.
func (s *Session) search(username string) (string, error) {
	settings := s.settings

	if settings.hasServiceAccount() {
		if err := s.bind(settings.SearchBindDN, settings.SearchBindPassword, KindAdminBind); err != nil {
			return "", err
		}
	}

	scope, err := settings.SearchScope.ldapScope()
	if err != nil {
		return "", err
	}

	filter := settings.UserFilter(username)
	fields := map[string]any{
		"base_dn":    settings.SearchBase,
		"scope":      settings.SearchScope.String(),
		"filter":     filter,
		"attributes": []string{settings.SearchDNAttribute},
	}

	tflog.SubsystemDebug(s.ctx, subsystemLDAP, "Starting user search", fields)

	req := ldap.NewSearchRequest(
		settings.SearchBase,
		scope,
		ldap.NeverDerefAliases,
		0, 0, false, // No size or time limit; the server's own limits apply
		filter,
		[]string{settings.SearchDNAttribute},
		nil,
	)

	result, err := s.conn.Search(req)
	if err != nil {
		LogLDAPError(s.ctx, subsystemLDAP, "search", err, fields)
		return "", &Error{Kind: KindSearch, Filter: filter, Cause: err}
	}

	fields["entries_found"] = len(result.Entries)
	tflog.SubsystemDebug(s.ctx, subsystemLDAP, "User search completed", fields)

	switch len(result.Entries) {
	case 0:
		return "", newFilterError(KindNoEntryFound, filter)
	case 1:
	default:
		return "", newFilterError(KindMultipleEntriesFound, filter)
	}

	entry := result.Entries[0]
	dn, ok := firstAttributeValue(entry, settings.SearchDNAttribute)
	if !ok {
		return "", &Error{
			Kind:      KindNoDNAttributeFound,
			Filter:    filter,
			Attribute: settings.SearchDNAttribute,
			DN:        entry.DN,
		}
	}

	return dn, nil
}

// firstAttributeValue returns the first value of attribute, matching the
// attribute name case-insensitively as LDAP does.
func firstAttributeValue(entry *ldap.Entry, attribute string) (string, bool) {
	if entry == nil {
		return "", false
	}
	for _, attr := range entry.Attributes {
		if strings.EqualFold(attr.Name, attribute) && len(attr.Values) > 0 {
			return attr.Values[0], true
		}
	}
	return "", false
}

// redactURL renders u without any userinfo password.
func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}
