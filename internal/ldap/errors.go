package ldap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrorKind identifies which step of an authentication attempt failed.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindIO
	KindNoTLSKeyPathSet
	KindTLS
	KindBind
	KindAdminBind
	KindSearch
	KindCreateContext
	KindNoEntryFound
	KindMultipleEntriesFound
	KindNoServerConfigured
	KindNoDNAttributeFound
)

// String returns the snake_case name used in logs and metric labels.
func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "io_error"
	case KindNoTLSKeyPathSet:
		return "no_tls_key_path_set"
	case KindTLS:
		return "tls_error"
	case KindBind:
		return "bind_error"
	case KindAdminBind:
		return "admin_bind_error"
	case KindSearch:
		return "search_error"
	case KindCreateContext:
		return "create_context_error"
	case KindNoEntryFound:
		return "no_entry_found"
	case KindMultipleEntriesFound:
		return "multiple_entries_found"
	case KindNoServerConfigured:
		return "no_server_configured"
	case KindNoDNAttributeFound:
		return "no_dn_attribute_found"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. Matching compares kinds only.
var (
	ErrIO                   = &Error{Kind: KindIO}
	ErrNoTLSKeyPathSet      = &Error{Kind: KindNoTLSKeyPathSet}
	ErrTLS                  = &Error{Kind: KindTLS}
	ErrBind                 = &Error{Kind: KindBind}
	ErrAdminBind            = &Error{Kind: KindAdminBind}
	ErrSearch               = &Error{Kind: KindSearch}
	ErrCreateContext        = &Error{Kind: KindCreateContext}
	ErrNoEntryFound         = &Error{Kind: KindNoEntryFound}
	ErrMultipleEntriesFound = &Error{Kind: KindMultipleEntriesFound}
	ErrNoServerConfigured   = &Error{Kind: KindNoServerConfigured}
	ErrNoDNAttributeFound   = &Error{Kind: KindNoDNAttributeFound}
)

// Error is the single error type returned by an authentication attempt.
type Error struct {
	Kind      ErrorKind
	Message   string // Context phrase for I/O and TLS failures
	Filter    string // Composed search filter, when the search ran
	Attribute string // DN attribute that was missing
	DN        string // DN of the entry involved, if any
	Cause     error  // Underlying I/O, TLS or protocol error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNoTLSKeyPathSet:
		return "no TLS key path specified. Please set the client key path (--client-key / LDAPAUTH_CLIENT_KEY)"
	case KindIO, KindTLS:
		return e.withCause(e.Message)
	case KindBind:
		return e.withCause("error in bind operation")
	case KindAdminBind:
		return e.withCause("error in binding admin user")
	case KindSearch:
		return e.withCause("failed to search ldap user")
	case KindCreateContext:
		return e.withCause("failed to create LDAP connection context")
	case KindNoEntryFound:
		return fmt.Sprintf("search filter '%s' returned no entries", e.Filter)
	case KindMultipleEntriesFound:
		return fmt.Sprintf("search filter '%s' returned multiple entries", e.Filter)
	case KindNoServerConfigured:
		return "no server set in configuration. Please set a server URL (--server / LDAPAUTH_SERVER)"
	case KindNoDNAttributeFound:
		return fmt.Sprintf("entry '%s' matched by search filter '%s' has no '%s' attribute", e.DN, e.Filter, e.Attribute)
	default:
		return e.withCause("ldap authentication failed")
	}
}

func (e *Error) withCause(msg string) string {
	if e.Cause == nil {
		return msg
	}
	return msg + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, which makes the exported sentinels
// usable with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// LDAPCode returns the LDAP result code of the underlying protocol error, or 0.
func (e *Error) LDAPCode() uint16 {
	var ldapErr *ldap.Error
	if errors.As(e.Cause, &ldapErr) {
		return ldapErr.ResultCode
	}
	return 0
}

// Category returns the broad category of the failure.
func (e *Error) Category() ErrorCategory {
	switch e.Kind {
	case KindIO, KindNoTLSKeyPathSet, KindTLS, KindNoServerConfigured:
		return ErrorCategoryConfiguration
	case KindNoEntryFound, KindMultipleEntriesFound, KindNoDNAttributeFound:
		return ErrorCategoryNotFound
	case KindCreateContext:
		if code := e.LDAPCode(); code != 0 {
			return categorizeError(code)
		}
		return ErrorCategoryConnection
	}

	if code := e.LDAPCode(); code != 0 {
		return categorizeError(code)
	}
	if e.Cause != nil {
		return categorizeGenericError(e.Cause)
	}
	return ErrorCategoryUnknown
}

func newError(kind ErrorKind) *Error {
	return &Error{Kind: kind}
}

func newIOError(msg string, cause error) *Error {
	return &Error{Kind: KindIO, Message: msg, Cause: cause}
}

func newTLSError(msg string, cause error) *Error {
	return &Error{Kind: KindTLS, Message: msg, Cause: cause}
}

func newProtocolError(kind ErrorKind, dn string, cause error) *Error {
	return &Error{Kind: kind, DN: dn, Cause: cause}
}

func newFilterError(kind ErrorKind, filter string) *Error {
	return &Error{Kind: kind, Filter: filter}
}

// KindOf returns the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ErrorCategory represents different categories of LDAP errors.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryConfiguration  ErrorCategory = "configuration"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

// categorizeError categorizes an error based on LDAP result code.
func categorizeError(code uint16) ErrorCategory {
	switch code {
	// Authentication errors
	case ldap.LDAPResultInvalidCredentials,
		ldap.LDAPResultInappropriateAuthentication,
		ldap.LDAPResultStrongAuthRequired,
		ldap.LDAPResultConfidentialityRequired,
		ldap.ErrorEmptyPassword:
		return ErrorCategoryAuthentication

	// Permission errors
	case ldap.LDAPResultInsufficientAccessRights,
		ldap.LDAPResultUnwillingToPerform:
		return ErrorCategoryPermission

	// Not found errors
	case ldap.LDAPResultNoSuchObject:
		return ErrorCategoryNotFound

	// Server errors
	case ldap.LDAPResultServerDown,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultBusy,
		ldap.LDAPResultTimeLimitExceeded,
		ldap.LDAPResultSizeLimitExceeded,
		ldap.LDAPResultAdminLimitExceeded:
		return ErrorCategoryServer

	// Connection errors
	case ldap.LDAPResultConnectError,
		ldap.LDAPResultProtocolError,
		ldap.ErrorNetwork:
		return ErrorCategoryConnection

	default:
		return ErrorCategoryUnknown
	}
}

// categorizeGenericError categorizes non-LDAP errors.
func categorizeGenericError(err error) ErrorCategory {
	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "broken pipe") {
		return ErrorCategoryConnection
	}

	if strings.Contains(errStr, "credentials") ||
		strings.Contains(errStr, "password") {
		return ErrorCategoryAuthentication
	}

	return ErrorCategoryUnknown
}
