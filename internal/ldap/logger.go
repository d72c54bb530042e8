package ldap

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

const (
	subsystemLDAP = "ldap"

	// LogLevelEnv selects the level of the ldap logging subsystem.
	LogLevelEnv = "LDAPAUTH_LOG_LDAP"
)

// NewLoggingContext registers the ldap logging subsystem on ctx. Hosts call
// it once and pass the result to every authentication attempt; without it
// subsystem log lines are dropped.
func NewLoggingContext(ctx context.Context) context.Context {
	return tflog.NewSubsystem(ctx, subsystemLDAP,
		tflog.WithLevelFromEnv(LogLevelEnv))
}

// LogOperation is a helper function to log an operation with timing.
func LogOperation(ctx context.Context, subsystem, operation string, fields map[string]any, fn func() error) error {
	start := time.Now()

	// Add operation to fields
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	tflog.SubsystemDebug(ctx, subsystem, "Starting operation", SanitizeFields(fields))

	err := fn()

	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		fields["error_kind"] = KindOf(err).String()

		var authErr *Error
		if errors.As(err, &authErr) {
			fields["error_category"] = string(authErr.Category())
		}
		tflog.SubsystemError(ctx, subsystem, "Operation failed", SanitizeFields(fields))
	} else {
		tflog.SubsystemDebug(ctx, subsystem, "Operation completed successfully", SanitizeFields(fields))
	}

	return err
}

// LogLDAPError logs LDAP-specific error information.
func LogLDAPError(ctx context.Context, subsystem string, operation string, err error, fields map[string]any) {
	logFields := make(map[string]any, len(fields)+4)
	for k, v := range fields {
		logFields[k] = v
	}

	logFields["operation"] = operation
	logFields["error"] = err.Error()

	// Add LDAP-specific error information if available
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		logFields["ldap_result_code"] = ldapErr.ResultCode
		if name, ok := ldap.LDAPResultCodeMap[ldapErr.ResultCode]; ok {
			logFields["ldap_result"] = name
		}
		if ldapErr.MatchedDN != "" {
			logFields["ldap_matched_dn"] = ldapErr.MatchedDN
		}
		if ldapErr.Err != nil {
			logFields["ldap_diagnostic_message"] = ldapErr.Err.Error()
		}
	}

	tflog.SubsystemError(ctx, subsystem, "LDAP operation failed", SanitizeFields(logFields))
}

// LogConnectionEvent logs connection-related events.
func LogConnectionEvent(ctx context.Context, event string, fields map[string]any) {
	logFields := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		logFields[k] = v
	}
	logFields["event"] = event

	switch event {
	case "connection_established":
		tflog.SubsystemInfo(ctx, subsystemLDAP, "Connection event", logFields)
	case "connection_failed":
		tflog.SubsystemError(ctx, subsystemLDAP, "Connection event", logFields)
	default:
		tflog.SubsystemDebug(ctx, subsystemLDAP, "Connection event", logFields)
	}
}

// SanitizeFields removes sensitive information from log fields.
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))

	sensitiveKeys := map[string]bool{
		"password":    true,
		"passwd":      true,
		"secret":      true,
		"token":       true,
		"private_key": true,
		"credential":  true,
		"credentials": true,
	}

	for k, v := range fields {
		if sensitiveKeys[k] {
			sanitized[k] = "[REDACTED]"
			continue
		}
		if str, ok := v.(string); ok && containsSensitivePattern(str) {
			sanitized[k] = "[REDACTED]"
			continue
		}
		sanitized[k] = v
	}

	return sanitized
}

// containsSensitivePattern checks if a string contains patterns that might be sensitive.
func containsSensitivePattern(s string) bool {
	patterns := []string{
		"password=",
		"passwd=",
		"secret=",
		"token=",
	}

	lower := strings.ToLower(s)
	for _, pattern := range patterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}

	return false
}
