/*
Package ldap verifies user credentials against an external directory server.

A host process keeps one Authenticator, feeds it the configured server URLs,
and calls one of two strategies per login attempt:

  - Bind synthesizes the user's DN from a prefix and suffix around the
    username and binds as it.
  - SearchAndBind optionally binds as a service account, searches for the
    single entry matching the username, reads its DN attribute and binds as
    that DN.

# Transport

Each attempt opens its own connection to the first configured server and
releases it when the attempt returns. ldaps:// URLs use implicit TLS; ldap://
URLs are plaintext unless Settings.UseStartTLS is set, in which case STARTTLS
is negotiated before any bind. CA and client certificate files are read only
when TLS is in use, and always before the network is touched.

# Errors

Every failure is an *Error whose Kind names the failed step. The exported
sentinels (ErrBind, ErrNoEntryFound, ...) match with errors.Is:

	err := auth.SearchAndBind(ctx, settings, user, password)
	switch {
	case errors.Is(err, ldap.ErrAdminBind):
		// service account misconfigured
	case errors.Is(err, ldap.ErrBind):
		// wrong user credentials
	}

# Logging

Operations log through the "ldap" tflog subsystem. Call NewLoggingContext on
the host's context to enable it; passwords are never logged.
*/
package ldap
