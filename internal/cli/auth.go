package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/isometry/ldapauth/internal/ldap"
)

type strategyFunc func(a *ldap.Authenticator, ctx context.Context, settings ldap.Settings, username, password string) error

func newBindCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bind USERNAME",
		Short: "Authenticate by binding as a DN built from a template",
		Example: `  ldapauth bind --server ldaps://dc1.example.com \
    --bind-dn-prefix uid= --bind-dn-suffix ,ou=people,dc=example,dc=com alice`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.authenticate(cmd, args[0], ldap.StrategyBind, (*ldap.Authenticator).Bind)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&o.settings.BindDNPrefix, "bind-dn-prefix", "", "Text placed before the username in the bind DN")
	flags.StringVar(&o.settings.BindDNSuffix, "bind-dn-suffix", "", "Text placed after the username in the bind DN")

	return cmd
}

func newSearchBindCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search-bind USERNAME",
		Short: "Authenticate by searching for the user's entry and binding as its DN",
		Long: `Authenticate by searching for the user's entry and binding as its DN.

The service account password is best supplied through
LDAPAUTH_SEARCH_BIND_PASSWORD (directly or via --env-file): a value given
with --search-bind-password is visible to other users in process listings.`,
		Example: `  ldapauth search-bind --server ldap://dc1.example.com --starttls \
    --search-base ou=people,dc=example,dc=com --search-filter objectClass=person \
    --search-bind-dn cn=reader,dc=example,dc=com bob`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := ldap.ParseSearchScope(o.scope)
			if err != nil {
				return fmt.Errorf("invalid --search-scope: %w", err)
			}
			o.settings.SearchScope = scope
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.authenticate(cmd, args[0], ldap.StrategySearchAndBind, (*ldap.Authenticator).SearchAndBind)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&o.settings.SearchBase, "search-base", "", "Base DN of the user search")
	flags.StringVar(&o.scope, "search-scope", string(ldap.ScopeWholeSubtree), "Search scope: base, one or sub")
	flags.StringVar(&o.settings.SearchFilter, "search-filter", "objectClass=*", "Filter combined with the username match")
	flags.StringVar(&o.settings.SearchAttribute, "search-attribute", "uid", "Attribute compared against the username")
	flags.StringVar(&o.settings.SearchDNAttribute, "search-dn-attribute", "entryDN", "Attribute of the found entry holding its DN")
	flags.StringVar(&o.settings.SearchBindDN, "search-bind-dn", "", "Service account DN to bind as before searching")
	flags.StringVar(&o.settings.SearchBindPassword, "search-bind-password", "", "Service account password; prefer LDAPAUTH_SEARCH_BIND_PASSWORD, as command-line values show in process listings")

	return cmd
}

// authenticate runs one attempt with the resolved settings and reports the
// outcome on stdout.
func (o *options) authenticate(cmd *cobra.Command, username string, strategy ldap.Strategy, run strategyFunc) error {
	ctx := o.loggingContext(cmd.Context())

	auth, reg, err := o.newAuthenticator(ctx)
	if err != nil {
		return err
	}
	defer o.writeMetrics(reg)

	password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	if err := run(auth, ctx, o.settings, username, password); err != nil {
		return err
	}

	server, _ := auth.Registry().Pick()
	fmt.Fprintf(cmd.OutOrStdout(), "authenticated %s via %s against %s\n", username, strategy, server.Redacted())
	return nil
}
