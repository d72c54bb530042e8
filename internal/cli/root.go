// Package cli implements the ldapauth command line, a thin host around the
// ldap package: it resolves flags and LDAPAUTH_* environment variables into
// ldap.Settings, configures the server registry and reports the outcome of
// one authentication attempt.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/terraform-plugin-log/tfsdklog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/isometry/ldapauth/internal/ldap"
)

// Exit codes returned by Execute.
const (
	ExitOK       = 0
	ExitRejected = 1 // Credentials or identity were rejected by the directory
	ExitError    = 2 // Configuration, transport or usage error
)

// options holds everything the command tree shares. Tests replace the
// injectable fields.
type options struct {
	servers     []string
	domain      string
	envFile     string
	verbose     bool
	metricsFile string
	scope       string

	settings ldap.Settings

	dialer     ldap.Dialer
	resolver   ldap.SRVResolver
	rootLogger func(context.Context) context.Context
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
}

func defaultOptions() *options {
	return &options{
		dialer:     ldap.StandardDialer{},
		rootLogger: newRootLogger,
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
}

// newRootLogger installs the JSON root logger on stderr used by --verbose.
func newRootLogger(ctx context.Context) context.Context {
	return tfsdklog.NewRootProviderLogger(ctx,
		tfsdklog.WithLogName("ldapauth"),
		tfsdklog.WithLevelFromEnv("LDAPAUTH_LOG"),
		tfsdklog.WithoutLocation(),
	)
}

func newRootCommand(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ldapauth",
		Short: "Verify directory credentials over LDAP",
		Long: `ldapauth checks a username and password against an LDAP directory,
either by binding directly as a DN built from a template or by searching
for the user's entry first and binding as the DN found.

Every flag can also be set through an LDAPAUTH_<FLAG> environment variable,
for example LDAPAUTH_SERVER or LDAPAUTH_SEARCH_BASE. The password is read
from LDAPAUTH_PASSWORD or prompted for.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return resolveEnvironment(cmd.Flags(), o)
		},
	}

	cmd.SetIn(o.stdin)
	cmd.SetOut(o.stdout)
	cmd.SetErr(o.stderr)

	flags := cmd.PersistentFlags()
	flags.StringSliceVar(&o.servers, "server", nil, "LDAP server URL (ldap:// or ldaps://); repeatable, the first one is used")
	flags.StringVar(&o.domain, "domain", "", "Discover servers from the domain's _ldaps._tcp/_ldap._tcp SRV records when --server is not set")
	flags.BoolVar(&o.settings.UseStartTLS, "starttls", false, "Negotiate STARTTLS on ldap:// servers")
	flags.StringVar(&o.settings.CACertPath, "ca-cert", "", "PEM file with an additional trusted CA certificate")
	flags.StringVar(&o.settings.ClientCertPath, "client-cert", "", "PEM client certificate for mutual TLS")
	flags.StringVar(&o.settings.ClientKeyPath, "client-key", "", "PEM private key for --client-cert")
	flags.BoolVar(&o.settings.EscapeUsername, "escape-username", false, "Escape LDAP special characters in the username")
	flags.StringVar(&o.envFile, "env-file", "", "Load LDAPAUTH_* variables from a dotenv file")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "Write structured logs to stderr")
	flags.StringVar(&o.metricsFile, "metrics-file", "", "Write attempt metrics in Prometheus text format to this file")

	cmd.AddCommand(newBindCommand(o), newSearchBindCommand(o))

	return cmd
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	return execute(ctx, defaultOptions(), args)
}

func execute(ctx context.Context, o *options, args []string) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(o)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	fmt.Fprintf(o.stderr, "Error: %s\n", describeError(err))
	return exitCode(err)
}

// describeError prefixes authentication errors with their kind and category
// so scripted callers can tell the failure classes apart.
func describeError(err error) string {
	var authErr *ldap.Error
	if errors.As(err, &authErr) {
		return fmt.Sprintf("[%s/%s] %s", authErr.Kind, authErr.Category(), err)
	}
	return err.Error()
}

func exitCode(err error) int {
	switch ldap.KindOf(err) {
	case ldap.KindBind, ldap.KindNoEntryFound, ldap.KindMultipleEntriesFound, ldap.KindNoDNAttributeFound:
		return ExitRejected
	default:
		return ExitError
	}
}

// newAuthenticator builds an Authenticator over the configured or
// discovered server list. The returned registry is non-nil only when
// --metrics-file is set.
func (o *options) newAuthenticator(ctx context.Context) (*ldap.Authenticator, *prometheus.Registry, error) {
	urls, err := o.resolveServers(ctx)
	if err != nil {
		return nil, nil, err
	}

	opts := []ldap.Option{ldap.WithDialer(o.dialer)}

	var reg *prometheus.Registry
	if o.metricsFile != "" {
		reg = prometheus.NewRegistry()
		opts = append(opts, ldap.WithMetrics(ldap.NewMetrics(reg)))
	}

	auth := ldap.NewAuthenticator(opts...)
	auth.ReplaceServers(urls...)

	return auth, reg, nil
}

// resolveServers returns the --server list, or the servers discovered for
// --domain when no server is given.
func (o *options) resolveServers(ctx context.Context) ([]*url.URL, error) {
	switch {
	case len(o.servers) > 0:
		return parseServers(o.servers)
	case o.domain != "":
		urls, err := ldap.NewSRVDiscovery(o.resolver).DiscoverServers(ctx, o.domain)
		if err != nil {
			return nil, fmt.Errorf("server discovery failed: %w", err)
		}
		return urls, nil
	default:
		return nil, errors.New("at least one --server or a --domain (or LDAPAUTH_SERVER / LDAPAUTH_DOMAIN) is required")
	}
}

// loggingContext installs the root logger when --verbose is set and always
// registers the ldap subsystem.
func (o *options) loggingContext(ctx context.Context) context.Context {
	if o.verbose && o.rootLogger != nil {
		ctx = o.rootLogger(ctx)
	}
	return ldap.NewLoggingContext(ctx)
}

// writeMetrics flushes reg to --metrics-file. A write failure does not change
// the authentication outcome.
func (o *options) writeMetrics(reg *prometheus.Registry) {
	if reg == nil || o.metricsFile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(o.metricsFile, reg); err != nil {
		fmt.Fprintf(o.stderr, "Warning: failed to write metrics: %s\n", err)
	}
}
