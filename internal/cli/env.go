package cli

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/isometry/ldapauth/internal/ldap"
)

const (
	envPrefix   = "LDAPAUTH_"
	envPassword = envPrefix + "PASSWORD"
)

// envName maps a flag name to its environment variable, e.g. "search-base"
// to LDAPAUTH_SEARCH_BASE.
func envName(flag string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// resolveEnvironment loads the dotenv file, if any, and then fills every flag
// not given on the command line from its environment variable. Variables
// already present in the process environment win over the dotenv file.
func resolveEnvironment(flags *pflag.FlagSet, o *options) error {
	envFile := o.envFile
	if !flags.Changed("env-file") {
		envFile = os.Getenv(envName("env-file"))
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	var errs []error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed || f.Name == "help" || f.Name == "env-file" {
			return
		}
		value, ok := os.LookupEnv(envName(f.Name))
		if !ok || value == "" {
			return
		}
		if err := flags.Set(f.Name, value); err != nil {
			errs = append(errs, fmt.Errorf("invalid value %q for %s: %w", value, envName(f.Name), err))
		}
	})
	if len(errs) > 0 {
		return errs[0]
	}

	return nil
}

// parseServers validates the configured server URLs in order.
func parseServers(raw []string) ([]*url.URL, error) {
	urls := make([]*url.URL, 0, len(raw))
	for _, s := range raw {
		u, err := ldap.ParseServerURL(s)
		if err != nil {
			return nil, fmt.Errorf("invalid --server: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, nil
}
