package ldap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// SRVResolver is the subset of *net.Resolver used for discovery.
type SRVResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// SRVDiscovery finds directory servers for a DNS domain from its SRV records.
type SRVDiscovery struct {
	resolver SRVResolver
}

// NewSRVDiscovery creates a discovery backed by resolver, or by
// net.DefaultResolver when resolver is nil.
func NewSRVDiscovery(resolver SRVResolver) *SRVDiscovery {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &SRVDiscovery{resolver: resolver}
}

// srvService is one SRV lookup and the URL scheme its targets speak.
type srvService struct {
	service string
	scheme  string
}

// DiscoverServers returns server URLs for domain in preference order:
// _ldaps._tcp targets if any exist, otherwise _ldap._tcp targets, each sorted
// by SRV priority and then weight. When neither lookup yields records it
// falls back to ldaps://domain:636 followed by ldap://domain:389.
//
// The result is meant for ServerRegistry.Replace; only the first entry is
// dialed.
func (d *SRVDiscovery) DiscoverServers(ctx context.Context, domain string) ([]*url.URL, error) {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if domain == "" {
		return nil, errors.New("domain cannot be empty")
	}

	start := time.Now()
	tflog.SubsystemDebug(ctx, subsystemLDAP, "Starting server discovery for domain", map[string]any{
		"domain": domain,
	})

	for _, svc := range []srvService{
		{service: "ldaps", scheme: "ldaps"},
		{service: "ldap", scheme: "ldap"},
	} {
		records, err := d.lookupSRV(ctx, svc.service, domain)
		if err != nil {
			continue
		}

		sortSRVRecords(records)

		servers := make([]*url.URL, 0, len(records))
		for _, srv := range records {
			servers = append(servers, srvURL(svc.scheme, srv))
		}

		tflog.SubsystemDebug(ctx, subsystemLDAP, "Server discovery completed", map[string]any{
			"domain":       domain,
			"service":      svc.service,
			"server_count": len(servers),
			"duration":     time.Since(start).String(),
		})
		return servers, nil
	}

	tflog.SubsystemDebug(ctx, subsystemLDAP, "No SRV records found, using fallback servers", map[string]any{
		"domain":   domain,
		"duration": time.Since(start).String(),
	})

	return []*url.URL{
		{Scheme: "ldaps", Host: net.JoinHostPort(domain, "636")},
		{Scheme: "ldap", Host: net.JoinHostPort(domain, "389")},
	}, nil
}

// lookupSRV resolves _<service>._tcp.<domain>. An empty answer is an error.
func (d *SRVDiscovery) lookupSRV(ctx context.Context, service, domain string) ([]*net.SRV, error) {
	_, records, err := d.resolver.LookupSRV(ctx, service, "tcp", domain)
	if err != nil {
		tflog.SubsystemDebug(ctx, subsystemLDAP, "SRV lookup failed", map[string]any{
			"service": service,
			"domain":  domain,
			"error":   err.Error(),
		})
		return nil, fmt.Errorf("SRV lookup failed for _%s._tcp.%s: %w", service, domain, err)
	}

	records = slices.DeleteFunc(records, func(srv *net.SRV) bool {
		return srv == nil || srv.Target == "" || srv.Target == "."
	})
	if len(records) == 0 {
		return nil, fmt.Errorf("no SRV records found for _%s._tcp.%s", service, domain)
	}

	return records, nil
}

// sortSRVRecords orders records by ascending priority and, within a
// priority, descending weight (RFC 2782). The sort is stable so equal
// records keep the resolver's order.
func sortSRVRecords(records []*net.SRV) {
	slices.SortStableFunc(records, func(a, b *net.SRV) int {
		if a.Priority != b.Priority {
			return int(a.Priority) - int(b.Priority)
		}
		return int(b.Weight) - int(a.Weight)
	})
}

func srvURL(scheme string, srv *net.SRV) *url.URL {
	host := strings.TrimSuffix(srv.Target, ".")
	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(int(srv.Port))),
	}
}
