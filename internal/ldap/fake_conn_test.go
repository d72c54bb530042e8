package ldap

import (
	"crypto/tls"
	"sync"

	"github.com/go-ldap/ldap/v3"
)

type bindCall struct {
	DN       string
	Password string
}

// fakeConn is an in-memory Conn that records every call.
type fakeConn struct {
	mu sync.Mutex

	bindErrs map[string]error // Keyed by DN

	searchResult *ldap.SearchResult
	searchErr    error

	startTLSErr error
	unbindErr   error

	binds          []bindCall
	searches       []*ldap.SearchRequest
	startTLSConfig *tls.Config
	startTLSCalls  int
	unbinds        int
}

func (c *fakeConn) Bind(username, password string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.binds = append(c.binds, bindCall{DN: username, Password: password})
	return c.bindErrs[username]
}

func (c *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.searches = append(c.searches, req)
	if c.searchErr != nil {
		return nil, c.searchErr
	}
	if c.searchResult == nil {
		return &ldap.SearchResult{}, nil
	}
	return c.searchResult, nil
}

func (c *fakeConn) StartTLS(config *tls.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.startTLSCalls++
	c.startTLSConfig = config
	return c.startTLSErr
}

func (c *fakeConn) Unbind() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unbinds++
	return c.unbindErr
}

func (c *fakeConn) boundDNs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	dns := make([]string, len(c.binds))
	for i, b := range c.binds {
		dns[i] = b.DN
	}
	return dns
}

type dialCall struct {
	Addr    string
	NumOpts int
}

// fakeDialer hands out conn for every dial, or fails with err.
type fakeDialer struct {
	mu    sync.Mutex
	conn  *fakeConn
	err   error
	dials []dialCall
}

func (d *fakeDialer) DialURL(addr string, opts ...ldap.DialOpt) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials = append(d.dials, dialCall{Addr: addr, NumOpts: len(opts)})
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.dials)
}

// newEntry builds a search result entry with a single-valued attribute.
func newEntry(dn, attribute, value string) *ldap.Entry {
	return ldap.NewEntry(dn, map[string][]string{attribute: {value}})
}
