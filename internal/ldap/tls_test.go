package ldap

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPKI is a throwaway CA plus one client certificate signed by it, written
// to a temporary directory.
type testPKI struct {
	CACertPath     string
	ClientCertPath string
	ClientKeyPath  string
	OtherKeyPath   string // Valid key that does not match the client cert
	CA             *x509.Certificate
	CAKey          *ecdsa.PrivateKey
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()
	dir := t.TempDir()

	caKey := newTestKey(t)
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "ldapauth test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	ca, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	clientKey := newTestKey(t)
	clientTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "ldapauth client"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	clientDER, err := x509.CreateCertificate(rand.Reader, clientTemplate, ca, &clientKey.PublicKey, caKey)
	require.NoError(t, err)

	pki := &testPKI{
		CACertPath:     filepath.Join(dir, "ca.pem"),
		ClientCertPath: filepath.Join(dir, "client.pem"),
		ClientKeyPath:  filepath.Join(dir, "client-key.pem"),
		OtherKeyPath:   filepath.Join(dir, "other-key.pem"),
		CA:             ca,
		CAKey:          caKey,
	}

	writePEM(t, pki.CACertPath, "CERTIFICATE", caDER)
	writePEM(t, pki.ClientCertPath, "CERTIFICATE", clientDER)
	writePEM(t, pki.ClientKeyPath, "PRIVATE KEY", marshalKey(t, clientKey))
	writePEM(t, pki.OtherKeyPath, "PRIVATE KEY", marshalKey(t, newTestKey(t)))

	return pki
}

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func marshalKey(t *testing.T, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return der
}

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestBuildTLSConfig_NoMaterial(t *testing.T) {
	cfg, err := buildTLSConfig(Settings{}, "dc1.example.com")
	require.NoError(t, err)

	assert.Equal(t, "dc1.example.com", cfg.ServerName)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.False(t, cfg.InsecureSkipVerify)
	assert.Nil(t, cfg.RootCAs)
	assert.Empty(t, cfg.Certificates)
}

func TestBuildTLSConfig_CACert(t *testing.T) {
	pki := newTestPKI(t)

	cfg, err := buildTLSConfig(Settings{CACertPath: pki.CACertPath}, "dc1.example.com")
	require.NoError(t, err)
	require.NotNil(t, cfg.RootCAs)

	// A leaf signed by the test CA must now verify against the root pool.
	leafKey := newTestKey(t)
	leafDER, err := x509.CreateCertificate(rand.Reader, &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "dc1.example.com"},
		DNSNames:     []string{"dc1.example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}, pki.CA, &leafKey.PublicKey, pki.CAKey)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(leafDER)
	require.NoError(t, err)

	_, err = leaf.Verify(x509.VerifyOptions{Roots: cfg.RootCAs, DNSName: "dc1.example.com"})
	assert.NoError(t, err)
}

func TestBuildTLSConfig_Errors(t *testing.T) {
	pki := newTestPKI(t)
	missing := filepath.Join(t.TempDir(), "missing.pem")
	garbage := writeFile(t, "garbage.pem", "not a certificate")
	badDER := writeFile(t, "bad-der.pem", string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("junk")})))

	tests := []struct {
		name     string
		settings Settings
		wantKind ErrorKind
		wantMsg  string
	}{
		{
			name:     "unreadable CA",
			settings: Settings{CACertPath: missing},
			wantKind: KindIO,
			wantMsg:  "failed to read CA cert file",
		},
		{
			name:     "CA without PEM block",
			settings: Settings{CACertPath: garbage},
			wantKind: KindTLS,
			wantMsg:  "failed to load CA certificate: no PEM encoded certificate found",
		},
		{
			name:     "CA with malformed DER",
			settings: Settings{CACertPath: badDER},
			wantKind: KindTLS,
			wantMsg:  "failed to load CA certificate",
		},
		{
			name:     "client cert without key path",
			settings: Settings{ClientCertPath: pki.ClientCertPath},
			wantKind: KindNoTLSKeyPathSet,
		},
		{
			name:     "unreadable client cert",
			settings: Settings{ClientCertPath: missing, ClientKeyPath: pki.ClientKeyPath},
			wantKind: KindIO,
			wantMsg:  "failed to read client certificate file",
		},
		{
			name:     "unreadable client key",
			settings: Settings{ClientCertPath: pki.ClientCertPath, ClientKeyPath: missing},
			wantKind: KindIO,
			wantMsg:  "failed to read client key file",
		},
		{
			name:     "mismatched client key",
			settings: Settings{ClientCertPath: pki.ClientCertPath, ClientKeyPath: pki.OtherKeyPath},
			wantKind: KindTLS,
			wantMsg:  "failed to load client certificate",
		},
		{
			name:     "CA checked before client key path",
			settings: Settings{CACertPath: missing, ClientCertPath: pki.ClientCertPath},
			wantKind: KindIO,
			wantMsg:  "failed to read CA cert file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := buildTLSConfig(tt.settings, "dc1.example.com")
			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestBuildTLSConfig_ClientCertificate(t *testing.T) {
	pki := newTestPKI(t)

	cfg, err := buildTLSConfig(Settings{
		CACertPath:     pki.CACertPath,
		ClientCertPath: pki.ClientCertPath,
		ClientKeyPath:  pki.ClientKeyPath,
	}, "dc1.example.com")
	require.NoError(t, err)

	require.Len(t, cfg.Certificates, 1)
	leaf, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "ldapauth client", leaf.Subject.CommonName)
}

func TestAppendPEMCertificates_SkipsOtherBlocks(t *testing.T) {
	pki := newTestPKI(t)
	caPEM, err := os.ReadFile(pki.CACertPath)
	require.NoError(t, err)
	keyPEM, err := os.ReadFile(pki.ClientKeyPath)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	require.NoError(t, appendPEMCertificates(pool, append(keyPEM, caPEM...)))

	err = appendPEMCertificates(x509.NewCertPool(), keyPEM)
	assert.EqualError(t, err, "no PEM encoded certificate found")
}
