package ldap

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
)

// buildTLSConfig assembles the client TLS configuration for serverName from
// the certificate material referenced by settings. Files are read and parsed
// here, before any connection is attempted.
func buildTLSConfig(settings Settings, serverName string) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: serverName,
	}

	if settings.CACertPath != "" {
		pemBytes, err := os.ReadFile(settings.CACertPath)
		if err != nil {
			return nil, newIOError("failed to read CA cert file", err)
		}

		rootCAs, err := x509.SystemCertPool()
		if err != nil || rootCAs == nil {
			rootCAs = x509.NewCertPool()
		}
		if err := appendPEMCertificates(rootCAs, pemBytes); err != nil {
			return nil, newTLSError("failed to load CA certificate", err)
		}
		tlsConfig.RootCAs = rootCAs
	}

	if settings.requiresClientCert() {
		if settings.ClientKeyPath == "" {
			return nil, newError(KindNoTLSKeyPathSet)
		}

		certPEM, err := os.ReadFile(settings.ClientCertPath)
		if err != nil {
			return nil, newIOError("failed to read client certificate file", err)
		}
		keyPEM, err := os.ReadFile(settings.ClientKeyPath)
		if err != nil {
			return nil, newIOError("failed to read client key file", err)
		}

		certificate, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, newTLSError("failed to load client certificate", err)
		}
		tlsConfig.Certificates = []tls.Certificate{certificate}
	}

	return tlsConfig, nil
}

// appendPEMCertificates parses every CERTIFICATE block in pemBytes into pool.
// Unlike x509.CertPool.AppendCertsFromPEM it reports why parsing failed.
func appendPEMCertificates(pool *x509.CertPool, pemBytes []byte) error {
	var added int
	for rest := pemBytes; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return err
		}
		pool.AddCert(cert)
		added++
	}

	if added == 0 {
		return errors.New("no PEM encoded certificate found")
	}
	return nil
}
