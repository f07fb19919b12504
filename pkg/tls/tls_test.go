package tls

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

// writeCerts creates a CA and a leaf certificate signed by it in dir.
func writeCerts(t *testing.T, dir string) (certFile, keyFile, caFile string) {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	caTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "escolta-test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTmpl, caTmpl, &caKey.PublicKey, caKey)
	require.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "forecaster"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTmpl, caTmpl, &leafKey.PublicKey, caKey)
	require.NoError(t, err)
	leafKeyDER, err := x509.MarshalECPrivateKey(leafKey)
	require.NoError(t, err)

	caFile = filepath.Join(dir, "ca.pem")
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(caFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER}), 0o600))
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leafDER}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: leafKeyDER}), 0o600))
	return certFile, keyFile, caFile
}

func TestServerAndClientConfigs(t *testing.T) {
	cert, key, ca := writeCerts(t, t.TempDir())
	cfg := Config{Enabled: true, CertFile: cert, KeyFile: key, CAFile: ca}
	require.NoError(t, cfg.Validate())

	server, err := cfg.Server()
	require.NoError(t, err)
	assert.Len(t, server.Certificates, 1)
	assert.Equal(t, tls.RequireAndVerifyClientCert, server.ClientAuth)
	assert.Equal(t, uint16(tls.VersionTLS13), server.MinVersion)
	assert.NotNil(t, server.ClientCAs)

	client, err := cfg.Client()
	require.NoError(t, err)
	assert.Len(t, client.Certificates, 1)
	assert.NotNil(t, client.RootCAs)
	assert.Equal(t, uint16(tls.VersionTLS13), client.MinVersion)
}

func TestDisabledConfig(t *testing.T) {
	cfg := Config{}
	assert.NoError(t, cfg.Validate())

	server, err := cfg.Server()
	assert.NoError(t, err)
	assert.Nil(t, server)

	client, err := cfg.Client()
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestValidate_MissingFiles(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no cert", Config{Enabled: true, KeyFile: "k", CAFile: "c"}},
		{"no key", Config{Enabled: true, CertFile: "c", CAFile: "c"}},
		{"no ca", Config{Enabled: true, CertFile: "c", KeyFile: "k"}},
		{"files do not exist", Config{Enabled: true, CertFile: "/nope/c", KeyFile: "/nope/k", CAFile: "/nope/ca"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
			_, err := tt.cfg.Server()
			assert.Error(t, err)
		})
	}
}

func TestBadCA(t *testing.T) {
	dir := t.TempDir()
	cert, key, _ := writeCerts(t, dir)
	bogus := filepath.Join(dir, "bogus.pem")
	require.NoError(t, os.WriteFile(bogus, []byte("not a certificate"), 0o600))

	_, err := NewClientTLSConfig(cert, key, bogus)
	assert.EqualError(t, err, "failed to parse CA certificate")
}
