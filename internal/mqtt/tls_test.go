package mqtt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ibs-source/queue-receiver/internal/config"
)

type testPKI struct {
	caPath   string
	certPath string
	keyPath  string
}

// newTestPKI writes a self-signed certificate and its key, usable as both CA and client pair.
func newTestPKI(t *testing.T) testPKI {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(7),
		Subject:               pkix.Name{CommonName: "receiver-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey() error = %v", err)
	}

	dir := t.TempDir()
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	p := testPKI{
		caPath:   filepath.Join(dir, "authority.pem"),
		certPath: filepath.Join(dir, "certificate.pem"),
		keyPath:  filepath.Join(dir, "key.pem"),
	}
	for path, data := range map[string][]byte{p.caPath: certPEM, p.certPath: certPEM, p.keyPath: keyPEM} {
		if err := os.WriteFile(path, data, 0600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	return p
}

func TestNewTLSConfig(t *testing.T) {
	pki := newTestPKI(t)

	t.Run("ValidTLSWithCA", func(t *testing.T) {
		tlsConfig, err := newTLSConfig(&config.MQTTConfig{TLSEnabled: true, CACert: pki.caPath})
		if err != nil {
			t.Fatalf("Failed to create TLS config: %v", err)
		}
		if tlsConfig.RootCAs == nil {
			t.Error("RootCAs not set")
		}
		if tlsConfig.InsecureSkipVerify {
			t.Error("InsecureSkipVerify should be false by default")
		}
	})

	t.Run("ValidTLSWithClientCert", func(t *testing.T) {
		tlsConfig, err := newTLSConfig(&config.MQTTConfig{
			TLSEnabled: true,
			CACert:     pki.caPath,
			ClientCert: pki.certPath,
			ClientKey:  pki.keyPath,
		})
		if err != nil {
			t.Fatalf("Failed to create TLS config: %v", err)
		}
		if len(tlsConfig.Certificates) == 0 {
			t.Error("Client certificates not loaded")
		}
	})

	t.Run("InsecureSkipVerify", func(t *testing.T) {
		tlsConfig, err := newTLSConfig(&config.MQTTConfig{TLSEnabled: true, InsecureSkip: true})
		if err != nil {
			t.Fatalf("Failed to create TLS config: %v", err)
		}
		if !tlsConfig.InsecureSkipVerify {
			t.Error("InsecureSkipVerify should be true")
		}
	})

	t.Run("EmptyCACert", func(t *testing.T) {
		tlsConfig, err := newTLSConfig(&config.MQTTConfig{TLSEnabled: true})
		if err != nil {
			t.Fatalf("Failed to create TLS config with empty CA: %v", err)
		}
		if tlsConfig.RootCAs != nil {
			t.Error("RootCAs should be nil so system roots are used")
		}
	})

	t.Run("InvalidCACert", func(t *testing.T) {
		if _, err := newTLSConfig(&config.MQTTConfig{CACert: "/nonexistent/ca.crt"}); err == nil {
			t.Error("Expected error for invalid CA cert, got nil")
		}
	})

	t.Run("CorruptedCACert", func(t *testing.T) {
		if _, err := newTLSConfig(&config.MQTTConfig{CACert: pki.keyPath}); err == nil {
			t.Error("Expected error for corrupted CA cert, got nil")
		}
	})

	t.Run("MismatchedClientCertKey", func(t *testing.T) {
		_, err := newTLSConfig(&config.MQTTConfig{ClientCert: pki.certPath, ClientKey: "/nonexistent/key.pem"})
		if err == nil {
			t.Error("Expected error for mismatched cert/key, got nil")
		}
	})
}
