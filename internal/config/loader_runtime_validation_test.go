package config

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
)

// writeTestCert writes a self-signed PEM certificate with the given CN.
func writeTestCert(t *testing.T, cn string) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "client.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(path, pemBytes, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestApplyRuntimeValidation_WithoutCertCN(t *testing.T) {
	cfg := &Config{
		MQTT: MQTTConfig{
			PublishTopic:    "original/publish",
			UseCertCNPrefix: false,
		},
	}

	if err := applyRuntimeValidation(cfg); err != nil {
		t.Fatalf("applyRuntimeValidation() error = %v; want nil", err)
	}
	if cfg.MQTT.PublishTopic != "original/publish" {
		t.Errorf("PublishTopic = %s; want original/publish", cfg.MQTT.PublishTopic)
	}
}

func TestApplyRuntimeValidation_WithCertCN(t *testing.T) {
	cfg := &Config{
		MQTT: MQTTConfig{
			PublishTopic:    "queue/received",
			UseCertCNPrefix: true,
			ClientCert:      writeTestCert(t, "device-42"),
		},
	}

	if err := applyRuntimeValidation(cfg); err != nil {
		t.Fatalf("applyRuntimeValidation() error = %v; want nil", err)
	}
	if cfg.MQTT.PublishTopic != "device-42/queue/received" {
		t.Errorf("PublishTopic = %s; want device-42/queue/received", cfg.MQTT.PublishTopic)
	}
}

func TestApplyRuntimeValidation_MissingCert(t *testing.T) {
	cfg := &Config{
		MQTT: MQTTConfig{
			PublishTopic:    "original/publish",
			UseCertCNPrefix: true,
			ClientCert:      "/nonexistent/cert.pem",
		},
	}

	if err := applyRuntimeValidation(cfg); err == nil {
		t.Error("applyRuntimeValidation() error = nil; want error for missing cert")
	}
}

func TestExtractCNFromCertFile_InvalidCert(t *testing.T) {
	certPath := filepath.Join(t.TempDir(), "invalid-cert.pem")
	if err := os.WriteFile(certPath, []byte("invalid cert content"), 0600); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if _, err := extractCNFromCertFile(certPath); err == nil {
		t.Error("extractCNFromCertFile() error = nil; want error for invalid PEM")
	}
}

func TestExtractCNFromCertFile_NoCN(t *testing.T) {
	if _, err := extractCNFromCertFile(writeTestCert(t, "")); err == nil {
		t.Error("extractCNFromCertFile() error = nil; want error for empty CN")
	}
}
