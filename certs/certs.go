// Package certs generates and caches the self-signed TLS certificate the
// QUIC transport driver presents. The system is intended for LAN trust
// (spec Non-goals exclude authentication against a malicious peer), so the
// dial side never verifies the certificate it receives — this package only
// needs to make dialing possible, not secure against an adversary on the
// LAN.
package certs

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
	"time"
)

// Store loads or generates a self-signed ECDSA certificate cached under a
// directory, adapted from the teacher's TOFU certificate generator but
// without its peer-fingerprint pinning, which belongs to an authentication
// feature this spec explicitly excludes.
type Store struct {
	dir string
}

// DefaultDir returns the standard cache location for the generated
// certificate, rooted under the user's config directory.
func DefaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "gobyte", "certs")
}

// NewStore returns a Store rooted at dir, creating dir if absent.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) certPath() string { return filepath.Join(s.dir, "gobyte.crt") }
func (s *Store) keyPath() string  { return filepath.Join(s.dir, "gobyte.key") }

// Certificate returns the cached certificate, generating and persisting one
// on first use.
func (s *Store) Certificate() (tls.Certificate, error) {
	if cert, err := tls.LoadX509KeyPair(s.certPath(), s.keyPath()); err == nil {
		return cert, nil
	}
	return s.generate()
}

func (s *Store) generate() (tls.Certificate, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}

	hostname, _ := os.Hostname()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: hostname},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(10 * 365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pemBlock("CERTIFICATE", der)

	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	keyPEM := pemBlock("PRIVATE KEY", keyDER)

	if err := os.WriteFile(s.certPath(), certPEM, 0600); err != nil {
		return tls.Certificate{}, err
	}
	if err := os.WriteFile(s.keyPath(), keyPEM, 0600); err != nil {
		return tls.Certificate{}, err
	}

	return tls.X509KeyPair(certPEM, keyPEM)
}

// ServerTLSConfig returns a tls.Config suitable for the QUIC listener.
func (s *Store) ServerTLSConfig(alpn string) (*tls.Config, error) {
	cert, err := s.Certificate()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpn},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientTLSConfig returns a tls.Config for the QUIC dialer. Per the spec,
// the peer's self-signed certificate is accepted without verification —
// the system is intended for LAN trust, not adversarial resistance.
func (s *Store) ClientTLSConfig(alpn string) (*tls.Config, error) {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}, nil
}

func pemBlock(blockType string, der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
}
