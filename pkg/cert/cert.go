// Package cert provides certificate generation for the agent's mTLS transport.
package cert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

const (
	// DefaultCAKeyBits is the RSA modulus size of a new authority
	DefaultCAKeyBits = 4096
	leafKeyBits      = 2048

	caLifetime   = 10 * 365 * 24 * time.Hour
	leafLifetime = 365 * 24 * time.Hour
)

// Role selects the extended key usage of an issued certificate
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// ParseRole accepts "server" or "client"
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleServer, RoleClient:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown certificate role %q (want server or client)", s)
}

func (r Role) extKeyUsage() x509.ExtKeyUsage {
	if r == RoleClient {
		return x509.ExtKeyUsageClientAuth
	}
	return x509.ExtKeyUsageServerAuth
}

// Authority signs agent and client certificates
type Authority struct {
	caCert *x509.Certificate
	caKey  *rsa.PrivateKey
}

// NewAuthority creates a self-signed CA. bits <= 0 selects DefaultCAKeyBits.
func NewAuthority(organization string, bits int) (*Authority, error) {
	if bits <= 0 {
		bits = DefaultCAKeyBits
	}
	caKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}

	now := time.Now()
	caTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{organization},
			CommonName:   organization + " CA",
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(caLifetime),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	caCertDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}

	caCert, err := x509.ParseCertificate(caCertDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return &Authority{caCert: caCert, caKey: caKey}, nil
}

// CA returns the authority's certificate
func (a *Authority) CA() *x509.Certificate {
	return a.caCert
}

// SaveCA writes the CA certificate and key as PEM. The key file is 0600.
func (a *Authority) SaveCA(certPath, keyPath string) error {
	if err := writePEM(certPath, "CERTIFICATE", a.caCert.Raw, 0o644); err != nil {
		return fmt.Errorf("failed to write CA cert: %w", err)
	}
	if err := writePEM(keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(a.caKey), 0o600); err != nil {
		return fmt.Errorf("failed to write CA key: %w", err)
	}
	return nil
}

// LoadAuthority loads a CA written by SaveCA
func LoadAuthority(certPath, keyPath string) (*Authority, error) {
	caCert, err := ReadCertificate(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA cert: %w", err)
	}
	if !caCert.IsCA {
		return nil, fmt.Errorf("%s is not a CA certificate", certPath)
	}

	keyPEM, err := os.ReadFile(keyPath) // #nosec G304 -- keyPath is a user-specified CA key file path
	if err != nil {
		return nil, fmt.Errorf("failed to read CA key: %w", err)
	}
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("failed to decode CA key PEM")
	}
	caKey, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA key: %w", err)
	}

	return &Authority{caCert: caCert, caKey: caKey}, nil
}

// Issue signs a leaf certificate for the given role. Hosts are added as
// IP or DNS subject alternative names.
func (a *Authority) Issue(role Role, commonName string, hosts []string) (*Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, leafKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: a.caCert.Subject.Organization,
			CommonName:   commonName,
		},
		NotBefore:   now.Add(-time.Minute),
		NotAfter:    now.Add(leafLifetime),
		KeyUsage:    x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{role.extKeyUsage()},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if h != "" {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, a.caCert, &key.PublicKey, a.caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &Certificate{
		Certificate: cert,
		PrivateKey:  key,
		Role:        role,
		IssuedAt:    now,
	}, nil
}

// Verify checks that cert chains to this authority for the given role
func (a *Authority) Verify(cert *x509.Certificate, role Role) error {
	roots := x509.NewCertPool()
	roots.AddCert(a.caCert)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{role.extKeyUsage()},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}

// Certificate is an issued leaf with its private key
type Certificate struct {
	*x509.Certificate
	PrivateKey *rsa.PrivateKey
	Role       Role
	IssuedAt   time.Time
}

// Save writes the certificate and, if keyPath is set, its key
func (c *Certificate) Save(certPath, keyPath string) error {
	if err := writePEM(certPath, "CERTIFICATE", c.Raw, 0o644); err != nil {
		return fmt.Errorf("failed to write cert: %w", err)
	}
	if keyPath == "" {
		return nil
	}
	if err := writePEM(keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(c.PrivateKey), 0o600); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

// PEM returns the certificate PEM encoded
func (c *Certificate) PEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw}))
}

// ReadCertificate parses the first PEM certificate in path
func ReadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is a user-specified certificate file
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("failed to decode certificate PEM in %s", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm) // #nosec G304 -- path is provided by the user
	if err != nil {
		return err
	}
	if err := pem.Encode(out, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	// OpenFile only applies perm on creation
	return os.Chmod(path, perm)
}
