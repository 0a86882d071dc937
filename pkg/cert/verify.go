package cert

import (
	"crypto/x509"
	"fmt"
	"strings"
	"time"
)

// VerifyResult contains the result of certificate verification
type VerifyResult struct {
	Valid       bool
	Role        Role
	CommonName  string
	Hosts       []string
	NotAfter    time.Time
	Error       string
	Certificate *x509.Certificate
}

// VerifyCertificateFile checks a certificate file against a CA file. The
// role is taken from the certificate's extended key usage.
func VerifyCertificateFile(certPath, caCertPath string) (*VerifyResult, error) {
	cert, err := ReadCertificate(certPath)
	if err != nil {
		return nil, err
	}
	caCert, err := ReadCertificate(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}

	result := &VerifyResult{
		Role:        roleOf(cert),
		CommonName:  cert.Subject.CommonName,
		NotAfter:    cert.NotAfter,
		Certificate: cert,
	}
	result.Hosts = append(result.Hosts, cert.DNSNames...)
	for _, ip := range cert.IPAddresses {
		result.Hosts = append(result.Hosts, ip.String())
	}

	a := &Authority{caCert: caCert}
	if err := a.Verify(cert, result.Role); err != nil {
		result.Error = err.Error()
	} else {
		result.Valid = true
	}

	return result, nil
}

func roleOf(cert *x509.Certificate) Role {
	for _, u := range cert.ExtKeyUsage {
		if u == x509.ExtKeyUsageClientAuth {
			return RoleClient
		}
	}
	return RoleServer
}

// FormatVerifyResult formats verification result for display
func FormatVerifyResult(result *VerifyResult) string {
	var sb strings.Builder

	sb.WriteString("Certificate Verification Result\n")
	sb.WriteString("===============================\n\n")

	if result.Valid {
		sb.WriteString("Status: VALID\n")
	} else {
		sb.WriteString("Status: INVALID\n")
		sb.WriteString(fmt.Sprintf("Error: %s\n", result.Error))
	}

	sb.WriteString("\nCertificate Details:\n")
	sb.WriteString(fmt.Sprintf("  Role: %s\n", result.Role))
	sb.WriteString(fmt.Sprintf("  Subject: %s\n", result.Certificate.Subject))
	sb.WriteString(fmt.Sprintf("  Issuer: %s\n", result.Certificate.Issuer))
	sb.WriteString(fmt.Sprintf("  Serial: %s\n", result.Certificate.SerialNumber))
	sb.WriteString(fmt.Sprintf("  Valid Until: %s\n", result.NotAfter.Format(time.RFC3339)))
	if len(result.Hosts) > 0 {
		sb.WriteString(fmt.Sprintf("  Hosts: %s\n", strings.Join(result.Hosts, ", ")))
	}

	return sb.String()
}
