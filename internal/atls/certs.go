package atls

import (
	"crypto/x509"
	"fmt"
)

// subjectPublicKeyInfoDER re-parses the leaf certificate and returns
// the DER encoding of its SubjectPublicKeyInfo, matching what the TLS
// key-binding event's payload was hashed from (spec §4.6).
func subjectPublicKeyInfoDER(leafCertDER []byte) ([]byte, error) {
	cert, err := x509.ParseCertificate(leafCertDER)
	if err != nil {
		return nil, fmt.Errorf("parse leaf certificate: %w", err)
	}
	// x509.Certificate does not expose the raw SPKI bytes directly;
	// RawSubjectPublicKeyInfo is the ASN.1 DER of the
	// SubjectPublicKeyInfo structure exactly as it appeared in the
	// certificate.
	return cert.RawSubjectPublicKeyInfo, nil
}
