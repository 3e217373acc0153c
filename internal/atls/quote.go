package atls

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	dcap "github.com/Phala-Network/dcap-qvl/golang-bindings"
)

// QuoteVerifier is the DCAP I/O dependency, expressed as an interface
// per spec §9's design note ("express the verifier's I/O dependency
// as a trait or interface parameter") so the pipeline can be exercised
// in tests without real Intel collateral or hardware quotes.
type QuoteVerifier interface {
	// ParseQuote decodes the binary TDX quote structure without
	// validating its signature.
	ParseQuote(raw []byte) (*dcap.Quote, error)
	// VerifyQuote performs the DCAP cryptographic validation flow:
	// PCK chain to the Intel root, attestation-key signature over the
	// quote body, CRL checks, and TCB status determination.
	VerifyQuote(ctx context.Context, raw []byte, collateral *dcap.QuoteCollateralV3, now time.Time) (*dcap.VerifiedReport, error)
	// FetchCollateral retrieves PCK chain, TCB info, QE identity, and
	// CRLs for the platform that produced raw from pccsURL.
	FetchCollateral(ctx context.Context, pccsURL string, raw []byte) (*dcap.QuoteCollateralV3, error)
}

// dcapBindingsVerifier is the production QuoteVerifier backed by the
// Phala Network dcap-qvl Go bindings (a cgo wrapper over the Rust
// dcap-qvl crate; already an indirect dependency of the teacher
// repository via the Dstack RA-TLS package, promoted to direct here).
type dcapBindingsVerifier struct{}

// DefaultQuoteVerifier is the QuoteVerifier used by DstackTDXVerifier
// unless overridden (e.g. in tests).
var DefaultQuoteVerifier QuoteVerifier = dcapBindingsVerifier{}

func (dcapBindingsVerifier) ParseQuote(raw []byte) (*dcap.Quote, error) {
	return dcap.ParseQuote(raw)
}

func (dcapBindingsVerifier) VerifyQuote(_ context.Context, raw []byte, collateral *dcap.QuoteCollateralV3, now time.Time) (*dcap.VerifiedReport, error) {
	if collateral == nil {
		return nil, fmt.Errorf("atls: verify quote: collateral is required")
	}
	return dcap.VerifyQuote(raw, *collateral, uint64(now.Unix()))
}

func (dcapBindingsVerifier) FetchCollateral(_ context.Context, pccsURL string, raw []byte) (*dcap.QuoteCollateralV3, error) {
	return dcap.GetCollateral(pccsURL, raw)
}

// bootchainFromReport extracts MRTD and RTMR0-3 from a parsed TD report.
func bootchainFromReport(r dcap.QuoteReport) (mrtd, rtmr0, rtmr1, rtmr2, rtmr3 []byte) {
	return r.MrTD, r.RTMR0, r.RTMR1, r.RTMR2, r.RTMR3
}

// checkBootchain compares MRTD/RTMR0-2 from the TD report against the
// policy's expected values, aborting at the first mismatch (spec
// §4.8).
func checkBootchain(report dcap.QuoteReport, expected ExpectedBootchain) error {
	checks := []struct {
		field    string
		actual   []byte
		expected string
	}{
		{"mrtd", report.MrTD, expected.MRTD},
		{"rtmr0", report.RTMR0, expected.RTMR0},
		{"rtmr1", report.RTMR1, expected.RTMR1},
		{"rtmr2", report.RTMR2, expected.RTMR2},
	}
	for _, c := range checks {
		want, err := hex.DecodeString(c.expected)
		if err != nil {
			return &ConfigurationError{Field: "expected_bootchain." + c.field, Reason: err.Error()}
		}
		if len(c.actual) != len(want) || subtle.ConstantTimeCompare(c.actual, want) != 1 {
			return &BootchainMismatchError{Field: c.field, Expected: c.expected, Actual: hexOf(c.actual)}
		}
	}
	return nil
}

// checkReportData constant-time-compares the TD report's report_data
// against the EKM-bound expected value (spec §4.5).
func checkReportData(report dcap.QuoteReport, expected [ReportDataSize]byte) error {
	if len(report.ReportData) != ReportDataSize || subtle.ConstantTimeCompare(report.ReportData, expected[:]) != 1 {
		return &ReportDataMismatchError{}
	}
	return nil
}

// checkTcbStatus enforces the allow-list and the unconditional
// Revoked ban (spec §4.4). Revoked is reported through the same
// TcbStatusNotAllowedError as any other disallowed status, per spec
// §7's taxonomy, so callers branching with errors.As catch it
// uniformly rather than needing a separate case for the unconditional
// ban.
func checkTcbStatus(status string, allowed []string) error {
	if status == string(dcap.TcbStatusRevoked) {
		return &TcbStatusNotAllowedError{Status: status, Allowed: allowed}
	}
	for _, a := range allowed {
		if a == status {
			return nil
		}
	}
	return &TcbStatusNotAllowedError{Status: status, Allowed: allowed}
}
