package atls

import (
	"fmt"
	"time"

	dcap "github.com/Phala-Network/dcap-qvl/golang-bindings"
)

// enforceGracePeriod supplements spec.md with the OutOfDate grace
// window from original_source/core/src/tdx/grace_period.rs: when
// gracePeriodSeconds is non-zero and the DCAP status is exactly
// "OutOfDate", the platform's matched TCB level tcb_date must be
// within gracePeriodSeconds of now, in addition to (never instead of)
// the ordinary allowed_tcb_status check that already ran. A
// gracePeriodSeconds of zero disables this entirely, matching
// spec.md's behavior exactly.
func enforceGracePeriod(status string, quote *dcap.Quote, collateral *dcap.QuoteCollateralV3, gracePeriodSeconds uint64, now time.Time) error {
	if gracePeriodSeconds == 0 {
		return nil
	}
	if status != string(dcap.TcbStatusOutOfDate) {
		return nil
	}

	tcbDate, err := matchedTcbDate(quote, collateral)
	if err != nil {
		return err
	}

	tcbTime, err := time.Parse(time.RFC3339, tcbDate)
	if err != nil {
		return &QuoteSignatureError{Reason: fmt.Sprintf("invalid tcb_date %q: %v", tcbDate, err)}
	}

	expiration := tcbTime.Add(time.Duration(gracePeriodSeconds) * time.Second)
	if expiration.Before(now) {
		return &GracePeriodExpiredError{Status: status, TcbDate: tcbDate, GracePeriodSec: gracePeriodSeconds}
	}
	return nil
}

// matchedTcbDate finds the TCB level in collateral.TCBInfo that
// matches the platform's PCE SVN and component SVNs and returns its
// tcb_date. This mirrors original_source/core/src/tdx/grace_period.rs's
// match_tcb_level: a level is accepted only if the platform's PCE SVN
// is at least the level's pce_svn AND every SGX component byte is at
// least the level's sgxtcbcomponents byte, then (for TDX quotes) every
// TEE_TCB_SVN byte is at least the level's tdxtcbcomponents byte — the
// first level satisfying all of that, in the order dcap-qvl reports
// them, is the match.
//
// The platform's PCE SVN comes from the quote header's pce_svn field
// (dcap-qvl exposes it as Quote.Header.PCESVN, adjacent to the
// QEVendorID/QEID fields already used in collateral.go). The Rust
// original derives cpu_svn separately from the PCK certificate's SGX
// extension, which this binding does not surface as a standalone
// field; the TD report's TEE_TCB_SVN is the only per-byte platform
// SVN array this binding exposes, so it is used for both the SGX and
// TDX component comparisons below rather than accepting components on
// mere presence.
func matchedTcbDate(quote *dcap.Quote, collateral *dcap.QuoteCollateralV3) (string, error) {
	fields, ok := parseTcbInfoFields(collateral.TCBInfo)
	if !ok {
		return "", &QuoteSignatureError{Reason: "failed to parse tcb_info for grace period check"}
	}

	isTDX := quote.Report.Type == "TD10" || quote.Report.Type == "TD15"
	platformSvn := quote.Report.TeeTCBSVN

	for _, level := range fields.TcbLevels {
		if quote.Header.PCESVN < level.Tcb.PceSvn {
			continue
		}

		sgx := componentSvns(level.Tcb.SgxComponents)
		if len(sgx) == 0 || !svnsAtLeast(platformSvn, sgx) {
			continue
		}

		if isTDX {
			tdx := componentSvns(level.Tcb.TdxComponents)
			if len(tdx) == 0 || !svnsAtLeast(platformSvn, tdx) {
				continue
			}
		}
		return level.TcbDate, nil
	}
	return "", &QuoteSignatureError{Reason: "no matching TCB level found for grace period check"}
}

func componentSvns(components []tcbComponent) []byte {
	out := make([]byte, len(components))
	for i, c := range components {
		out[i] = c.Svn
	}
	return out
}

// svnsAtLeast reports whether every byte of actual is >= the
// corresponding byte of required.
func svnsAtLeast(actual, required []byte) bool {
	if len(actual) < len(required) {
		return false
	}
	for i, r := range required {
		if actual[i] < r {
			return false
		}
	}
	return true
}
