package atls

import (
	"context"
	"encoding/hex"
	"io"
	"time"

	dcap "github.com/Phala-Network/dcap-qvl/golang-bindings"

	"github.com/aspect-build/jingui/internal/logx"
)

// Verifier is the polymorphic verification contract every policy
// variant compiles down to (spec §4.1). Adding a TEE family means
// adding a Policy variant, a Verifier variant, and a Report variant —
// none of the existing variants change semantically.
type Verifier interface {
	// Verify runs the attestation protocol and quote validation over
	// an already-handshaked TLS stream and returns a Report on
	// success. leafCertDER is the captured peer certificate (DER);
	// sessionEKM is the RFC 5705 exporter output from that same
	// handshake.
	Verify(ctx context.Context, stream io.ReadWriter, leafCertDER []byte, sessionEKM [ekmLength]byte, serverName string) (Report, error)
}

// DstackTDXVerifier is the Verifier for the dstack_tdx policy variant.
// Constructed exclusively via Policy.IntoVerifier / DstackTdxPolicy's
// internal builder so that construction always goes through
// validation (spec §8 invariant 4).
type DstackTDXVerifier struct {
	expectedBootchain  *ExpectedBootchain
	appCompose         AppCompose
	osImageHash        string
	allowedTcbStatus   []string
	disableRuntime     bool
	pccsURL            string
	cacheCollateral    bool
	gracePeriodSeconds uint64

	// QuoteVerifier is the DCAP I/O dependency (spec §9); overridable
	// for tests. Defaults to DefaultQuoteVerifier.
	QuoteVerifier QuoteVerifier
	// Cache is the shared collateral cache used when cacheCollateral
	// is set. A new private cache is created lazily if nil.
	Cache *CollateralCache
	// EventTags overrides the event-log tag names (spec §9 Open
	// Question). Zero value uses the documented defaults.
	EventTags EventTags
	// MaxQuoteResponseBytes overrides the /tdx_quote response size
	// cap (spec §4.3). Zero uses the package default.
	MaxQuoteResponseBytes int64
	// Now overrides the clock used for TCB grace-period and
	// collateral-staleness checks; defaults to time.Now.
	Now func() time.Time
}

func (v *DstackTDXVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func (v *DstackTDXVerifier) quoteVerifier() QuoteVerifier {
	if v.QuoteVerifier != nil {
		return v.QuoteVerifier
	}
	return DefaultQuoteVerifier
}

// Verify implements Verifier for the dstack_tdx policy (spec §4.3-§4.9,
// state machine §4.10).
func (v *DstackTDXVerifier) Verify(ctx context.Context, stream io.ReadWriter, leafCertDER []byte, sessionEKM [ekmLength]byte, serverName string) (Report, error) {
	nonce, err := GenerateNonce()
	if err != nil {
		return Report{}, err
	}
	expectedReportData := ComputeReportData(nonce, sessionEKM)

	envelope, _, err := FetchQuote(ctx, stream, serverName, nonce, v.MaxQuoteResponseBytes)
	if err != nil {
		return Report{}, err
	}

	rawQuote, err := hexDecodeQuote(envelope.Quote)
	if err != nil {
		return Report{}, &QuoteFetchError{Reason: "invalid quote hex", Err: err}
	}

	qv := v.quoteVerifier()
	parsedQuote, err := qv.ParseQuote(rawQuote)
	if err != nil {
		return Report{}, &QuoteSignatureError{Reason: "failed to parse quote", Err: err}
	}

	collateral, err := v.collateral(ctx, qv, rawQuote, parsedQuote)
	if err != nil {
		return Report{}, err
	}

	verified, err := qv.VerifyQuote(ctx, rawQuote, collateral, v.now())
	if err != nil {
		return Report{}, &QuoteSignatureError{Reason: "DCAP verification failed", Err: err}
	}
	logx.Debugf("atls.verify tcb_status=%s advisories=%v", verified.Status, verified.AdvisoryIDs)

	if err := checkTcbStatus(string(verified.Status), v.allowedTcbStatus); err != nil {
		return Report{}, err
	}
	if err := enforceGracePeriod(string(verified.Status), parsedQuote, collateral, v.gracePeriodSeconds, v.now()); err != nil {
		return Report{}, err
	}

	if err := checkReportData(verified.Report, expectedReportData); err != nil {
		return Report{}, err
	}

	replay, err := ReplayRTMR3(envelope.EventLog, v.EventTags)
	if err != nil {
		return Report{}, err
	}
	if err := CheckRTMR3(replay.RTMR3Computed, verified.Report.RTMR3); err != nil {
		return Report{}, err
	}

	leafSPKI, err := subjectPublicKeyInfoDER(leafCertDER)
	if err != nil {
		return Report{}, &KeyBindingMismatchError{Reason: err.Error()}
	}
	if err := CheckKeyBinding(replay.KeyBinding, leafSPKI); err != nil {
		return Report{}, err
	}

	if !v.disableRuntime {
		if v.expectedBootchain == nil {
			return Report{}, &ConfigurationError{Field: "expected_bootchain", Reason: "runtime verification enabled but no expected bootchain configured"}
		}
		if err := checkBootchain(verified.Report, *v.expectedBootchain); err != nil {
			return Report{}, err
		}
		if err := CheckAppCompose(replay.AppCompose, v.appCompose); err != nil {
			return Report{}, err
		}
		if err := CheckOSImage(replay.OSImage, v.osImageHash); err != nil {
			return Report{}, err
		}
	}

	mrtd, rtmr0, rtmr1, rtmr2, rtmr3 := bootchainFromReport(verified.Report)
	report := Report{
		Type: TeeTypeTDX,
		Tdx: &TdxReport{
			TeeType:     TeeTypeTDX,
			Measurement: hexOf(mrtd),
			TcbStatus:   string(verified.Status),
			AdvisoryIDs: append([]string(nil), verified.AdvisoryIDs...),
			RTMR:        [4]string{hexOf(rtmr0), hexOf(rtmr1), hexOf(rtmr2), hexOf(rtmr3)},
			MRTD:        hexOf(mrtd),
		},
	}
	return report, nil
}

func (v *DstackTDXVerifier) collateral(ctx context.Context, qv QuoteVerifier, raw []byte, q *dcap.Quote) (*dcap.QuoteCollateralV3, error) {
	if !v.cacheCollateral {
		return fetchNoCache(ctx, qv, v.pccsURL, raw)
	}
	if v.Cache == nil {
		cache, err := NewCollateralCache(128)
		if err != nil {
			return nil, err
		}
		v.Cache = cache
	}
	return v.Cache.getOrFetch(ctx, qv, v.pccsURL, raw, q, v.now())
}

func hexDecodeQuote(s string) ([]byte, error) {
	return hex.DecodeString(s)
}
