package atls

import (
	"context"
	"crypto/tls"

	"github.com/aspect-build/jingui/internal/logx"
)

// Connect implements the state machine of spec §4.10: it performs the
// TLS 1.3 handshake with deferred trust, then runs the attestation
// protocol and quote verification for policy's variant. On success it
// returns the live *tls.Conn (HTTP framing from the quote fetch
// consumed, raw TLS continuation available) and the structured
// Report. On any failure after the policy has been validated the
// stream is closed and the first typed error from spec §7 is returned;
// no partial Report is ever returned. A policy that fails validation
// yields its ConfigurationError with the stream left untouched and
// still open.
//
// alpn is optional; when nil the connection offers no ALPN protocols.
func Connect(ctx context.Context, stream ByteDuplex, serverName string, policy Policy, alpn []string) (*tls.Conn, Report, error) {
	verifier, err := policy.IntoVerifier()
	if err != nil {
		// Configuration errors never touch the network (spec §8
		// invariant 4) — stream is untouched, caller retains it.
		return nil, Report{}, err
	}

	doneDeadline := applyContextDeadline(ctx, stream)
	defer doneDeadline()

	hs, err := Handshake(ctx, stream, serverName, alpn)
	if err != nil {
		return nil, Report{}, classifyContextErr(ctx, err, "tls handshake")
	}

	logx.Debugf("atls.connect tls_up server_name=%s", serverName)

	report, err := verifier.Verify(ctx, hs.Conn, hs.LeafDER, hs.SessionEKM, serverName)
	if err != nil {
		_ = hs.Conn.Close()
		return nil, Report{}, classifyContextErr(ctx, err, "attestation verification")
	}

	logx.Infof("atls.connect done server_name=%s tee_type=%s tcb_status=%s", serverName, report.Type, reportTcbStatus(report))
	return hs.Conn, report, nil
}

func reportTcbStatus(r Report) string {
	if r.Tdx != nil {
		return r.Tdx.TcbStatus
	}
	return ""
}

// classifyContextErr replaces err with a Timeout/Cancelled error when
// ctx explains the failure, per spec §5's "no stage retries
// internally; timeouts cause the whole call to fail with Timeout
// without partial state escaping."
func classifyContextErr(ctx context.Context, err error, stage string) error {
	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return &TimeoutError{Stage: stage}
		}
		return &CancelledError{Stage: stage}
	default:
		return err
	}
}
