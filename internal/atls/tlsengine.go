package atls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"time"

	"github.com/aspect-build/jingui/internal/logx"
)

// ekmLabel is the RFC 9266 channel-binding exporter label. The
// context is intentionally empty per spec §3/§4.2.
const ekmLabel = "EXPORTER-Channel-Binding"

// ekmLength is the number of exported keying material bytes (spec §3).
const ekmLength = 32

// HandshakeResult carries everything the attestation protocol needs
// from the TLS 1.3 handshake: the live connection, the captured leaf
// certificate (DER and parsed), and the session EKM.
type HandshakeResult struct {
	Conn       *tls.Conn
	LeafDER    []byte
	Leaf       *x509.Certificate
	SessionEKM [ekmLength]byte
}

// Handshake performs a TLS 1.3 client handshake over stream with a
// deferred certificate-trust policy: the peer's chain is accepted
// unconditionally (trust is established later via the attestation
// protocol, not the CA hierarchy), but the leaf certificate is
// captured verbatim, and RFC 5705 keying material is exported for
// session binding. Standard TLS signature verification (the server
// must hold the private key matching its certificate) is not skipped
// — only chain-of-trust and hostname checks are deferred.
//
// alpn, when non-empty, sets the offered ALPN protocols; serverName
// sets SNI and is also used for host-name-style checks elsewhere in
// the pipeline (never for certificate validation here).
func Handshake(ctx context.Context, stream ByteDuplex, serverName string, alpn []string) (*HandshakeResult, error) {
	if serverName == "" {
		return nil, &TLSHandshakeError{Err: errors.New("server_name must not be empty")}
	}

	netConn := asNetConn(stream)

	var leaf *x509.Certificate
	cfg := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: true,
		MinVersion:         tls.VersionTLS13,
		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errors.New("peer presented no certificate")
			}
			leaf = cs.PeerCertificates[0]
			// Deferred trust: accept unconditionally here. The
			// attestation protocol (spec §4.3-§4.6) is what actually
			// decides whether this certificate's key is trustworthy.
			return nil
		},
	}
	if len(alpn) > 0 {
		cfg.NextProtos = alpn
	}

	conn := tls.Client(netConn, cfg)
	logx.Debugf("atls.tls.handshake start server_name=%s alpn=%v", serverName, alpn)
	if err := conn.HandshakeContext(ctx); err != nil {
		_ = stream.Close()
		return nil, &TLSHandshakeError{Alert: tlsAlertString(err), Err: err}
	}

	if leaf == nil {
		_ = conn.Close()
		return nil, &TLSHandshakeError{Err: errors.New("missing peer certificate")}
	}

	connState := conn.ConnectionState()
	ekm, err := connState.ExportKeyingMaterial(ekmLabel, nil, ekmLength)
	if err != nil {
		_ = conn.Close()
		return nil, &TLSHandshakeError{Err: err}
	}
	if len(ekm) != ekmLength {
		_ = conn.Close()
		return nil, &TLSHandshakeError{Err: errors.New("tls stack exported keying material of unexpected length")}
	}

	var result HandshakeResult
	result.Conn = conn
	result.LeafDER = leaf.Raw
	result.Leaf = leaf
	copy(result.SessionEKM[:], ekm)

	logx.Debugf("atls.tls.handshake ok server_name=%s cipher=%#x", serverName, conn.ConnectionState().CipherSuite)
	return &result, nil
}

// tlsAlertString best-effort extracts a peer-reported alert string.
// crypto/tls reports an alert received from the peer as a *net.OpError
// with Op "remote error"; its wrapped error text (e.g. "tls: handshake
// failure") is returned. A malformed record header yields
// "record_header_error"; any other failure yields "".
func tlsAlertString(err error) string {
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return "record_header_error"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "remote error" && opErr.Err != nil {
		return opErr.Err.Error()
	}
	return ""
}

// asNetConn adapts a ByteDuplex to net.Conn so it can be handed to
// crypto/tls, which requires a net.Conn. When stream already is a
// net.Conn (the common case — direct TCP), it is used as-is.
func asNetConn(stream ByteDuplex) net.Conn {
	if nc, ok := stream.(net.Conn); ok {
		return nc
	}
	return &duplexNetConn{ByteDuplex: stream}
}

// duplexNetConn adapts an arbitrary ByteDuplex (e.g. a WebSocket
// tunnel) to net.Conn for crypto/tls. Address and deadline methods are
// no-ops where the underlying transport does not support them.
type duplexNetConn struct {
	ByteDuplex
}

func (d *duplexNetConn) LocalAddr() net.Addr                { return noAddr{} }
func (d *duplexNetConn) RemoteAddr() net.Addr                { return noAddr{} }
func (d *duplexNetConn) SetDeadline(t time.Time) error       { return d.setDeadlineIfSupported(t) }
func (d *duplexNetConn) SetReadDeadline(t time.Time) error   { return d.setDeadlineIfSupported(t) }
func (d *duplexNetConn) SetWriteDeadline(t time.Time) error  { return d.setDeadlineIfSupported(t) }
func (d *duplexNetConn) Close() error                        { return d.ByteDuplex.Close() }

func (d *duplexNetConn) setDeadlineIfSupported(t time.Time) error {
	type deadliner interface{ SetDeadline(time.Time) error }
	if dl, ok := d.ByteDuplex.(deadliner); ok {
		return dl.SetDeadline(t)
	}
	return nil
}

type noAddr struct{}

func (noAddr) Network() string { return "atls" }
func (noAddr) String() string  { return "atls-tunnel" }
