// Package atls implements attested TLS: a client-side verification
// pipeline that binds a hardware-signed Intel TDX quote to a TLS 1.3
// session and checks the quote's measurements against an operator
// policy before secrets ever cross the wire.
package atls

import "fmt"

// ConfigurationError reports a policy that is not configuration-valid.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("atls: configuration error: field %q: %s", e.Field, e.Reason)
}

// TLSHandshakeError wraps a failed TLS 1.3 negotiation, including the
// case where the negotiated stack cannot export RFC 5705 keying
// material.
type TLSHandshakeError struct {
	Alert string
	Err   error
}

func (e *TLSHandshakeError) Error() string {
	if e.Alert != "" {
		return fmt.Sprintf("atls: tls handshake failed (alert=%s): %v", e.Alert, e.Err)
	}
	return fmt.Sprintf("atls: tls handshake failed: %v", e.Err)
}

func (e *TLSHandshakeError) Unwrap() error { return e.Err }

// QuoteFetchError reports a failure of the in-band /tdx_quote exchange.
type QuoteFetchError struct {
	Reason string
	Err    error
}

func (e *QuoteFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("atls: quote fetch failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("atls: quote fetch failed: %s", e.Reason)
}

func (e *QuoteFetchError) Unwrap() error { return e.Err }

// CollateralFetchError reports a failure fetching DCAP collateral from
// PCCS.
type CollateralFetchError struct {
	PCCSURL string
	Err     error
}

func (e *CollateralFetchError) Error() string {
	return fmt.Sprintf("atls: collateral fetch from %q failed: %v", e.PCCSURL, e.Err)
}

func (e *CollateralFetchError) Unwrap() error { return e.Err }

// QuoteSignatureError reports a DCAP cryptographic validation failure.
type QuoteSignatureError struct {
	Reason string
	Err    error
}

func (e *QuoteSignatureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("atls: quote signature invalid: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("atls: quote signature invalid: %s", e.Reason)
}

func (e *QuoteSignatureError) Unwrap() error { return e.Err }

// TcbStatusNotAllowedError reports a TCB status outside the policy's
// allowed set.
type TcbStatusNotAllowedError struct {
	Status  string
	Allowed []string
}

func (e *TcbStatusNotAllowedError) Error() string {
	return fmt.Sprintf("atls: tcb status %q not in allowed set %v", e.Status, e.Allowed)
}

// GracePeriodExpiredError reports an OutOfDate TCB status whose grace
// window has elapsed.
type GracePeriodExpiredError struct {
	Status         string
	TcbDate        string
	GracePeriodSec uint64
}

func (e *GracePeriodExpiredError) Error() string {
	return fmt.Sprintf("atls: tcb status %q (tcb_date=%s) exceeds grace period of %ds", e.Status, e.TcbDate, e.GracePeriodSec)
}

// ReportDataMismatchError signals a failed EKM-bound nonce check —
// the relay-attack signal.
type ReportDataMismatchError struct{}

func (e *ReportDataMismatchError) Error() string {
	return "atls: report_data does not match sha512(nonce || session_ekm); possible relay"
}

// BootchainMismatchError reports a single MRTD/RTMR0-2 disagreement.
type BootchainMismatchError struct {
	Field    string
	Expected string
	Actual   string
}

func (e *BootchainMismatchError) Error() string {
	return fmt.Sprintf("atls: bootchain mismatch on %s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

// Rtmr3MismatchError reports a failed event-log replay.
type Rtmr3MismatchError struct {
	Expected string
	Computed string
}

func (e *Rtmr3MismatchError) Error() string {
	return fmt.Sprintf("atls: rtmr3 mismatch: quote has %s, replay computed %s", e.Expected, e.Computed)
}

// KeyBindingMismatchError reports a missing or mismatched TLS
// key-binding event in the replayed log.
type KeyBindingMismatchError struct {
	Reason string
}

func (e *KeyBindingMismatchError) Error() string {
	return fmt.Sprintf("atls: tls key binding event mismatch: %s", e.Reason)
}

// AppComposeMismatchError reports a disagreement between the policy's
// canonical app-compose hash and the event log's payload.
type AppComposeMismatchError struct {
	Expected string
	Actual   string
}

func (e *AppComposeMismatchError) Error() string {
	return fmt.Sprintf("atls: app_compose hash mismatch: policy computed %s, event log has %s", e.Expected, e.Actual)
}

// OsImageMismatchError reports a disagreement between the policy's
// os_image_hash and the event log's payload.
type OsImageMismatchError struct {
	Expected string
	Actual   string
}

func (e *OsImageMismatchError) Error() string {
	return fmt.Sprintf("atls: os_image hash mismatch: policy has %s, event log has %s", e.Expected, e.Actual)
}

// TimeoutError reports an external deadline firing mid-call.
type TimeoutError struct {
	Stage string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("atls: timed out during %s", e.Stage)
}

// CancelledError reports an external cancellation signal firing
// mid-call.
type CancelledError struct {
	Stage string
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("atls: cancelled during %s", e.Stage)
}
