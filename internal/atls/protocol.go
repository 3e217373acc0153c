package atls

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/aspect-build/jingui/internal/logx"
)

// NonceSize is the length in bytes of the client freshness nonce
// (spec §3).
const NonceSize = 32

// ReportDataSize is the length in bytes of the EKM-bound binding input
// for the quote (spec §3).
const ReportDataSize = 64

// defaultMaxQuoteResponseBytes caps the /tdx_quote response body to
// guard against a malicious or misbehaving server (spec §4.3
// recommends >=256KiB, <=4MiB).
const defaultMaxQuoteResponseBytes = 2 << 20 // 2 MiB

// headerAllowance bounds how many extra bytes beyond the body cap are
// permitted for HTTP status line + headers.
const headerAllowance = 16 << 10 // 16 KiB

// GenerateNonce returns 32 fresh bytes from a CSPRNG (spec §3).
func GenerateNonce() ([NonceSize]byte, error) {
	var n [NonceSize]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("atls: generate nonce: %w", err)
	}
	return n, nil
}

// ComputeReportData computes the 64-byte binding input
// SHA-512(nonce || session_ekm) (spec §3, §4.3 step 5).
func ComputeReportData(nonce [NonceSize]byte, sessionEKM [ekmLength]byte) [ReportDataSize]byte {
	h := sha512.New()
	h.Write(nonce[:])
	h.Write(sessionEKM[:])
	var out [ReportDataSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// EventLogEntry is one Dstack RTMR extend operation (spec §3, §4.6).
type EventLogEntry struct {
	IMR          int    `json:"imr"`
	EventType    uint32 `json:"event_type"`
	Digest       string `json:"digest"`        // hex, 48 bytes
	Event        string `json:"event"`         // ASCII tag
	EventPayload string `json:"event_payload"` // hex bytes
}

// DigestBytes decodes Digest, returning an error if it is not
// well-formed 48-byte hex.
func (e EventLogEntry) DigestBytes() ([]byte, error) {
	b, err := hex.DecodeString(e.Digest)
	if err != nil {
		return nil, fmt.Errorf("event log entry: invalid digest hex: %w", err)
	}
	if len(b) != 48 {
		return nil, fmt.Errorf("event log entry: digest must be 48 bytes, got %d", len(b))
	}
	return b, nil
}

// PayloadBytes decodes EventPayload.
func (e EventLogEntry) PayloadBytes() ([]byte, error) {
	b, err := hex.DecodeString(e.EventPayload)
	if err != nil {
		return nil, fmt.Errorf("event log entry: invalid event_payload hex: %w", err)
	}
	return b, nil
}

// QuoteEnvelope is the "quote" object inside a /tdx_quote response
// (spec §4.3 step 4).
type QuoteEnvelope struct {
	Quote    string          `json:"quote"` // hex-encoded TDX v4 quote
	EventLog []EventLogEntry `json:"event_log"`
}

// quoteHTTPResponse is the full JSON body of a /tdx_quote response.
type quoteHTTPResponse struct {
	Success    bool            `json:"success"`
	Quote      QuoteEnvelope   `json:"quote"`
	Collateral json.RawMessage `json:"collateral,omitempty"`
}

type quoteHTTPRequestBody struct {
	NonceHex string `json:"nonce_hex"`
}

// FetchQuote issues the normative single-shot HTTP/1.1 exchange of
// spec §4.3 over conn (already an established TLS session) and
// returns the parsed quote envelope and any raw collateral the server
// chose to include inline.
func FetchQuote(ctx context.Context, conn io.ReadWriter, serverName string, nonce [NonceSize]byte, maxBodyBytes int64) (*QuoteEnvelope, json.RawMessage, error) {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxQuoteResponseBytes
	}

	reqBody, err := json.Marshal(quoteHTTPRequestBody{NonceHex: hex.EncodeToString(nonce[:])})
	if err != nil {
		return nil, nil, &QuoteFetchError{Reason: "marshal request body", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/tdx_quote", bytes.NewReader(reqBody))
	if err != nil {
		return nil, nil, &QuoteFetchError{Reason: "build request", Err: err}
	}
	req.Host = serverName
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "close")
	req.ContentLength = int64(len(reqBody))

	logx.Debugf("atls.protocol.quote_fetch request host=%s body_len=%d", serverName, len(reqBody))
	if err := req.Write(conn); err != nil {
		return nil, nil, &QuoteFetchError{Reason: "write request", Err: err}
	}

	limited := io.LimitReader(conn, maxBodyBytes+headerAllowance)
	resp, err := http.ReadResponse(bufio.NewReader(limited), req)
	if err != nil {
		return nil, nil, &QuoteFetchError{Reason: "read response", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, &QuoteFetchError{Reason: "read body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, &QuoteFetchError{Reason: fmt.Sprintf("non-2xx status %d", resp.StatusCode)}
	}

	var parsed quoteHTTPResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, nil, &QuoteFetchError{Reason: "malformed JSON body", Err: err}
	}
	if !parsed.Success {
		return nil, nil, &QuoteFetchError{Reason: "server reported success=false"}
	}
	if parsed.Quote.Quote == "" {
		return nil, nil, &QuoteFetchError{Reason: "missing quote hex"}
	}

	logx.Debugf("atls.protocol.quote_fetch response status=%d event_log_entries=%d", resp.StatusCode, len(parsed.Quote.EventLog))
	return &parsed.Quote, parsed.Collateral, nil
}
