package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aspect-build/jingui/internal/atls"
	"github.com/aspect-build/jingui/internal/attestation"
	"github.com/aspect-build/jingui/internal/logx"
)

// tdxQuoteRequest is the wire shape a /tdx_quote client sends (see
// internal/atls/protocol.go's FetchQuote, the client side of the same
// exchange).
type tdxQuoteRequest struct {
	NonceHex string `json:"nonce_hex"`
}

type tdxQuoteResponse struct {
	Success bool               `json:"success"`
	Quote   atls.QuoteEnvelope `json:"quote"`
}

// InfoCollector matches attestation.DstackInfoCollector's Collect
// method, kept as an interface here so tests can supply a fake
// without a real dstack guest-agent socket.
type InfoCollector interface {
	Collect(ctx context.Context) (attestation.Bundle, error)
}

// QuoteFixture is a canned /tdx_quote response used for local
// development in place of a real TDX quote (generating a genuine
// quote requires hardware and is a Non-goal of this repository).
type QuoteFixture struct {
	QuoteHex string
	EventLog []atls.EventLogEntry
}

// zeroDigestHex is the hex encoding of 48 zero bytes: a placeholder
// SHA-384 digest for the fixture event log entry below.
var zeroDigestHex = hex.EncodeToString(make([]byte, 48))

// DefaultQuoteFixture returns a syntactically valid but not
// cryptographically meaningful fixture: a single-byte quote and one
// imr==3 event log entry, sufficient to drive the client pipeline's
// framing and event-log replay code paths against a Verifier that has
// been configured with a fake QuoteVerifier (see
// internal/atls/verifier_test.go for the pattern this handler
// exists to serve end-to-end).
func DefaultQuoteFixture() *QuoteFixture {
	return &QuoteFixture{
		QuoteHex: "00",
		EventLog: []atls.EventLogEntry{
			{
				IMR:          3,
				EventType:    1,
				Digest:       zeroDigestHex,
				Event:        atls.EventTagKeyProvider,
				EventPayload: "",
			},
		},
	}
}

// HandleTdxQuote serves POST /tdx_quote: it accepts the nonce_hex
// request body from internal/atls's FetchQuote and answers with fx,
// the fixture configured at server startup. collector, when non-nil,
// is consulted for diagnostics only — this handler never derives the
// response from live dstack state, since real quote issuance is out
// of scope for this repository.
func HandleTdxQuote(fx *QuoteFixture, collector InfoCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tdxQuoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
			return
		}
		if req.NonceHex == "" {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "nonce_hex is required"})
			return
		}

		if collector != nil {
			if info, err := collector.Collect(c.Request.Context()); err == nil {
				logx.Debugf("server.tdx_quote fixture serving app_id=%s", info.AppID)
			} else {
				logx.Debugf("server.tdx_quote info collector unavailable: %v", err)
			}
		}

		resp := tdxQuoteResponse{
			Success: true,
			Quote: atls.QuoteEnvelope{
				Quote:    fx.QuoteHex,
				EventLog: fx.EventLog,
			},
		}
		body, err := json.Marshal(resp)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to encode fixture response"})
			return
		}
		c.Data(http.StatusOK, "application/json", body)
	}
}
