package atls

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DefaultPCCSURL is the default Intel-compatible PCCS endpoint used
// for TDX collateral fetching when a policy does not override it.
const DefaultPCCSURL = "https://pccs.phala.network/tdx/certification/v4"

// ExpectedBootchain names the four SHA-384 measurements identifying
// firmware, virtual hardware, kernel, and kernel cmdline/initramfs.
// Every field is a lowercase, even-length hex string decoding to
// exactly 48 bytes.
type ExpectedBootchain struct {
	MRTD  string `json:"mrtd"`
	RTMR0 string `json:"rtmr0"`
	RTMR1 string `json:"rtmr1"`
	RTMR2 string `json:"rtmr2"`
}

func (b ExpectedBootchain) validate() error {
	fields := []struct {
		name string
		val  string
	}{
		{"mrtd", b.MRTD}, {"rtmr0", b.RTMR0}, {"rtmr1", b.RTMR1}, {"rtmr2", b.RTMR2},
	}
	for _, f := range fields {
		if err := validateHexLen(f.val, 48); err != nil {
			return &ConfigurationError{Field: "expected_bootchain." + f.name, Reason: err.Error()}
		}
	}
	return nil
}

// validateHexLen checks that s is lowercase, even-length hex decoding
// to exactly n bytes.
func validateHexLen(s string, n int) error {
	if len(s) != n*2 {
		return fmt.Errorf("must be %d hex characters (%d bytes), got %d", n*2, n, len(s))
	}
	for _, c := range s {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') {
			continue
		}
		return fmt.Errorf("must be lowercase hex")
	}
	if _, err := hex.DecodeString(s); err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	return nil
}

// DstackTdxPolicy is the acceptance criteria for a Dstack-hosted TDX
// peer. See spec §3 and §6 for the invariants and wire schema.
type DstackTdxPolicy struct {
	ExpectedBootchain           *ExpectedBootchain `json:"expected_bootchain,omitempty"`
	AppCompose                  json.RawMessage    `json:"app_compose,omitempty"`
	OSImageHash                 string             `json:"os_image_hash,omitempty"`
	AllowedTcbStatus            []string           `json:"allowed_tcb_status"`
	DisableRuntimeVerification  bool               `json:"disable_runtime_verification,omitempty"`
	PCCSURL                     string             `json:"pccs_url,omitempty"`
	CacheCollateral             bool               `json:"cache_collateral,omitempty"`
	// GracePeriodSeconds, when non-zero, rejects an OutOfDate TCB
	// status unless the matched TCB level's tcbDate is within this many
	// seconds of now. It applies in addition to (not instead of)
	// AllowedTcbStatus: OutOfDate must still be listed there. Not part
	// of spec.md's wire schema; see SPEC_FULL.md's Supplemented
	// Features.
	GracePeriodSeconds uint64 `json:"grace_period_seconds,omitempty"`
}

// Policy is the tagged sum of acceptance criteria. The discriminator
// field "type" selects the variant; "dstack_tdx" is the only variant
// today. Adding a TEE family is purely additive per spec §4.1/§9.
type Policy struct {
	Type      string           `json:"type"`
	DstackTdx DstackTdxPolicy   `json:"-"`
}

// dstackTdxWireType is the JSON discriminator for the Dstack TDX variant.
const dstackTdxWireType = "dstack_tdx"

// NewDstackTdxPolicy returns a Policy wrapping cfg as the dstack_tdx
// variant.
func NewDstackTdxPolicy(cfg DstackTdxPolicy) Policy {
	return Policy{Type: dstackTdxWireType, DstackTdx: cfg}
}

// DefaultDstackTdxPolicy returns the zero-value dstack_tdx policy with
// documented defaults resolved: allowed_tcb_status=["UpToDate"],
// pccs_url=DefaultPCCSURL.
func DefaultDstackTdxPolicy() DstackTdxPolicy {
	return DstackTdxPolicy{
		AllowedTcbStatus: []string{"UpToDate"},
		PCCSURL:          DefaultPCCSURL,
	}
}

// Dev returns a policy with disable_runtime_verification=true and a
// permissive TCB set, for local development only. It still enforces
// EKM binding, RTMR3 replay, and the TLS key-binding event (spec §8
// scenario S6).
func (DstackTdxPolicy) Dev() DstackTdxPolicy {
	p := DefaultDstackTdxPolicy()
	p.DisableRuntimeVerification = true
	p.AllowedTcbStatus = []string{"UpToDate", "SWHardeningNeeded", "OutOfDate"}
	return p
}

// DevPolicy is the convenience constructor named in spec §6:
// Policy::dev().
func DevPolicy() Policy {
	return NewDstackTdxPolicy(DstackTdxPolicy{}.Dev())
}

// MarshalJSON implements the tagged-union wire format: {"type": ...,
// <DstackTdxPolicy fields inlined>}.
func (p Policy) MarshalJSON() ([]byte, error) {
	switch p.Type {
	case dstackTdxWireType, "":
		type alias DstackTdxPolicy
		return json.Marshal(struct {
			Type string `json:"type"`
			alias
		}{Type: dstackTdxWireType, alias: alias(p.DstackTdx)})
	default:
		return nil, &ConfigurationError{Field: "type", Reason: fmt.Sprintf("unknown policy variant %q", p.Type)}
	}
}

// UnmarshalJSON implements the tagged-union wire format.
func (p *Policy) UnmarshalJSON(data []byte) error {
	var disc struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &disc); err != nil {
		return err
	}
	switch disc.Type {
	case dstackTdxWireType, "":
		var cfg DstackTdxPolicy
		if err := json.Unmarshal(data, &cfg); err != nil {
			return err
		}
		p.Type = dstackTdxWireType
		p.DstackTdx = cfg
		return nil
	default:
		return &ConfigurationError{Field: "type", Reason: fmt.Sprintf("unknown policy variant %q", disc.Type)}
	}
}

// PolicyFromJSON parses a wire-format policy document (spec §6).
func PolicyFromJSON(data []byte) (Policy, error) {
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("atls: parse policy: %w", err)
	}
	return p, nil
}

// IntoVerifier validates the policy (spec §3 invariants) and builds
// the concrete Verifier for it, resolving defaults and normalizing
// app_compose. Policies that fail here never reach the network (spec
// §8 invariant 4).
func (p Policy) IntoVerifier() (Verifier, error) {
	switch p.Type {
	case dstackTdxWireType, "":
		return p.DstackTdx.intoVerifier()
	default:
		return nil, &ConfigurationError{Field: "type", Reason: fmt.Sprintf("unknown policy variant %q", p.Type)}
	}
}

func (cfg DstackTdxPolicy) intoVerifier() (*DstackTDXVerifier, error) {
	if len(cfg.AllowedTcbStatus) == 0 {
		return nil, &ConfigurationError{Field: "allowed_tcb_status", Reason: "must be non-empty"}
	}
	// "Revoked" is not rejected here even if present in the list: the
	// configuration-validity invariant (spec §3) only requires
	// allowed_tcb_status to be non-empty. The unconditional Revoked ban
	// belongs to checkTcbStatus at verify time (spec §4.4), which
	// rejects it regardless of what this list contains.

	if !cfg.DisableRuntimeVerification {
		if cfg.ExpectedBootchain == nil {
			return nil, &ConfigurationError{Field: "expected_bootchain", Reason: "required unless disable_runtime_verification is true"}
		}
		if err := cfg.ExpectedBootchain.validate(); err != nil {
			return nil, err
		}
		if cfg.OSImageHash == "" {
			return nil, &ConfigurationError{Field: "os_image_hash", Reason: "required unless disable_runtime_verification is true"}
		}
		if err := validateHexLen(cfg.OSImageHash, 32); err != nil {
			return nil, &ConfigurationError{Field: "os_image_hash", Reason: err.Error()}
		}
		if len(cfg.AppCompose) == 0 {
			return nil, &ConfigurationError{Field: "app_compose", Reason: "required unless disable_runtime_verification is true"}
		}
	} else if cfg.OSImageHash != "" {
		if err := validateHexLen(cfg.OSImageHash, 32); err != nil {
			return nil, &ConfigurationError{Field: "os_image_hash", Reason: err.Error()}
		}
	}

	pccsURL := cfg.PCCSURL
	if pccsURL == "" {
		pccsURL = DefaultPCCSURL
	}

	var compose AppCompose
	if len(cfg.AppCompose) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(cfg.AppCompose, &raw); err != nil {
			return nil, &ConfigurationError{Field: "app_compose", Reason: fmt.Sprintf("invalid JSON object: %v", err)}
		}
		compose = MergeWithDefaultAppCompose(raw)
	} else {
		compose = MergeWithDefaultAppCompose(nil)
	}

	return &DstackTDXVerifier{
		expectedBootchain:  cfg.ExpectedBootchain,
		appCompose:         compose,
		osImageHash:        cfg.OSImageHash,
		allowedTcbStatus:   append([]string(nil), cfg.AllowedTcbStatus...),
		disableRuntime:     cfg.DisableRuntimeVerification,
		pccsURL:            pccsURL,
		cacheCollateral:    cfg.CacheCollateral,
		gracePeriodSeconds: cfg.GracePeriodSeconds,
	}, nil
}
