package atls

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
)

// AppCompose is the canonical description of the workload running
// inside the TEE, normally a Docker Compose file plus dstack-specific
// metadata. It is stored as a generic JSON object so that unknown
// operator fields survive the merge/hash round trip untouched.
type AppCompose map[string]any

// defaultAppComposeRunner is the canonical runner injected by
// MergeWithDefaultAppCompose (together with an empty allowed_envs
// array) when the caller omits it, so semantically identical workloads
// hash identically regardless of which optional fields were spelled
// out (spec §4.1, §4.7).
const defaultAppComposeRunner = "docker-compose"

// MergeWithDefaultAppCompose injects the canonical runner and an
// empty allowed_envs array when the caller's object omits them.
// User-provided values always win. A nil input is treated as an empty
// object.
func MergeWithDefaultAppCompose(user map[string]any) AppCompose {
	merged := make(AppCompose, len(user)+2)
	for k, v := range user {
		merged[k] = v
	}
	if _, ok := merged["runner"]; !ok {
		merged["runner"] = defaultAppComposeRunner
	}
	if _, ok := merged["allowed_envs"]; !ok {
		merged["allowed_envs"] = []any{}
	}
	return merged
}

// CanonicalJSON serializes the compose object with keys sorted
// lexicographically at every object depth and no insignificant
// whitespace, matching spec §4.7. Go's encoding/json already sorts
// map[string]any keys when marshaling, and its decoder produces
// map[string]any for every nested object, so a plain round trip
// through map[string]any is sufficient canonicalization; only HTML
// escaping is disabled so the byte sequence is stable across
// implementations that do not escape '<', '>', '&' inside strings.
func (a AppCompose) CanonicalJSON() ([]byte, error) {
	normalized, err := normalizeJSONValue(map[string]any(a))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}
	// json.Encoder.Encode always appends a trailing newline; canonical
	// output has none.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// normalizeJSONValue round-trips v through JSON so that values coming
// from Go literals (e.g. int, []string) end up as the same
// map[string]any/[]any/float64/string/bool/nil shapes the decoder
// would produce, guaranteeing deterministic key ordering and type
// representation regardless of how the caller built the AppCompose.
func normalizeJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Hash returns the 32-byte SHA-256 of the canonical JSON serialization
// (spec §4.7, §8 invariant 5: idempotent and key-order insensitive).
func (a AppCompose) Hash() ([32]byte, error) {
	canonical, err := a.CanonicalJSON()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(canonical), nil
}
