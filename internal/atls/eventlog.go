package atls

import (
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
)

// Event tag constants used to locate the three significant entries
// during RTMR3 replay (spec §4.6, §9 Open Question). Dstack does not
// fix these strings in a stable public schema; they are sourced from
// the runtime's published event log and must be treated as
// configuration, not a hard-coded protocol constant. Overriding them
// is exposed via EventTags on DstackTDXVerifier for operators running
// a Dstack version with different tags.
const (
	// EventTagKeyProvider marks the TLS public-key commitment event —
	// spec §4.6 names this tag explicitly.
	EventTagKeyProvider = "key-provider"
	// EventTagAppCompose marks the deployed app-compose hash event.
	EventTagAppCompose = "compose-hash"
	// EventTagOSImage marks the OS image manifest hash event.
	EventTagOSImage = "os-image-hash"
)

// EventTags names the three event tags the replay step looks for.
// An empty field falls back to the matching default (EventTagKeyProvider,
// EventTagAppCompose, EventTagOSImage), so the zero value behaves as
// the defaults.
type EventTags struct {
	KeyProvider string
	AppCompose  string
	OSImage     string
}

func (t EventTags) withDefaults() EventTags {
	if t.KeyProvider == "" {
		t.KeyProvider = EventTagKeyProvider
	}
	if t.AppCompose == "" {
		t.AppCompose = EventTagAppCompose
	}
	if t.OSImage == "" {
		t.OSImage = EventTagOSImage
	}
	return t
}

// ReplayResult carries the outcome of replaying an event log's
// imr==3 entries (spec §4.6).
type ReplayResult struct {
	RTMR3Computed [48]byte
	KeyBinding    *EventLogEntry
	AppCompose    *EventLogEntry
	OSImage       *EventLogEntry
}

// ReplayRTMR3 rebuilds RTMR3 by folding every imr==3 entry's digest,
// in the order received, into a running SHA-384 accumulator starting
// from 48 zero bytes (spec §4.6). It also records the first entry
// matching each of tags.KeyProvider/AppCompose/OSImage for later
// payload comparison.
func ReplayRTMR3(log []EventLogEntry, tags EventTags) (ReplayResult, error) {
	tags = tags.withDefaults()
	var result ReplayResult
	acc := make([]byte, 48)

	for i := range log {
		entry := log[i]
		if entry.IMR != 3 {
			continue
		}
		digest, err := entry.DigestBytes()
		if err != nil {
			return ReplayResult{}, err
		}
		h := sha512.New384()
		h.Write(acc)
		h.Write(digest)
		acc = h.Sum(nil)

		switch entry.Event {
		case tags.KeyProvider:
			if result.KeyBinding == nil {
				result.KeyBinding = &log[i]
			}
		case tags.AppCompose:
			if result.AppCompose == nil {
				result.AppCompose = &log[i]
			}
		case tags.OSImage:
			if result.OSImage == nil {
				result.OSImage = &log[i]
			}
		}
	}

	copy(result.RTMR3Computed[:], acc)
	return result, nil
}

// CheckRTMR3 compares the replayed RTMR3 against the quote-reported
// value in constant time.
func CheckRTMR3(computed [48]byte, quoteRTMR3 []byte) error {
	if len(quoteRTMR3) != 48 || subtle.ConstantTimeCompare(computed[:], quoteRTMR3) != 1 {
		return &Rtmr3MismatchError{Expected: hexOf(quoteRTMR3), Computed: hexOf(computed[:])}
	}
	return nil
}

// CheckKeyBinding proves the TEE owns the TLS key: the key-binding
// event's payload must equal SHA-256 of the negotiated leaf
// certificate's SubjectPublicKeyInfo (spec §4.6).
func CheckKeyBinding(entry *EventLogEntry, leafSPKI []byte) error {
	if entry == nil {
		return &KeyBindingMismatchError{Reason: "no key-provider event found in event log"}
	}
	payload, err := entry.PayloadBytes()
	if err != nil {
		return &KeyBindingMismatchError{Reason: err.Error()}
	}
	want := sha256.Sum256(leafSPKI)
	if len(payload) != len(want) || subtle.ConstantTimeCompare(payload, want[:]) != 1 {
		return &KeyBindingMismatchError{Reason: "sha256(leaf SubjectPublicKeyInfo) does not match event payload"}
	}
	return nil
}

// CheckAppCompose compares the recomputed 32-byte app-compose hash
// against the event log's payload (spec §4.6, §4.7).
func CheckAppCompose(entry *EventLogEntry, compose AppCompose) error {
	if entry == nil {
		return &AppComposeMismatchError{Actual: "<missing event>"}
	}
	want, err := compose.Hash()
	if err != nil {
		return err
	}
	payload, err := entry.PayloadBytes()
	if err != nil {
		return &AppComposeMismatchError{Expected: hexOf(want[:]), Actual: err.Error()}
	}
	if len(payload) != len(want) || subtle.ConstantTimeCompare(payload, want[:]) != 1 {
		return &AppComposeMismatchError{Expected: hexOf(want[:]), Actual: hexOf(payload)}
	}
	return nil
}

// CheckOSImage compares the OS-image event payload against the
// policy's expected SHA-256 (spec §4.6).
func CheckOSImage(entry *EventLogEntry, expectedHex string) error {
	if entry == nil {
		return &OsImageMismatchError{Expected: expectedHex, Actual: "<missing event>"}
	}
	payload, err := entry.PayloadBytes()
	if err != nil {
		return &OsImageMismatchError{Expected: expectedHex, Actual: err.Error()}
	}
	actualHex := hexOf(payload)
	if actualHex != expectedHex {
		return &OsImageMismatchError{Expected: expectedHex, Actual: actualHex}
	}
	return nil
}
