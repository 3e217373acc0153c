package atls

import (
	"testing"
	"time"
)

func TestParseTcbInfoFields_WrappedShape(t *testing.T) {
	raw := `{"tcbInfo":{"fmspc":"00906ED50000","nextUpdate":"2027-01-01T00:00:00Z","tcbLevels":[]},"signature":"aa"}`
	fields, ok := parseTcbInfoFields(raw)
	if !ok {
		t.Fatal("expected wrapped shape to parse")
	}
	if fields.FMSPC != "00906ED50000" {
		t.Fatalf("unexpected fmspc: %s", fields.FMSPC)
	}
}

func TestParseTcbInfoFields_BareShape(t *testing.T) {
	raw := `{"fmspc":"00906ED50000","nextUpdate":"2027-01-01T00:00:00Z","tcbLevels":[]}`
	fields, ok := parseTcbInfoFields(raw)
	if !ok {
		t.Fatal("expected bare shape to parse")
	}
	if fields.FMSPC != "00906ED50000" {
		t.Fatalf("unexpected fmspc: %s", fields.FMSPC)
	}
}

func TestParseTcbInfoFields_RejectsGarbage(t *testing.T) {
	if _, ok := parseTcbInfoFields("not json at all"); ok {
		t.Fatal("expected garbage input to fail to parse")
	}
}

func TestParseTCBInfoNextUpdate_ParsesRFC3339(t *testing.T) {
	raw := `{"fmspc":"00906ED50000","nextUpdate":"2027-06-15T12:00:00Z","tcbLevels":[]}`
	got := parseTCBInfoNextUpdate(raw)
	want := time.Date(2027, 6, 15, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}
}

func TestParseTCBInfoNextUpdate_MissingFieldReturnsZero(t *testing.T) {
	raw := `{"fmspc":"00906ED50000","tcbLevels":[]}`
	got := parseTCBInfoNextUpdate(raw)
	if !got.IsZero() {
		t.Fatalf("expected zero time for missing nextUpdate, got %v", got)
	}
}

func TestParseTCBInfoNextUpdate_MalformedTimestampReturnsZero(t *testing.T) {
	raw := `{"fmspc":"00906ED50000","nextUpdate":"not-a-time","tcbLevels":[]}`
	got := parseTCBInfoNextUpdate(raw)
	if !got.IsZero() {
		t.Fatalf("expected zero time for malformed nextUpdate, got %v", got)
	}
}
