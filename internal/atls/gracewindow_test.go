package atls

import (
	"testing"
	"time"

	dcap "github.com/Phala-Network/dcap-qvl/golang-bindings"
)

func componentsJSON(svns []byte) string {
	comps := ""
	for i, svn := range svns {
		if i > 0 {
			comps += ","
		}
		comps += `{"svn":` + itoa(int(svn)) + `}`
	}
	return comps
}

// tcbInfoWithLevel builds a minimal single-level TCB info document
// whose SGX and TDX component SVNs both equal svns and whose pcesvn
// is 10, mirroring what dcap-qvl returns from PCCS.
func tcbInfoWithLevel(tcbDate string, svns []byte) *dcap.QuoteCollateralV3 {
	return tcbInfoWithLevelAndPceSvn(tcbDate, svns, 10)
}

func tcbInfoWithLevelAndPceSvn(tcbDate string, svns []byte, pceSvn uint16) *dcap.QuoteCollateralV3 {
	comps := componentsJSON(svns)
	raw := `{"fmspc":"00906ED50000","tcbLevels":[{"tcb":{"sgxtcbcomponents":[` + comps + `],"tdxtcbcomponents":[` + comps + `],"pcesvn":` + itoa(int(pceSvn)) + `},"tcbDate":"` + tcbDate + `","tcbStatus":"OutOfDate"}]}`
	return &dcap.QuoteCollateralV3{TCBInfo: raw}
}

func TestEnforceGracePeriod_DisabledWhenZero(t *testing.T) {
	err := enforceGracePeriod(string(dcap.TcbStatusOutOfDate), &dcap.Quote{}, &dcap.QuoteCollateralV3{}, 0, time.Now())
	if err != nil {
		t.Fatalf("grace period must be a no-op when disabled: %v", err)
	}
}

func TestEnforceGracePeriod_SkippedForNonOutOfDateStatus(t *testing.T) {
	err := enforceGracePeriod(string(dcap.TcbStatusUpToDate), &dcap.Quote{}, &dcap.QuoteCollateralV3{}, 3600, time.Now())
	if err != nil {
		t.Fatalf("grace period must only gate OutOfDate: %v", err)
	}
}

func TestEnforceGracePeriod_AllowsWithinWindow(t *testing.T) {
	now := time.Date(2027, 1, 10, 0, 0, 0, 0, time.UTC)
	tcbDate := "2027-01-09T00:00:00Z" // 24h before now
	svns := []byte{2, 2}
	collateral := tcbInfoWithLevel(tcbDate, svns)
	quote := &dcap.Quote{
		Header: dcap.QuoteHeader{PCESVN: 10},
		Report: dcap.QuoteReport{Type: "TD10", TeeTCBSVN: svns},
	}

	err := enforceGracePeriod(string(dcap.TcbStatusOutOfDate), quote, collateral, 7*24*3600, now)
	if err != nil {
		t.Fatalf("expected grace period to allow status within window: %v", err)
	}
}

func TestEnforceGracePeriod_RejectsExpiredWindow(t *testing.T) {
	now := time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC)
	tcbDate := "2027-01-01T00:00:00Z" // 31 days before now
	svns := []byte{2, 2}
	collateral := tcbInfoWithLevel(tcbDate, svns)
	quote := &dcap.Quote{
		Header: dcap.QuoteHeader{PCESVN: 10},
		Report: dcap.QuoteReport{Type: "TD10", TeeTCBSVN: svns},
	}

	err := enforceGracePeriod(string(dcap.TcbStatusOutOfDate), quote, collateral, 7*24*3600, now)
	if err == nil {
		t.Fatal("expected grace period to reject a stale OutOfDate status")
	}
	if _, ok := err.(*GracePeriodExpiredError); !ok {
		t.Fatalf("expected *GracePeriodExpiredError, got %T", err)
	}
}

func TestEnforceGracePeriod_RejectsWhenPceSvnBelowLevel(t *testing.T) {
	now := time.Date(2027, 1, 10, 0, 0, 0, 0, time.UTC)
	svns := []byte{2, 2}
	collateral := tcbInfoWithLevelAndPceSvn("2027-01-09T00:00:00Z", svns, 10)
	quote := &dcap.Quote{
		Header: dcap.QuoteHeader{PCESVN: 9},
		Report: dcap.QuoteReport{Type: "TD10", TeeTCBSVN: svns},
	}

	err := enforceGracePeriod(string(dcap.TcbStatusOutOfDate), quote, collateral, 7*24*3600, now)
	if err == nil {
		t.Fatal("expected grace period check to fail to match a TCB level when platform PCE SVN is too low")
	}
	if _, ok := err.(*QuoteSignatureError); !ok {
		t.Fatalf("expected *QuoteSignatureError for no matching TCB level, got %T", err)
	}
}

func TestEnforceGracePeriod_RejectsWhenComponentSvnBelowLevel(t *testing.T) {
	now := time.Date(2027, 1, 10, 0, 0, 0, 0, time.UTC)
	collateral := tcbInfoWithLevel("2027-01-09T00:00:00Z", []byte{2, 2})
	quote := &dcap.Quote{
		Header: dcap.QuoteHeader{PCESVN: 10},
		Report: dcap.QuoteReport{Type: "TD10", TeeTCBSVN: []byte{1, 2}},
	}

	err := enforceGracePeriod(string(dcap.TcbStatusOutOfDate), quote, collateral, 7*24*3600, now)
	if err == nil {
		t.Fatal("expected grace period check to fail to match a TCB level when a component SVN is below the level's requirement")
	}
	if _, ok := err.(*QuoteSignatureError); !ok {
		t.Fatalf("expected *QuoteSignatureError for no matching TCB level, got %T", err)
	}
}

func TestSvnsAtLeast(t *testing.T) {
	cases := []struct {
		actual, required []byte
		want              bool
	}{
		{[]byte{2, 2}, []byte{2, 2}, true},
		{[]byte{3, 2}, []byte{2, 2}, true},
		{[]byte{1, 2}, []byte{2, 2}, false},
		{[]byte{2}, []byte{2, 2}, false},
	}
	for _, c := range cases {
		if got := svnsAtLeast(c.actual, c.required); got != c.want {
			t.Fatalf("svnsAtLeast(%v, %v) = %v, want %v", c.actual, c.required, got, c.want)
		}
	}
}
