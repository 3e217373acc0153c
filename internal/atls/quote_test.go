package atls

import (
	"testing"

	dcap "github.com/Phala-Network/dcap-qvl/golang-bindings"
)

func TestCheckTcbStatus_RejectsRevokedRegardlessOfAllowList(t *testing.T) {
	err := checkTcbStatus(string(dcap.TcbStatusRevoked), []string{"Revoked", "UpToDate"})
	if err == nil {
		t.Fatal("expected Revoked to always be rejected")
	}
	if _, ok := err.(*TcbStatusNotAllowedError); !ok {
		t.Fatalf("expected *TcbStatusNotAllowedError, got %T", err)
	}
}

func TestCheckTcbStatus_AllowsListedStatus(t *testing.T) {
	if err := checkTcbStatus(string(dcap.TcbStatusUpToDate), []string{"UpToDate"}); err != nil {
		t.Fatalf("expected UpToDate to be allowed: %v", err)
	}
}

func TestCheckTcbStatus_RejectsUnlistedStatus(t *testing.T) {
	err := checkTcbStatus(string(dcap.TcbStatusOutOfDate), []string{"UpToDate"})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, ok := err.(*TcbStatusNotAllowedError); !ok {
		t.Fatalf("expected *TcbStatusNotAllowedError, got %T", err)
	}
}

func TestCheckReportData_MatchesExpected(t *testing.T) {
	var expected [ReportDataSize]byte
	for i := range expected {
		expected[i] = byte(i)
	}
	report := dcap.QuoteReport{ReportData: append([]byte(nil), expected[:]...)}
	if err := checkReportData(report, expected); err != nil {
		t.Fatalf("checkReportData: %v", err)
	}
}

func TestCheckReportData_RejectsMismatch(t *testing.T) {
	var expected [ReportDataSize]byte
	report := dcap.QuoteReport{ReportData: make([]byte, ReportDataSize)}
	report.ReportData[0] = 0xff
	if err := checkReportData(report, expected); err == nil {
		t.Fatal("expected report_data mismatch")
	}
}

func TestCheckReportData_RejectsWrongLength(t *testing.T) {
	var expected [ReportDataSize]byte
	report := dcap.QuoteReport{ReportData: make([]byte, 10)}
	if err := checkReportData(report, expected); err == nil {
		t.Fatal("expected length mismatch to be rejected")
	}
}

func hexRepeat(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestCheckBootchain_AllMatch(t *testing.T) {
	mrtd := hexRepeat(0x11, 48)
	rtmr0 := hexRepeat(0x22, 48)
	rtmr1 := hexRepeat(0x33, 48)
	rtmr2 := hexRepeat(0x44, 48)

	report := dcap.QuoteReport{MrTD: mrtd, RTMR0: rtmr0, RTMR1: rtmr1, RTMR2: rtmr2}
	expected := ExpectedBootchain{
		MRTD:  hexOf(mrtd),
		RTMR0: hexOf(rtmr0),
		RTMR1: hexOf(rtmr1),
		RTMR2: hexOf(rtmr2),
	}
	if err := checkBootchain(report, expected); err != nil {
		t.Fatalf("checkBootchain: %v", err)
	}
}

func TestCheckBootchain_RejectsSingleFieldMismatch(t *testing.T) {
	mrtd := hexRepeat(0x11, 48)
	rtmr0 := hexRepeat(0x22, 48)
	rtmr1 := hexRepeat(0x33, 48)
	rtmr2 := hexRepeat(0x44, 48)

	report := dcap.QuoteReport{MrTD: mrtd, RTMR0: rtmr0, RTMR1: rtmr1, RTMR2: rtmr2}
	expected := ExpectedBootchain{
		MRTD:  hexOf(mrtd),
		RTMR0: hexOf(hexRepeat(0x99, 48)), // wrong
		RTMR1: hexOf(rtmr1),
		RTMR2: hexOf(rtmr2),
	}
	err := checkBootchain(report, expected)
	if err == nil {
		t.Fatal("expected bootchain mismatch")
	}
	mismatch, ok := err.(*BootchainMismatchError)
	if !ok {
		t.Fatalf("expected *BootchainMismatchError, got %T", err)
	}
	if mismatch.Field != "rtmr0" {
		t.Fatalf("expected mismatch on rtmr0, got %s", mismatch.Field)
	}
}
