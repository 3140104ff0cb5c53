package attest

import "testing"

func TestExtendedReport_EncodeDecodeRoundTrip(t *testing.T) {
	var e ExtendedReport
	e.ProcType = ProcTypeGenoa
	e.Endorsement = EndorsementVLEK
	e.VLEKPEM = []byte("-----BEGIN CERTIFICATE-----\nfake\n-----END CERTIFICATE-----")
	for i := range e.Report.Raw {
		e.Report.Raw[i] = byte(i)
	}

	encoded := e.Encode()
	got, err := DecodeExtendedReport(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ProcType != e.ProcType || got.Endorsement != e.Endorsement {
		t.Fatalf("got %+v", got)
	}
	if string(got.VLEKPEM) != string(e.VLEKPEM) {
		t.Fatalf("vlek mismatch: %q vs %q", got.VLEKPEM, e.VLEKPEM)
	}
	if got.Report.Raw != e.Report.Raw {
		t.Fatal("report bytes mismatch")
	}
}

func TestExtendedReport_EncodeDecodeWithoutVLEK(t *testing.T) {
	var e ExtendedReport
	e.ProcType = ProcTypeMilan
	e.Endorsement = EndorsementVCEK

	encoded := e.Encode()
	got, err := DecodeExtendedReport(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.VLEKPEM) != 0 {
		t.Fatalf("expected empty VLEKPEM, got %d bytes", len(got.VLEKPEM))
	}
}

func TestDecodeExtendedReport_Truncated(t *testing.T) {
	if _, err := DecodeExtendedReport([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding truncated input")
	}
}

func TestTestVerifier_AcceptsMatchingNonce(t *testing.T) {
	nonce, err := NewNonce()
	if err != nil {
		t.Fatal(err)
	}
	var report Report
	copy(report.Raw[0x50:0x50+ReportDataSize], nonce[:])

	v := NewTestVerifier()
	if err := v.Verify(ExtendedReport{Report: report}, nonce, nil); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
}

func TestTestVerifier_RejectsMismatchedNonce(t *testing.T) {
	nonce, err := NewNonce()
	if err != nil {
		t.Fatal(err)
	}
	var other [ReportDataSize]byte
	other[0] = nonce[0] + 1

	var report Report
	copy(report.Raw[0x50:0x50+ReportDataSize], other[:])

	v := NewTestVerifier()
	if err := v.Verify(ExtendedReport{Report: report}, nonce, nil); err == nil {
		t.Fatal("expected mismatch to be rejected")
	}
}

func TestHardwareVerifier_AlwaysRejects(t *testing.T) {
	v := NewHardwareVerifier()
	var nonce [ReportDataSize]byte
	if err := v.Verify(ExtendedReport{}, nonce, nil); err == nil {
		t.Fatal("expected hardware verifier to reject without a wired chain")
	}
}

func TestNewTestReport_VerifiesAgainstIssuedNonce(t *testing.T) {
	nonce, err := NewNonce()
	if err != nil {
		t.Fatal(err)
	}

	report, err := NewTestReport(ProcTypeMilan, EndorsementVCEK, nonce[:])
	if err != nil {
		t.Fatalf("build report: %v", err)
	}

	v := NewTestVerifier()
	if err := v.Verify(report, nonce, nil); err != nil {
		t.Fatalf("expected match, got %v", err)
	}
}

func TestNewTestReport_RejectsShortNonce(t *testing.T) {
	if _, err := NewTestReport(ProcTypeMilan, EndorsementVCEK, []byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for short nonce")
	}
}
