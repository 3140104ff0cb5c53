package attest

import (
	"bytes"
	"crypto/rand"
	"fmt"
)

// Verifier checks an ExtendedReport against the nonce the caller issued in
// handshake round 0 and, when a launch measurement is pinned, against that
// measurement too.
type Verifier interface {
	// Verify checks report.Report.ReportData() == nonce and, when
	// expectedMeasurement is non-nil, report.Report.Measurement() ==
	// *expectedMeasurement.
	Verify(report ExtendedReport, nonce [ReportDataSize]byte, expectedMeasurement *[MeasurementSize]byte) error
}

// NewNonce returns 64 cryptographically random bytes for use as a
// handshake round-0 challenge.
func NewNonce() ([ReportDataSize]byte, error) {
	var n [ReportDataSize]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, fmt.Errorf("attest: generate nonce: %w", err)
	}
	return n, nil
}

// TestChallengeNonce is the fixed 64-byte round-0 challenge substituted for
// a random nonce under use_test_challenge, so a non-SEV-SNP test
// environment can assemble a matching report ahead of time instead of
// reading the nonce off the wire.
var TestChallengeNonce = [ReportDataSize]byte{
	'y', 'a', 'k', 's', 'e', 'r', 'v', '-', 't', 'e', 's', 't', '-', 'c', 'h', 'a',
	'l', 'l', 'e', 'n', 'g', 'e', '-', 'n', 'o', 'n', 'c', 'e', '-', 'f', 'i', 'x',
	'e', 'd', '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '-', 'a', 'b',
	'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o', 'p', 'q', 'r',
}

// rejectingVerifier always fails verification. It stands in for a real
// SEV-SNP chain-of-trust verifier, which requires hardware access to the
// ARK/ASK/VCEK/VLEK endorsement chain this repository does not fetch.
type rejectingVerifier struct{}

// NewHardwareVerifier returns the production-shaped verifier. Until a real
// SEV-SNP endorsement-chain fetcher is wired in, it rejects every report.
func NewHardwareVerifier() Verifier {
	return rejectingVerifier{}
}

func (rejectingVerifier) Verify(ExtendedReport, [ReportDataSize]byte, *[MeasurementSize]byte) error {
	return fmt.Errorf("attest: hardware attestation verification is not configured")
}

// testVerifier only checks report_data (and measurement, when pinned)
// against the fixed test fixtures a caller supplies, for exercising the
// handshake protocol without real SEV-SNP hardware.
type testVerifier struct{}

// NewTestVerifier returns a verifier suitable for the use-test-challenge
// debug path: it performs the same nonce/measurement comparison a real
// verifier would, just without validating the endorsement chain.
func NewTestVerifier() Verifier {
	return testVerifier{}
}

func (testVerifier) Verify(report ExtendedReport, nonce [ReportDataSize]byte, expectedMeasurement *[MeasurementSize]byte) error {
	got := report.Report.ReportData()
	if !bytes.Equal(got[:], nonce[:]) {
		return fmt.Errorf("attest: report_data does not match issued nonce")
	}
	if expectedMeasurement != nil {
		m := report.Report.Measurement()
		if !bytes.Equal(m[:], expectedMeasurement[:]) {
			return fmt.Errorf("attest: measurement does not match expected launch digest")
		}
	}
	return nil
}
