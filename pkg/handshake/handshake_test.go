package handshake

import (
	"testing"

	"github.com/seera-networks/yakserv/pkg/attest"
	"github.com/stretchr/testify/require"
)

func TestSession_FullRoundTrip(t *testing.T) {
	s := NewSession(attest.NewTestVerifier(), nil, false)

	nonce, err := s.Advance(nil)
	require.NoError(t, err)
	require.Len(t, nonce, attest.ReportDataSize)

	var report attest.Report
	copy(report.Raw[0x50:0x50+attest.ReportDataSize], nonce)
	ext := attest.ExtendedReport{Report: report}

	token, err := s.Advance(ext.Encode())
	require.NoError(t, err)
	require.Len(t, token, 128) // 64 bytes hex-encoded

	_, err = s.Advance(nil)
	require.ErrorIs(t, err, ErrTooManyRounds)
}

func TestSession_RejectsBadReport(t *testing.T) {
	s := NewSession(attest.NewTestVerifier(), nil, false)
	_, err := s.Advance(nil)
	require.NoError(t, err)

	var ext attest.ExtendedReport // report_data all zero, won't match nonce
	_, err = s.Advance(ext.Encode())
	require.Error(t, err)
}

func TestSession_UseTestChallengeSubstitutesFixedNonce(t *testing.T) {
	s := NewSession(attest.NewTestVerifier(), nil, true)

	nonce, err := s.Advance(nil)
	require.NoError(t, err)
	require.Equal(t, attest.TestChallengeNonce[:], nonce)
}

func TestTokenStore(t *testing.T) {
	ts := NewTokenStore()
	require.False(t, ts.Valid("abc"))
	ts.Issue("abc")
	require.True(t, ts.Valid("abc"))
}
