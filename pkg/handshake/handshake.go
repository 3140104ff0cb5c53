// Package handshake implements the server side of the two-round attested
// handshake: round 0 issues a nonce, round 1 verifies an attestation report
// against that nonce and, on success, issues a bearer session token.
package handshake

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/seera-networks/yakserv/pkg/attest"
)

// Session tracks one handshake's progress across its two rounds.
type Session struct {
	round            int
	nonce            [attest.ReportDataSize]byte
	verifier         attest.Verifier
	measurement      *[attest.MeasurementSize]byte
	useTestChallenge bool
}

// NewSession starts a handshake session. measurement, when non-nil, pins the
// expected launch measurement; verifier performs the report check.
// useTestChallenge, when true, substitutes attest.TestChallengeNonce for a
// freshly generated random nonce in round 0, for non-SEV-SNP test
// environments that need to assemble a matching report ahead of time.
func NewSession(verifier attest.Verifier, measurement *[attest.MeasurementSize]byte, useTestChallenge bool) *Session {
	return &Session{verifier: verifier, measurement: measurement, useTestChallenge: useTestChallenge}
}

// ErrTooManyRounds is returned once a session has already completed both
// handshake rounds.
var ErrTooManyRounds = fmt.Errorf("handshake: too many handshake requests")

// Completed reports whether round 1 has been processed, whether or not its
// verification succeeded; Advance's error for that round tells the two
// apart.
func (s *Session) Completed() bool {
	return s.round == 2
}

// Advance processes one handshake round. On round 0, payload is ignored and
// the returned bytes are the issued nonce. On round 1, payload must be the
// Encode()-d ExtendedReport produced from that nonce; on success the
// returned bytes are the UTF-8 bearer token. Any further call returns
// ErrTooManyRounds.
func (s *Session) Advance(payload []byte) ([]byte, error) {
	switch s.round {
	case 0:
		s.round++
		if s.useTestChallenge {
			s.nonce = attest.TestChallengeNonce
		} else {
			nonce, err := attest.NewNonce()
			if err != nil {
				return nil, err
			}
			s.nonce = nonce
		}
		return append([]byte(nil), s.nonce[:]...), nil
	case 1:
		s.round++
		report, err := attest.DecodeExtendedReport(payload)
		if err != nil {
			return nil, fmt.Errorf("handshake: decode report: %w", err)
		}
		if err := s.verifier.Verify(report, s.nonce, s.measurement); err != nil {
			return nil, fmt.Errorf("handshake: verification failed: %w", err)
		}
		return issueToken()
	default:
		return nil, ErrTooManyRounds
	}
}

func issueToken() ([]byte, error) {
	var raw [64]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return nil, fmt.Errorf("handshake: issue token: %w", err)
	}
	token := hex.EncodeToString(raw[:])
	return []byte(token), nil
}

// TokenStore tracks bearer tokens issued by completed handshakes. It has no
// TTL in this version — tokens are valid until the process restarts.
type TokenStore struct {
	mu     sync.Mutex
	tokens map[string]struct{}
}

// NewTokenStore returns an empty token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: map[string]struct{}{}}
}

// Issue records token as valid.
func (t *TokenStore) Issue(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[token] = struct{}{}
}

// Valid reports whether token was previously issued.
func (t *TokenStore) Valid(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.tokens[token]
	return ok
}
