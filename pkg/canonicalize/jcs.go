// Package canonicalize produces RFC 8785 canonical JSON digests used to
// correlate audit log lines with the exact policy document that gated a
// request, without making the digest itself part of any access decision.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Digest marshals v to JSON, transforms it to RFC 8785 canonical form via
// gowebpki/jcs, and returns the SHA-256 hex digest of the canonical bytes.
func Digest(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonicalize: marshal: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize: jcs transform: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
