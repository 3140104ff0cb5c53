// Package auth resolves the caller identity and session authorization for
// a Flight RPC: a JWKS-verified bearer JWT names the subject (defaulting to
// "test" when absent), and a separately issued session bearer token (minted
// by a completed handshake) must be presented and still be valid.
package auth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of standard JWT claims this service inspects.
type Claims struct {
	jwt.RegisteredClaims
	Scope string `json:"scope,omitempty"`
	AZP   string `json:"azp,omitempty"`
}

// Audiences this service accepts in a verified token's aud claim.
var Audiences = []string{
	"https://yakserv.seera-networks.com",
	"https://seera-networks.jp.auth0.com/userinfo",
}

// DefaultSubject is used when no authorization header is present.
const DefaultSubject = "test"

// KeySet resolves a JWT key ID to its RSA public key, matching the
// key-rotation lookup shape used elsewhere in this codebase.
type KeySet interface {
	PublicKey(kid string) (interface{}, bool)
}

// StaticKeySet is a fixed, pre-loaded JWKS. Fetching and refreshing JWKS
// from a discovery document is explicitly out of scope — callers load keys
// once at startup.
type StaticKeySet map[string]interface{}

// PublicKey implements KeySet.
func (s StaticKeySet) PublicKey(kid string) (interface{}, bool) {
	k, ok := s[kid]
	return k, ok
}

func keyFunc(ks KeySet) jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		key, ok := ks.PublicKey(kid)
		if !ok {
			return nil, fmt.Errorf("auth: unknown key id %q", kid)
		}
		return key, nil
	}
}

// ResolveSubject verifies authorizationHeader (if non-empty) as a
// "Bearer <jwt>" RS256 token against ks with Audiences, and returns the
// subject with every "|" rewritten to "_". When authorizationHeader is
// empty, it returns DefaultSubject.
func ResolveSubject(authorizationHeader string, ks KeySet) (string, error) {
	if authorizationHeader == "" {
		return DefaultSubject, nil
	}
	raw, err := bearerToken(authorizationHeader)
	if err != nil {
		return "", err
	}

	claims := &Claims{}
	validator := jwt.NewValidator(jwt.WithAudience(Audiences...))
	token, err := jwt.ParseWithClaims(raw, claims, keyFunc(ks), jwt.WithValidMethods([]string{"RS256"}))
	if err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}
	if err := validator.Validate(token.Claims); err != nil {
		return "", fmt.Errorf("auth: validate token: %w", err)
	}

	subject := claims.Subject
	subject = strings.ReplaceAll(subject, "|", "_")
	return subject, nil
}

// CheckSessionToken verifies the "x-yak-authorization" style header value
// is a well-formed bearer token and returns the raw token string.
func CheckSessionToken(headerValue string) (string, error) {
	return bearerToken(headerValue)
}

func bearerToken(headerValue string) (string, error) {
	const prefix = "Bearer "
	if len(headerValue) < len(prefix) || !strings.HasPrefix(headerValue, prefix) {
		return "", fmt.Errorf("auth: malformed bearer header")
	}
	return strings.TrimPrefix(headerValue, prefix), nil
}
