// Package auth validates bearer credentials against the cached verification
// key and exposes the resulting identity claims to downstream handlers.
package auth

import (
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	dErrors "taskgate/pkg/domainerrors"
)

// KeySource supplies the verification key once the key provider has
// fetched it.
type KeySource interface {
	// Key returns the cached key; false while it is still unavailable.
	Key() (*rsa.PublicKey, bool)
}

// Verifier validates bearer tokens with a single pinned signing algorithm.
type Verifier struct {
	keys   KeySource
	method jwt.SigningMethod
	parser *jwt.Parser
}

// NewVerifier builds a Verifier pinned to the named RSA algorithm
// (RS256, RS384, or RS512).
func NewVerifier(keys KeySource, algorithm string) (*Verifier, error) {
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("unknown signing algorithm %q", algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodRSA); !ok {
		return nil, fmt.Errorf("signing algorithm %q is not an RSA method", algorithm)
	}
	return &Verifier{
		keys:   keys,
		method: method,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{method.Alg()})),
	}, nil
}

// Verify validates the Authorization header value and returns the identity
// claims it carries. Every failure is a coded domain error mapping onto the
// gateway's 401/503 taxonomy; the backend must never be contacted after one.
func (v *Verifier) Verify(authorizationHeader string) (*Claims, error) {
	if authorizationHeader == "" {
		return nil, dErrors.New(dErrors.CodeCredentialMissing, "no token provided")
	}

	raw, ok := strings.CutPrefix(authorizationHeader, "Bearer ")
	if !ok || raw == "" {
		return nil, dErrors.New(dErrors.CodeCredentialMalformed, "malformed authorization header")
	}

	key, ok := v.keys.Key()
	if !ok {
		return nil, dErrors.New(dErrors.CodeKeyUnavailable, "service unavailable, verification key not yet fetched")
	}

	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		// The parser already rejects foreign algorithms; this guard keeps the
		// keyfunc safe even if the parser configuration drifts.
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return key, nil
	})
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeCredentialInvalid, "invalid or expired token", err)
	}
	if !token.Valid {
		return nil, dErrors.New(dErrors.CodeCredentialInvalid, "invalid or expired token")
	}

	return claims, nil
}
