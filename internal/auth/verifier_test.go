package auth

import (
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "taskgate/pkg/domainerrors"
	"taskgate/pkg/testutil"
)

// staticKeys is a KeySource with a fixed key, or none at all.
type staticKeys struct {
	key *rsa.PublicKey
}

func (s staticKeys) Key() (*rsa.PublicKey, bool) {
	return s.key, s.key != nil
}

func newVerifier(t *testing.T, keys KeySource) *Verifier {
	t.Helper()
	v, err := NewVerifier(keys, "RS256")
	require.NoError(t, err)
	return v
}

func defaultClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"id":     "user-1",
		"email":  "alice@example.com",
		"name":   "Alice",
		"teamId": "team-1",
		"role":   "user",
	}
}

func TestNewVerifierRejectsNonRSAAlgorithms(t *testing.T) {
	for _, alg := range []string{"HS256", "none", "ES256", "bogus"} {
		_, err := NewVerifier(staticKeys{}, alg)
		assert.Error(t, err, alg)
	}
}

func TestVerifyAcceptsValidToken(t *testing.T) {
	key := testutil.GenerateRSAKey(t)
	v := newVerifier(t, staticKeys{&key.PublicKey})

	token := testutil.SignToken(t, key, jwt.SigningMethodRS256, defaultClaims())
	claims, err := v.Verify("Bearer " + token)
	require.NoError(t, err)

	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Alice", claims.Name)
	assert.Equal(t, "team-1", claims.TeamID)
	assert.Equal(t, "user", claims.EffectiveRole())
}

func TestVerifyMissingHeader(t *testing.T) {
	v := newVerifier(t, staticKeys{})
	_, err := v.Verify("")
	assert.True(t, dErrors.Is(err, dErrors.CodeCredentialMissing))
}

func TestVerifyMalformedHeader(t *testing.T) {
	key := testutil.GenerateRSAKey(t)
	v := newVerifier(t, staticKeys{&key.PublicKey})

	for _, header := range []string{"Bearer", "Bearer ", "Basic dXNlcjpwYXNz", "token-without-scheme"} {
		_, err := v.Verify(header)
		assert.True(t, dErrors.Is(err, dErrors.CodeCredentialMalformed), header)
	}
}

func TestVerifyKeyUnavailable(t *testing.T) {
	// A syntactically fine credential must still yield 503 while the key
	// has not been fetched.
	signing := testutil.GenerateRSAKey(t)
	v := newVerifier(t, staticKeys{})

	token := testutil.SignToken(t, signing, jwt.SigningMethodRS256, defaultClaims())
	_, err := v.Verify("Bearer " + token)
	assert.True(t, dErrors.Is(err, dErrors.CodeKeyUnavailable))
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	trusted := testutil.GenerateRSAKey(t)
	attacker := testutil.GenerateRSAKey(t)
	v := newVerifier(t, staticKeys{&trusted.PublicKey})

	token := testutil.SignToken(t, attacker, jwt.SigningMethodRS256, defaultClaims())
	_, err := v.Verify("Bearer " + token)
	assert.True(t, dErrors.Is(err, dErrors.CodeCredentialInvalid))
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	key := testutil.GenerateRSAKey(t)
	v := newVerifier(t, staticKeys{&key.PublicKey})

	claims := defaultClaims()
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	token := testutil.SignToken(t, key, jwt.SigningMethodRS256, claims)

	_, err := v.Verify("Bearer " + token)
	assert.True(t, dErrors.Is(err, dErrors.CodeCredentialInvalid))
}

func TestVerifyRejectsAlgorithmConfusion(t *testing.T) {
	// A token claiming RS512 must not pass a verifier pinned to RS256 even
	// though both are RSA methods signed by the trusted key.
	key := testutil.GenerateRSAKey(t)
	v := newVerifier(t, staticKeys{&key.PublicKey})

	token := testutil.SignToken(t, key, jwt.SigningMethodRS512, defaultClaims())
	_, err := v.Verify("Bearer " + token)
	assert.True(t, dErrors.Is(err, dErrors.CodeCredentialInvalid))
}

func TestVerifyRejectsHMACToken(t *testing.T) {
	// alg=HS256 with the public key as the HMAC secret is the classic
	// confusion attack shape.
	key := testutil.GenerateRSAKey(t)
	v := newVerifier(t, staticKeys{&key.PublicKey})

	hmacToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testutil.PublicKeyPEM(t, &key.PublicKey)))
	require.NoError(t, err)

	_, verr := v.Verify("Bearer " + hmacToken)
	assert.True(t, dErrors.Is(verr, dErrors.CodeCredentialInvalid))
}

func TestVerifyDefaultsMissingOptionalClaims(t *testing.T) {
	key := testutil.GenerateRSAKey(t)
	v := newVerifier(t, staticKeys{&key.PublicKey})

	token := testutil.SignToken(t, key, jwt.SigningMethodRS256, jwt.MapClaims{
		"id":    "user-2",
		"email": "bob@example.com",
		"name":  "Bob",
		// teamId and role intentionally absent
	})

	claims, err := v.Verify("Bearer " + token)
	require.NoError(t, err)
	assert.Empty(t, claims.TeamID)
	assert.Equal(t, RoleUser, claims.EffectiveRole())
	assert.False(t, claims.IsAdmin())
}

func TestVerifyNullTeamID(t *testing.T) {
	key := testutil.GenerateRSAKey(t)
	v := newVerifier(t, staticKeys{&key.PublicKey})

	claims := defaultClaims()
	claims["teamId"] = nil
	token := testutil.SignToken(t, key, jwt.SigningMethodRS256, claims)

	got, err := v.Verify("Bearer " + token)
	require.NoError(t, err)
	assert.Empty(t, got.TeamID)
}
