package proxy

import (
	"net/http"

	"taskgate/internal/auth"
)

// Trusted header names. These are the sole channel by which backends learn
// the caller's identity; they are set only by the gateway after successful
// verification and must never be accepted from external clients.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
	HeaderUserTeam  = "X-User-TeamId"
	HeaderUserRole  = "X-User-Role"
)

// TrustedHeaders is the identity set crossing the gateway trust boundary.
// Building one requires verified claims, which keeps trusted values from
// being confused with ordinary request headers elsewhere in the code.
type TrustedHeaders struct {
	UserID string
	Email  string
	Name   string
	TeamID string
	Role   string
}

// TrustedHeadersFromClaims derives the outbound identity headers from
// verified claims: TeamID is the empty string when the token carried null,
// Role defaults to "user" when absent.
func TrustedHeadersFromClaims(claims *auth.Claims) TrustedHeaders {
	return TrustedHeaders{
		UserID: claims.UserID,
		Email:  claims.Email,
		Name:   claims.Name,
		TeamID: claims.TeamID,
		Role:   claims.EffectiveRole(),
	}
}

// Apply sets the trusted headers on an outbound request.
func (th TrustedHeaders) Apply(h http.Header) {
	h.Set(HeaderUserID, th.UserID)
	h.Set(HeaderUserEmail, th.Email)
	h.Set(HeaderUserName, th.Name)
	h.Set(HeaderUserTeam, th.TeamID)
	h.Set(HeaderUserRole, th.Role)
}

// StripTrustedHeaders removes any client-supplied identity headers. Every
// forwarded request passes through this, public routes included, so the
// trust boundary holds even for unauthenticated prefixes.
func StripTrustedHeaders(h http.Header) {
	h.Del(HeaderUserID)
	h.Del(HeaderUserEmail)
	h.Del(HeaderUserName)
	h.Del(HeaderUserTeam)
	h.Del(HeaderUserRole)
}

// ParseTrustedHeaders reads the identity headers from a request that arrived
// from the gateway. Used by internal services sitting behind it; ok is false
// when no identity was forwarded.
func ParseTrustedHeaders(h http.Header) (TrustedHeaders, bool) {
	th := TrustedHeaders{
		UserID: h.Get(HeaderUserID),
		Email:  h.Get(HeaderUserEmail),
		Name:   h.Get(HeaderUserName),
		TeamID: h.Get(HeaderUserTeam),
		Role:   h.Get(HeaderUserRole),
	}
	return th, th.UserID != ""
}
