package proxy

import (
	"fmt"
	"net/url"
	"strings"
)

// Rule maps an inbound path prefix to a backend target. Rules are static
// configuration; the route table is assembled once at startup.
type Rule struct {
	// Prefix is the inbound path prefix, e.g. "/api/teams".
	Prefix string
	// Target is the backend base URL requests are forwarded to.
	Target *url.URL
	// RequireAuth marks the rule as protected: verification must succeed
	// before the backend is contacted.
	RequireAuth bool
	// Streaming marks the rule as carrying protocol upgrades (WebSocket);
	// responses are flushed immediately instead of buffered.
	Streaming bool
}

// NewRule parses target and validates the prefix.
func NewRule(prefix, target string, requireAuth, streaming bool) (Rule, error) {
	if !strings.HasPrefix(prefix, "/") || prefix == "/" {
		return Rule{}, fmt.Errorf("invalid route prefix %q", prefix)
	}
	u, err := url.Parse(target)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid target for %s: %w", prefix, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return Rule{}, fmt.Errorf("target for %s must be an absolute URL, got %q", prefix, target)
	}
	return Rule{
		Prefix:      strings.TrimSuffix(prefix, "/"),
		Target:      u,
		RequireAuth: requireAuth,
		Streaming:   streaming,
	}, nil
}
