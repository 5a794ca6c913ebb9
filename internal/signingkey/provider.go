// Package signingkey acquires and caches the JWT verification key published
// by the identity authority. The key is fetched once at startup, retried on
// a fixed interval until it succeeds, and never rotated for the lifetime of
// the process.
package signingkey

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"taskgate/internal/platform/metrics"
)

// publicKeyPath is the identity authority endpoint serving the key.
const publicKeyPath = "/api/auth/public-key"

// Provider holds the process-wide verification key. The slot is written at
// most once, by Run, and read by every concurrent verifier; readers observe
// either nil (Unavailable) or the complete key, never a partial write.
type Provider struct {
	authorityURL string
	interval     time.Duration
	client       *http.Client
	logger       *slog.Logger
	metrics      *metrics.Metrics

	key atomic.Pointer[rsa.PublicKey]
}

// NewProvider creates a Provider fetching from authorityURL every interval
// until a key is obtained.
func NewProvider(authorityURL string, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Provider {
	return &Provider{
		authorityURL: authorityURL,
		interval:     interval,
		client:       &http.Client{Timeout: 10 * time.Second},
		logger:       logger,
		metrics:      m,
	}
}

// Key returns the cached verification key. The second return is false while
// the key is still Unavailable.
func (p *Provider) Key() (*rsa.PublicKey, bool) {
	k := p.key.Load()
	return k, k != nil
}

// Ready reports whether the key has been fetched.
func (p *Provider) Ready() bool {
	return p.key.Load() != nil
}

// Run fetches the verification key, retrying on the configured interval
// until it succeeds or ctx is cancelled. It returns nil once the key is
// cached: there is nothing left for the background task to do.
func (p *Provider) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		key, err := p.fetch(ctx)
		if err == nil {
			p.key.Store(key)
			if p.metrics != nil {
				p.metrics.KeyFetchAttempts.WithLabelValues("success").Inc()
			}
			p.logger.Info("verification key fetched",
				"authority", p.authorityURL,
				"attempt", attempt,
			)
			return nil
		}
		if p.metrics != nil {
			p.metrics.KeyFetchAttempts.WithLabelValues("failure").Inc()
		}
		p.logger.Warn("verification key fetch failed, retrying",
			"authority", p.authorityURL,
			"attempt", attempt,
			"retry_in", p.interval.String(),
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// fetch performs a single key request against the identity authority.
func (p *Provider) fetch(ctx context.Context) (*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.authorityURL+publicKeyPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build key request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("key endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		PublicKey string `json:"publicKey"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode key response: %w", err)
	}
	if body.PublicKey == "" {
		return nil, errors.New("key response missing publicKey")
	}

	return ParsePublicKey([]byte(body.PublicKey))
}

// ParsePublicKey parses a PEM-encoded RSA public key in either PKIX or
// PKCS#1 form.
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("public key is not PEM encoded")
	}

	if key, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("unsupported public key type %T", key)
		}
		return rsaKey, nil
	}

	rsaKey, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return rsaKey, nil
}
