// Package keys caches the chat platform's token signing keys.
//
// The key set is discovered through the platform's OpenID metadata document
// (a GET for the metadata, then a GET for the referenced jwks_uri) and kept
// for the lifetime of the process. Key rotation cadence is long relative to
// process uptime, so the cache is never refreshed; a restart picks up new
// keys.
package keys

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrKeyNotFound reports a kid that is absent from the platform key set.
var ErrKeyNotFound = errors.New("signing key not found")

// Cache lazily loads and holds the platform's RSA signing keys, keyed by kid.
// The load is guarded by a single-flight group so concurrent first requests
// issue one fetch.
type Cache struct {
	metadataURL string
	client      *http.Client
	logger      *slog.Logger

	group singleflight.Group
	mu    sync.RWMutex
	keys  map[string]*rsa.PublicKey
}

// NewCache creates a key cache for the given OpenID metadata URL.
func NewCache(log *slog.Logger, metadataURL string) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		metadataURL: strings.TrimSpace(metadataURL),
		client:      &http.Client{Timeout: 20 * time.Second},
		logger:      log.With(slog.String("component", "key_cache")),
	}
}

// Key returns the RSA public key for kid, fetching the key set on first use.
// A failed fetch leaves the cache empty so a later request can retry.
func (c *Cache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, fmt.Errorf("%w: empty kid", ErrKeyNotFound)
	}

	c.mu.RLock()
	loaded := c.keys != nil
	key := c.keys[kid]
	c.mu.RUnlock()

	if !loaded {
		if _, err, _ := c.group.Do("jwks", func() (any, error) {
			fetched, err := c.fetch(ctx)
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			c.keys = fetched
			c.mu.Unlock()
			c.logger.Info("signing key set loaded", slog.Int("keys", len(fetched)))
			return nil, nil
		}); err != nil {
			return nil, fmt.Errorf("load signing keys: %w", err)
		}
		c.mu.RLock()
		key = c.keys[kid]
		c.mu.RUnlock()
	}

	if key == nil {
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}
	return key, nil
}

type openIDMetadata struct {
	JWKSURI string `json:"jwks_uri"`
}

type jwksDocument struct {
	Keys []jsonWebKey `json:"keys"`
}

type jsonWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (c *Cache) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	var metadata openIDMetadata
	if err := c.getJSON(ctx, c.metadataURL, &metadata); err != nil {
		return nil, fmt.Errorf("openid metadata: %w", err)
	}
	if strings.TrimSpace(metadata.JWKSURI) == "" {
		return nil, fmt.Errorf("openid metadata has no jwks_uri")
	}

	var doc jwksDocument
	if err := c.getJSON(ctx, metadata.JWKSURI, &doc); err != nil {
		return nil, fmt.Errorf("jwks document: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if !strings.EqualFold(jwk.Kty, "RSA") || strings.TrimSpace(jwk.Kid) == "" {
			continue
		}
		key, err := jwkToRSA(jwk)
		if err != nil {
			c.logger.Warn("skipping unparsable jwk", slog.String("kid", jwk.Kid), slog.Any("error", err))
			continue
		}
		keys[jwk.Kid] = key
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("jwks document contains no usable RSA keys")
	}
	return keys, nil
}

func (c *Cache) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func jwkToRSA(jwk jsonWebKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, fmt.Errorf("invalid exponent")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
