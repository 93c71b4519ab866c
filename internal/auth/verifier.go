// Package auth verifies inbound webhook bearer tokens.
//
// The audience of an inbound token is not fixed at deploy time: every tenant
// may run its own bot identity against the same endpoint. The verifier
// decodes the token without verification purely to learn which identity the
// caller claims, resolves that identity through the tenant directory, and
// only then performs the full cryptographic check. No claim is trusted
// before the final verification succeeds.
package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/answerdeskai/teamsbridge/internal/directory"
)

var (
	// ErrInvalidToken reports a malformed or cryptographically rejected token.
	ErrInvalidToken = errors.New("invalid bearer token")
	// ErrUnknownBotIdentity reports an audience outside the deployment's
	// tenant set. Such a token must never be trusted even if its signature
	// would verify.
	ErrUnknownBotIdentity = errors.New("unknown bot identity")
)

// KeySource supplies platform signing keys by kid.
type KeySource interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// BotResolver resolves a claimed bot identity to its tenant credential.
type BotResolver interface {
	ResolveByBotIdentity(ctx context.Context, botAppID string) (directory.TenantCredential, error)
}

// Verifier validates inbound platform tokens with per-request audience
// discovery.
type Verifier struct {
	keys      KeySource
	directory BotResolver
	issuer    string
	logger    *slog.Logger
}

// NewVerifier creates a Verifier pinned to the platform's token issuer.
func NewVerifier(log *slog.Logger, keys KeySource, dir BotResolver, issuer string) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	return &Verifier{
		keys:      keys,
		directory: dir,
		issuer:    strings.TrimSpace(issuer),
		logger:    log.With(slog.String("component", "verifier")),
	}
}

// Verify authenticates a raw bearer token and returns the tenant credential
// of the bot identity it addresses. It fails closed: an audience the
// directory cannot resolve is rejected before any signature check.
func (v *Verifier) Verify(ctx context.Context, raw string) (directory.TenantCredential, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return directory.TenantCredential{}, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	audience, err := unverifiedAudience(raw)
	if err != nil {
		return directory.TenantCredential{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	cred, err := v.directory.ResolveByBotIdentity(ctx, audience)
	if err != nil {
		v.logger.Warn("audience did not resolve", slog.String("audience", audience), slog.Any("error", err))
		return directory.TenantCredential{}, fmt.Errorf("%w: audience %q", ErrUnknownBotIdentity, audience)
	}

	if _, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.Key(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	); err != nil {
		return directory.TenantCredential{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return cred, nil
}

// unverifiedAudience extracts the audience claim without verifying the
// signature. The value is used only to select the identity to verify
// against; full verification happens afterwards.
func unverifiedAudience(raw string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return "", err
	}
	audience, err := claims.GetAudience()
	if err != nil {
		return "", fmt.Errorf("audience claim: %w", err)
	}
	if len(audience) == 0 || strings.TrimSpace(audience[0]) == "" {
		return "", fmt.Errorf("audience claim missing")
	}
	return strings.TrimSpace(audience[0]), nil
}
