// Package msauth mints short-lived outbound bearer tokens for the chat
// platform's messaging API via the OAuth2 client-credentials grant.
package msauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/answerdeskai/teamsbridge/internal/directory"
)

const (
	// DefaultAuthority is the platform's own multi-tenant token authority,
	// correct for a single global bot app registration.
	DefaultAuthority = "botframework.com"
	// DefaultScope targets the platform messaging API.
	DefaultScope = "https://api.botframework.com/.default"
)

// ErrNoAccessToken reports a token response without an access token.
var ErrNoAccessToken = errors.New("token response missing access token")

// Minter exchanges tenant bot credentials for messaging API tokens. Tokens
// are never cached across relay events; every event mints fresh.
type Minter struct {
	loginHost string
	scope     string
	logger    *slog.Logger
}

// NewMinter creates a Minter against the given login host (for example
// https://login.microsoftonline.com). Empty arguments fall back to the
// platform defaults.
func NewMinter(log *slog.Logger, loginHost, scope string) *Minter {
	if log == nil {
		log = slog.Default()
	}
	loginHost = strings.TrimRight(strings.TrimSpace(loginHost), "/")
	if loginHost == "" {
		loginHost = "https://login.microsoftonline.com"
	}
	if strings.TrimSpace(scope) == "" {
		scope = DefaultScope
	}
	return &Minter{
		loginHost: loginHost,
		scope:     scope,
		logger:    log.With(slog.String("component", "minter")),
	}
}

// Mint performs the client-credentials exchange for the given credential
// against the selected authority and returns the bearer token.
func (m *Minter) Mint(ctx context.Context, cred directory.TenantCredential, authority string) (string, error) {
	if strings.TrimSpace(cred.BotAppID) == "" || cred.BotAppPassword == "" {
		return "", fmt.Errorf("bot credential is required")
	}
	authority = strings.TrimSpace(authority)
	if authority == "" {
		authority = DefaultAuthority
	}

	conf := &clientcredentials.Config{
		ClientID:     cred.BotAppID,
		ClientSecret: cred.BotAppPassword,
		TokenURL:     m.loginHost + "/" + url.PathEscape(authority) + "/oauth2/v2.0/token",
		Scopes:       []string{m.scope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	token, err := conf.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("mint messaging token: %w", err)
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return "", ErrNoAccessToken
	}
	return token.AccessToken, nil
}

// AuthorityFor selects the token-issuing authority for a relay event. This
// is a configuration-time model decision, not a per-request inference: a
// configured global bot identity always uses the configured (multi-tenant)
// authority, while fully dynamic per-tenant bot credentials use the owning
// organization's authority.
func AuthorityFor(globalAppID, configuredAuthority, externalOrgID string) string {
	if strings.TrimSpace(globalAppID) != "" {
		if a := strings.TrimSpace(configuredAuthority); a != "" {
			return a
		}
		return DefaultAuthority
	}
	if orgID := strings.TrimSpace(externalOrgID); orgID != "" {
		return orgID
	}
	return DefaultAuthority
}
