// Package directory resolves chat-platform identities to internal tenants
// through the tenant directory service.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound reports that the directory has no mapping for the identity.
var ErrNotFound = errors.New("directory mapping not found")

// TenantCredential carries a tenant's identity and its bot credential pair.
// Credentials are fetched fresh per request and never cached; secrets may
// differ per tenant and staleness is unacceptable for security material.
type TenantCredential struct {
	TenantID       string `json:"tenant_id"`
	BotAppID       string `json:"bot_app_id"`
	BotAppPassword string `json:"bot_app_password"`
}

// Client talks to the tenant directory's lookup endpoint.
type Client struct {
	lookupURL     string
	apiKey        string
	internalToken string
	client        *http.Client
	logger        *slog.Logger
}

// NewClient creates a directory client for the given lookup endpoint.
func NewClient(log *slog.Logger, lookupURL, apiKey, internalToken string) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		lookupURL:     strings.TrimSpace(lookupURL),
		apiKey:        apiKey,
		internalToken: internalToken,
		client:        &http.Client{Timeout: 15 * time.Second},
		logger:        log.With(slog.String("component", "directory")),
	}
}

// ResolveByBotIdentity resolves a bot app id to its owning tenant and
// credential pair. A 404 maps to ErrNotFound; other failures are returned
// as-is so the caller can distinguish an unknown identity from an outage.
func (c *Client) ResolveByBotIdentity(ctx context.Context, botAppID string) (TenantCredential, error) {
	botAppID = strings.TrimSpace(botAppID)
	if botAppID == "" {
		return TenantCredential{}, fmt.Errorf("bot app id is required")
	}
	var cred TenantCredential
	status, err := c.post(ctx, map[string]any{"bot_app_id": botAppID}, &cred)
	if err != nil {
		return TenantCredential{}, fmt.Errorf("resolve bot identity: %w", err)
	}
	if status == http.StatusNotFound {
		return TenantCredential{}, fmt.Errorf("%w: bot app id %q", ErrNotFound, botAppID)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return TenantCredential{}, fmt.Errorf("resolve bot identity: unexpected status %d", status)
	}
	if strings.TrimSpace(cred.TenantID) == "" {
		return TenantCredential{}, fmt.Errorf("%w: bot app id %q", ErrNotFound, botAppID)
	}
	if cred.BotAppID == "" {
		cred.BotAppID = botAppID
	}
	return cred, nil
}

// ResolveByExternalOrg maps the chat platform's org id to an internal tenant
// id. Any failure, network errors included, collapses to ErrNotFound; the
// caller decides whether absence is fatal. With autoProvision the directory
// creates the mapping on first contact; repeated calls with the same org id
// return the same tenant id.
func (c *Client) ResolveByExternalOrg(ctx context.Context, orgID string, autoProvision bool) (string, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return "", fmt.Errorf("%w: empty org id", ErrNotFound)
	}
	var result struct {
		TenantID string `json:"tenant_id"`
	}
	status, err := c.post(ctx, map[string]any{
		"teams_tenant_id": orgID,
		"auto_provision":  autoProvision,
	}, &result)
	if err != nil {
		c.logger.Warn("org lookup failed", slog.String("org_id", orgID), slog.Any("error", err))
		return "", fmt.Errorf("%w: org %q", ErrNotFound, orgID)
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices || strings.TrimSpace(result.TenantID) == "" {
		return "", fmt.Errorf("%w: org %q", ErrNotFound, orgID)
	}
	return result.TenantID, nil
}

func (c *Client) post(ctx context.Context, body map[string]any, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.lookupURL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("x-internal-token", c.internalToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
