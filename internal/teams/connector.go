package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ConversationRef addresses a conversation on a specific regional service
// endpoint. The service URL always comes from the inbound activity, never
// from configuration.
type ConversationRef struct {
	ServiceURL     string
	ConversationID string
}

// Connector speaks the Bot Framework connector REST API for sending and
// updating activities.
type Connector struct {
	client *http.Client
	logger *slog.Logger
}

// NewConnector creates a connector client.
func NewConnector(log *slog.Logger) *Connector {
	if log == nil {
		log = slog.Default()
	}
	return &Connector{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: log.With(slog.String("component", "connector")),
	}
}

type resourceResponse struct {
	ID string `json:"id"`
}

// SendActivity posts a new activity to the conversation and returns the id
// assigned by the service, when one is returned.
func (c *Connector) SendActivity(ctx context.Context, ref ConversationRef, token string, activity Activity) (string, error) {
	endpoint := activitiesURL(ref, "")
	return c.do(ctx, http.MethodPost, endpoint, token, activity)
}

// UpdateActivity replaces a previously sent activity in place.
func (c *Connector) UpdateActivity(ctx context.Context, ref ConversationRef, token, activityID string, activity Activity) error {
	endpoint := activitiesURL(ref, activityID)
	_, err := c.do(ctx, http.MethodPut, endpoint, token, activity)
	return err
}

func (c *Connector) do(ctx context.Context, method, endpoint, token string, activity Activity) (string, error) {
	payload, err := json.Marshal(activity)
	if err != nil {
		return "", fmt.Errorf("encode activity: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s activity: %w", strings.ToLower(method), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("connector status %d", resp.StatusCode)
	}

	// The service may return an empty body on updates. The id is
	// best-effort either way.
	var rr resourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		c.logger.Debug("no resource id in connector response", slog.Any("error", err))
		return "", nil
	}
	return rr.ID, nil
}

func activitiesURL(ref ConversationRef, activityID string) string {
	base := strings.TrimRight(ref.ServiceURL, "/") +
		"/v3/conversations/" + url.PathEscape(ref.ConversationID) + "/activities"
	if activityID == "" {
		return base
	}
	return base + "/" + url.PathEscape(activityID)
}
