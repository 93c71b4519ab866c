// Package answer is the client for the question-answering backend and its
// feedback endpoint.
package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Source describes one provenance entry of an answer.
type Source struct {
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	Platform  string `json:"platform,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Result is a structured answer from the backend. It lives only for the
// duration of composing the reply.
type Result struct {
	Answer     string   `json:"answer"`
	Confidence *float64 `json:"confidence,omitempty"`
	Reviewed   *bool    `json:"reviewed,omitempty"`
	Sources    []Source `json:"sources,omitempty"`
	QALogID    string   `json:"qa_log_id,omitempty"`
}

// Feedback ties a user's rating back to the original question/answer pair
// via the correlation id the backend returned with the answer.
type Feedback struct {
	TenantID string
	QALogID  string
	Rating   string
	UserID   string
}

// Client calls the answer service. Tenant identity travels as a routing
// header, not an authenticated claim: by the time Ask is called the tenant
// has already been established by the inbound verifier, so this call is
// intra-system.
type Client struct {
	askURL      string
	feedbackURL string
	source      string
	client      *http.Client
	logger      *slog.Logger
}

// NewClient creates an answer service client. source tags which channel the
// question arrived from.
func NewClient(log *slog.Logger, askURL, feedbackURL, source string) *Client {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(source) == "" {
		source = "teams"
	}
	return &Client{
		askURL:      strings.TrimSpace(askURL),
		feedbackURL: strings.TrimSpace(feedbackURL),
		source:      source,
		client:      &http.Client{Timeout: 120 * time.Second},
		logger:      log.With(slog.String("component", "answer")),
	}
}

// Ask forwards a question for the given tenant and returns the structured
// answer. Empty questions are rejected before any request is made.
func (c *Client) Ask(ctx context.Context, tenantID, question string) (Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Result{}, fmt.Errorf("question is required")
	}
	payload, err := json.Marshal(map[string]string{
		"question": question,
		"source":   c.source,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode question: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.askURL, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-tenant-id", tenantID)

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("ask answer service: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Result{}, fmt.Errorf("answer service status %d", resp.StatusCode)
	}
	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("decode answer: %w", err)
	}
	return result, nil
}

// SubmitFeedback forwards a feedback rating to the backend. Best-effort by
// contract: callers log failures and never surface them to the end user.
func (c *Client) SubmitFeedback(ctx context.Context, fb Feedback) error {
	if c.feedbackURL == "" {
		return fmt.Errorf("feedback url not configured")
	}
	if strings.TrimSpace(fb.QALogID) == "" {
		return fmt.Errorf("feedback correlation id is required")
	}
	body := map[string]string{
		"qa_log_id": fb.QALogID,
		"feedback":  fb.Rating,
		"tenant_id": fb.TenantID,
		"source":    c.source,
	}
	if strings.TrimSpace(fb.UserID) != "" {
		body["teams_user_id"] = fb.UserID
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode feedback: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.feedbackURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-tenant-id", fb.TenantID)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit feedback: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("feedback endpoint status %d", resp.StatusCode)
	}
	return nil
}
