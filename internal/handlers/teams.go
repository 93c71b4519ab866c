package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/answerdeskai/teamsbridge/internal/answer"
	"github.com/answerdeskai/teamsbridge/internal/directory"
	"github.com/answerdeskai/teamsbridge/internal/msauth"
	"github.com/answerdeskai/teamsbridge/internal/teams"
)

// maxBodyBytes caps inbound webhook payloads at 1 MiB.
const maxBodyBytes = 1 << 20

const answerFailureText = "Sorry, I could not produce an answer right now. Please try again later."

const unconfiguredNoticeText = "This organization is not set up yet. Please contact your administrator."

type tokenVerifier interface {
	Verify(ctx context.Context, raw string) (directory.TenantCredential, error)
}

type tenantResolver interface {
	ResolveByExternalOrg(ctx context.Context, orgID string, autoProvision bool) (string, error)
}

type answerClient interface {
	Ask(ctx context.Context, tenantID, question string) (answer.Result, error)
	SubmitFeedback(ctx context.Context, fb answer.Feedback) error
}

type credentialMinter interface {
	Mint(ctx context.Context, cred directory.TenantCredential, authority string) (string, error)
}

type replyRelay interface {
	SendPlaceholder(ctx context.Context, ref teams.ConversationRef, token, replyToID string) (teams.PendingReply, error)
	DeliverFinal(ctx context.Context, ref teams.ConversationRef, token string, pending teams.PendingReply, final teams.Activity) (teams.ReplyState, error)
	SendNotice(ctx context.Context, ref teams.ConversationRef, token, text string) error
}

// Options carries the deployment-wide bot identity settings the dispatcher
// needs beyond its collaborators.
type Options struct {
	// GlobalAppID and GlobalAppPassword are the shared bot registration
	// used when a tenant has no credential of its own. Both empty is valid
	// for fully per-tenant deployments.
	GlobalAppID       string
	GlobalAppPassword string
	// Authority overrides the token authority for the global identity.
	Authority string
	// NotifyUnconfigured controls whether unresolvable organizations get a
	// notice message in the conversation. Off by default so unknown orgs
	// produce no outbound traffic at all.
	NotifyUnconfigured bool
}

// TeamsHandler receives Bot Framework webhook events and drives the full
// relay pipeline: verify, resolve tenant, forward the question, and deliver
// the answer back into the conversation.
type TeamsHandler struct {
	verifier tokenVerifier
	tenants  tenantResolver
	answers  answerClient
	minter   credentialMinter
	relay    replyRelay
	opts     Options
	logger   *slog.Logger
}

// NewTeamsHandler wires the dispatcher.
func NewTeamsHandler(log *slog.Logger, verifier tokenVerifier, tenants tenantResolver, answers answerClient, minter credentialMinter, relay replyRelay, opts Options) *TeamsHandler {
	if log == nil {
		log = slog.Default()
	}
	return &TeamsHandler{
		verifier: verifier,
		tenants:  tenants,
		answers:  answers,
		minter:   minter,
		relay:    relay,
		opts:     opts,
		logger:   log.With(slog.String("component", "teams_handler")),
	}
}

// Register mounts the webhook route.
func (h *TeamsHandler) Register(e *echo.Echo) {
	e.POST("/api/messages", h.handleMessages)
}

// handleMessages processes one webhook delivery. The platform retries on
// non-2xx, so every outcome after authentication succeeds is acknowledged
// with 200 regardless of what happened downstream.
func (h *TeamsHandler) handleMessages(c echo.Context) error {
	ctx := c.Request().Context()
	log := h.logger.With(slog.String("event_ref", uuid.NewString()))

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		log.Warn("failed to read request body", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read body")
	}
	if len(body) > maxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "payload too large")
	}

	var activity teams.Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		log.Warn("discarding undecodable payload", slog.Any("error", err))
		return c.String(http.StatusOK, "ok")
	}

	rawToken := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if rawToken == "" {
		log.Warn("discarding event without bearer token")
		return c.String(http.StatusOK, "ok")
	}

	cred, err := h.verifier.Verify(ctx, rawToken)
	if err != nil {
		log.Warn("token verification failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	log = log.With(slog.String("activity_type", activity.Type))

	orgID := activity.ExternalOrgID()
	if orgID == "" {
		log.Info("event carries no organization id, ignoring")
		return c.String(http.StatusOK, "ok")
	}

	tenantID, err := h.tenants.ResolveByExternalOrg(ctx, orgID, true)
	if err != nil {
		log.Warn("organization is not mapped to a tenant", slog.String("org_id", orgID), slog.Any("error", err))
		h.maybeNotifyUnconfigured(ctx, log, &activity, cred, orgID)
		return c.String(http.StatusOK, "ok")
	}
	log = log.With(slog.String("tenant_id", tenantID))

	if rating, qaLogID, ok := activity.FeedbackAction(); ok {
		h.submitFeedback(ctx, log, answer.Feedback{
			TenantID: tenantID,
			QALogID:  qaLogID,
			Rating:   rating,
			UserID:   activity.SenderID(),
		})
		return c.String(http.StatusOK, "ok")
	}

	if !activity.IsMessage() {
		log.Debug("ignoring non-message activity")
		return c.String(http.StatusOK, "ok")
	}
	question := activity.PlainText()
	if question == "" {
		log.Debug("ignoring message without text")
		return c.String(http.StatusOK, "ok")
	}
	if !activity.Actionable() {
		log.Warn("message has no reply address, ignoring")
		return c.String(http.StatusOK, "ok")
	}

	h.relayAnswer(ctx, log, &activity, cred, orgID, tenantID, question)
	return c.String(http.StatusOK, "ok")
}

// relayAnswer runs the two-phase reply: placeholder first, then patch it
// with the real answer. No phase is retried.
func (h *TeamsHandler) relayAnswer(ctx context.Context, log *slog.Logger, activity *teams.Activity, cred directory.TenantCredential, orgID, tenantID, question string) {
	token, ok := h.mintToken(ctx, log, cred, orgID)
	if !ok {
		return
	}
	ref := teams.ConversationRef{
		ServiceURL:     activity.ServiceURL,
		ConversationID: activity.ConversationID(),
	}

	pending, err := h.relay.SendPlaceholder(ctx, ref, token, activity.ID)
	if err != nil {
		log.Error("failed to send placeholder", slog.Any("error", err))
		return
	}

	final := h.buildFinalActivity(ctx, log, tenantID, question)
	state, err := h.relay.DeliverFinal(ctx, ref, token, pending, final)
	if err != nil {
		log.Error("failed to deliver final reply", slog.String("state", string(state)), slog.Any("error", err))
		return
	}
	log.Info("reply delivered", slog.String("state", string(state)))
}

func (h *TeamsHandler) buildFinalActivity(ctx context.Context, log *slog.Logger, tenantID, question string) teams.Activity {
	result, err := h.answers.Ask(ctx, tenantID, question)
	if err != nil {
		log.Error("answer service failed", slog.Any("error", err))
		return teams.TextActivity(answerFailureText)
	}
	sources := make([]teams.AnswerSource, 0, len(result.Sources))
	for _, s := range result.Sources {
		sources = append(sources, teams.AnswerSource{
			Title:     s.Title,
			URL:       s.URL,
			Platform:  s.Platform,
			UpdatedAt: s.UpdatedAt,
		})
	}
	return teams.ComposeAnswerActivity(result.Answer, result.QALogID, result.Confidence, result.Reviewed, sources)
}

// submitFeedback forwards the rating off the request lifecycle so slow
// backends never delay the webhook acknowledgement.
func (h *TeamsHandler) submitFeedback(ctx context.Context, log *slog.Logger, fb answer.Feedback) {
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := h.answers.SubmitFeedback(detached, fb); err != nil {
			log.Error("failed to submit feedback", slog.Any("error", err))
			return
		}
		log.Info("feedback submitted", slog.String("rating", fb.Rating))
	}()
}

// maybeNotifyUnconfigured tells the conversation its organization is not set
// up, when enabled and the event is addressable.
func (h *TeamsHandler) maybeNotifyUnconfigured(ctx context.Context, log *slog.Logger, activity *teams.Activity, cred directory.TenantCredential, orgID string) {
	if !h.opts.NotifyUnconfigured || !activity.Actionable() || !activity.IsMessage() {
		return
	}
	token, ok := h.mintToken(ctx, log, cred, orgID)
	if !ok {
		return
	}
	ref := teams.ConversationRef{
		ServiceURL:     activity.ServiceURL,
		ConversationID: activity.ConversationID(),
	}
	if err := h.relay.SendNotice(ctx, ref, token, unconfiguredNoticeText); err != nil {
		log.Error("failed to send notice", slog.Any("error", err))
	}
}

// mintToken picks the credential to speak as and exchanges it for a
// messaging token. Tenants without their own secret fall back to the global
// bot registration.
func (h *TeamsHandler) mintToken(ctx context.Context, log *slog.Logger, cred directory.TenantCredential, orgID string) (string, bool) {
	if cred.BotAppPassword == "" {
		cred.BotAppID = h.opts.GlobalAppID
		cred.BotAppPassword = h.opts.GlobalAppPassword
	}
	authority := msauth.AuthorityFor(h.opts.GlobalAppID, h.opts.Authority, orgID)
	token, err := h.minter.Mint(ctx, cred, authority)
	if err != nil {
		log.Error("failed to mint messaging token", slog.Any("error", err))
		return "", false
	}
	return token, true
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
