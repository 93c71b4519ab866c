package teams

import (
	"context"
	"fmt"
	"log/slog"
)

// ReplyState tracks where a two-phase reply is in its lifecycle.
type ReplyState string

const (
	StateIdle            ReplyState = "idle"
	StatePlaceholderSent ReplyState = "placeholder_sent"
	StatePatched         ReplyState = "patched"
	StatePatchFailed     ReplyState = "patch_failed"
	StateSendFailed      ReplyState = "send_failed"
	StateFallbackSent    ReplyState = "fallback_sent"
)

// PlaceholderText is shown while the answer is being produced.
const PlaceholderText = "Looking into it, one moment..."

type activitySender interface {
	SendActivity(ctx context.Context, ref ConversationRef, token string, activity Activity) (string, error)
	UpdateActivity(ctx context.Context, ref ConversationRef, token, activityID string, activity Activity) error
}

// PendingReply is the state carried between the placeholder send and the
// final patch. It lives only for the duration of one inbound event.
type PendingReply struct {
	ActivityID string
	State      ReplyState
}

// Relay implements placeholder-then-patch delivery on a conversation.
// It never retries: a failed phase is logged by the caller and the state
// records what the user ended up seeing.
type Relay struct {
	connector activitySender
	logger    *slog.Logger
}

// NewRelay creates a reply relay on top of a connector.
func NewRelay(log *slog.Logger, connector activitySender) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		connector: connector,
		logger:    log.With(slog.String("component", "relay")),
	}
}

// SendPlaceholder posts the placeholder message and returns the pending
// reply to patch later. On failure the returned state is SendFailed.
func (r *Relay) SendPlaceholder(ctx context.Context, ref ConversationRef, token, replyToID string) (PendingReply, error) {
	activity := TextActivity(PlaceholderText)
	activity.ReplyToID = replyToID
	id, err := r.connector.SendActivity(ctx, ref, token, activity)
	if err != nil {
		return PendingReply{State: StateSendFailed}, fmt.Errorf("send placeholder: %w", err)
	}
	return PendingReply{ActivityID: id, State: StatePlaceholderSent}, nil
}

// DeliverFinal replaces the placeholder with the final activity. When no
// placeholder id is known it falls back to posting a fresh message so the
// answer still reaches the conversation.
func (r *Relay) DeliverFinal(ctx context.Context, ref ConversationRef, token string, pending PendingReply, final Activity) (ReplyState, error) {
	if pending.ActivityID == "" {
		if _, err := r.connector.SendActivity(ctx, ref, token, final); err != nil {
			return StatePatchFailed, fmt.Errorf("send final: %w", err)
		}
		r.logger.Debug("delivered final reply as a fresh message")
		return StateFallbackSent, nil
	}
	if err := r.connector.UpdateActivity(ctx, ref, token, pending.ActivityID, final); err != nil {
		return StatePatchFailed, fmt.Errorf("patch placeholder: %w", err)
	}
	return StatePatched, nil
}

// SendNotice posts a standalone informational message to the conversation.
func (r *Relay) SendNotice(ctx context.Context, ref ConversationRef, token, text string) error {
	if _, err := r.connector.SendActivity(ctx, ref, token, TextActivity(text)); err != nil {
		return fmt.Errorf("send notice: %w", err)
	}
	return nil
}
