// Package teams holds the Bot Framework wire types and the conversation
// plumbing used to read inbound activities and deliver replies.
package teams

import (
	"regexp"
	"strings"
)

// Activity is the subset of the Bot Framework activity schema the bridge
// reads and writes. Unknown fields are ignored on decode.
type Activity struct {
	Type         string               `json:"type,omitempty"`
	ID           string               `json:"id,omitempty"`
	Text         string               `json:"text,omitempty"`
	TextFormat   string               `json:"textFormat,omitempty"`
	ReplyToID    string               `json:"replyToId,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	From         *ChannelAccount      `json:"from,omitempty"`
	Recipient    *ChannelAccount      `json:"recipient,omitempty"`
	ChannelData  *ChannelData         `json:"channelData,omitempty"`
	Value        map[string]any       `json:"value,omitempty"`
	Attachments  []Attachment         `json:"attachments,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to.
type ConversationAccount struct {
	ID       string `json:"id,omitempty"`
	TenantID string `json:"tenantId,omitempty"`
}

// ChannelAccount identifies a participant in the conversation.
type ChannelAccount struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// ChannelData carries Teams-specific envelope data.
type ChannelData struct {
	Tenant *TenantInfo `json:"tenant,omitempty"`
}

// TenantInfo is the Teams organization the activity originated from.
type TenantInfo struct {
	ID string `json:"id,omitempty"`
}

// Attachment is a typed content blob on an activity, used here for
// Adaptive Cards.
type Attachment struct {
	ContentType string `json:"contentType"`
	Content     any    `json:"content,omitempty"`
}

const activityTypeMessage = "message"

// mentionTag matches the <at>...</at> wrappers Teams injects around bot
// mentions in message text.
var mentionTag = regexp.MustCompile(`<at>.*?</at>`)

// IsMessage reports whether this is a user message activity.
func (a *Activity) IsMessage() bool {
	return strings.EqualFold(a.Type, activityTypeMessage)
}

// PlainText returns the message text with mention tags stripped and
// surrounding whitespace removed.
func (a *Activity) PlainText() string {
	return strings.TrimSpace(mentionTag.ReplaceAllString(a.Text, ""))
}

// ExternalOrgID returns the originating organization id, preferring the
// Teams channel data over the conversation envelope.
func (a *Activity) ExternalOrgID() string {
	if a.ChannelData != nil && a.ChannelData.Tenant != nil && a.ChannelData.Tenant.ID != "" {
		return a.ChannelData.Tenant.ID
	}
	if a.Conversation != nil {
		return a.Conversation.TenantID
	}
	return ""
}

// ConversationID returns the conversation id, empty when absent.
func (a *Activity) ConversationID() string {
	if a.Conversation == nil {
		return ""
	}
	return a.Conversation.ID
}

// SenderID returns the id of the sending user, empty when absent.
func (a *Activity) SenderID() string {
	if a.From == nil {
		return ""
	}
	return a.From.ID
}

// Actionable reports whether the activity carries enough addressing to
// reply to: a service URL and a conversation id.
func (a *Activity) Actionable() bool {
	return a.ServiceURL != "" && a.ConversationID() != ""
}

// FeedbackAction extracts a card feedback submission from the activity
// value. ok is false when the activity is not a feedback action or the
// payload is incomplete.
func (a *Activity) FeedbackAction() (rating, qaLogID string, ok bool) {
	if len(a.Value) == 0 {
		return "", "", false
	}
	action, _ := a.Value["action"].(string)
	if action != "feedback" {
		return "", "", false
	}
	rating, _ = a.Value["rating"].(string)
	qaLogID, _ = a.Value["qa_log_id"].(string)
	if rating == "" || qaLogID == "" {
		return "", "", false
	}
	return rating, qaLogID, true
}
