package teams

import (
	"fmt"
	"strings"
)

const (
	adaptiveCardContentType = "application/vnd.microsoft.card.adaptive"
	adaptiveCardSchema      = "http://adaptivecards.io/schemas/adaptive-card.json"
	adaptiveCardVersion     = "1.4"
)

// ComposeAnswerCard renders an answer, its provenance, and feedback actions
// as an Adaptive Card body. Feedback buttons appear only when a correlation
// id is available to attribute the rating to.
func ComposeAnswerCard(answer, qaLogID string, confidence *float64, reviewed *bool, sources []AnswerSource) map[string]any {
	body := []any{
		map[string]any{
			"type": "TextBlock",
			"text": answer,
			"wrap": true,
		},
	}

	if meta := answerMetaLine(confidence, reviewed); meta != "" {
		body = append(body, map[string]any{
			"type":     "TextBlock",
			"text":     meta,
			"wrap":     true,
			"isSubtle": true,
			"size":     "Small",
			"spacing":  "Small",
		})
	}

	if len(sources) > 0 {
		body = append(body, map[string]any{
			"type":     "TextBlock",
			"text":     "Sources",
			"weight":   "Bolder",
			"size":     "Small",
			"spacing":  "Medium",
			"isSubtle": true,
		})
		for _, s := range sources {
			body = append(body, map[string]any{
				"type":     "TextBlock",
				"text":     sourceLine(s),
				"wrap":     true,
				"size":     "Small",
				"isSubtle": true,
				"spacing":  "Small",
			})
		}
	}

	card := map[string]any{
		"type":    "AdaptiveCard",
		"$schema": adaptiveCardSchema,
		"version": adaptiveCardVersion,
		"body":    body,
	}

	if qaLogID != "" {
		card["actions"] = []any{
			map[string]any{
				"type":  "Action.Submit",
				"title": "\U0001F44D",
				"data": map[string]any{
					"action":    "feedback",
					"rating":    "up",
					"qa_log_id": qaLogID,
				},
			},
			map[string]any{
				"type":  "Action.Submit",
				"title": "\U0001F44E",
				"data": map[string]any{
					"action":    "feedback",
					"rating":    "down",
					"qa_log_id": qaLogID,
				},
			},
		}
	}
	return card
}

// AnswerSource is the provenance data the card renderer needs. It mirrors
// the answer service shape without importing it.
type AnswerSource struct {
	Title     string
	URL       string
	Platform  string
	UpdatedAt string
}

// ComposeAnswerActivity wraps an answer card in a message activity ready to
// send on a conversation.
func ComposeAnswerActivity(answer, qaLogID string, confidence *float64, reviewed *bool, sources []AnswerSource) Activity {
	return Activity{
		Type: activityTypeMessage,
		Attachments: []Attachment{{
			ContentType: adaptiveCardContentType,
			Content:     ComposeAnswerCard(answer, qaLogID, confidence, reviewed, sources),
		}},
	}
}

// TextActivity builds a plain text message activity.
func TextActivity(text string) Activity {
	return Activity{Type: activityTypeMessage, Text: text}
}

func answerMetaLine(confidence *float64, reviewed *bool) string {
	var parts []string
	if confidence != nil {
		parts = append(parts, fmt.Sprintf("Confidence: %.0f%%", *confidence*100))
	}
	if reviewed != nil {
		if *reviewed {
			parts = append(parts, "Reviewed by a human")
		} else {
			parts = append(parts, "Not yet reviewed")
		}
	}
	return strings.Join(parts, " · ")
}

func sourceLine(s AnswerSource) string {
	title := s.Title
	if title == "" {
		title = s.URL
	}
	if title == "" {
		return ""
	}
	line := title
	if s.URL != "" && s.Title != "" {
		line = fmt.Sprintf("[%s](%s)", s.Title, s.URL)
	}
	if s.Platform != "" {
		line += " (" + s.Platform + ")"
	}
	return line
}
