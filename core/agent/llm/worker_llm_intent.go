package llm

import (
	"context"
	"fmt"
	"strings"

	"leadestate_server/core/domain"
)

const intentBodyLimit = 2000

const intentSystemPrompt = `You classify email replies to a meeting confirmation. Reply with JSON only.`

type intentResponse struct {
	Intent string `json:"intent"`
}

// ClassifyReplyIntent decides whether a reply asks to cancel, reschedule, or neither.
func (c *Client) ClassifyReplyIntent(ctx context.Context, subject, body string) (domain.ReplyIntent, error) {
	if strings.TrimSpace(subject) == "" && strings.TrimSpace(body) == "" {
		return domain.ReplyIntentOther, nil
	}

	prompt := fmt.Sprintf(`The customer received an email confirming their scheduled call and has replied.

Subject: %s

Body:
%s

Classify the intent of this reply:
- "cancel": The customer wants to cancel the scheduled meeting (e.g. "please cancel", "I need to cancel", "cancel my appointment", "won't be able to make it", "something came up, need to cancel")
- "reschedule": The customer wants to reschedule to a different time (e.g. "can we move it", "different time works better", "reschedule for next week")
- "other": Any other intent (questions, confirmations, thanks, unrelated, unclear)

Reply with JSON: {"intent": "cancel" | "reschedule" | "other"}`,
		subject,
		truncateBody(body, intentBodyLimit),
	)

	var resp intentResponse
	if err := c.CompleteJSON(ctx, "classify_intent", intentSystemPrompt, prompt, &resp); err != nil {
		return "", err
	}
	return domain.ParseReplyIntent(strings.ToLower(strings.TrimSpace(resp.Intent))), nil
}
