package llm

import (
	"context"
	"fmt"
	"strings"

	"leadestate_server/core/domain"
	"leadestate_server/core/port/out"
)

const classifySystemPrompt = `You triage inbound email for a US real estate agent. Reply with JSON only.`

type classificationResponse struct {
	Classification string `json:"classification"`
}

// ClassifyLead labels an inbound email. An email with no subject and no body is unknown.
func (c *Client) ClassifyLead(ctx context.Context, msg *out.LeadMessage) (domain.Classification, error) {
	if strings.TrimSpace(msg.Subject) == "" && strings.TrimSpace(msg.Body) == "" {
		return domain.ClassificationUnknown, nil
	}

	prompt := fmt.Sprintf(`Classify this email as one of: buyer_lead, seller_lead, general_inquiry, spam, unknown.

From: %s
Subject: %s
Message:
%s

Return JSON: {"classification": "<label>"}`,
		msg.From,
		orPlaceholder(msg.Subject, "(no subject)"),
		orPlaceholder(truncateBody(msg.Body, 4000), "(no message body)"),
	)

	var resp classificationResponse
	if err := c.CompleteJSON(ctx, "classify_lead", classifySystemPrompt, prompt, &resp); err != nil {
		return "", err
	}
	return domain.ParseClassification(strings.ToLower(strings.TrimSpace(resp.Classification))), nil
}

func orPlaceholder(s, placeholder string) string {
	if strings.TrimSpace(s) == "" {
		return placeholder
	}
	return s
}
