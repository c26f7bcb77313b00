package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leadestate_server/core/port/out"
	"leadestate_server/pkg/apperr"
)

// =============================================================================
// System prompts
// =============================================================================

const buyerSystemPrompt = `You are a professional US real estate agent assistant. You respond to inbound leads via email with warmth, expertise, and clarity.

Your goals:
- Acknowledge their inquiry promptly
- Qualify their intent (buyer, seller, or both) when relevant
- Answer property questions, financing context, or next steps
- Keep responses concise (2-4 short paragraphs) and actionable
- Sign off professionally without being overly salesy

Do not make up property listings or prices. If they ask about specific properties, suggest they share their criteria so you can help match them.`

const sellerSystemPrompt = `You are a professional US real estate agent assistant helping sellers list their property. Your goal is to collect property details via email conversation.

Gather: address, beds, baths, sqft, price expectation, condition, timeline. Ask for missing details naturally. When you have address and basic info (or after 4-5 exchanges), suggest scheduling a call for a listing consultation. Keep responses warm and concise.`

const (
	buyerCallCTA  = "If the lead seems engaged, suggest scheduling a call to discuss further."
	sellerCallCTA = "Consider suggesting a call for a listing consultation."
	replyClosing  = "Write a helpful, professional email response. Use plain text only, no HTML."
)

var errEmptyReply = errors.New("model returned an empty reply")

// =============================================================================
// Generation
// =============================================================================

// GenerateBuyerReply answers buyer leads and general inquiries.
func (c *Client) GenerateBuyerReply(ctx context.Context, rc *out.ReplyContext) (string, error) {
	var b strings.Builder
	b.WriteString("A lead just emailed you. Generate a professional reply.\n\n")
	writeHeader(&b, rc)
	writeHistory(&b, rc.History)
	writeLatest(&b, rc.Body)

	if len(rc.Properties) > 0 {
		b.WriteString("\nAvailable properties to suggest:\n")
		for _, p := range rc.Properties {
			b.WriteString("- " + p + "\n")
		}
	}
	if rc.SuggestCall {
		b.WriteString("\n" + buyerCallCTA + "\n")
	}
	b.WriteString("\n" + replyClosing)

	return c.reply(ctx, "buyer_reply", buyerSystemPrompt, b.String())
}

// GenerateSellerReply continues collecting the seller's property details.
func (c *Client) GenerateSellerReply(ctx context.Context, rc *out.ReplyContext) (string, error) {
	var b strings.Builder
	b.WriteString("A seller lead emailed you. Generate a professional reply.\n\n")
	writeHeader(&b, rc)
	writeHistory(&b, rc.History)
	if rc.SellerProperty != "" {
		b.WriteString("Already collected: " + rc.SellerProperty + "\n\n")
	}
	writeLatest(&b, rc.Body)
	if rc.SuggestCall {
		b.WriteString("\n" + sellerCallCTA + "\n")
	}
	b.WriteString("\n" + replyClosing)

	return c.reply(ctx, "seller_reply", sellerSystemPrompt, b.String())
}

func (c *Client) reply(ctx context.Context, op, system, prompt string) (string, error) {
	text, err := c.CompleteWithSystem(ctx, op, system, prompt)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperr.OracleError(op, errEmptyReply)
	}
	return text, nil
}

func writeHeader(b *strings.Builder, rc *out.ReplyContext) {
	from := rc.From
	if from == "" {
		from = rc.ContactEmail
	}
	fmt.Fprintf(b, "From: %s\nSubject: %s\n", from, orPlaceholder(rc.Subject, "(no subject)"))
}

func writeHistory(b *strings.Builder, history []out.ChatTurn) {
	if len(history) == 0 {
		return
	}
	turns := make([]string, 0, len(history))
	for _, t := range history {
		speaker := "Agent"
		if t.Role == out.RoleUser {
			speaker = "Customer"
		}
		turns = append(turns, speaker+": "+truncateBody(t.Content, 2000))
	}
	b.WriteString("Previous conversation:\n" + strings.Join(turns, "\n\n") + "\n\n")
}

func writeLatest(b *strings.Builder, body string) {
	b.WriteString("Latest message:\n" + orPlaceholder(body, "(no message body)") + "\n")
}
