package inbound

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadestate_server/core/domain"
	"leadestate_server/core/port/out"
	"leadestate_server/pkg/logger"
	"leadestate_server/pkg/mailaddr"
	"leadestate_server/pkg/mailheader"
)

const (
	// listingLimit caps the listings offered to a buyer.
	listingLimit = 5
	// callNudgeExchanges is the exchange count from which the reply suggests a call.
	callNudgeExchanges = 4
	// defaultReplySubject is used when the inbound subject is empty.
	defaultReplySubject = "Your inquiry"
)

// ReplyPassResult counts the outcome of one reply pass.
type ReplyPassResult struct {
	Replied int
	Spam    int
	Failed  int
}

// LeadResponder classifies new inbound emails and answers each lead.
type LeadResponder struct {
	emailRepo    out.EmailRepository
	contactRepo  out.ContactRepository
	propertyRepo out.PropertyRepository
	classifier   out.LeadClassifier
	extractor    out.PropertyExtractor
	generator    out.ReplyGenerator
	sender       out.MailSender
	events       out.EventPublisher
	now          func() time.Time
}

func NewLeadResponder(
	emailRepo out.EmailRepository,
	contactRepo out.ContactRepository,
	propertyRepo out.PropertyRepository,
	classifier out.LeadClassifier,
	extractor out.PropertyExtractor,
	generator out.ReplyGenerator,
	sender out.MailSender,
	events out.EventPublisher,
) *LeadResponder {
	return &LeadResponder{
		emailRepo:    emailRepo,
		contactRepo:  contactRepo,
		propertyRepo: propertyRepo,
		classifier:   classifier,
		extractor:    extractor,
		generator:    generator,
		sender:       sender,
		events:       events,
		now:          time.Now,
	}
}

// ProcessNewInbound handles every inbound email in status new, oldest first.
// A failure on one email marks it failed and moves on.
func (r *LeadResponder) ProcessNewInbound(ctx context.Context) (ReplyPassResult, error) {
	var result ReplyPassResult

	emails, err := r.emailRepo.FindNewInbound(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load new inbound emails: %w", err)
	}
	if len(emails) == 0 {
		return result, nil
	}
	logger.Info("[LeadResponder] Processing %d new inbound emails", len(emails))

	for _, email := range emails {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		spam, err := r.process(ctx, email)
		if err != nil {
			result.Failed++
			r.markFailed(ctx, email, err)
			continue
		}
		if spam {
			result.Spam++
			continue
		}
		result.Replied++
	}

	return result, nil
}

// process runs the per-email chain. It reports whether the email was spam.
func (r *LeadResponder) process(ctx context.Context, email *domain.Email) (bool, error) {
	classification, err := r.classifier.ClassifyLead(ctx, &out.LeadMessage{
		From:    email.From,
		Subject: email.Subject,
		Body:    bodyOf(email),
	})
	if err != nil {
		return false, fmt.Errorf("failed to classify: %w", err)
	}
	if err := r.emailRepo.UpdateClassification(ctx, email.ID, classification); err != nil {
		return false, fmt.Errorf("failed to save classification: %w", err)
	}
	email.Classification = classification

	// spam never creates a contact or a reply
	if classification == domain.ClassificationSpam {
		if err := r.emailRepo.UpdateStatus(ctx, email.ID, domain.EmailStatusReplied); err != nil {
			return true, fmt.Errorf("failed to close spam: %w", err)
		}
		logger.Info("[LeadResponder] %s classified as spam", email.MessageID)
		return true, nil
	}

	from, ok := mailaddr.Parse(email.From)
	if !ok {
		return false, fmt.Errorf("unparseable sender %q", email.From)
	}

	contact, err := r.contactRepo.UpsertByEmail(ctx, &domain.ContactUpsert{
		Email:  from.Email,
		Name:   from.Name,
		Intent: classification.ContactIntent(),
		Source: domain.ContactSourceEmail,
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert contact: %w", err)
	}
	if err := r.emailRepo.UpdateContactID(ctx, email.ID, contact.ID); err != nil {
		return false, fmt.Errorf("failed to link contact: %w", err)
	}
	email.ContactID = contact.ID

	rc, err := r.replyContext(ctx, email, contact, classification)
	if err != nil {
		return false, err
	}

	var body string
	if classification == domain.ClassificationSellerLead {
		body, err = r.sellerReply(ctx, email, contact, rc)
	} else {
		body, err = r.buyerReply(ctx, rc)
	}
	if err != nil {
		return false, err
	}

	mail := &out.OutgoingMail{
		To:      from.Email,
		Subject: mailheader.ReplySubject(email.Subject, defaultReplySubject),
		Text:    body,
	}
	// synthetic uid: keys are not real Message-Ids
	if strings.HasPrefix(email.MessageID, "<") {
		mail.InReplyTo = email.MessageID
		mail.References = append(append([]string{}, email.References...), email.MessageID)
	}

	sentID, err := r.sender.Send(ctx, mail)
	if err != nil {
		return false, fmt.Errorf("failed to send reply: %w", err)
	}

	if err := r.emailRepo.UpdateStatus(ctx, email.ID, domain.EmailStatusReplied); err != nil {
		return false, fmt.Errorf("failed to mark replied: %w", err)
	}

	logger.Info("[LeadResponder] Replied to %s (%s, exchange %d)", from.Email, classification, rc.ExchangeCount)
	r.publish(ctx, out.EventEmailReplied, map[string]any{
		"email_id":       email.ID,
		"message_id":     email.MessageID,
		"contact_id":     contact.ID,
		"classification": string(classification),
		"reply_id":       sentID,
	})
	return false, nil
}

// replyContext loads the thread and derives the exchange count.
func (r *LeadResponder) replyContext(
	ctx context.Context,
	email *domain.Email,
	contact *domain.Contact,
	classification domain.Classification,
) (*out.ReplyContext, error) {
	thread, err := r.emailRepo.GetConversation(ctx, email.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	history := make([]out.ChatTurn, 0, len(thread))
	exchanged := 0
	for _, m := range thread {
		role := out.RoleAssistant
		if m.Direction == domain.DirectionInbound {
			role = out.RoleUser
		}
		if m.Direction == domain.DirectionInbound || m.Status == domain.EmailStatusReplied {
			exchanged++
		}
		if content := bodyOf(m); strings.TrimSpace(content) != "" {
			history = append(history, out.ChatTurn{Role: role, Content: content})
		}
	}
	exchangeCount := exchanged / 2

	name := contact.Name
	if name == "" {
		name = contact.Email
	}

	return &out.ReplyContext{
		From:           email.From,
		Subject:        email.Subject,
		Body:           bodyOf(email),
		ContactName:    name,
		ContactEmail:   contact.Email,
		Classification: classification,
		History:        history,
		ExchangeCount:  exchangeCount,
		SuggestCall:    exchangeCount >= callNudgeExchanges,
	}, nil
}

func (r *LeadResponder) sellerReply(
	ctx context.Context,
	email *domain.Email,
	contact *domain.Contact,
	rc *out.ReplyContext,
) (string, error) {
	details, err := r.extractor.ExtractPropertyDetails(ctx, bodyOf(email))
	if err != nil {
		return "", fmt.Errorf("failed to extract property details: %w", err)
	}
	if !details.IsEmpty() {
		if _, err := r.propertyRepo.UpsertForContact(ctx, contact.ID, details); err != nil {
			return "", fmt.Errorf("failed to save seller property: %w", err)
		}
	}

	props, err := r.propertyRepo.FindByContactID(ctx, contact.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load seller property: %w", err)
	}
	if len(props) > 0 {
		rc.SellerProperty = props[0].Summary()
	}

	body, err := r.generator.GenerateSellerReply(ctx, rc)
	if err != nil {
		return "", fmt.Errorf("failed to generate seller reply: %w", err)
	}
	return body, nil
}

func (r *LeadResponder) buyerReply(ctx context.Context, rc *out.ReplyContext) (string, error) {
	listings, err := r.propertyRepo.FindListings(ctx, domain.PropertyCriteria{Limit: listingLimit})
	if err != nil {
		return "", fmt.Errorf("failed to load listings: %w", err)
	}
	for _, p := range listings {
		rc.Properties = append(rc.Properties, p.Summary())
	}

	body, err := r.generator.GenerateBuyerReply(ctx, rc)
	if err != nil {
		return "", fmt.Errorf("failed to generate buyer reply: %w", err)
	}
	return body, nil
}

func (r *LeadResponder) markFailed(ctx context.Context, email *domain.Email, cause error) {
	logger.WithField("email_id", email.ID).WithError(cause).Error("[LeadResponder] Failed to process %s", email.MessageID)

	if err := r.emailRepo.UpdateStatus(ctx, email.ID, domain.EmailStatusFailed); err != nil {
		logger.WithField("email_id", email.ID).WithError(err).Error("[LeadResponder] Failed to mark email failed")
	}
	r.publish(ctx, out.EventEmailFailed, map[string]any{
		"email_id":   email.ID,
		"message_id": email.MessageID,
		"error":      cause.Error(),
	})
}

func (r *LeadResponder) publish(ctx context.Context, eventType string, data map[string]any) {
	if r.events == nil {
		return
	}
	event := &out.Event{
		Type:       eventType,
		OccurredAt: r.now().UTC(),
		RunID:      logger.RunIDFromContext(ctx),
		Data:       data,
	}
	if err := r.events.Publish(ctx, event); err != nil {
		logger.Warn("[LeadResponder] Failed to publish %s: %v", eventType, err)
	}
}

// bodyOf prefers the plain text part.
func bodyOf(email *domain.Email) string {
	if strings.TrimSpace(email.BodyText) != "" {
		return email.BodyText
	}
	return email.BodyHTML
}

// splitReferences splits a raw References header into bracketed ids.
func splitReferences(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return mailheader.References(fields...)
}
