package cancellation

import (
	"context"
	"fmt"
	"time"

	"leadestate_server/core/domain"
	"leadestate_server/core/port/out"
	"leadestate_server/pkg/apperr"
	"leadestate_server/pkg/logger"
	"leadestate_server/pkg/mailheader"
)

// Outcome of one cancel request.
type Outcome int

const (
	// OutcomeNone means the request failed before any change.
	OutcomeNone Outcome = iota
	// OutcomeCancelled means this request moved the schedule to cancelled.
	OutcomeCancelled
	// OutcomeAlreadyCancelled means nothing was changed and nothing was sent.
	OutcomeAlreadyCancelled
	// OutcomeNotFound means the schedule is gone; the acknowledgment was still sent.
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeAlreadyCancelled:
		return "already_cancelled"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// CancelRequest carries what the observer recovered from the customer's reply.
type CancelRequest struct {
	ScheduleID        string
	OurMessageID      string // bracketed
	CustomerMessageID string // bracketed, may be empty
	Subject           string
	Sender            string // customer's address from the reply, may be empty
}

const (
	defaultLeadName   = "there"
	defaultAckSubject = "Your scheduled call"
)

// CancelHandler applies a cancellation and acknowledges it.
type CancelHandler struct {
	schedules out.ScheduleRepository
	leads     out.LeadRepository
	sender    out.MailSender
	events    out.EventPublisher
	now       func() time.Time
}

func NewCancelHandler(
	schedules out.ScheduleRepository,
	leads out.LeadRepository,
	sender out.MailSender,
	events out.EventPublisher,
) *CancelHandler {
	return &CancelHandler{
		schedules: schedules,
		leads:     leads,
		sender:    sender,
		events:    events,
		now:       time.Now,
	}
}

// Cancel moves the schedule to cancelled at most once. A repeated request
// for the same schedule changes nothing and sends nothing.
func (h *CancelHandler) Cancel(ctx context.Context, req *CancelRequest) (Outcome, error) {
	log := logger.WithContext(ctx).WithField("schedule_id", req.ScheduleID)

	detail, err := h.schedules.FindDetail(ctx, req.ScheduleID)
	if err != nil {
		return OutcomeNone, apperr.DatabaseError("find schedule", err)
	}

	if detail == nil || detail.Schedule == nil {
		log.Warn("[CancelHandler] Schedule %s not found, sending reply anyway", req.ScheduleID)
		if to := resolveRecipient(req.Sender, nil); to != "" {
			if err := h.acknowledge(ctx, to, defaultLeadName, "", "", req); err != nil {
				return OutcomeNotFound, err
			}
		}
		return OutcomeNotFound, nil
	}

	schedule := detail.Schedule
	if schedule.IsCancelled() {
		log.Debug("[CancelHandler] Schedule already cancelled")
		return OutcomeAlreadyCancelled, nil
	}

	transitioned, err := h.schedules.MarkCancelled(ctx, schedule.ID)
	if err != nil {
		return OutcomeNone, apperr.DatabaseError("cancel schedule", err)
	}
	// a concurrent run won the transition
	if !transitioned {
		return OutcomeAlreadyCancelled, nil
	}

	// the lead copy is a denormalized view; the schedule is the record
	leadID := schedule.LeadID
	if detail.Lead != nil {
		leadID = detail.Lead.ID
		err := h.leads.ApplyCancellation(ctx, leadID, domain.LeadCancellation{
			Date:       schedule.Date,
			Time:       schedule.Time,
			Note:       domain.CancellationNote(schedule.Date, schedule.Time),
			NextAction: domain.NextActionMeetingCancelled,
		})
		if err != nil {
			log.Warn("[CancelHandler] Failed to update lead %s: %v", leadID, err)
		}
	} else if leadID != "" {
		log.Warn("[CancelHandler] Lead %s not found, skipping lead update", leadID)
	}

	h.publish(ctx, schedule, leadID)

	to := resolveRecipient(req.Sender, detail)
	if to == "" {
		log.Warn("[CancelHandler] No recipient for schedule %s, skipping reply", req.ScheduleID)
		return OutcomeCancelled, nil
	}

	leadName := defaultLeadName
	if detail.Lead != nil && detail.Lead.Name != "" {
		leadName = detail.Lead.Name
	}
	if err := h.acknowledge(ctx, to, leadName, schedule.Date, schedule.Time, req); err != nil {
		return OutcomeCancelled, err
	}

	log.Info("[CancelHandler] Cancelled %s on %s at %s", schedule.ID, schedule.Date, schedule.Time)
	return OutcomeCancelled, nil
}

func (h *CancelHandler) acknowledge(ctx context.Context, to, leadName, date, tm string, req *CancelRequest) error {
	html, err := RenderAcknowledgment(AckData{LeadName: leadName, Date: date, Time: tm})
	if err != nil {
		return fmt.Errorf("failed to render acknowledgment: %w", err)
	}

	inReplyTo := req.CustomerMessageID
	if inReplyTo == "" {
		inReplyTo = req.OurMessageID
	}

	mail := &out.OutgoingMail{
		To:         to,
		Subject:    mailheader.ReplySubject(req.Subject, defaultAckSubject),
		HTML:       html,
		Text:       PlainAcknowledgment(AckData{LeadName: leadName, Date: date, Time: tm}),
		InReplyTo:  inReplyTo,
		References: mailheader.References(req.OurMessageID, req.CustomerMessageID),
	}
	if _, err := h.sender.Send(ctx, mail); err != nil {
		return apperr.DeliveryError(to, err)
	}
	return nil
}

func (h *CancelHandler) publish(ctx context.Context, schedule *domain.Schedule, leadID string) {
	if h.events == nil {
		return
	}
	event := &out.Event{
		Type:       out.EventScheduleCancelled,
		OccurredAt: h.now().UTC(),
		RunID:      logger.RunIDFromContext(ctx),
		Data: map[string]any{
			"schedule_id": schedule.ID,
			"lead_id":     leadID,
			"date":        schedule.Date,
			"time":        schedule.Time,
		},
	}
	if err := h.events.Publish(ctx, event); err != nil {
		logger.Warn("[CancelHandler] Failed to publish %s: %v", event.Type, err)
	}
}

// resolveRecipient picks the sender, then the lead, then the contact.
func resolveRecipient(sender string, detail *domain.ScheduleDetail) string {
	if sender != "" {
		return sender
	}
	if detail == nil {
		return ""
	}
	if detail.Lead != nil && detail.Lead.Email != "" {
		return detail.Lead.Email
	}
	if detail.Contact != nil && detail.Contact.Email != "" {
		return detail.Contact.Email
	}
	return ""
}
