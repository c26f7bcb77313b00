package cancellation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadestate_server/core/domain"
	"leadestate_server/core/port/in"
	"leadestate_server/core/port/out"
	"leadestate_server/pkg/apperr"
	"leadestate_server/pkg/logger"
	"leadestate_server/pkg/mailheader"
)

// =============================================================================
// Observer - flag-driven scan for replies to booking confirmations
// =============================================================================
//
// Every unseen message is a candidate. Only messages correlated to one of
// our booking confirmations are ever flagged \Seen; everything else is left
// unread for humans and other tooling.

// ObserverConfig configures the observer.
type ObserverConfig struct {
	Mailbox string
}

type Observer struct {
	mailbox out.MailboxClient
	intents out.IntentClassifier
	handler *CancelHandler
	parser  *mailheader.Parser
	cfg     ObserverConfig
}

func NewObserver(
	mailbox out.MailboxClient,
	intents out.IntentClassifier,
	handler *CancelHandler,
	parser *mailheader.Parser,
	cfg ObserverConfig,
) *Observer {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if parser == nil {
		parser = mailheader.NewParser(mailheader.DefaultDomain)
	}
	return &Observer{
		mailbox: mailbox,
		intents: intents,
		handler: handler,
		parser:  parser,
		cfg:     cfg,
	}
}

var _ in.CancellationObserverService = (*Observer)(nil)

// RunCancellationObserver scans the unseen set once.
func (o *Observer) RunCancellationObserver(ctx context.Context) (domain.CancellationResult, error) {
	var result domain.CancellationResult

	if !o.mailbox.Configured() {
		logger.Warn("[Observer] IMAP not configured: set IMAP_MAIL/IMAP_MAIL_PASSWORD or SMTP_MAIL/SMTP_MAIL_PASSWORD")
		return result, nil
	}

	start := time.Now()
	session, err := o.mailbox.Connect(ctx)
	if err != nil {
		return result, apperr.MailboxError("connect", err)
	}
	defer func() {
		if lerr := session.Logout(); lerr != nil {
			logger.Debug("[Observer] Logout failed: %v", lerr)
		}
		_ = session.Close()
	}()

	release, err := session.Lock(ctx, o.cfg.Mailbox)
	if err != nil {
		return result, apperr.MailboxError("lock "+o.cfg.Mailbox, err)
	}
	defer release()

	uids, err := session.SearchUnseen(ctx)
	if err != nil {
		return result, apperr.MailboxError("search unseen", err)
	}
	logger.Debug("[Observer] %d unseen messages in %s", len(uids), o.cfg.Mailbox)

	for _, uid := range uids {
		if err := o.handleMessage(ctx, session, uid, &result); err != nil {
			logger.WithField("uid", uid).WithError(err).Error("[Observer] Error processing message")
		}
	}

	logger.WithDuration(time.Since(start)).Info("[Observer] Run complete: processed=%d cancelled=%d", result.Processed, result.Cancelled)
	return result, nil
}

func (o *Observer) handleMessage(ctx context.Context, session out.MailboxSession, uid uint32, result *domain.CancellationResult) error {
	msg, err := session.FetchOne(ctx, uid)
	if err != nil {
		return fmt.Errorf("failed to fetch: %w", err)
	}
	if msg == nil {
		return nil
	}

	inReplyTo := msg.RawInReplyTo
	if inReplyTo == "" {
		inReplyTo = strings.Join(msg.InReplyTo, " ")
	}

	corr, err := o.parser.Parse(inReplyTo, msg.RawReferences)
	switch {
	case errors.Is(err, mailheader.ErrNotCorrelated):
		return nil
	case errors.Is(err, mailheader.ErrNoThreadAnchor):
		logger.WithField("uid", uid).Warn("[Observer] Schedule %s referenced without a threadable Message-Id, leaving unread", corr.ScheduleID)
		return nil
	case err != nil:
		return err
	}

	body := msg.BodyText
	if strings.TrimSpace(body) == "" {
		body = msg.BodyHTML
	}

	intent, err := o.intents.ClassifyReplyIntent(ctx, msg.Subject, body)
	if err != nil {
		return fmt.Errorf("failed to classify intent: %w", err)
	}
	result.Processed++

	log := logger.WithFields(map[string]any{"uid": uid, "schedule_id": corr.ScheduleID})
	if intent != domain.ReplyIntentCancel {
		log.Info("[Observer] Reply intent %s, no action", intent)
		return o.markSeen(ctx, session, uid)
	}

	outcome, err := o.handler.Cancel(ctx, &CancelRequest{
		ScheduleID:        corr.ScheduleID,
		OurMessageID:      corr.OurMessageID,
		CustomerMessageID: msg.MessageID,
		Subject:           msg.Subject,
		Sender:            msg.From.Email,
	})
	if outcome == OutcomeCancelled {
		result.Cancelled++
	}
	if err != nil {
		return err
	}

	log.Info("[Observer] Cancel request handled: %s", outcome)
	return o.markSeen(ctx, session, uid)
}

func (o *Observer) markSeen(ctx context.Context, session out.MailboxSession, uid uint32) error {
	if err := session.AddFlags(ctx, uid, out.FlagSeen); err != nil {
		return apperr.MailboxError("flag seen", err)
	}
	return nil
}
