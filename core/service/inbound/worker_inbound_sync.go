package inbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadestate_server/core/domain"
	"leadestate_server/core/port/in"
	"leadestate_server/core/port/out"
	"leadestate_server/pkg/apperr"
	"leadestate_server/pkg/logger"
	"leadestate_server/pkg/mailaddr"
)

// =============================================================================
// SyncService - incremental IMAP ingest + lead reply pass
// =============================================================================
//
// Pass 1 holds one mailbox session: fetch UID (lastUid+1):*, store each
// message exactly once with status=new. Pass 2 runs after logout over every
// stored inbound email still in status=new.

// SyncConfig configures the sync engine.
type SyncConfig struct {
	Mailbox       string
	OperatorEmail string
}

type SyncService struct {
	mailbox   out.MailboxClient
	emailRepo out.EmailRepository
	responder *LeadResponder
	cfg       SyncConfig
	now       func() time.Time
}

func NewSyncService(
	mailbox out.MailboxClient,
	emailRepo out.EmailRepository,
	responder *LeadResponder,
	cfg SyncConfig,
) *SyncService {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	return &SyncService{
		mailbox:   mailbox,
		emailRepo: emailRepo,
		responder: responder,
		cfg:       cfg,
		now:       time.Now,
	}
}

var _ in.InboundSyncService = (*SyncService)(nil)

// RunInboundSync runs both passes. Mailbox errors abort the run; per-message
// errors never do.
func (s *SyncService) RunInboundSync(ctx context.Context) (domain.SyncResult, error) {
	var result domain.SyncResult

	if !s.mailbox.Configured() {
		logger.Warn("[InboundSync] IMAP not configured: set IMAP_MAIL/IMAP_MAIL_PASSWORD or SMTP_MAIL/SMTP_MAIL_PASSWORD")
		return result, nil
	}

	start := time.Now()
	inserted, skipped, err := s.fetchNew(ctx)
	result.Inserted, result.Skipped = inserted, skipped
	if err != nil {
		return result, err
	}
	logger.Info("[InboundSync] Fetch complete: inserted=%d skipped=%d", inserted, skipped)

	replies, err := s.responder.ProcessNewInbound(ctx)
	result.Replied, result.Spam, result.Failed = replies.Replied, replies.Spam, replies.Failed
	if err != nil {
		return result, err
	}

	logger.WithDuration(time.Since(start)).Info("[InboundSync] Run complete: inserted=%d skipped=%d replied=%d spam=%d failed=%d",
		result.Inserted, result.Skipped, result.Replied, result.Spam, result.Failed)
	return result, nil
}

// fetchNew is pass 1. The session is released on every path before pass 2 starts.
func (s *SyncService) fetchNew(ctx context.Context) (inserted, skipped int, err error) {
	session, err := s.mailbox.Connect(ctx)
	if err != nil {
		return 0, 0, apperr.MailboxError("connect", err)
	}
	defer func() {
		if lerr := session.Logout(); lerr != nil {
			logger.Debug("[InboundSync] Logout failed: %v", lerr)
		}
		_ = session.Close()
	}()

	release, err := session.Lock(ctx, s.cfg.Mailbox)
	if err != nil {
		return 0, 0, apperr.MailboxError("lock "+s.cfg.Mailbox, err)
	}
	defer release()

	lastUID, err := s.emailRepo.GetMaxUID(ctx, s.cfg.Mailbox)
	if err != nil {
		return 0, 0, apperr.DatabaseError("get max uid", err)
	}
	logger.Info("[InboundSync] Fetching %s from UID %d:*", s.cfg.Mailbox, lastUID+1)

	err = session.FetchSince(ctx, lastUID, func(msg *out.FetchedMessage) error {
		stored, serr := s.storeMessage(ctx, msg)
		if serr != nil {
			logger.WithField("uid", msg.UID).WithError(serr).Error("[InboundSync] Failed to store message")
			return nil
		}
		if stored {
			inserted++
		} else {
			skipped++
		}
		return nil
	})
	if err != nil {
		return inserted, skipped, apperr.MailboxError("fetch", err)
	}
	return inserted, skipped, nil
}

// storeMessage persists msg unless its dedup key is already stored.
// It reports whether a record was created.
func (s *SyncService) storeMessage(ctx context.Context, msg *out.FetchedMessage) (bool, error) {
	key := domain.DedupKey(msg.MessageID, msg.UID)

	existing, err := s.emailRepo.FindByMessageID(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", key, err)
	}
	if existing != nil {
		return false, nil
	}

	if msg.ParseError != nil {
		logger.WithField("uid", msg.UID).WithError(msg.ParseError).Warn("[InboundSync] Body not parsed, storing metadata only")
	}

	inReplyTo := ""
	if len(msg.InReplyTo) > 0 {
		inReplyTo = msg.InReplyTo[0]
	}

	recipients := make([]mailaddr.Address, 0, len(msg.To))
	for _, a := range msg.To {
		recipients = append(recipients, mailaddr.Address{Name: a.Name, Email: a.Email})
	}
	to := mailaddr.FormatList(recipients)

	now := s.now().UTC()
	email := &domain.Email{
		ConversationID: domain.ConversationIDFor(inReplyTo, key),
		MessageID:      key,
		InReplyTo:      inReplyTo,
		References:     splitReferences(msg.RawReferences),
		CampaignID:     msg.CampaignID,
		From:           mailaddr.Format(msg.From.Name, msg.From.Email),
		To:             to,
		Subject:        msg.Subject,
		BodyText:       msg.BodyText,
		BodyHTML:       msg.BodyHTML,
		Direction:      s.direction(msg.From.Email),
		Status:         domain.EmailStatusNew,
		ImapUID:        msg.UID,
		Mailbox:        s.cfg.Mailbox,
		Flags:          msg.Flags,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.emailRepo.Create(ctx, email); err != nil {
		// another run stored it between lookup and insert
		if errors.Is(err, domain.ErrDuplicate) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert %s: %w", key, err)
	}

	logger.Debug("[InboundSync] Inserted %s (uid %d, %s)", key, msg.UID, email.Direction)
	return true, nil
}

func (s *SyncService) direction(from string) domain.Direction {
	if mailaddr.SameMailbox(from, s.cfg.OperatorEmail) {
		return domain.DirectionOutbound
	}
	return domain.DirectionInbound
}
