package out

import (
	"context"

	"leadestate_server/core/domain"
)

// EmailRepository is the message store used by the inbound pipeline.
type EmailRepository interface {
	// FindByMessageID returns nil, nil when absent.
	FindByMessageID(ctx context.Context, messageID string) (*domain.Email, error)
	// Create inserts a new record. A unique conflict on messageID
	// returns domain.ErrDuplicate.
	Create(ctx context.Context, email *domain.Email) error
	// GetMaxUID returns the highest stored UID for the mailbox, 0 when empty.
	GetMaxUID(ctx context.Context, mailbox string) (uint32, error)
	// FindNewInbound returns inbound emails with status new, oldest first.
	FindNewInbound(ctx context.Context) ([]*domain.Email, error)
	UpdateStatus(ctx context.Context, id string, status domain.EmailStatus) error
	UpdateClassification(ctx context.Context, id string, classification domain.Classification) error
	UpdateContactID(ctx context.Context, id, contactID string) error
	// GetConversation returns the thread, oldest first.
	GetConversation(ctx context.Context, conversationID string) ([]*domain.Email, error)
}
