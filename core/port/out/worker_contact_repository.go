package out

import (
	"context"

	"leadestate_server/core/domain"
)

// ContactRepository resolves contacts by email.
type ContactRepository interface {
	// UpsertByEmail creates or merges a contact. Empty optional fields in
	// the input never overwrite stored values.
	UpsertByEmail(ctx context.Context, in *domain.ContactUpsert) (*domain.Contact, error)
	FindByEmail(ctx context.Context, email string) (*domain.Contact, error)
}
