package out

import (
	"context"

	"leadestate_server/core/domain"
)

// PropertyRepository reads listings and records seller inquiries.
type PropertyRepository interface {
	// UpsertForContact writes the seller_inquiry property of a contact.
	UpsertForContact(ctx context.Context, contactID string, details domain.PropertyDetails) (*domain.Property, error)
	FindByContactID(ctx context.Context, contactID string) ([]*domain.Property, error)
	// FindListings returns listing properties matching the criteria.
	FindListings(ctx context.Context, criteria domain.PropertyCriteria) ([]*domain.Property, error)
}
