package mongodb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"leadestate_server/core/domain"
	"leadestate_server/core/port/out"
)

const collectionContacts = "contacts"

// ContactAdapter implements out.ContactRepository using MongoDB.
type ContactAdapter struct {
	collection *mongo.Collection
	now        func() time.Time
}

var _ out.ContactRepository = (*ContactAdapter)(nil)

func NewContactAdapter(db *mongo.Database) *ContactAdapter {
	return &ContactAdapter{
		collection: db.Collection(collectionContacts),
		now:        time.Now,
	}
}

func (a *ContactAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

type contactDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	Name      string             `bson:"name,omitempty"`
	Email     string             `bson:"email"`
	Phone     string             `bson:"phone,omitempty"`
	Intent    string             `bson:"intent"`
	Status    string             `bson:"status,omitempty"`
	Source    string             `bson:"source,omitempty"`
	Budget    string             `bson:"priceRange,omitempty"`
	Timeline  string             `bson:"timeline,omitempty"`
	Location  string             `bson:"location,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

// UpsertByEmail creates or merges the contact in one round trip. Intent is
// always written; name and optional fields only when non-empty.
func (a *ContactAdapter) UpsertByEmail(ctx context.Context, in *domain.ContactUpsert) (*domain.Contact, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, fmt.Errorf("contact email is required")
	}
	now := a.now().UTC()

	set := bson.M{
		"intent":    string(in.Intent),
		"updatedAt": now,
	}
	setOnInsert := bson.M{
		"status":    string(domain.ContactStatusNew),
		"createdAt": now,
	}
	setIfPresent(set, "name", in.Name)
	setIfPresent(set, "phone", in.Phone)
	setIfPresent(set, "priceRange", in.Budget)
	setIfPresent(set, "timeline", in.Timeline)
	setIfPresent(set, "location", in.Location)
	if s := strings.TrimSpace(in.Source); s != "" {
		set["source"] = s
	} else {
		setOnInsert["source"] = domain.ContactSourceEmail
	}

	update := bson.M{"$set": set, "$setOnInsert": setOnInsert}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc contactDocument
	err := a.collection.FindOneAndUpdate(ctx, bson.M{"email": email}, update, opts).Decode(&doc)
	if err != nil && mongo.IsDuplicateKeyError(err) {
		// concurrent insert of the same email won the race; the retry matches it
		err = a.collection.FindOneAndUpdate(ctx, bson.M{"email": email}, update, opts).Decode(&doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert contact: %w", err)
	}
	return doc.toDomain(), nil
}

// FindByEmail returns nil, nil when absent.
func (a *ContactAdapter) FindByEmail(ctx context.Context, email string) (*domain.Contact, error) {
	var doc contactDocument
	err := a.collection.FindOne(ctx, bson.M{"email": normalizeEmail(email)}).Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find contact: %w", err)
	}
	return doc.toDomain(), nil
}

func (a *ContactAdapter) findByID(ctx context.Context, id primitive.ObjectID) (*domain.Contact, error) {
	var doc contactDocument
	err := a.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find contact: %w", err)
	}
	return doc.toDomain(), nil
}

func (d *contactDocument) toDomain() *domain.Contact {
	return &domain.Contact{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Email:     d.Email,
		Phone:     d.Phone,
		Intent:    domain.ContactIntent(d.Intent),
		Status:    domain.ContactStatus(d.Status),
		Source:    d.Source,
		Budget:    d.Budget,
		Timeline:  d.Timeline,
		Location:  d.Location,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func setIfPresent(set bson.M, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		set[key] = v
	}
}
