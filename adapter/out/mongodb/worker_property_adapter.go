package mongodb

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"leadestate_server/core/domain"
	"leadestate_server/core/port/out"
)

const collectionProperties = "properties"

// PropertyAdapter implements out.PropertyRepository using MongoDB.
type PropertyAdapter struct {
	collection *mongo.Collection
	now        func() time.Time
}

var _ out.PropertyRepository = (*PropertyAdapter)(nil)

func NewPropertyAdapter(db *mongo.Database) *PropertyAdapter {
	return &PropertyAdapter{
		collection: db.Collection(collectionProperties),
		now:        time.Now,
	}
}

func (a *PropertyAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "source", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "contactId", Value: 1}, {Key: "source", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

type propertyDocument struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty"`
	Source           string              `bson:"source"`
	Status           string              `bson:"status,omitempty"`
	ContactID        *primitive.ObjectID `bson:"contactId,omitempty"`
	Address          string              `bson:"address,omitempty"`
	City             string              `bson:"city,omitempty"`
	State            string              `bson:"state,omitempty"`
	Zip              string              `bson:"zip,omitempty"`
	Price            float64             `bson:"price,omitempty"`
	PriceExpectation float64             `bson:"priceExpectation,omitempty"`
	Beds             float64             `bson:"beds,omitempty"`
	Baths            float64             `bson:"baths,omitempty"`
	Sqft             float64             `bson:"sqft,omitempty"`
	Condition        string              `bson:"condition,omitempty"`
	Timeline         string              `bson:"timeline,omitempty"`
	CreatedAt        time.Time           `bson:"createdAt"`
	UpdatedAt        time.Time           `bson:"updatedAt"`
}

// UpsertForContact merges the extracted details into the contact's
// seller_inquiry property. Empty fields leave stored values alone.
func (a *PropertyAdapter) UpsertForContact(ctx context.Context, contactID string, details domain.PropertyDetails) (*domain.Property, error) {
	cid, err := objectID(contactID)
	if err != nil {
		return nil, err
	}
	now := a.now().UTC()

	set := bson.M{"updatedAt": now}
	setIfPresent(set, "address", details.Address)
	setIfPresent(set, "city", details.City)
	setIfPresent(set, "state", details.State)
	setIfPresent(set, "zip", details.Zip)
	setIfPresent(set, "condition", details.Condition)
	setIfPresent(set, "timeline", details.Timeline)
	if details.Beds > 0 {
		set["beds"] = details.Beds
	}
	if details.Baths > 0 {
		set["baths"] = details.Baths
	}
	if details.Sqft > 0 {
		set["sqft"] = details.Sqft
	}
	if details.PriceExpectation > 0 {
		set["priceExpectation"] = details.PriceExpectation
	}

	filter := bson.M{"contactId": cid, "source": string(domain.PropertySourceSellerInquiry)}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"status": "inquiry", "createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc propertyDocument
	if err := a.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to upsert seller property: %w", err)
	}
	return doc.toDomain(), nil
}

// FindByContactID returns the contact's properties, oldest first.
func (a *PropertyAdapter) FindByContactID(ctx context.Context, contactID string) ([]*domain.Property, error) {
	cid, err := objectID(contactID)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	return a.find(ctx, bson.M{"contactId": cid}, opts)
}

// FindListings returns listing properties matching the criteria, newest first.
func (a *PropertyAdapter) FindListings(ctx context.Context, criteria domain.PropertyCriteria) ([]*domain.Property, error) {
	filter := bson.M{"source": string(domain.PropertySourceListing)}
	if criteria.City != "" {
		filter["city"] = primitive.Regex{Pattern: "^" + regexp.QuoteMeta(criteria.City) + "$", Options: "i"}
	}
	if criteria.MinBeds > 0 {
		filter["beds"] = bson.M{"$gte": criteria.MinBeds}
	}
	if criteria.MaxPrice > 0 {
		filter["price"] = bson.M{"$lte": criteria.MaxPrice}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if criteria.Limit > 0 {
		opts.SetLimit(int64(criteria.Limit))
	}
	return a.find(ctx, filter, opts)
}

func (a *PropertyAdapter) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.Property, error) {
	cursor, err := a.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find properties: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []propertyDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}

	props := make([]*domain.Property, 0, len(docs))
	for i := range docs {
		props = append(props, docs[i].toDomain())
	}
	return props, nil
}

func (d *propertyDocument) toDomain() *domain.Property {
	return &domain.Property{
		ID:               d.ID.Hex(),
		Source:           domain.PropertySource(d.Source),
		Status:           d.Status,
		ContactID:        hexOf(d.ContactID),
		Address:          d.Address,
		City:             d.City,
		State:            d.State,
		Zip:              d.Zip,
		Price:            d.Price,
		PriceExpectation: d.PriceExpectation,
		Beds:             int(d.Beds),
		Baths:            d.Baths,
		Sqft:             int(d.Sqft),
		Condition:        d.Condition,
		Timeline:         d.Timeline,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}
