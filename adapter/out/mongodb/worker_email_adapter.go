package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"leadestate_server/core/domain"
	"leadestate_server/core/port/out"
)

// =============================================================================
// MongoDB Email Adapter
// =============================================================================

const collectionEmails = "emails"

// EmailAdapter implements out.EmailRepository using MongoDB.
type EmailAdapter struct {
	collection *mongo.Collection
	now        func() time.Time
}

var _ out.EmailRepository = (*EmailAdapter)(nil)

// NewEmailAdapter creates a new MongoDB email adapter.
func NewEmailAdapter(db *mongo.Database) *EmailAdapter {
	return &EmailAdapter{
		collection: db.Collection(collectionEmails),
		now:        time.Now,
	}
}

// EnsureIndexes creates necessary indexes for the collection.
func (a *EmailAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "messageId", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "createdAt", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "mailbox", Value: 1}, {Key: "imapUid", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "direction", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "contactId", Value: 1}},
		},
	}

	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// =============================================================================
// Document Model
// =============================================================================

type emailDocument struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty"`
	ConversationID string              `bson:"conversationId"`
	MessageID      string              `bson:"messageId"`
	InReplyTo      string              `bson:"inReplyTo,omitempty"`
	References     []string            `bson:"references,omitempty"`
	CampaignID     string              `bson:"campaignId,omitempty"`
	From           string              `bson:"from"`
	To             []string            `bson:"to,omitempty"`
	Subject        string              `bson:"subject,omitempty"`
	BodyText       string              `bson:"bodyText,omitempty"`
	BodyHTML       string              `bson:"bodyHtml,omitempty"`
	Direction      string              `bson:"direction"`
	Status         string              `bson:"status"`
	Classification string              `bson:"classification,omitempty"`
	ContactID      *primitive.ObjectID `bson:"contactId,omitempty"`
	ImapUID        int64               `bson:"imapUid,omitempty"`
	Mailbox        string              `bson:"mailbox,omitempty"`
	Flags          []string            `bson:"flags,omitempty"`
	CreatedAt      time.Time           `bson:"createdAt"`
	UpdatedAt      time.Time           `bson:"updatedAt"`
}

// =============================================================================
// Operations
// =============================================================================

// FindByMessageID returns nil, nil when absent.
func (a *EmailAdapter) FindByMessageID(ctx context.Context, messageID string) (*domain.Email, error) {
	var doc emailDocument
	err := a.collection.FindOne(ctx, bson.M{"messageId": messageID}).Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find email: %w", err)
	}
	return doc.toDomain(), nil
}

// Create inserts the email and sets its ID and timestamps.
func (a *EmailAdapter) Create(ctx context.Context, email *domain.Email) error {
	now := a.now().UTC()
	email.CreatedAt = now
	email.UpdatedAt = now

	doc := toEmailDocument(email)
	res, err := a.collection.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("failed to insert email: %w", err)
	}

	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		email.ID = oid.Hex()
	}
	return nil
}

// GetMaxUID returns the highest stored UID for the mailbox, 0 when empty.
func (a *EmailAdapter) GetMaxUID(ctx context.Context, mailbox string) (uint32, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "imapUid", Value: -1}}).
		SetProjection(bson.M{"imapUid": 1})

	var doc emailDocument
	err := a.collection.FindOne(ctx, bson.M{"mailbox": mailbox, "imapUid": bson.M{"$gt": 0}}, opts).Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get max uid: %w", err)
	}
	return uint32(doc.ImapUID), nil
}

// FindNewInbound returns inbound emails with status new, oldest first.
func (a *EmailAdapter) FindNewInbound(ctx context.Context) ([]*domain.Email, error) {
	filter := bson.M{
		"direction": string(domain.DirectionInbound),
		"status":    string(domain.EmailStatusNew),
	}
	return a.find(ctx, filter, "new inbound emails")
}

// GetConversation returns the thread, oldest first.
func (a *EmailAdapter) GetConversation(ctx context.Context, conversationID string) ([]*domain.Email, error) {
	return a.find(ctx, bson.M{"conversationId": conversationID}, "conversation")
}

func (a *EmailAdapter) find(ctx context.Context, filter bson.M, what string) ([]*domain.Email, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := a.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find %s: %w", what, err)
	}
	defer cursor.Close(ctx)

	var docs []emailDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", what, err)
	}

	emails := make([]*domain.Email, 0, len(docs))
	for i := range docs {
		emails = append(emails, docs[i].toDomain())
	}
	return emails, nil
}

// UpdateStatus moves an email out of new. Once replied or failed, the status
// is left alone and the call is a no-op.
func (a *EmailAdapter) UpdateStatus(ctx context.Context, id string, status domain.EmailStatus) error {
	if !status.IsTerminal() {
		return a.set(ctx, id, bson.M{"status": string(status)})
	}

	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := a.collection.UpdateOne(ctx, openStatusFilter(oid), bson.M{"$set": bson.M{
		"status":    string(status),
		"updatedAt": a.now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("failed to update email status: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	n, err := a.collection.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("email %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (a *EmailAdapter) UpdateClassification(ctx context.Context, id string, classification domain.Classification) error {
	return a.set(ctx, id, bson.M{"classification": string(classification)})
}

func (a *EmailAdapter) UpdateContactID(ctx context.Context, id, contactID string) error {
	cid, err := objectID(contactID)
	if err != nil {
		return err
	}
	return a.set(ctx, id, bson.M{"contactId": cid})
}

// openStatusFilter matches the email only while it is not yet terminal.
func openStatusFilter(oid primitive.ObjectID) bson.M {
	return bson.M{
		"_id":    oid,
		"status": bson.M{"$nin": bson.A{string(domain.EmailStatusReplied), string(domain.EmailStatusFailed)}},
	}
}

func (a *EmailAdapter) set(ctx context.Context, id string, fields bson.M) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	fields["updatedAt"] = a.now().UTC()

	res, err := a.collection.UpdateByID(ctx, oid, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update email: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("email %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// =============================================================================
// Mapping
// =============================================================================

func toEmailDocument(e *domain.Email) *emailDocument {
	return &emailDocument{
		ConversationID: e.ConversationID,
		MessageID:      e.MessageID,
		InReplyTo:      e.InReplyTo,
		References:     e.References,
		CampaignID:     e.CampaignID,
		From:           e.From,
		To:             e.To,
		Subject:        e.Subject,
		BodyText:       e.BodyText,
		BodyHTML:       e.BodyHTML,
		Direction:      string(e.Direction),
		Status:         string(e.Status),
		Classification: string(e.Classification),
		ContactID:      optionalObjectID(e.ContactID),
		ImapUID:        int64(e.ImapUID),
		Mailbox:        e.Mailbox,
		Flags:          e.Flags,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func (d *emailDocument) toDomain() *domain.Email {
	return &domain.Email{
		ID:             d.ID.Hex(),
		ConversationID: d.ConversationID,
		MessageID:      d.MessageID,
		InReplyTo:      d.InReplyTo,
		References:     d.References,
		CampaignID:     d.CampaignID,
		From:           d.From,
		To:             d.To,
		Subject:        d.Subject,
		BodyText:       d.BodyText,
		BodyHTML:       d.BodyHTML,
		Direction:      domain.Direction(d.Direction),
		Status:         domain.EmailStatus(d.Status),
		Classification: domain.Classification(d.Classification),
		ContactID:      hexOf(d.ContactID),
		ImapUID:        uint32(d.ImapUID),
		Mailbox:        d.Mailbox,
		Flags:          d.Flags,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}
