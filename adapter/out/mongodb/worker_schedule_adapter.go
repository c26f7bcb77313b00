package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"leadestate_server/core/domain"
	"leadestate_server/core/port/out"
)

const (
	collectionSchedules = "schedules"
	collectionLeads     = "leads"
)

// =============================================================================
// Schedule Adapter
// =============================================================================

// ScheduleAdapter implements out.ScheduleRepository using MongoDB.
type ScheduleAdapter struct {
	collection *mongo.Collection
	leads      *LeadAdapter
	contacts   *ContactAdapter
	now        func() time.Time
}

var _ out.ScheduleRepository = (*ScheduleAdapter)(nil)

func NewScheduleAdapter(db *mongo.Database, leads *LeadAdapter, contacts *ContactAdapter) *ScheduleAdapter {
	return &ScheduleAdapter{
		collection: db.Collection(collectionSchedules),
		leads:      leads,
		contacts:   contacts,
		now:        time.Now,
	}
}

func (a *ScheduleAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}}},
		{Keys: bson.D{{Key: "contact", Value: 1}}},
	}
	_, err := a.collection.Indexes().CreateMany(ctx, indexes)
	return err
}

type scheduleDocument struct {
	ID                         primitive.ObjectID  `bson:"_id,omitempty"`
	Contact                    *primitive.ObjectID `bson:"contact,omitempty"`
	Lead                       *primitive.ObjectID `bson:"lead,omitempty"`
	Date                       string              `bson:"date"`
	Time                       string              `bson:"time"`
	Status                     string              `bson:"status"`
	Purpose                    string              `bson:"purpose,omitempty"`
	Channel                    string              `bson:"channel,omitempty"`
	ConfirmationEmailMessageID string              `bson:"confirmationEmailMessageId,omitempty"`
	CreatedAt                  time.Time           `bson:"createdAt"`
	UpdatedAt                  time.Time           `bson:"updatedAt"`
}

// FindDetail loads the schedule with its lead and contact. Unknown or
// malformed ids return nil, nil.
func (a *ScheduleAdapter) FindDetail(ctx context.Context, scheduleID string) (*domain.ScheduleDetail, error) {
	oid, err := primitive.ObjectIDFromHex(scheduleID)
	if err != nil {
		return nil, nil
	}

	var doc scheduleDocument
	if err := a.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find schedule: %w", err)
	}

	detail := &domain.ScheduleDetail{Schedule: doc.toDomain()}
	if doc.Lead != nil {
		if detail.Lead, err = a.leads.findByID(ctx, *doc.Lead); err != nil {
			return nil, err
		}
	}
	if doc.Contact != nil {
		if detail.Contact, err = a.contacts.findByID(ctx, *doc.Contact); err != nil {
			return nil, err
		}
	}
	return detail, nil
}

// MarkCancelled flips the status with a conditional update so only one
// caller observes the transition.
func (a *ScheduleAdapter) MarkCancelled(ctx context.Context, scheduleID string) (bool, error) {
	oid, err := objectID(scheduleID)
	if err != nil {
		return false, err
	}

	filter := bson.M{
		"_id":    oid,
		"status": bson.M{"$ne": string(domain.ScheduleStatusCancelled)},
	}
	update := bson.M{"$set": bson.M{
		"status":    string(domain.ScheduleStatusCancelled),
		"updatedAt": a.now().UTC(),
	}}

	res, err := a.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to cancel schedule: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (d *scheduleDocument) toDomain() *domain.Schedule {
	return &domain.Schedule{
		ID:                         d.ID.Hex(),
		ContactID:                  hexOf(d.Contact),
		LeadID:                     hexOf(d.Lead),
		Date:                       d.Date,
		Time:                       d.Time,
		Status:                     domain.ScheduleStatus(d.Status),
		Purpose:                    d.Purpose,
		Channel:                    d.Channel,
		ConfirmationEmailMessageID: d.ConfirmationEmailMessageID,
		CreatedAt:                  d.CreatedAt,
		UpdatedAt:                  d.UpdatedAt,
	}
}

// =============================================================================
// Lead Adapter
// =============================================================================

// LeadAdapter implements out.LeadRepository using MongoDB.
type LeadAdapter struct {
	collection *mongo.Collection
	now        func() time.Time
}

var _ out.LeadRepository = (*LeadAdapter)(nil)

func NewLeadAdapter(db *mongo.Database) *LeadAdapter {
	return &LeadAdapter{
		collection: db.Collection(collectionLeads),
		now:        time.Now,
	}
}

func (a *LeadAdapter) EnsureIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}},
	})
	return err
}

type appointmentDocument struct {
	Date      string `bson:"date"`
	Time      string `bson:"time"`
	Confirmed bool   `bson:"confirmed,omitempty"`
	Channel   string `bson:"channel,omitempty"`
	Purpose   string `bson:"purpose,omitempty"`
}

type leadDocument struct {
	ID           primitive.ObjectID    `bson:"_id,omitempty"`
	Name         string                `bson:"name,omitempty"`
	Email        string                `bson:"email,omitempty"`
	Appointments []appointmentDocument `bson:"appointments,omitempty"`
	Memory       struct {
		Notes []string `bson:"notes,omitempty"`
	} `bson:"memory,omitempty"`
	NextAction string    `bson:"next_action,omitempty"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

// FindByID returns nil, nil when absent.
func (a *LeadAdapter) FindByID(ctx context.Context, leadID string) (*domain.Lead, error) {
	oid, err := primitive.ObjectIDFromHex(leadID)
	if err != nil {
		return nil, nil
	}
	return a.findByID(ctx, oid)
}

func (a *LeadAdapter) findByID(ctx context.Context, id primitive.ObjectID) (*domain.Lead, error) {
	var doc leadDocument
	if err := a.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find lead: %w", err)
	}
	return doc.toDomain(), nil
}

// ApplyCancellation pulls the matching appointment, appends the note and
// sets the next action in a single update.
func (a *LeadAdapter) ApplyCancellation(ctx context.Context, leadID string, c domain.LeadCancellation) error {
	oid, err := objectID(leadID)
	if err != nil {
		return err
	}

	set := bson.M{"updatedAt": a.now().UTC()}
	if c.NextAction != "" {
		set["next_action"] = c.NextAction
	}
	update := bson.M{
		"$set":  set,
		"$pull": bson.M{"appointments": bson.M{"date": c.Date, "time": c.Time}},
	}
	if c.Note != "" {
		update["$push"] = bson.M{"memory.notes": c.Note}
	}

	res, err := a.collection.UpdateByID(ctx, oid, update)
	if err != nil {
		return fmt.Errorf("failed to update lead: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("lead %s: %w", leadID, domain.ErrNotFound)
	}
	return nil
}

func (d *leadDocument) toDomain() *domain.Lead {
	lead := &domain.Lead{
		ID:         d.ID.Hex(),
		Name:       d.Name,
		Email:      d.Email,
		Memory:     domain.LeadMemory{Notes: d.Memory.Notes},
		NextAction: d.NextAction,
		UpdatedAt:  d.UpdatedAt,
	}
	for _, ap := range d.Appointments {
		lead.Appointments = append(lead.Appointments, domain.Appointment{
			Date:      ap.Date,
			Time:      ap.Time,
			Confirmed: ap.Confirmed,
			Channel:   ap.Channel,
			Purpose:   ap.Purpose,
		})
	}
	return lead
}
