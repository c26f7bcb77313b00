package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"leadestate_server/core/domain"
	"leadestate_server/core/port/out"
)

const collectionJobs = "jobs"

// JobAdapter stores job definitions and doubles as the default job lock:
// the status flag is flipped with a conditional update.
type JobAdapter struct {
	collection *mongo.Collection
	now        func() time.Time
}

var (
	_ out.JobRepository = (*JobAdapter)(nil)
	_ out.JobLock       = (*JobAdapter)(nil)
)

func NewJobAdapter(db *mongo.Database) *JobAdapter {
	return &JobAdapter{
		collection: db.Collection(collectionJobs),
		now:        time.Now,
	}
}

func (a *JobAdapter) EnsureIndexes(ctx context.Context) error {
	_, err := a.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

type jobDocument struct {
	Name      string     `bson:"name"`
	Cron      string     `bson:"cron"`
	Status    bool       `bson:"status"`
	Enabled   bool       `bson:"enabled"`
	LastRun   *time.Time `bson:"lastRun"`
	NextRun   *time.Time `bson:"nextRun"`
	CreatedAt time.Time  `bson:"createdAt"`
	UpdatedAt time.Time  `bson:"updatedAt"`
}

// =============================================================================
// Repository
// =============================================================================

// Seed inserts the job if missing. Existing records keep their settings.
func (a *JobAdapter) Seed(ctx context.Context, job *domain.Job) error {
	now := a.now().UTC()
	update := bson.M{"$setOnInsert": bson.M{
		"cron":      job.Cron,
		"status":    false,
		"enabled":   job.Enabled,
		"lastRun":   nil,
		"nextRun":   job.NextRun,
		"createdAt": now,
		"updatedAt": now,
	}}

	_, err := a.collection.UpdateOne(ctx, bson.M{"name": job.Name}, update, options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to seed job %s: %w", job.Name, err)
	}
	return nil
}

func (a *JobAdapter) FindAll(ctx context.Context) ([]*domain.Job, error) {
	return a.find(ctx, bson.M{})
}

// FindByName returns nil, nil when absent.
func (a *JobAdapter) FindByName(ctx context.Context, name string) (*domain.Job, error) {
	var doc jobDocument
	if err := a.collection.FindOne(ctx, bson.M{"name": name}).Decode(&doc); err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return doc.toDomain(), nil
}

// RecordRun writes run times without touching the status flag.
func (a *JobAdapter) RecordRun(ctx context.Context, name string, lastRun time.Time, nextRun *time.Time) error {
	_, err := a.collection.UpdateOne(ctx, bson.M{"name": name}, bson.M{"$set": a.runTimes(lastRun, nextRun)})
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

func (a *JobAdapter) find(ctx context.Context, filter bson.M) ([]*domain.Job, error) {
	cursor, err := a.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find jobs: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []jobDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(docs))
	for i := range docs {
		jobs = append(jobs, docs[i].toDomain())
	}
	return jobs, nil
}

// =============================================================================
// Lock
// =============================================================================

// TryAcquire sets status=true only if it is currently false.
func (a *JobAdapter) TryAcquire(ctx context.Context, name string) (bool, error) {
	filter := bson.M{"name": name, "status": false}
	update := bson.M{"$set": bson.M{"status": true, "updatedAt": a.now().UTC()}}

	err := a.collection.FindOneAndUpdate(ctx, filter, update).Err()
	if err != nil {
		if isNoDocuments(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to acquire job lock: %w", err)
	}
	return true, nil
}

func (a *JobAdapter) Release(ctx context.Context, name string) error {
	_, err := a.collection.UpdateOne(ctx, bson.M{"name": name}, bson.M{"$set": bson.M{
		"status":    false,
		"updatedAt": a.now().UTC(),
	}})
	if err != nil {
		return fmt.Errorf("failed to release job lock: %w", err)
	}
	return nil
}

func (a *JobAdapter) Complete(ctx context.Context, name string, lastRun time.Time, nextRun *time.Time) error {
	set := a.runTimes(lastRun, nextRun)
	set["status"] = false

	if _, err := a.collection.UpdateOne(ctx, bson.M{"name": name}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

func (a *JobAdapter) runTimes(lastRun time.Time, nextRun *time.Time) bson.M {
	set := bson.M{
		"lastRun":   lastRun.UTC(),
		"updatedAt": a.now().UTC(),
	}
	if nextRun != nil {
		set["nextRun"] = nextRun.UTC()
	}
	return set
}

func (d *jobDocument) toDomain() *domain.Job {
	return &domain.Job{
		Name:      d.Name,
		Cron:      d.Cron,
		Running:   d.Status,
		Enabled:   d.Enabled,
		LastRun:   d.LastRun,
		NextRun:   d.NextRun,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
