package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"videostream/internal/domain"
)

type jobDoc struct {
	ID         string `bson:"_id"`
	VideoID    string `bson:"videoId"`
	Type       string `bson:"type"`
	Status     string `bson:"status"`
	Error      string `bson:"error,omitempty"`
	WorkerID   string `bson:"workerId,omitempty"`
	CreatedAt  int64  `bson:"createdAt"`
	UpdatedAt  int64  `bson:"updatedAt"`
	StartedAt  *int64 `bson:"startedAt,omitempty"`
	FinishedAt *int64 `bson:"finishedAt,omitempty"`
}

const (
	processingIndexName = "one_processing_per_video_type"
	claimAttempts       = 5
)

type JobRepository struct {
	collection *mongo.Collection
}

func NewJobRepository(client *mongo.Client, dbName string) *JobRepository {
	return &JobRepository{collection: client.Database(dbName).Collection(jobsCollection)}
}

func (r *JobRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "type", Value: 1}, {Key: "status", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "videoId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "startedAt", Value: 1}}},
		{
			Keys: bson.D{{Key: "videoId", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().
				SetName(processingIndexName).
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": string(domain.JobProcessing)}),
		},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *JobRepository) Create(ctx context.Context, job domain.ProcessingJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	_, err := r.collection.InsertOne(ctx, toJobDoc(job))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
	}
	return err
}

func (r *JobRepository) Get(ctx context.Context, id domain.JobID) (domain.ProcessingJob, error) {
	var doc jobDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.ProcessingJob{}, domain.ErrNotFound
		}
		return domain.ProcessingJob{}, err
	}
	return fromJobDoc(doc), nil
}

func (r *JobRepository) ListByVideo(ctx context.Context, videoID domain.VideoID) ([]domain.ProcessingJob, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	return r.find(ctx, bson.M{"videoId": string(videoID)}, opts)
}

// ClaimNext uses a single FindOneAndUpdate so that concurrent workers, in
// this process or others, never receive the same job. Videos that already
// have a PROCESSING job of jobType are skipped; the partial unique index on
// (videoId, type) rejects the loser of a race, which then retries.
func (r *JobRepository) ClaimNext(ctx context.Context, jobType domain.JobType, workerID string, now time.Time) (domain.ProcessingJob, error) {
	update := bson.M{"$set": bson.M{
		"status":    string(domain.JobProcessing),
		"workerId":  workerID,
		"startedAt": toMillis(now),
		"updatedAt": toMillis(now),
	}}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetReturnDocument(options.After)

	for attempt := 0; attempt < claimAttempts; attempt++ {
		busy, err := r.busyVideos(ctx, jobType)
		if err != nil {
			return domain.ProcessingJob{}, err
		}

		var doc jobDoc
		err = r.collection.FindOneAndUpdate(ctx, claimFilter(jobType, busy), update, opts).Decode(&doc)
		switch {
		case err == nil:
			return fromJobDoc(doc), nil
		case errors.Is(err, mongo.ErrNoDocuments):
			return domain.ProcessingJob{}, domain.ErrNotFound
		case mongo.IsDuplicateKeyError(err):
			continue
		default:
			return domain.ProcessingJob{}, err
		}
	}
	return domain.ProcessingJob{}, domain.ErrNotFound
}

func (r *JobRepository) busyVideos(ctx context.Context, jobType domain.JobType) ([]string, error) {
	values, err := r.collection.Distinct(ctx, "videoId", bson.M{
		"type":   string(jobType),
		"status": string(domain.JobProcessing),
	})
	if err != nil {
		return nil, err
	}
	busy := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			busy = append(busy, id)
		}
	}
	return busy, nil
}

func claimFilter(jobType domain.JobType, busy []string) bson.M {
	filter := bson.M{
		"type":   string(jobType),
		"status": string(domain.JobPending),
	}
	if len(busy) > 0 {
		filter["videoId"] = bson.M{"$nin": busy}
	}
	return filter
}

func (r *JobRepository) Complete(ctx context.Context, id domain.JobID, now time.Time) error {
	return r.finish(ctx, id, domain.JobCompleted, "", now)
}

func (r *JobRepository) Fail(ctx context.Context, id domain.JobID, message string, now time.Time) error {
	if message == "" {
		message = "unknown error"
	}
	return r.finish(ctx, id, domain.JobFailed, message, now)
}

// finish only matches PROCESSING jobs; a miss is reported as not found or
// as an invalid transition depending on whether the job exists.
func (r *JobRepository) finish(ctx context.Context, id domain.JobID, status domain.JobStatus, message string, now time.Time) error {
	set := bson.M{
		"status":     string(status),
		"finishedAt": toMillis(now),
		"updatedAt":  toMillis(now),
	}
	if message != "" {
		set["error"] = message
	}
	res, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(id), "status": string(domain.JobProcessing)},
		bson.M{"$set": set},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, status)
}

func (r *JobRepository) ListStale(ctx context.Context, startedBefore time.Time) ([]domain.ProcessingJob, error) {
	filter := bson.M{
		"status":    string(domain.JobProcessing),
		"startedAt": bson.M{"$lt": toMillis(startedBefore)},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	return r.find(ctx, filter, opts)
}

func (r *JobRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]domain.ProcessingJob, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []jobDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	jobs := make([]domain.ProcessingJob, 0, len(docs))
	for _, doc := range docs {
		jobs = append(jobs, fromJobDoc(doc))
	}
	return jobs, nil
}

func toJobDoc(job domain.ProcessingJob) jobDoc {
	return jobDoc{
		ID:         string(job.ID),
		VideoID:    string(job.VideoID),
		Type:       string(job.Type),
		Status:     string(job.Status),
		Error:      job.Error,
		WorkerID:   job.WorkerID,
		CreatedAt:  toMillis(job.CreatedAt),
		UpdatedAt:  toMillis(job.UpdatedAt),
		StartedAt:  optionalMillis(job.StartedAt),
		FinishedAt: optionalMillis(job.FinishedAt),
	}
}

func fromJobDoc(doc jobDoc) domain.ProcessingJob {
	return domain.ProcessingJob{
		ID:         domain.JobID(doc.ID),
		VideoID:    domain.VideoID(doc.VideoID),
		Type:       domain.JobType(doc.Type),
		Status:     domain.JobStatus(doc.Status),
		Error:      doc.Error,
		WorkerID:   doc.WorkerID,
		CreatedAt:  fromMillis(doc.CreatedAt),
		UpdatedAt:  fromMillis(doc.UpdatedAt),
		StartedAt:  optionalTime(doc.StartedAt),
		FinishedAt: optionalTime(doc.FinishedAt),
	}
}
