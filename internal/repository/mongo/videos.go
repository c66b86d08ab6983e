package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"videostream/internal/domain"
)

type videoDoc struct {
	ID                 string   `bson:"_id"`
	OwnerID            string   `bson:"ownerId"`
	Title              string   `bson:"title"`
	SourcePath         string   `bson:"sourcePath"`
	NativeQuality      string   `bson:"nativeQuality,omitempty"`
	Qualities          []string `bson:"qualities,omitempty"`
	Duration           float64  `bson:"duration"`
	MasterManifestPath string   `bson:"masterManifestPath,omitempty"`
	ThumbnailPath      string   `bson:"thumbnailPath,omitempty"`
	CreatedAt          int64    `bson:"createdAt"`
	UpdatedAt          int64    `bson:"updatedAt"`
}

type VideoRepository struct {
	collection *mongo.Collection
}

func NewVideoRepository(client *mongo.Client, dbName string) *VideoRepository {
	return &VideoRepository{collection: client.Database(dbName).Collection(videosCollection)}
}

func (r *VideoRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *VideoRepository) Create(ctx context.Context, v domain.VideoRecord) error {
	if v.ID == "" {
		return errors.New("video id is required")
	}
	_, err := r.collection.InsertOne(ctx, toVideoDoc(v))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
	}
	return err
}

func (r *VideoRepository) Get(ctx context.Context, id domain.VideoID) (domain.VideoRecord, error) {
	var doc videoDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.VideoRecord{}, domain.ErrNotFound
		}
		return domain.VideoRecord{}, err
	}
	return fromVideoDoc(doc), nil
}

// Patch issues a $set of only the patched fields, so a THUMBNAIL job and a
// TRANSCODE job on the same video never overwrite each other.
func (r *VideoRepository) Patch(ctx context.Context, id domain.VideoID, patch domain.VideoPatch, now time.Time) error {
	set := patchSet(patch)
	if len(set) == 0 {
		_, err := r.Get(ctx, id)
		return err
	}
	set["updatedAt"] = now.Unix()
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": string(id)}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func patchSet(p domain.VideoPatch) bson.M {
	set := bson.M{}
	if p.NativeQuality != nil {
		set["nativeQuality"] = *p.NativeQuality
	}
	if p.Qualities != nil {
		set["qualities"] = []string(p.Qualities)
	}
	if p.Duration != nil {
		set["duration"] = *p.Duration
	}
	if p.MasterManifestPath != nil {
		set["masterManifestPath"] = *p.MasterManifestPath
	}
	if p.ThumbnailPath != nil {
		set["thumbnailPath"] = *p.ThumbnailPath
	}
	return set
}

func toVideoDoc(v domain.VideoRecord) videoDoc {
	return videoDoc{
		ID:                 string(v.ID),
		OwnerID:            v.OwnerID,
		Title:              v.Title,
		SourcePath:         v.SourcePath,
		NativeQuality:      v.NativeQuality,
		Qualities:          []string(v.Qualities),
		Duration:           v.Duration,
		MasterManifestPath: v.MasterManifestPath,
		ThumbnailPath:      v.ThumbnailPath,
		CreatedAt:          v.CreatedAt.Unix(),
		UpdatedAt:          v.UpdatedAt.Unix(),
	}
}

func fromVideoDoc(doc videoDoc) domain.VideoRecord {
	return domain.VideoRecord{
		ID:                 domain.VideoID(doc.ID),
		OwnerID:            doc.OwnerID,
		Title:              doc.Title,
		SourcePath:         doc.SourcePath,
		NativeQuality:      doc.NativeQuality,
		Qualities:          domain.QualityLadder(doc.Qualities),
		Duration:           doc.Duration,
		MasterManifestPath: doc.MasterManifestPath,
		ThumbnailPath:      doc.ThumbnailPath,
		CreatedAt:          timeFromUnix(doc.CreatedAt),
		UpdatedAt:          timeFromUnix(doc.UpdatedAt),
	}
}

func timeFromUnix(value int64) time.Time {
	return time.Unix(value, 0).UTC()
}
