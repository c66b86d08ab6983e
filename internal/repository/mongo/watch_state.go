package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"videostream/internal/domain"
)

type watchStateDoc struct {
	ID        string  `bson:"_id"`
	UserID    string  `bson:"userId"`
	VideoID   string  `bson:"videoId"`
	Position  float64 `bson:"position"`
	Quality   string  `bson:"quality"`
	Speed     float64 `bson:"speed"`
	Volume    float64 `bson:"volume"`
	UpdatedAt int64   `bson:"updatedAt"`
}

type WatchStateRepository struct {
	collection *mongo.Collection
}

func NewWatchStateRepository(client *mongo.Client, dbName string) *WatchStateRepository {
	return &WatchStateRepository{collection: client.Database(dbName).Collection(watchStateCollection)}
}

func watchStateDocID(userID string, videoID domain.VideoID) string {
	return userID + ":" + string(videoID)
}

func (r *WatchStateRepository) Upsert(ctx context.Context, s domain.WatchState) error {
	if s.UserID == "" || s.VideoID == "" {
		return errors.New("user id and video id are required")
	}
	update := bson.M{
		"$set": bson.M{
			"userId":    s.UserID,
			"videoId":   string(s.VideoID),
			"position":  s.Position,
			"quality":   s.Quality,
			"speed":     s.Speed,
			"volume":    s.Volume,
			"updatedAt": s.UpdatedAt.Unix(),
		},
	}
	_, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": watchStateDocID(s.UserID, s.VideoID)},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *WatchStateRepository) Get(ctx context.Context, userID string, videoID domain.VideoID) (domain.WatchState, error) {
	var doc watchStateDoc
	err := r.collection.FindOne(ctx, bson.M{"_id": watchStateDocID(userID, videoID)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.WatchState{}, domain.ErrNotFound
		}
		return domain.WatchState{}, err
	}
	return fromWatchStateDoc(doc), nil
}

func fromWatchStateDoc(doc watchStateDoc) domain.WatchState {
	return domain.WatchState{
		UserID:    doc.UserID,
		VideoID:   domain.VideoID(doc.VideoID),
		Position:  doc.Position,
		Quality:   doc.Quality,
		Speed:     doc.Speed,
		Volume:    doc.Volume,
		UpdatedAt: timeFromUnix(doc.UpdatedAt),
	}
}
