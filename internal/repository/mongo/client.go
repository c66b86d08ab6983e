package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	jobsCollection       = "jobs"
	videosCollection     = "videos"
	watchStateCollection = "watch_state"
)

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Job timestamps are stored as unix milliseconds so that claim order is
// stable for jobs enqueued within the same second.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func optionalMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UnixMilli()
	return &v
}

func optionalTime(value *int64) *time.Time {
	if value == nil {
		return nil
	}
	t := fromMillis(*value)
	return &t
}
