// Package scanlog keeps an audit trail of every RFID scan the portal sees,
// accepted or not, in MongoDB.
package scanlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionName = "rfid_scans"
	retention      = 30 * 24 * time.Hour
)

type Entry struct {
	CardID     string    `bson:"card_id" json:"card_id"`
	Verdict    string    `bson:"verdict" json:"verdict"`
	TapID      string    `bson:"tap_id,omitempty" json:"tap_id,omitempty"`
	ScannedAt  time.Time `bson:"scanned_at" json:"scanned_at"`
	ReceivedAt time.Time `bson:"received_at" json:"received_at"`
	Raw        string    `bson:"raw,omitempty" json:"raw,omitempty"`
}

type Repository interface {
	Append(ctx context.Context, e Entry) error
	// Recent returns the newest entries, optionally for one card.
	Recent(ctx context.Context, cardID string, limit int64) ([]Entry, error)
}

type MongoRepository struct {
	coll *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{coll: db.Collection(collectionName)}
}

// EnsureIndexes creates the lookup index and the retention TTL index.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "card_id", Value: 1}, {Key: "received_at", Value: -1}},
			Options: options.Index().SetName("card_received"),
		},
		{
			Keys:    bson.D{{Key: "received_at", Value: 1}},
			Options: options.Index().SetName("received_ttl").SetExpireAfterSeconds(int32(retention.Seconds())),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo error: %w", err)
	}
	return nil
}

func (r *MongoRepository) Append(ctx context.Context, e Entry) error {
	if _, err := r.coll.InsertOne(ctx, e); err != nil {
		return fmt.Errorf("mongo error: %w", err)
	}
	return nil
}

func (r *MongoRepository) Recent(ctx context.Context, cardID string, limit int64) ([]Entry, error) {
	filter := bson.M{}
	if cardID != "" {
		filter["card_id"] = cardID
	}
	opts := options.Find().SetSort(bson.D{{Key: "received_at", Value: -1}}).SetLimit(limit)

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("mongo error: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]Entry, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("mongo error: %w", err)
	}
	return out, nil
}

// NopRepository is used when no MongoDB is configured.
type NopRepository struct{}

func (NopRepository) Append(context.Context, Entry) error { return nil }

func (NopRepository) Recent(context.Context, string, int64) ([]Entry, error) {
	return []Entry{}, nil
}
