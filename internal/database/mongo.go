package database

import (
	"context"
	"crypto-alert-notifier/internal/types"
	"strconv"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const connectTimeout = 10 * time.Second

// alertDocument mirrors the stored shape of an alert. Loosely typed fields
// are decoded raw because external writers do not agree on their types.
type alertDocument struct {
	ID               bson.RawValue `bson:"_id"`
	UserID           bson.RawValue `bson:"userId"`
	Username         string        `bson:"username"`
	CryptoSymbol     string        `bson:"cryptoSymbol"`
	TargetPrice      float64       `bson:"targetPrice"`
	Condition        bool          `bson:"condition"`
	NotificationData string        `bson:"notificationData"`
	IsActive         bool          `bson:"isActive"`
	IsFulfilled      bool          `bson:"isFulfilled"`
	UpdatedAt        bson.RawValue `bson:"updatedAt"`
}

func (d alertDocument) toAlert() types.Alert {
	a := types.Alert{
		ID:               rawString(d.ID),
		UserID:           rawString(d.UserID),
		Username:         d.Username,
		Symbol:           d.CryptoSymbol,
		TargetPrice:      d.TargetPrice,
		Condition:        d.Condition,
		NotificationData: d.NotificationData,
		IsActive:         d.IsActive,
		IsFulfilled:      d.IsFulfilled,
	}
	if dt, ok := d.UpdatedAt.DateTimeOK(); ok {
		a.UpdatedAt = time.UnixMilli(dt).UTC()
	}
	return a
}

func rawString(v bson.RawValue) string {
	switch v.Type {
	case bsontype.ObjectID:
		return v.ObjectID().Hex()
	case bsontype.String:
		return v.StringValue()
	case bsontype.Int32:
		return strconv.FormatInt(int64(v.Int32()), 10)
	case bsontype.Int64:
		return strconv.FormatInt(v.Int64(), 10)
	case 0:
		return ""
	default:
		return v.String()
	}
}

// MongoRepository stores alerts in a MongoDB collection.
type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoRepository(ctx context.Context, uri, database, collection string) (*MongoRepository, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to mongodb")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "failed to ping mongodb")
	}

	return &MongoRepository{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (r *MongoRepository) ListActive(ctx context.Context) ([]types.Alert, error) {
	cursor, err := r.collection.Find(ctx, activeFilter())
	if err != nil {
		return nil, errors.Wrap(err, "failed to query active alerts")
	}
	defer cursor.Close(ctx)

	var alerts []types.Alert
	for cursor.Next(ctx) {
		var doc alertDocument
		if err := cursor.Decode(&doc); err != nil {
			log.Warnf("⚠️ Skipping undecodable alert document: %v", err)
			continue
		}
		if a := doc.toAlert(); usable(a) {
			alerts = append(alerts, a)
		}
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate active alerts")
	}

	return alerts, nil
}

func (r *MongoRepository) Fulfill(ctx context.Context, id string) error {
	res, err := r.collection.UpdateOne(ctx, fulfillFilter(id), fulfillUpdate(now()))
	if err != nil {
		return errors.Wrapf(err, "failed to fulfill alert %s", id)
	}
	if res.MatchedCount == 0 {
		log.Debugf("Alert %s was already fulfilled or no longer exists", id)
	}
	return nil
}

func (r *MongoRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func activeFilter() bson.M {
	return bson.M{"isActive": true}
}

// fulfillFilter matches the alert by identity only while it is still active,
// which makes a repeated fulfill a no-op.
func fulfillFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": oid, "isActive": true}
	}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{id, n}}, "isActive": true}
	}
	return bson.M{"_id": id, "isActive": true}
}

func fulfillUpdate(at time.Time) bson.M {
	return bson.M{"$set": bson.M{
		"isActive":    false,
		"isFulfilled": true,
		"updatedAt":   at,
	}}
}
