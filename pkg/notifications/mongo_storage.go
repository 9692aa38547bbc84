package notifications

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultMongoCollection is the collection used when none is configured.
const DefaultMongoCollection = "notifications"

// MongoStorage stores notifications in MongoDB and feeds inserts from a change
// stream, which requires a replica set or sharded cluster.
type MongoStorage struct {
	coll *mongo.Collection
}

// MongoStorageOption configures a MongoStorage.
type MongoStorageOption func(*mongoStorageOptions)

type mongoStorageOptions struct {
	collection string
}

// WithMongoCollection sets the collection name.
func WithMongoCollection(name string) MongoStorageOption {
	return func(o *mongoStorageOptions) {
		if name != "" {
			o.collection = name
		}
	}
}

// NewMongoStorage creates a storage over db.
func NewMongoStorage(db *mongo.Database, opts ...MongoStorageOption) *MongoStorage {
	o := mongoStorageOptions{collection: DefaultMongoCollection}
	for _, opt := range opts {
		opt(&o)
	}
	return &MongoStorage{coll: db.Collection(o.collection)}
}

// EnsureIndexes creates the indexes used by queries and the duplicate check.
func (s *MongoStorage) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "recipient_type", Value: 1},
			{Key: "recipient_id", Value: 1},
			{Key: "created_at", Value: -1},
		}},
		{Keys: bson.D{
			{Key: "order_id", Value: 1},
			{Key: "created_at", Value: -1},
		}, Options: options.Index().SetSparse(true)},
	})
	return err
}

func (s *MongoStorage) Insert(ctx context.Context, n Notification) (Notification, error) {
	if n.ID == "" {
		return Notification{}, ErrMissingID
	}
	n.Priority = n.Priority.OrDefault()

	if _, err := s.coll.InsertOne(ctx, n); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Notification{}, errors.Join(ErrNotificationExists, err)
		}
		return Notification{}, err
	}
	return n, nil
}

func (s *MongoStorage) Query(ctx context.Context, f Filter) ([]Notification, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}

	cur, err := s.coll.Find(ctx, mongoFilter(f), opts)
	if err != nil {
		return nil, err
	}

	items := []Notification{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, err
	}
	for i := range items {
		items[i] = items[i].Normalize()
	}
	return items, nil
}

func (s *MongoStorage) MarkRead(ctx context.Context, ids ...string) error {
	return s.setFlag(ctx, "read", ids)
}

func (s *MongoStorage) MarkSent(ctx context.Context, ids ...string) error {
	return s.setFlag(ctx, "sent", ids)
}

func (s *MongoStorage) MarkAllRead(ctx context.Context, scope Scope) error {
	filter := mongoFilter(Filter{
		RecipientType: scope.RecipientType,
		RecipientID:   scope.RecipientID,
		OnlyUnread:    true,
	})
	_, err := s.coll.UpdateMany(ctx, filter, bson.D{{Key: "$set", Value: bson.D{{Key: "read", Value: true}}}})
	return err
}

func (s *MongoStorage) CountUnread(ctx context.Context, scope Scope) (int, error) {
	n, err := s.coll.CountDocuments(ctx, mongoFilter(Filter{
		RecipientType: scope.RecipientType,
		RecipientID:   scope.RecipientID,
		OnlyUnread:    true,
	}))
	return int(n), err
}

// insertEvent is the part of a change stream document the feed needs.
type insertEvent struct {
	FullDocument Notification `bson:"fullDocument"`
}

// SubscribeToInserts watches the collection for inserts into scope.
func (s *MongoStorage) SubscribeToInserts(ctx context.Context, scope Scope) (Stream, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	match := bson.D{
		{Key: "operationType", Value: "insert"},
		{Key: "fullDocument.recipient_type", Value: string(scope.RecipientType)},
	}
	if scope.RecipientID != "" {
		match = append(match, bson.E{Key: "fullDocument.recipient_id", Value: scope.RecipientID})
	}

	cs, err := s.coll.Watch(ctx, mongo.Pipeline{{{Key: "$match", Value: match}}})
	if err != nil {
		return nil, err
	}

	pump := func(ctx context.Context, emit func(Notification) bool) error {
		for cs.Next(ctx) {
			var ev insertEvent
			if err := cs.Decode(&ev); err != nil {
				return err
			}
			if !emit(ev.FullDocument.Normalize()) {
				return nil
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := cs.Err(); err != nil {
			return err
		}
		return ErrConnectionLost
	}

	return startFeedStream(ctx, pump, func() { _ = cs.Close(context.Background()) }), nil
}

func (s *MongoStorage) setFlag(ctx context.Context, field string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.coll.UpdateMany(ctx,
		bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: ids}}}},
		bson.D{{Key: "$set", Value: bson.D{{Key: field, Value: true}}}},
	)
	return err
}

func mongoFilter(f Filter) bson.D {
	filter := bson.D{}
	if f.RecipientType != "" {
		filter = append(filter, bson.E{Key: "recipient_type", Value: string(f.RecipientType)})
	}
	if f.RecipientID != "" {
		filter = append(filter, bson.E{Key: "recipient_id", Value: f.RecipientID})
	}
	if f.OrderID != "" {
		filter = append(filter, bson.E{Key: "order_id", Value: f.OrderID})
	}
	if !f.CreatedAfter.IsZero() {
		filter = append(filter, bson.E{Key: "created_at", Value: bson.D{{Key: "$gt", Value: f.CreatedAfter}}})
	}
	if f.OnlyUnread {
		filter = append(filter, bson.E{Key: "read", Value: false})
	}
	return filter
}
