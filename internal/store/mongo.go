package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/amjad-AR/ChatApp/internal/protocol"
)

const messagesCollection = "messages"

// MongoStore persists messages in a MongoDB collection.
type MongoStore struct {
	coll    *mongo.Collection
	timeout time.Duration
	logger  *slog.Logger
}

func NewMongoStore(logger *slog.Logger, db *mongo.Database, timeout time.Duration) *MongoStore {
	return &MongoStore{
		coll:    db.Collection(messagesCollection),
		timeout: timeout,
		logger:  logger.With(slog.String("component", "store_mongo")),
	}
}

var _ Store = (*MongoStore)(nil)

func (s *MongoStore) Append(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	msg.ID = primitive.NewObjectID().Hex()
	msg.CreatedAt = time.Now().UTC()

	if _, err := s.coll.InsertOne(opCtx, msg); err != nil {
		s.logger.Error("insert failed", slog.Any("error", err))
		return protocol.Message{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return msg, nil
}

func (s *MongoStore) Query(ctx context.Context, f Filter) ([]protocol.Message, error) {
	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"kind": f.Kind}
	if f.Kind == protocol.KindPrivate {
		a, b := f.Participants[0], f.Participants[1]
		filter["$or"] = bson.A{
			bson.M{"ownerId": a, "receiverId": b},
			bson.M{"ownerId": b, "receiverId": a},
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.coll.Find(opCtx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer cursor.Close(opCtx)

	var out []protocol.Message
	if err := cursor.All(opCtx, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return out, nil
}
