package directory

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const usersCollection = "users"

// MongoDirectory reads the account service's users collection.
type MongoDirectory struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewMongoDirectory(db *mongo.Database, timeout time.Duration) *MongoDirectory {
	return &MongoDirectory{coll: db.Collection(usersCollection), timeout: timeout}
}

var _ Directory = (*MongoDirectory)(nil)

func (d *MongoDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	opCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	n, err := d.coll.CountDocuments(opCtx, bson.M{"_id": userID})
	if err != nil {
		return false, fmt.Errorf("directory lookup failed: %w", err)
	}
	return n > 0, nil
}
