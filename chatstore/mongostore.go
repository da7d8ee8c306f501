// Package chatstore implements router.ChatStore, backing the Chat-session
// restore middleware (spec.md §4.2), grounded on
// features/session/mongo/clients/mongo's collection-wrapper construction.
package chatstore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/agentmesh/router/router"
)

const defaultOpTimeout = 5 * time.Second

// MongoStore implements router.ChatStore against a single MongoDB
// collection keyed by session id.
type MongoStore struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// NewMongoStore constructs a MongoStore. coll is required.
func NewMongoStore(coll *mongo.Collection) (*MongoStore, error) {
	if coll == nil {
		return nil, errors.New("chatstore: collection is required")
	}
	return &MongoStore{coll: coll, timeout: defaultOpTimeout}, nil
}

type sessionDoc struct {
	ID        string           `bson:"_id"`
	Messages  []router.Message `bson:"messages"`
	UpdatedAt time.Time        `bson:"updatedAt"`
}

var _ router.ChatStore = (*MongoStore)(nil)

// LoadSession implements router.ChatStore.
func (s *MongoStore) LoadSession(ctx context.Context, sessionID string) ([]router.Message, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var doc sessionDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return doc.Messages, true, nil
}

// SaveSession implements router.ChatStore.
func (s *MongoStore) SaveSession(ctx context.Context, sessionID string, messages []router.Message) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$set": bson.M{"messages": messages, "updatedAt": time.Now().UTC()}},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}
