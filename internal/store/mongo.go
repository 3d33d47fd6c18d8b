package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rubbereco/rex-negotiation/internal/model"
)

type MongoNegotiationStore struct {
	coll *mongo.Collection
}

func NewMongoNegotiationStore(client *mongo.Client, dbName string, collName string) *MongoNegotiationStore {
	return &MongoNegotiationStore{coll: client.Database(dbName).Collection(collName)}
}

func (s *MongoNegotiationStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "negotiation_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "subject_ref", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	return err
}

func (s *MongoNegotiationStore) Load(ctx context.Context, negotiationID string) (model.Negotiation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.findOne(ctx, bson.M{"negotiation_id": negotiationID})
}

func (s *MongoNegotiationStore) LoadBySubject(ctx context.Context, subjectRef string) (model.Negotiation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.findOne(ctx, bson.M{"subject_ref": subjectRef})
}

func (s *MongoNegotiationStore) findOne(ctx context.Context, filter bson.M) (model.Negotiation, error) {
	res := s.coll.FindOne(ctx, filter)
	if errors.Is(res.Err(), mongo.ErrNoDocuments) {
		return model.Negotiation{}, ErrNotFound
	}
	if res.Err() != nil {
		return model.Negotiation{}, res.Err()
	}
	var n model.Negotiation
	if err := res.Decode(&n); err != nil {
		return model.Negotiation{}, err
	}
	return n, nil
}

func (s *MongoNegotiationStore) CompareAndSwap(ctx context.Context, expectedVersion int64, n model.Negotiation) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if expectedVersion == 0 {
		// The unique indexes on negotiation_id and subject_ref turn a
		// create/create race into a duplicate-key error.
		_, err := s.coll.InsertOne(ctx, n)
		if mongo.IsDuplicateKeyError(err) {
			return ErrConcurrentModification
		}
		return err
	}

	res, err := s.coll.ReplaceOne(
		ctx,
		bson.M{"negotiation_id": n.NegotiationID, "version": expectedVersion},
		n,
		options.Replace().SetUpsert(false),
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Negotiations are never deleted, so a miss means the version moved.
		return ErrConcurrentModification
	}
	return nil
}

func (s *MongoNegotiationStore) ListByParty(ctx context.Context, partyID string, limit int) ([]model.Negotiation, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	filter := bson.M{
		"$or": []bson.M{
			{"initiator_id": partyID},
			{"counterparty_id": partyID},
		},
	}

	cur, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []model.Negotiation
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoNegotiationStore) Close() error {
	// The mongo client is owned by main and disconnected there.
	return nil
}
