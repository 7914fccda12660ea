package cartstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const linesCollection = "cart_lines"

type mongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) Repository {
	return &mongoRepository{collection: db.Collection(linesCollection)}
}

func (m *mongoRepository) ListLines(ctx context.Context, memberID string) ([]LineRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := m.collection.Find(ctx, bson.M{"member_id": memberID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list lines: %w", err)
	}
	lines := []LineRecord{}
	if err := cur.All(ctx, &lines); err != nil {
		return nil, fmt.Errorf("failed to decode lines: %w", err)
	}
	return lines, nil
}

func (m *mongoRepository) GetLine(ctx context.Context, id string) (LineRecord, error) {
	var line LineRecord
	err := m.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&line)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return LineRecord{}, ErrLineNotFound
		}
		return LineRecord{}, fmt.Errorf("failed to get line: %w", err)
	}
	return line, nil
}

func (m *mongoRepository) AddOrMerge(ctx context.Context, memberID, productID string, qty int) (LineRecord, error) {
	if qty <= 0 {
		return LineRecord{}, ErrInvalidQty
	}
	now := time.Now().UTC()

	filter := bson.M{"member_id": memberID, "product_id": productID}
	update := bson.M{
		"$inc": bson.M{"qty": qty},
		"$set": bson.M{"updated_at": now},
		"$setOnInsert": bson.M{
			"_id":        uuid.NewString(),
			"created_at": now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var line LineRecord
	if err := m.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&line); err != nil {
		return LineRecord{}, fmt.Errorf("failed to add line: %w", err)
	}
	return line, nil
}

func (m *mongoRepository) UpdateQty(ctx context.Context, id string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQty
	}
	update := bson.M{
		"$set": bson.M{
			"qty":        qty,
			"updated_at": time.Now().UTC(),
		},
	}
	result, err := m.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update line quantity: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (m *mongoRepository) DeleteLine(ctx context.Context, id string) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete line: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (m *mongoRepository) DeleteMember(ctx context.Context, memberID string) (int64, error) {
	result, err := m.collection.DeleteMany(ctx, bson.M{"member_id": memberID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete member lines: %w", err)
	}
	return result.DeletedCount, nil
}

// CreateIndexes enforces one line per (member, product) and expires lines
// untouched for 90 days.
func (m *mongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "member_id", Value: 1}, {Key: "product_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
