package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"civicspot/apperr"
	"civicspot/models"
)

// OrphanRepository tracks media whose deletion failed.
type OrphanRepository struct {
	col     *mongo.Collection
	timeout time.Duration
}

func NewOrphanRepository(col *mongo.Collection, timeout time.Duration) *OrphanRepository {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &OrphanRepository{col: col, timeout: timeout}
}

func (r *OrphanRepository) Record(ctx context.Context, orphan models.MediaOrphan) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, orphan); err != nil {
		return apperr.Wrap("record media orphan", err)
	}
	return nil
}

// Due returns the oldest orphans that have been tried fewer than
// maxAttempts times.
func (r *OrphanRepository) Due(ctx context.Context, maxAttempts int, limit int64) ([]models.MediaOrphan, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}).SetLimit(limit)
	cursor, err := r.col.Find(ctx, bson.M{"attempts": bson.M{"$lt": maxAttempts}}, opts)
	if err != nil {
		return nil, apperr.Wrap("find media orphans", err)
	}
	defer cursor.Close(ctx)

	var orphans []models.MediaOrphan
	if err := cursor.All(ctx, &orphans); err != nil {
		return nil, apperr.Wrap("decode media orphans", err)
	}
	return orphans, nil
}

func (r *OrphanRepository) MarkAttempt(ctx context.Context, id primitive.ObjectID, lastErr string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	update := bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{"lastError": lastErr, "updatedAt": time.Now().UTC()},
	}
	if _, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return apperr.Wrap("update media orphan", err)
	}
	return nil
}

func (r *OrphanRepository) Remove(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.col.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return apperr.Wrap("remove media orphan", err)
	}
	return nil
}
