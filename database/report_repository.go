package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"civicspot/apperr"
	"civicspot/models"
)

const DefaultTimeout = 5 * time.Second

type ReportRepository struct {
	col     *mongo.Collection
	timeout time.Duration
}

func NewReportRepository(col *mongo.Collection, timeout time.Duration) *ReportRepository {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ReportRepository{col: col, timeout: timeout}
}

func (r *ReportRepository) Insert(ctx context.Context, report *models.Report) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	report.Normalize()
	report.Revision = 1
	if _, err := r.col.InsertOne(ctx, report); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperr.Conflict("report already exists")
		}
		return apperr.Wrap("insert report", err)
	}
	return nil
}

func (r *ReportRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var report models.Report
	err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&report)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("report not found")
	}
	if err != nil {
		return nil, apperr.Wrap("find report", err)
	}
	report.Normalize()
	return &report, nil
}

// Find returns one page of reports and the number of reports matching the
// filter across all pages.
func (r *ReportRepository) Find(ctx context.Context, q models.ListQuery) ([]models.Report, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	total, err := r.col.CountDocuments(ctx, q.Filter)
	if err != nil {
		return nil, 0, apperr.Wrap("count reports", err)
	}

	opts := options.Find().
		SetSkip(q.Skip()).
		SetLimit(int64(q.Limit))
	if len(q.Sort) > 0 {
		opts.SetSort(q.Sort)
	}
	cursor, err := r.col.Find(ctx, q.Filter, opts)
	if err != nil {
		return nil, 0, apperr.Wrap("find reports", err)
	}
	defer cursor.Close(ctx)

	reports := []models.Report{}
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, 0, apperr.Wrap("decode reports", err)
	}
	return reports, total, nil
}

// FindByReporter lists the active reports of one user, newest first.
func (r *ReportRepository) FindByReporter(ctx context.Context, userID primitive.ObjectID) ([]models.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	filter := bson.M{"reportedBy": userID, "isActive": true}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Wrap("find user reports", err)
	}
	defer cursor.Close(ctx)

	reports := []models.Report{}
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, apperr.Wrap("decode user reports", err)
	}
	return reports, nil
}

// Save replaces the stored document only if nobody saved it since it was
// loaded. On success report.Revision holds the new revision.
func (r *ReportRepository) Save(ctx context.Context, report *models.Report) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	loaded := report.Revision
	report.Normalize()
	report.Revision = loaded + 1

	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": report.ID, "revision": loaded}, report)
	if err != nil {
		report.Revision = loaded
		return apperr.Wrap("save report", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	report.Revision = loaded
	n, err := r.col.CountDocuments(ctx, bson.M{"_id": report.ID})
	if err != nil {
		return apperr.Wrap("save report", err)
	}
	if n == 0 {
		return apperr.NotFound("report not found")
	}
	return apperr.Conflict("report was modified concurrently")
}

// CountByStatus counts active reports per status.
func (r *ReportRepository) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"isActive": true}}},
		{{Key: "$group", Value: bson.M{"_id": "$status", "count": bson.M{"$sum": 1}}}},
	}
	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, apperr.Wrap("aggregate report stats", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.Status `bson:"_id"`
		Count  int64         `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, apperr.Wrap("decode report stats", err)
	}

	counts := make(map[models.Status]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
