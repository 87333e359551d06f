package services

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicspot/models"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mock.go

type ReportRepository interface {
	Insert(ctx context.Context, report *models.Report) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Report, error)
	Find(ctx context.Context, q models.ListQuery) ([]models.Report, int64, error)
	FindByReporter(ctx context.Context, userID primitive.ObjectID) ([]models.Report, error)
	// Save replaces the stored report if its revision still matches and
	// returns a conflict error otherwise.
	Save(ctx context.Context, report *models.Report) error
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)
}

type UserRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	SetRole(ctx context.Context, id primitive.ObjectID, role models.Role) error
	List(ctx context.Context) ([]models.User, error)
}

type MediaStore interface {
	Upload(ctx context.Context, file models.Upload) (models.Image, error)
	Delete(ctx context.Context, mediaID string) error
}

type OrphanRepository interface {
	Record(ctx context.Context, orphan models.MediaOrphan) error
	Due(ctx context.Context, maxAttempts int, limit int64) ([]models.MediaOrphan, error)
	MarkAttempt(ctx context.Context, id primitive.ObjectID, lastErr string) error
	Remove(ctx context.Context, id primitive.ObjectID) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.ReportEvent) error
}

type Notifier interface {
	StatusChanged(ctx context.Context, to models.User, report *models.Report) error
}
