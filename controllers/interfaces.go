package controllers

import (
	"context"

	"civicspot/models"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mock.go

type ReportService interface {
	Create(ctx context.Context, actor models.Actor, in models.CreateReportInput, files []models.Upload) (*models.ReportView, error)
	List(ctx context.Context, f models.ListFilter) (*models.ReportPage, error)
	Get(ctx context.Context, id string) (*models.ReportView, error)
	Mine(ctx context.Context, actor models.Actor) ([]models.ReportView, error)
	Update(ctx context.Context, actor models.Actor, id string, in models.UpdateReportInput) (*models.ReportView, error)
	UpdateStatus(ctx context.Context, actor models.Actor, id string, in models.StatusInput) (*models.ReportView, error)
	Assign(ctx context.Context, actor models.Actor, id string, in models.AssignInput) (*models.ReportView, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
	AddComment(ctx context.Context, actor models.Actor, id string, in models.CommentInput) ([]models.CommentView, error)
	ToggleUpvote(ctx context.Context, actor models.Actor, id string) (*models.UpvoteResult, error)
	Stats(ctx context.Context, actor models.Actor) (*models.ReportStats, error)
}

type AdminSetupService interface {
	MakeAdmin(ctx context.Context, in models.MakeAdminInput) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}
