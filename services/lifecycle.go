package services

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"civicspot/apperr"
	"civicspot/models"
)

const maxCommentLength = 500

// CanModify reports whether actor may edit or delete the report: the
// reporter and admins can, nobody else.
func CanModify(actor models.Actor, report *models.Report) bool {
	return actor.IsAdmin() || actor.ID == report.ReportedBy
}

// NewReport builds a pending report owned by actor.
func NewReport(actor models.Actor, in models.CreateReportInput, images []models.Image, now time.Time) (*models.Report, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Location != nil {
		loc := *in.Location
		loc.Address = strings.TrimSpace(loc.Address)
		in.Location = &loc
	}
	if err := models.Validate(in); err != nil {
		return nil, err
	}
	if len(images) > models.MaxImages {
		return nil, apperr.ValidationFields(
			fmt.Sprintf("a report can have at most %d images", models.MaxImages),
			map[string]string{"images": fmt.Sprintf("cannot exceed %d files", models.MaxImages)},
		)
	}

	priority := models.PriorityMedium
	if in.Priority != "" {
		priority = models.Priority(in.Priority)
	}

	r := &models.Report{
		ID:          primitive.NewObjectID(),
		Title:       in.Title,
		Description: in.Description,
		Category:    models.Category(in.Category),
		Location:    in.Location.ToLocation(),
		Images:      append([]models.Image{}, images...),
		Status:      models.StatusPending,
		Priority:    priority,
		ReportedBy:  actor.ID,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.Normalize()
	return r, nil
}

// ApplyContentUpdate changes only the supplied content fields. Status and
// history are never touched.
func ApplyContentUpdate(actor models.Actor, report *models.Report, in models.UpdateReportInput) error {
	if !CanModify(actor, report) {
		return apperr.Authorization("not authorized to update this report")
	}
	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		in.Title = &t
	}
	if in.Description != nil {
		d := strings.TrimSpace(*in.Description)
		in.Description = &d
	}
	if in.Title != nil && *in.Title == "" {
		return apperr.ValidationFields("title is required", map[string]string{"title": "is required"})
	}
	if in.Description != nil && *in.Description == "" {
		return apperr.ValidationFields("description is required", map[string]string{"description": "is required"})
	}
	if in.Category != nil && *in.Category == "" {
		return apperr.ValidationFields("category is required", map[string]string{"category": "is required"})
	}
	if err := models.Validate(in); err != nil {
		return err
	}

	if in.Title != nil {
		report.Title = *in.Title
	}
	if in.Description != nil {
		report.Description = *in.Description
	}
	if in.Category != nil {
		report.Category = models.Category(*in.Category)
	}
	if in.Location != nil {
		report.Location = in.Location.ToLocation()
	}
	return nil
}

// Transition moves the report to a new status and records it in the
// history. Repeating the current status still appends an entry, and every
// move into resolved refreshes ResolvedAt.
func Transition(actor models.Actor, report *models.Report, in models.StatusInput, now time.Time) error {
	if !actor.IsAdmin() {
		return apperr.Authorization("only admins can change report status")
	}
	if err := models.Validate(in); err != nil {
		return err
	}

	status := models.Status(in.Status)
	report.Status = status
	report.StatusHistory = append(report.StatusHistory, models.StatusEntry{
		Status:    status,
		ChangedBy: actor.ID,
		ChangedAt: now,
		Remarks:   strings.TrimSpace(in.Remarks),
	})
	if status == models.StatusResolved {
		at := now
		report.ResolvedAt = &at
	}
	return nil
}

// ToggleUpvote flips actor's membership in the upvote set and returns the
// resulting membership.
func ToggleUpvote(actor models.Actor, report *models.Report) bool {
	upvoted := false
	kept := make([]primitive.ObjectID, 0, len(report.Upvotes)+1)
	for _, id := range report.Upvotes {
		if id == actor.ID {
			upvoted = true
			continue
		}
		kept = append(kept, id)
	}
	if !upvoted {
		kept = append(kept, actor.ID)
	}
	report.Upvotes = kept
	report.UpvoteCount = len(kept)
	return !upvoted
}

func AddComment(actor models.Actor, report *models.Report, text string, now time.Time) (*models.Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.ValidationFields("comment text is required", map[string]string{"text": "is required"})
	}
	if utf8.RuneCountInString(text) > maxCommentLength {
		return nil, apperr.ValidationFields(
			fmt.Sprintf("comment cannot exceed %d characters", maxCommentLength),
			map[string]string{"text": fmt.Sprintf("cannot exceed %d characters", maxCommentLength)},
		)
	}

	c := models.Comment{
		ID:        primitive.NewObjectID(),
		User:      actor.ID,
		Text:      text,
		CreatedAt: now,
	}
	report.Comments = append(report.Comments, c)
	return &c, nil
}

// SoftDelete deactivates the report and returns the media ids the caller
// should release.
func SoftDelete(actor models.Actor, report *models.Report) ([]string, error) {
	if !CanModify(actor, report) {
		return nil, apperr.Authorization("not authorized to delete this report")
	}
	report.IsActive = false
	return report.MediaIDs(), nil
}

// Assign sets or clears the assignee and/or changes the priority.
func Assign(actor models.Actor, report *models.Report, in models.AssignInput) error {
	if !actor.IsAdmin() {
		return apperr.Authorization("only admins can assign reports")
	}
	if in.AssignedTo == nil && in.Priority == nil {
		return apperr.Validation("assignedTo or priority is required")
	}
	if err := models.Validate(in); err != nil {
		return err
	}

	var assignee *primitive.ObjectID
	if in.AssignedTo != nil && strings.TrimSpace(*in.AssignedTo) != "" {
		id, err := primitive.ObjectIDFromHex(strings.TrimSpace(*in.AssignedTo))
		if err != nil {
			return apperr.ValidationFields("assignedTo is not a valid user id",
				map[string]string{"assignedTo": "is not a valid id"})
		}
		assignee = &id
	}

	if in.AssignedTo != nil {
		report.AssignedTo = assignee
	}
	if in.Priority != nil {
		report.Priority = models.Priority(*in.Priority)
	}
	return nil
}
