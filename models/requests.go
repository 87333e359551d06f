package models

import (
	"io"

	"go.mongodb.org/mongo-driver/bson"
)

type CoordinatesInput struct {
	Lat *float64 `json:"lat" validate:"required,lat"`
	Lng *float64 `json:"lng" validate:"required,lng"`
}

type LocationInput struct {
	Address     string            `json:"address" validate:"required"`
	Coordinates *CoordinatesInput `json:"coordinates" validate:"required"`
	City        string            `json:"city,omitempty"`
	State       string            `json:"state,omitempty"`
	Pincode     string            `json:"pincode,omitempty"`
}

// ToLocation assumes the input passed validation.
func (in LocationInput) ToLocation() Location {
	loc := Location{
		Address: in.Address,
		Coordinates: Coordinates{
			Lat: *in.Coordinates.Lat,
			Lng: *in.Coordinates.Lng,
		},
		City:    in.City,
		State:   in.State,
		Pincode: in.Pincode,
	}
	loc.SyncPoint()
	return loc
}

type CreateReportInput struct {
	Title       string         `json:"title" validate:"required,min=5,max=100"`
	Description string         `json:"description" validate:"required,min=10,max=1000"`
	Category    string         `json:"category" validate:"required,category"`
	Location    *LocationInput `json:"location" validate:"required"`
	Priority    string         `json:"priority,omitempty" validate:"omitempty,priority"`
}

// UpdateReportInput carries a partial content update; nil fields are left alone.
type UpdateReportInput struct {
	Title       *string        `json:"title" validate:"omitempty,min=5,max=100"`
	Description *string        `json:"description" validate:"omitempty,min=10,max=1000"`
	Category    *string        `json:"category" validate:"omitempty,category"`
	Location    *LocationInput `json:"location" validate:"omitempty"`
}

func (in UpdateReportInput) Empty() bool {
	return in.Title == nil && in.Description == nil && in.Category == nil && in.Location == nil
}

type StatusInput struct {
	Status  string `json:"status" validate:"required,status"`
	Remarks string `json:"remarks,omitempty" validate:"max=500"`
}

type CommentInput struct {
	Text string `json:"text"`
}

// AssignInput sets the assignee and/or priority. An empty AssignedTo clears
// the assignment.
type AssignInput struct {
	AssignedTo *string `json:"assignedTo"`
	Priority   *string `json:"priority" validate:"omitempty,priority"`
}

type MakeAdminInput struct {
	Email string `json:"email" validate:"required,email"`
}

// Upload is one image file received with a create request.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// ListFilter is the raw list request as received from the query string.
type ListFilter struct {
	Category string `form:"category"`
	Status   string `form:"status"`
	Priority string `form:"priority"`
	Search   string `form:"search"`
	Near     string `form:"near"`
	RadiusKm string `form:"radiusKm"`
	Sort     string `form:"sort"`
	Page     string `form:"page"`
	Limit    string `form:"limit"`
}

// ListQuery is a validated list request ready for the store.
type ListQuery struct {
	Filter bson.M
	Sort   bson.D
	Page   int
	Limit  int
}

// Skip assumes Page and Limit were checked so the product fits in int64.
func (q ListQuery) Skip() int64 {
	if q.Page < 1 {
		return 0
	}
	return int64(q.Page-1) * int64(q.Limit)
}
