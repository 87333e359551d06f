package models

import (
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Category string

const (
	CategoryPothole     Category = "pothole"
	CategoryStreetlight Category = "streetlight"
	CategoryGarbage     Category = "garbage"
	CategoryPowerCut    Category = "power_cut"
	CategoryWaterSupply Category = "water_supply"
	CategoryOther       Category = "other"
)

var Categories = []Category{
	CategoryPothole, CategoryStreetlight, CategoryGarbage,
	CategoryPowerCut, CategoryWaterSupply, CategoryOther,
}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
)

var Statuses = []Status{StatusPending, StatusInProgress, StatusResolved, StatusRejected}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if p == v {
			return true
		}
	}
	return false
}

// MaxImages is the number of photos a report may carry.
const MaxImages = 5

type Coordinates struct {
	Lat float64 `json:"lat" bson:"lat"`
	Lng float64 `json:"lng" bson:"lng"`
}

// GeoPoint is the GeoJSON form of the coordinates kept for the 2dsphere index.
type GeoPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"` // [lng, lat]
}

type Location struct {
	Address     string      `json:"address" bson:"address"`
	Coordinates Coordinates `json:"coordinates" bson:"coordinates"`
	City        string      `json:"city,omitempty" bson:"city,omitempty"`
	State       string      `json:"state,omitempty" bson:"state,omitempty"`
	Pincode     string      `json:"pincode,omitempty" bson:"pincode,omitempty"`
	Point       *GeoPoint   `json:"-" bson:"point,omitempty"`
}

// SyncPoint rebuilds Point from Coordinates.
func (l *Location) SyncPoint() {
	l.Point = &GeoPoint{
		Type:        "Point",
		Coordinates: []float64{l.Coordinates.Lng, l.Coordinates.Lat},
	}
}

type Image struct {
	URL     string `json:"url" bson:"url"`
	MediaID string `json:"mediaId" bson:"mediaId"`
}

type Comment struct {
	ID        primitive.ObjectID `json:"id" bson:"_id"`
	User      primitive.ObjectID `json:"user" bson:"user"`
	Text      string             `json:"text" bson:"text"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

type StatusEntry struct {
	Status    Status             `json:"status" bson:"status"`
	ChangedBy primitive.ObjectID `json:"changedBy" bson:"changedBy"`
	ChangedAt time.Time          `json:"changedAt" bson:"changedAt"`
	Remarks   string             `json:"remarks,omitempty" bson:"remarks,omitempty"`
}

type Report struct {
	ID            primitive.ObjectID   `json:"id" bson:"_id,omitempty"`
	Title         string               `json:"title" bson:"title"`
	Description   string               `json:"description" bson:"description"`
	Category      Category             `json:"category" bson:"category"`
	Location      Location             `json:"location" bson:"location"`
	Images        []Image              `json:"images" bson:"images"`
	Status        Status               `json:"status" bson:"status"`
	Priority      Priority             `json:"priority" bson:"priority"`
	ReportedBy    primitive.ObjectID   `json:"reportedBy" bson:"reportedBy"`
	AssignedTo    *primitive.ObjectID  `json:"assignedTo,omitempty" bson:"assignedTo,omitempty"`
	Upvotes       []primitive.ObjectID `json:"upvotes" bson:"upvotes"`
	UpvoteCount   int                  `json:"upvoteCount" bson:"upvoteCount"`
	Comments      []Comment            `json:"comments" bson:"comments"`
	StatusHistory []StatusEntry        `json:"statusHistory" bson:"statusHistory"`
	ResolvedAt    *time.Time           `json:"resolvedAt,omitempty" bson:"resolvedAt,omitempty"`
	IsActive      bool                 `json:"isActive" bson:"isActive"`
	CreatedAt     time.Time            `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time            `json:"updatedAt" bson:"updatedAt"`

	// Revision guards read-modify-write saves; bumped by the store on every save.
	Revision int64 `json:"-" bson:"revision"`
}

func (r *Report) HasUpvoted(userID primitive.ObjectID) bool {
	for _, id := range r.Upvotes {
		if id == userID {
			return true
		}
	}
	return false
}

// MediaIDs lists the media references held by the report, in order.
func (r *Report) MediaIDs() []string {
	ids := make([]string, 0, len(r.Images))
	for _, img := range r.Images {
		ids = append(ids, img.MediaID)
	}
	return ids
}

// Normalize restores the stored invariants: derived upvote count, GeoJSON
// point and non-nil collections.
func (r *Report) Normalize() {
	if r.Images == nil {
		r.Images = []Image{}
	}
	if r.Upvotes == nil {
		r.Upvotes = []primitive.ObjectID{}
	}
	if r.Comments == nil {
		r.Comments = []Comment{}
	}
	if r.StatusHistory == nil {
		r.StatusHistory = []StatusEntry{}
	}
	r.UpvoteCount = len(r.Upvotes)
	r.Location.SyncPoint()
}

// Clone returns a deep copy; slices are not shared with r.
func (r *Report) Clone() *Report {
	c := *r
	c.Images = slices.Clone(r.Images)
	c.Upvotes = slices.Clone(r.Upvotes)
	c.Comments = slices.Clone(r.Comments)
	c.StatusHistory = slices.Clone(r.StatusHistory)
	if r.AssignedTo != nil {
		id := *r.AssignedTo
		c.AssignedTo = &id
	}
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		c.ResolvedAt = &at
	}
	if r.Location.Point != nil {
		p := *r.Location.Point
		p.Coordinates = slices.Clone(r.Location.Point.Coordinates)
		c.Location.Point = &p
	}
	return &c
}

// ReportEvent is published to the broker after every lifecycle change.
type ReportEvent struct {
	Type       string             `json:"type"`
	ReportID   primitive.ObjectID `json:"report_id"`
	ActorID    primitive.ObjectID `json:"actor_id"`
	Status     Status             `json:"status"`
	Category   Category           `json:"category"`
	OccurredAt time.Time          `json:"occurred_at"`
}

const (
	EventReportCreated       = "report.created"
	EventReportUpdated       = "report.updated"
	EventReportStatusChanged = "report.status_changed"
	EventReportAssigned      = "report.assigned"
	EventReportCommented     = "report.commented"
	EventReportDeleted       = "report.deleted"
)

// MediaOrphan is a media reference whose deletion failed and awaits retry.
type MediaOrphan struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	MediaID   string             `json:"mediaId" bson:"mediaId"`
	ReportID  primitive.ObjectID `json:"reportId" bson:"reportId"`
	Attempts  int                `json:"attempts" bson:"attempts"`
	LastError string             `json:"lastError" bson:"lastError"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt" bson:"updatedAt"`
}
