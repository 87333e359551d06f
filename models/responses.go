package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool              `json:"success"`
	Message string            `json:"message,omitempty"`
	Data    any               `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type ListResponse struct {
	Success     bool  `json:"success"`
	Count       int   `json:"count"`
	Total       int64 `json:"total"`
	Pages       int   `json:"pages"`
	CurrentPage int   `json:"currentPage"`
	Data        any   `json:"data"`
}

// UserSummary is a user reference resolved for display.
type UserSummary struct {
	ID     primitive.ObjectID `json:"id"`
	Name   string             `json:"name,omitempty"`
	Email  string             `json:"email,omitempty"`
	Phone  string             `json:"phone,omitempty"`
	Avatar string             `json:"avatar,omitempty"`
}

type CommentView struct {
	ID        primitive.ObjectID `json:"id"`
	User      UserSummary        `json:"user"`
	Text      string             `json:"text"`
	CreatedAt time.Time          `json:"createdAt"`
}

// ReportView is a report with its user references resolved. The outer
// fields shadow the raw ids of the embedded report in JSON.
type ReportView struct {
	Report
	ReportedBy UserSummary   `json:"reportedBy"`
	AssignedTo *UserSummary  `json:"assignedTo,omitempty"`
	Comments   []CommentView `json:"comments"`
}

type ReportPage struct {
	Items []ReportView
	Total int64
	Pages int
	Page  int
}

type UpvoteResult struct {
	UpvoteCount int  `json:"upvoteCount"`
	IsUpvoted   bool `json:"isUpvoted"`
}

type ReportStats struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	InProgress int64 `json:"inProgress"`
	Resolved   int64 `json:"resolved"`
	Rejected   int64 `json:"rejected"`
}
