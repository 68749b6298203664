package models

import (
	"time"

	"github.com/google/uuid"
)

// ProjectStatus represents the lifecycle state of a project
type ProjectStatus string

const (
	ProjectStatusOpen       ProjectStatus = "open"
	ProjectStatusInProgress ProjectStatus = "in_progress"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusCancelled  ProjectStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed
func (s ProjectStatus) Terminal() bool {
	return s == ProjectStatusCompleted || s == ProjectStatusCancelled
}

// Valid reports whether s is a known project status
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusOpen, ProjectStatusInProgress, ProjectStatusCompleted, ProjectStatusCancelled:
		return true
	}
	return false
}

// Project is a job posted by an owner for freelancers to bid on
type Project struct {
	ID             uuid.UUID     `json:"id" db:"id"`
	OwnerID        uuid.UUID     `json:"owner_id" db:"owner_id"`
	Title          string        `json:"title" db:"title"`
	Description    string        `json:"description" db:"description"`
	Budget         int64         `json:"budget" db:"budget"`
	Deadline       time.Time     `json:"deadline" db:"deadline"`
	Status         ProjectStatus `json:"status" db:"status"`
	SkillsRequired []string      `json:"skills_required" db:"skills_required"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// BidStatus represents the status of a bid
type BidStatus string

const (
	BidStatusPending  BidStatus = "pending"
	BidStatusAccepted BidStatus = "accepted"
	BidStatusRejected BidStatus = "rejected"
)

// Bid is a freelancer's proposal against an open project
type Bid struct {
	ID        uuid.UUID `json:"id" db:"id"`
	ProjectID uuid.UUID `json:"project_id" db:"project_id"`
	BidderID  uuid.UUID `json:"bidder_id" db:"bidder_id"`
	Amount    int64     `json:"amount" db:"amount"`
	Proposal  string    `json:"proposal" db:"proposal"`
	Status    BidStatus `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Milestone tracks progress on a project
type Milestone struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	ProjectID   uuid.UUID  `json:"project_id" db:"project_id"`
	Title       string     `json:"title" db:"title"`
	Description *string    `json:"description,omitempty" db:"description"`
	DueDate     time.Time  `json:"due_date" db:"due_date"`
	Completed   bool       `json:"completed" db:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}
