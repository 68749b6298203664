package models

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus represents the lifecycle state of an event
type EventStatus string

const (
	EventStatusUpcoming  EventStatus = "upcoming"
	EventStatusOngoing   EventStatus = "ongoing"
	EventStatusCompleted EventStatus = "completed"
	EventStatusCancelled EventStatus = "cancelled"
)

// Closed reports whether the event no longer accepts registrations
func (s EventStatus) Closed() bool {
	return s == EventStatusCompleted || s == EventStatusCancelled
}

// Event is a community event or meetup that may pay a reward
type Event struct {
	ID              uuid.UUID   `json:"id" db:"id"`
	OrganizerID     uuid.UUID   `json:"organizer_id" db:"organizer_id"`
	Title           string      `json:"title" db:"title"`
	Description     string      `json:"description" db:"description"`
	StartDate       time.Time   `json:"start_date" db:"start_date"`
	EndDate         time.Time   `json:"end_date" db:"end_date"`
	Location        *string     `json:"location,omitempty" db:"location"`
	MaxParticipants *int        `json:"max_participants,omitempty" db:"max_participants"`
	RewardAmount    int64       `json:"reward_amount" db:"reward_amount"`
	Status          EventStatus `json:"status" db:"status"`
	CreatedAt       time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at" db:"updated_at"`
}

// RegistrationStatus represents attendance state of a registration
type RegistrationStatus string

const (
	RegistrationStatusRegistered RegistrationStatus = "registered"
	RegistrationStatusAttended   RegistrationStatus = "attended"
	RegistrationStatusNoShow     RegistrationStatus = "no_show"
)

// EventRegistration links a user to an event
type EventRegistration struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	EventID       uuid.UUID          `json:"event_id" db:"event_id"`
	UserID        uuid.UUID          `json:"user_id" db:"user_id"`
	Status        RegistrationStatus `json:"status" db:"status"`
	RewardClaimed bool               `json:"reward_claimed" db:"reward_claimed"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" db:"updated_at"`
}
