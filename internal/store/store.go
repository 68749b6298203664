// Package store defines the data-access layer shared by every service.
// Implementations live in store/postgres and store/memory; both must pass
// the contract suite in store/storetest.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/google/uuid"
)

// Store errors
var (
	ErrNotFound  = fmt.Errorf("record %w", models.ErrNotFound)
	ErrDuplicate = fmt.Errorf("duplicate record: %w", models.ErrConflict)
)

// Store is the entry point handed to services
type Store interface {
	Repos

	// WithTx runs fn as one atomic unit. Every write made through r commits
	// together when fn returns nil and is discarded otherwise.
	WithTx(ctx context.Context, fn func(r Repos) error) error

	Ping(ctx context.Context) error
	Close()
}

// Repos groups the per-entity repositories
type Repos interface {
	Profiles() ProfileRepository
	Wallets() WalletRepository
	Projects() ProjectRepository
	Bids() BidRepository
	Milestones() MilestoneRepository
	Events() EventRepository
	Registrations() RegistrationRepository
	Conversations() ConversationRepository
	Messages() MessageRepository
}

// ProfileFilter narrows profile listings. Zero values match everything.
type ProfileFilter struct {
	Role   models.Role
	Limit  int
	Offset int
}

type ProfileRepository interface {
	Create(ctx context.Context, p *models.Profile) error
	Get(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	GetBySubject(ctx context.Context, subject string) (*models.Profile, error)
	Update(ctx context.Context, p *models.Profile) error
	List(ctx context.Context, f ProfileFilter) ([]*models.Profile, int, error)
}

type WalletRepository interface {
	Create(ctx context.Context, w *models.Wallet) error
	Get(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	GetByUser(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Update(ctx context.Context, w *models.Wallet) error
	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	// ListTransactions returns rows where walletID is the source or the
	// recipient, newest first, with the total count.
	ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]*models.Transaction, int, error)
	TopEarners(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error)
}

// ProjectFilter narrows project listings. Zero values match everything.
type ProjectFilter struct {
	Status  models.ProjectStatus
	OwnerID *uuid.UUID
	Skill   string
	Limit   int
	Offset  int
}

type ProjectRepository interface {
	Create(ctx context.Context, p *models.Project) error
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Project, error)
	Update(ctx context.Context, p *models.Project) error
	List(ctx context.Context, f ProjectFilter) ([]*models.Project, int, error)
}

type BidRepository interface {
	Create(ctx context.Context, b *models.Bid) error
	Get(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Bid, error)
	GetByProjectAndBidder(ctx context.Context, projectID, bidderID uuid.UUID) (*models.Bid, error)
	Update(ctx context.Context, b *models.Bid) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Bid, error)
	ListByBidder(ctx context.Context, bidderID uuid.UUID) ([]*models.Bid, error)
	// RejectPending moves every pending bid of the project except exceptID to
	// rejected and returns how many changed.
	RejectPending(ctx context.Context, projectID, exceptID uuid.UUID, at time.Time) (int, error)
}

type MilestoneRepository interface {
	Create(ctx context.Context, m *models.Milestone) error
	Get(ctx context.Context, id uuid.UUID) (*models.Milestone, error)
	Update(ctx context.Context, m *models.Milestone) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Milestone, error)
}

// EventFilter narrows event listings. Zero values match everything.
type EventFilter struct {
	Status models.EventStatus
	Limit  int
	Offset int
}

type EventRepository interface {
	Create(ctx context.Context, e *models.Event) error
	Get(ctx context.Context, id uuid.UUID) (*models.Event, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Event, error)
	Update(ctx context.Context, e *models.Event) error
	// List orders by start date ascending
	List(ctx context.Context, f EventFilter) ([]*models.Event, int, error)
}

type RegistrationRepository interface {
	Create(ctx context.Context, r *models.EventRegistration) error
	Get(ctx context.Context, id uuid.UUID) (*models.EventRegistration, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.EventRegistration, error)
	GetByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.EventRegistration, error)
	Update(ctx context.Context, r *models.EventRegistration) error
	CountByEvent(ctx context.Context, eventID uuid.UUID) (int, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.EventRegistration, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.EventRegistration, error)
}

type ConversationRepository interface {
	Create(ctx context.Context, c *models.Conversation) error
	Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error)
	AddMember(ctx context.Context, m *models.ConversationMember) error
	GetMember(ctx context.Context, conversationID, memberID uuid.UUID) (*models.ConversationMember, error)
	GetMemberForUpdate(ctx context.Context, conversationID, memberID uuid.UUID) (*models.ConversationMember, error)
	UpdateMember(ctx context.Context, m *models.ConversationMember) error
	ListMembers(ctx context.Context, conversationID uuid.UUID) ([]*models.ConversationMember, error)
	// ListForMember returns the conversations memberID belongs to, most
	// recently updated first.
	ListForMember(ctx context.Context, memberID uuid.UUID) ([]*models.Conversation, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

type MessageRepository interface {
	// Create assigns m.Seq
	Create(ctx context.Context, m *models.Message) error
	Get(ctx context.Context, id uuid.UUID) (*models.Message, error)
	// List returns messages with Seq > afterSeq in ascending order
	List(ctx context.Context, conversationID uuid.UUID, afterSeq int64, limit int) ([]*models.Message, error)
}
