package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aimerfeng/Gigsy/internal/broker"
	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/monitoring"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Project errors
var (
	ErrNoIdentity           = fmt.Errorf("%w: no caller identity", models.ErrUnauthorized)
	ErrProjectNotFound      = fmt.Errorf("project %w", models.ErrNotFound)
	ErrBidNotFound          = fmt.Errorf("bid %w", models.ErrNotFound)
	ErrMilestoneNotFound    = fmt.Errorf("milestone %w", models.ErrNotFound)
	ErrNotProjectOwner      = fmt.Errorf("%w: caller does not own this project", models.ErrForbidden)
	ErrOwnProject           = fmt.Errorf("%w: owners cannot bid on their own project", models.ErrForbidden)
	ErrNotBidder            = fmt.Errorf("%w: caller cannot view these bids", models.ErrForbidden)
	ErrProjectNotOpen       = fmt.Errorf("project is not open: %w", models.ErrInvalidState)
	ErrProjectNotInProgress = fmt.Errorf("project is not in progress: %w", models.ErrInvalidState)
	ErrProjectClosed        = fmt.Errorf("project is closed: %w", models.ErrInvalidState)
	ErrBidNotPending        = fmt.Errorf("bid is not pending: %w", models.ErrInvalidState)
	ErrMilestoneCompleted   = fmt.Errorf("milestone already completed: %w", models.ErrInvalidState)
	ErrAlreadyBid           = fmt.Errorf("bidder already bid on this project: %w", models.ErrConflict)
)

const (
	maxTitle    = 120
	maxProposal = 2000
	maxSkills   = 20
)

// Service runs the project and bid workflow
type Service struct {
	store store.Store
	bus   broker.Bus
	now   func() time.Time
}

// NewService creates a new project service
func NewService(st store.Store, bus broker.Bus) *Service {
	return &Service{
		store: st,
		bus:   bus,
		now:   time.Now,
	}
}

// CreateProjectRequest represents a new project
type CreateProjectRequest struct {
	Title          string    `json:"title" binding:"required"`
	Description    string    `json:"description"`
	Budget         int64     `json:"budget" binding:"required"`
	Deadline       time.Time `json:"deadline" binding:"required"`
	SkillsRequired []string  `json:"skills_required"`
}

// ListProjectsRequest filters the project listing
type ListProjectsRequest struct {
	Status   models.ProjectStatus `form:"status"`
	OwnerID  *uuid.UUID           `form:"-"`
	Skill    string               `form:"skill"`
	Page     int                  `form:"page"`
	PageSize int                  `form:"page_size"`
}

// ProjectListResponse is a page of projects
type ProjectListResponse struct {
	Projects   []*models.Project `json:"projects"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// SubmitBidRequest represents a bid
type SubmitBidRequest struct {
	Amount   int64  `json:"amount" binding:"required"`
	Proposal string `json:"proposal" binding:"required"`
}

// AcceptBidResponse reports the outcome of an acceptance
type AcceptBidResponse struct {
	Bid      *models.Bid     `json:"bid"`
	Project  *models.Project `json:"project"`
	Rejected int             `json:"rejected_bids"`
}

// CreateMilestoneRequest represents a new milestone
type CreateMilestoneRequest struct {
	Title       string    `json:"title" binding:"required"`
	Description *string   `json:"description"`
	DueDate     time.Time `json:"due_date" binding:"required"`
}

// CreateProject posts a new open project for owner
func (s *Service) CreateProject(ctx context.Context, owner *models.Profile, req *CreateProjectRequest) (*models.Project, error) {
	if owner == nil {
		return nil, ErrNoIdentity
	}

	now := s.now().UTC()
	title := strings.TrimSpace(req.Title)
	skills := normalizeSkills(req.SkillsRequired)

	v := &models.ValidationError{}
	if title == "" {
		v.Add("title", "is required")
	} else if utf8.RuneCountInString(title) > maxTitle {
		v.Add("title", fmt.Sprintf("must be at most %d characters", maxTitle))
	}
	if req.Budget <= 0 {
		v.Add("budget", "must be greater than zero")
	}
	if !req.Deadline.After(now) {
		v.Add("deadline", "must be in the future")
	}
	if len(skills) > maxSkills {
		v.Add("skills_required", fmt.Sprintf("at most %d skills", maxSkills))
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	p := &models.Project{
		ID:             uuid.New(),
		OwnerID:        owner.ID,
		Title:          title,
		Description:    strings.TrimSpace(req.Description),
		Budget:         req.Budget,
		Deadline:       req.Deadline.UTC(),
		Status:         models.ProjectStatusOpen,
		SkillsRequired: skills,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Projects().Create(context.WithoutCancel(ctx), p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	monitoring.RecordProjectCreated()
	log.Info().Str("project_id", p.ID.String()).Str("owner_id", owner.ID.String()).Msg("Project created")
	broker.Notify(ctx, s.bus, broker.SubjectProjectCreated, p)
	return p, nil
}

// GetProject returns a project by id
func (s *Service) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	p, err := s.store.Projects().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return p, nil
}

// ListProjects pages through projects, newest first
func (s *Service) ListProjects(ctx context.Context, req *ListProjectsRequest) (*ProjectListResponse, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, models.NewValidationError("status", "unknown project status")
	}
	page, pageSize := req.Page, req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	list, total, err := s.store.Projects().List(ctx, store.ProjectFilter{
		Status:  req.Status,
		OwnerID: req.OwnerID,
		Skill:   strings.TrimSpace(req.Skill),
		Limit:   pageSize,
		Offset:  (page - 1) * pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	if list == nil {
		list = []*models.Project{}
	}

	return &ProjectListResponse{
		Projects:   list,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// SubmitBid places a pending bid on an open project
func (s *Service) SubmitBid(ctx context.Context, bidder *models.Profile, projectID uuid.UUID, req *SubmitBidRequest) (*models.Bid, error) {
	if bidder == nil {
		return nil, ErrNoIdentity
	}

	proposal := strings.TrimSpace(req.Proposal)
	v := &models.ValidationError{}
	if req.Amount <= 0 {
		v.Add("amount", "must be greater than zero")
	}
	if proposal == "" {
		v.Add("proposal", "is required")
	} else if utf8.RuneCountInString(proposal) > maxProposal {
		v.Add("proposal", fmt.Sprintf("must be at most %d characters", maxProposal))
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	var bid *models.Bid
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		p, err := lockProject(ctx, r, projectID)
		if err != nil {
			return err
		}
		if p.Status != models.ProjectStatusOpen {
			return ErrProjectNotOpen
		}
		if p.OwnerID == bidder.ID {
			return ErrOwnProject
		}

		if _, err := r.Bids().GetByProjectAndBidder(ctx, projectID, bidder.ID); err == nil {
			return ErrAlreadyBid
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := s.now().UTC()
		bid = &models.Bid{
			ID:        uuid.New(),
			ProjectID: projectID,
			BidderID:  bidder.ID,
			Amount:    req.Amount,
			Proposal:  proposal,
			Status:    models.BidStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := r.Bids().Create(ctx, bid); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return ErrAlreadyBid
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit bid: %w", err)
	}

	monitoring.RecordBid(string(models.BidStatusPending))
	broker.Notify(ctx, s.bus, broker.SubjectBidSubmitted, bid)
	return bid, nil
}

// AcceptBid accepts a pending bid, rejects its siblings and starts the
// project, all in one unit. The project row is locked before its bids.
func (s *Service) AcceptBid(ctx context.Context, owner *models.Profile, bidID uuid.UUID) (*AcceptBidResponse, error) {
	if owner == nil {
		return nil, ErrNoIdentity
	}

	var resp *AcceptBidResponse
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		p, bid, err := s.lockBid(ctx, r, owner, bidID)
		if err != nil {
			return err
		}
		if p.Status != models.ProjectStatusOpen {
			return ErrProjectNotOpen
		}
		if bid.Status != models.BidStatusPending {
			return ErrBidNotPending
		}

		now := s.now().UTC()
		bid.Status = models.BidStatusAccepted
		bid.UpdatedAt = now
		if err := r.Bids().Update(ctx, bid); err != nil {
			return err
		}

		rejected, err := r.Bids().RejectPending(ctx, p.ID, bid.ID, now)
		if err != nil {
			return err
		}

		p.Status = models.ProjectStatusInProgress
		p.UpdatedAt = now
		if err := r.Projects().Update(ctx, p); err != nil {
			return err
		}

		resp = &AcceptBidResponse{Bid: bid, Project: p, Rejected: rejected}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to accept bid: %w", err)
	}

	monitoring.RecordBid(string(models.BidStatusAccepted))
	monitoring.RecordProjectTransition(string(models.ProjectStatusInProgress))
	log.Info().
		Str("project_id", resp.Project.ID.String()).
		Str("bid_id", resp.Bid.ID.String()).
		Int("rejected", resp.Rejected).
		Msg("Bid accepted")
	broker.Notify(ctx, s.bus, broker.SubjectBidAccepted, resp.Bid)
	broker.Notify(ctx, s.bus, broker.SubjectProjectUpdated, resp.Project)
	return resp, nil
}

// RejectBid rejects one pending bid on an open project
func (s *Service) RejectBid(ctx context.Context, owner *models.Profile, bidID uuid.UUID) (*models.Bid, error) {
	if owner == nil {
		return nil, ErrNoIdentity
	}

	var bid *models.Bid
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		p, b, err := s.lockBid(ctx, r, owner, bidID)
		if err != nil {
			return err
		}
		if p.Status != models.ProjectStatusOpen {
			return ErrProjectNotOpen
		}
		if b.Status != models.BidStatusPending {
			return ErrBidNotPending
		}
		b.Status = models.BidStatusRejected
		b.UpdatedAt = s.now().UTC()
		if err := r.Bids().Update(ctx, b); err != nil {
			return err
		}
		bid = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reject bid: %w", err)
	}

	monitoring.RecordBid(string(models.BidStatusRejected))
	broker.Notify(ctx, s.bus, broker.SubjectBidRejected, bid)
	return bid, nil
}

// lockBid locks the bid's project and then the bid, checking ownership
func (s *Service) lockBid(ctx context.Context, r store.Repos, owner *models.Profile, bidID uuid.UUID) (*models.Project, *models.Bid, error) {
	peek, err := r.Bids().Get(ctx, bidID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrBidNotFound
		}
		return nil, nil, err
	}

	p, err := lockProject(ctx, r, peek.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if p.OwnerID != owner.ID {
		return nil, nil, ErrNotProjectOwner
	}

	bid, err := r.Bids().GetForUpdate(ctx, bidID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrBidNotFound
		}
		return nil, nil, err
	}
	return p, bid, nil
}

func lockProject(ctx context.Context, r store.Repos, id uuid.UUID) (*models.Project, error) {
	p, err := r.Projects().GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return p, nil
}

// CompleteProject moves an in-progress project to completed
func (s *Service) CompleteProject(ctx context.Context, owner *models.Profile, projectID uuid.UUID) (*models.Project, error) {
	return s.transition(ctx, owner, projectID, models.ProjectStatusCompleted)
}

// CancelProject cancels an open or in-progress project and rejects its
// pending bids
func (s *Service) CancelProject(ctx context.Context, owner *models.Profile, projectID uuid.UUID) (*models.Project, error) {
	return s.transition(ctx, owner, projectID, models.ProjectStatusCancelled)
}

func (s *Service) transition(ctx context.Context, owner *models.Profile, projectID uuid.UUID, to models.ProjectStatus) (*models.Project, error) {
	if owner == nil {
		return nil, ErrNoIdentity
	}

	var out *models.Project
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		p, err := lockProject(ctx, r, projectID)
		if err != nil {
			return err
		}
		if p.OwnerID != owner.ID {
			return ErrNotProjectOwner
		}

		now := s.now().UTC()
		switch to {
		case models.ProjectStatusCompleted:
			if p.Status != models.ProjectStatusInProgress {
				return ErrProjectNotInProgress
			}
		case models.ProjectStatusCancelled:
			if p.Status.Terminal() {
				return ErrProjectClosed
			}
			if _, err := r.Bids().RejectPending(ctx, p.ID, uuid.Nil, now); err != nil {
				return err
			}
		}

		p.Status = to
		p.UpdatedAt = now
		if err := r.Projects().Update(ctx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	monitoring.RecordProjectTransition(string(to))
	broker.Notify(ctx, s.bus, broker.SubjectProjectUpdated, out)
	return out, nil
}

// ListBids returns the bids on a project. The owner sees every bid; anyone
// else sees only their own.
func (s *Service) ListBids(ctx context.Context, viewer *models.Profile, projectID uuid.UUID) ([]*models.Bid, error) {
	if viewer == nil {
		return nil, ErrNoIdentity
	}
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	bids, err := s.store.Bids().ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	if p.OwnerID == viewer.ID || viewer.Role == models.RoleAdmin {
		return nonNilBids(bids), nil
	}

	own := []*models.Bid{}
	for _, b := range bids {
		if b.BidderID == viewer.ID {
			own = append(own, b)
		}
	}
	return own, nil
}

// ListBidsByBidder returns a bidder's bids across projects
func (s *Service) ListBidsByBidder(ctx context.Context, viewer *models.Profile, bidderID uuid.UUID) ([]*models.Bid, error) {
	if viewer == nil {
		return nil, ErrNoIdentity
	}
	if viewer.ID != bidderID && viewer.Role != models.RoleAdmin {
		return nil, ErrNotBidder
	}
	bids, err := s.store.Bids().ListByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	return nonNilBids(bids), nil
}

// AddMilestone adds a milestone to a project that is still running
func (s *Service) AddMilestone(ctx context.Context, owner *models.Profile, projectID uuid.UUID, req *CreateMilestoneRequest) (*models.Milestone, error) {
	if owner == nil {
		return nil, ErrNoIdentity
	}
	title := strings.TrimSpace(req.Title)
	v := &models.ValidationError{}
	if title == "" {
		v.Add("title", "is required")
	} else if utf8.RuneCountInString(title) > maxTitle {
		v.Add("title", fmt.Sprintf("must be at most %d characters", maxTitle))
	}
	if req.DueDate.IsZero() {
		v.Add("due_date", "is required")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	var m *models.Milestone
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		p, err := lockProject(ctx, r, projectID)
		if err != nil {
			return err
		}
		if p.OwnerID != owner.ID {
			return ErrNotProjectOwner
		}
		if p.Status.Terminal() {
			return ErrProjectClosed
		}

		now := s.now().UTC()
		m = &models.Milestone{
			ID:          uuid.New(),
			ProjectID:   projectID,
			Title:       title,
			Description: req.Description,
			DueDate:     req.DueDate.UTC(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return r.Milestones().Create(ctx, m)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add milestone: %w", err)
	}
	return m, nil
}

// ListMilestones returns a project's milestones by due date
func (s *Service) ListMilestones(ctx context.Context, projectID uuid.UUID) ([]*models.Milestone, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	list, err := s.store.Milestones().ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	if list == nil {
		list = []*models.Milestone{}
	}
	return list, nil
}

// CompleteMilestone marks a milestone done
func (s *Service) CompleteMilestone(ctx context.Context, owner *models.Profile, milestoneID uuid.UUID) (*models.Milestone, error) {
	if owner == nil {
		return nil, ErrNoIdentity
	}

	var out *models.Milestone
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		m, err := r.Milestones().Get(ctx, milestoneID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrMilestoneNotFound
			}
			return err
		}
		p, err := lockProject(ctx, r, m.ProjectID)
		if err != nil {
			return err
		}
		if p.OwnerID != owner.ID {
			return ErrNotProjectOwner
		}
		if p.Status.Terminal() {
			return ErrProjectClosed
		}
		// re-read under the project lock; a concurrent complete may have won
		if m, err = r.Milestones().Get(ctx, milestoneID); err != nil {
			return err
		}
		if m.Completed {
			return ErrMilestoneCompleted
		}

		now := s.now().UTC()
		m.Completed = true
		m.CompletedAt = &now
		m.UpdatedAt = now
		if err := r.Milestones().Update(ctx, m); err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to complete milestone: %w", err)
	}
	return out, nil
}

func nonNilBids(b []*models.Bid) []*models.Bid {
	if b == nil {
		return []*models.Bid{}
	}
	return b
}

func normalizeSkills(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
