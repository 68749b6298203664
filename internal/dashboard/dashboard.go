// Package dashboard picks the dashboard variant for a role and assembles its
// summary figures.
package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/google/uuid"
)

// Variant names a dashboard layout
type Variant string

const (
	VariantNone       Variant = ""
	VariantAdmin      Variant = "admin"
	VariantMaintainer Variant = "maintainer"
	VariantAmbassador Variant = "ambassador"
	VariantGroup      Variant = "group"
	VariantIndividual Variant = "individual"
)

// Status reports how the selection went. It is never an error: a missing or
// unknown role is a condition the client renders, not a failure.
type Status string

const (
	StatusOK          Status = "ok"
	StatusNoRole      Status = "no_role"
	StatusUnknownRole Status = "unknown_role"
)

// Selection is the outcome of Select
type Selection struct {
	Variant Variant `json:"variant"`
	Status  Status  `json:"status"`
	Role    string  `json:"role,omitempty"`
}

// Select maps a role to its dashboard variant
func Select(role models.Role) Selection {
	switch role {
	case "":
		return Selection{Status: StatusNoRole}
	case models.RoleAdmin:
		return Selection{Variant: VariantAdmin, Status: StatusOK, Role: string(role)}
	case models.RoleMaintainer:
		return Selection{Variant: VariantMaintainer, Status: StatusOK, Role: string(role)}
	case models.RoleAmbassador, models.RoleCampusHead, models.RoleRegional:
		return Selection{Variant: VariantAmbassador, Status: StatusOK, Role: string(role)}
	case models.RoleGroup:
		return Selection{Variant: VariantGroup, Status: StatusOK, Role: string(role)}
	case models.RoleIndividual:
		return Selection{Variant: VariantIndividual, Status: StatusOK, Role: string(role)}
	}
	return Selection{Status: StatusUnknownRole, Role: string(role)}
}

// Service builds dashboard summaries
type Service struct {
	store store.Store
}

// NewService creates a new dashboard service
func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Summary is the data behind a dashboard
type Summary struct {
	Selection Selection `json:"selection"`

	Balance     int64 `json:"balance"`
	TotalEarned int64 `json:"total_earned"`
	TotalSpent  int64 `json:"total_spent"`
	Level       int   `json:"level"`
	IsVerified  bool  `json:"is_verified"`

	ActiveProjects    int `json:"active_projects"`
	CompletedProjects int `json:"completed_projects"`
	OpenProjects      int `json:"open_projects"`
	PendingBids       int `json:"pending_bids"`
	AcceptedBids      int `json:"accepted_bids"`

	UpcomingRegistrations int `json:"upcoming_registrations"`
	UnclaimedRewards      int `json:"unclaimed_rewards"`

	// Staff variants only
	OrganizedEvents *int `json:"organized_events,omitempty"`
	OpenEvents      *int `json:"open_events,omitempty"`
}

// Summary aggregates the caller's figures for the selected variant. An
// unusable role still yields a summary carrying the selection status.
func (s *Service) Summary(ctx context.Context, p *models.Profile) (*Summary, error) {
	sel := Select(p.Role)
	out := &Summary{
		Selection:  sel,
		Level:      p.Level,
		IsVerified: p.IsVerified,
	}
	if sel.Status != StatusOK {
		return out, nil
	}

	w, err := s.store.Wallets().GetByUser(ctx, p.ID)
	switch {
	case err == nil:
		out.Balance = w.Balance
		out.TotalEarned = w.TotalEarned
		out.TotalSpent = w.TotalSpent
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	if err := s.projectFigures(ctx, p.ID, out); err != nil {
		return nil, err
	}
	if err := s.eventFigures(ctx, p.ID, out); err != nil {
		return nil, err
	}

	switch sel.Variant {
	case VariantAdmin, VariantMaintainer, VariantAmbassador:
		if err := s.staffFigures(ctx, p.ID, out); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (s *Service) projectFigures(ctx context.Context, userID uuid.UUID, out *Summary) error {
	owned, _, err := s.store.Projects().List(ctx, store.ProjectFilter{OwnerID: &userID})
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}
	for _, p := range owned {
		switch p.Status {
		case models.ProjectStatusOpen:
			out.OpenProjects++
		case models.ProjectStatusInProgress:
			out.ActiveProjects++
		case models.ProjectStatusCompleted:
			out.CompletedProjects++
		}
	}

	bids, err := s.store.Bids().ListByBidder(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list bids: %w", err)
	}
	for _, b := range bids {
		switch b.Status {
		case models.BidStatusPending:
			out.PendingBids++
		case models.BidStatusAccepted:
			out.AcceptedBids++
			// Work won through a bid counts toward the freelancer's projects
			p, err := s.store.Projects().Get(ctx, b.ProjectID)
			if err != nil {
				return fmt.Errorf("failed to get project: %w", err)
			}
			switch p.Status {
			case models.ProjectStatusInProgress:
				out.ActiveProjects++
			case models.ProjectStatusCompleted:
				out.CompletedProjects++
			}
		}
	}
	return nil
}

func (s *Service) eventFigures(ctx context.Context, userID uuid.UUID, out *Summary) error {
	regs, err := s.store.Registrations().ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list registrations: %w", err)
	}
	for _, r := range regs {
		switch {
		case r.Status == models.RegistrationStatusAttended && !r.RewardClaimed:
			out.UnclaimedRewards++
		case r.Status == models.RegistrationStatusRegistered:
			e, err := s.store.Events().Get(ctx, r.EventID)
			if err != nil {
				return fmt.Errorf("failed to get event: %w", err)
			}
			if !e.Status.Closed() {
				out.UpcomingRegistrations++
			}
		}
	}
	return nil
}

func (s *Service) staffFigures(ctx context.Context, userID uuid.UUID, out *Summary) error {
	events, _, err := s.store.Events().List(ctx, store.EventFilter{})
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}
	organized, open := 0, 0
	for _, e := range events {
		if e.OrganizerID == userID {
			organized++
		}
		if !e.Status.Closed() {
			open++
		}
	}
	out.OrganizedEvents = &organized
	out.OpenEvents = &open
	return nil
}
