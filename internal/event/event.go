package event

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
	"github.com/aimerfeng/Gigsy/internal/wallet"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Event errors
var (
	ErrNoIdentity           = fmt.Errorf("%w: no caller identity", models.ErrUnauthorized)
	ErrEventNotFound        = fmt.Errorf("event %w", models.ErrNotFound)
	ErrRegistrationNotFound = fmt.Errorf("registration %w", models.ErrNotFound)
	ErrNotOrganizer         = fmt.Errorf("%w: caller does not organize this event", models.ErrForbidden)
	ErrCannotOrganize       = fmt.Errorf("%w: role cannot organize events", models.ErrForbidden)
	ErrNotRegistrant        = fmt.Errorf("%w: registration belongs to another user", models.ErrForbidden)
	ErrEventClosed          = fmt.Errorf("event is closed: %w", models.ErrInvalidState)
	ErrEventFull            = fmt.Errorf("event %w", models.ErrFull)
	ErrAlreadyRegistered    = fmt.Errorf("user is %w for this event", models.ErrAlreadyRegistered)
	ErrAttendanceRecorded   = fmt.Errorf("attendance already recorded: %w", models.ErrInvalidState)
	ErrNotAttended          = fmt.Errorf("registration has not attended: %w", models.ErrInvalidState)
	ErrRewardClaimed        = fmt.Errorf("reward already claimed: %w", models.ErrInvalidState)
)

const maxTitle = 120

// Registration outcomes for metrics
const (
	outcomeRegistered = "registered"
	outcomeFull       = "full"
	outcomeDuplicate  = "duplicate"
	outcomeClosed     = "closed"
)

// Service manages events and their registrations
type Service struct {
	store   store.Store
	wallets *wallet.Service
	bus     broker.Bus
	now     func() time.Time
}

// NewService creates a new event service. Rewards are paid through wallets.
func NewService(st store.Store, wallets *wallet.Service, bus broker.Bus) *Service {
	return &Service{
		store:   st,
		wallets: wallets,
		bus:     bus,
		now:     time.Now,
	}
}

// CreateEventRequest represents a new event
type CreateEventRequest struct {
	Title           string    `json:"title" binding:"required"`
	Description     string    `json:"description"`
	StartDate       time.Time `json:"start_date" binding:"required"`
	EndDate         time.Time `json:"end_date" binding:"required"`
	Location        *string   `json:"location"`
	MaxParticipants *int      `json:"max_participants"`
	RewardAmount    int64     `json:"reward_amount"`
}

// ListEventsRequest filters the event listing
type ListEventsRequest struct {
	Status   models.EventStatus `form:"status"`
	Page     int                `form:"page"`
	PageSize int                `form:"page_size"`
}

// EventListResponse is a page of events
type EventListResponse struct {
	Events     []*models.Event `json:"events"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
	TotalPages int             `json:"total_pages"`
}

// EventDetail is an event with its current registration count
type EventDetail struct {
	*models.Event
	Registered int `json:"registered"`
}

// ClaimResponse reports a paid reward
type ClaimResponse struct {
	Registration *models.EventRegistration `json:"registration"`
	Transaction  *models.Transaction       `json:"transaction,omitempty"`
}

// CreateEvent schedules a new upcoming event
func (s *Service) CreateEvent(ctx context.Context, organizer *models.Profile, req *CreateEventRequest) (*models.Event, error) {
	if organizer == nil {
		return nil, ErrNoIdentity
	}
	if !organizer.Role.CanOrganize() {
		return nil, ErrCannotOrganize
	}

	title := strings.TrimSpace(req.Title)
	v := &models.ValidationError{}
	if title == "" {
		v.Add("title", "is required")
	} else if utf8.RuneCountInString(title) > maxTitle {
		v.Add("title", fmt.Sprintf("must be at most %d characters", maxTitle))
	}
	if req.StartDate.IsZero() {
		v.Add("start_date", "is required")
	}
	if !req.EndDate.After(req.StartDate) {
		v.Add("end_date", "must be after start_date")
	}
	if req.MaxParticipants != nil && *req.MaxParticipants <= 0 {
		v.Add("max_participants", "must be greater than zero")
	}
	if req.RewardAmount < 0 {
		v.Add("reward_amount", "cannot be negative")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	e := &models.Event{
		ID:              uuid.New(),
		OrganizerID:     organizer.ID,
		Title:           title,
		Description:     strings.TrimSpace(req.Description),
		StartDate:       req.StartDate.UTC(),
		EndDate:         req.EndDate.UTC(),
		Location:        req.Location,
		MaxParticipants: req.MaxParticipants,
		RewardAmount:    req.RewardAmount,
		Status:          models.EventStatusUpcoming,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.store.Events().Create(context.WithoutCancel(ctx), e); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	log.Info().Str("event_id", e.ID.String()).Str("organizer_id", organizer.ID.String()).Msg("Event created")
	broker.Notify(ctx, s.bus, broker.SubjectEventCreated, e)
	return e, nil
}

// GetEvent returns an event with its registration count
func (s *Service) GetEvent(ctx context.Context, id uuid.UUID) (*EventDetail, error) {
	e, err := s.store.Events().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	n, err := s.store.Registrations().CountByEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count registrations: %w", err)
	}
	return &EventDetail{Event: e, Registered: n}, nil
}

// ListEvents pages through events by start date
func (s *Service) ListEvents(ctx context.Context, req *ListEventsRequest) (*EventListResponse, error) {
	switch req.Status {
	case "", models.EventStatusUpcoming, models.EventStatusOngoing, models.EventStatusCompleted, models.EventStatusCancelled:
	default:
		return nil, models.NewValidationError("status", "unknown event status")
	}
	page, pageSize := req.Page, req.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	list, total, err := s.store.Events().List(ctx, store.EventFilter{
		Status: req.Status,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	if list == nil {
		list = []*models.Event{}
	}
	return &EventListResponse{
		Events:     list,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// Register signs userID up for an event. Closed is checked before a
// duplicate, and a duplicate before capacity.
func (s *Service) Register(ctx context.Context, eventID, userID uuid.UUID) (*models.EventRegistration, error) {
	var reg *models.EventRegistration
	outcome := ""
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		e, err := lockEvent(ctx, r, eventID)
		if err != nil {
			return err
		}
		if e.Status.Closed() {
			outcome = outcomeClosed
			return ErrEventClosed
		}

		if _, err := r.Registrations().GetByEventAndUser(ctx, eventID, userID); err == nil {
			outcome = outcomeDuplicate
			return ErrAlreadyRegistered
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if e.MaxParticipants != nil {
			n, err := r.Registrations().CountByEvent(ctx, eventID)
			if err != nil {
				return err
			}
			if n >= *e.MaxParticipants {
				outcome = outcomeFull
				return ErrEventFull
			}
		}

		now := s.now().UTC()
		reg = &models.EventRegistration{
			ID:        uuid.New(),
			EventID:   eventID,
			UserID:    userID,
			Status:    models.RegistrationStatusRegistered,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := r.Registrations().Create(ctx, reg); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				outcome = outcomeDuplicate
				return ErrAlreadyRegistered
			}
			return err
		}
		outcome = outcomeRegistered
		return nil
	})
	if outcome != "" {
		monitoring.RecordRegistration(outcome)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to register: %w", err)
	}

	broker.Notify(ctx, s.bus, broker.SubjectRegistrationCreated, reg)
	return reg, nil
}

// ListRegistrations returns an event's registrations. The organizer and admins
// see all of them; anyone else sees only their own.
func (s *Service) ListRegistrations(ctx context.Context, viewer *models.Profile, eventID uuid.UUID) ([]*models.EventRegistration, error) {
	if viewer == nil {
		return nil, ErrNoIdentity
	}
	e, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	list, err := s.store.Registrations().ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}

	out := []*models.EventRegistration{}
	for _, reg := range list {
		if canManage(viewer, e.Event) || reg.UserID == viewer.ID {
			out = append(out, reg)
		}
	}
	return out, nil
}

// MarkAttendance records whether a registrant showed up. Only a registration
// still in the registered state can move.
func (s *Service) MarkAttendance(ctx context.Context, organizer *models.Profile, registrationID uuid.UUID, status models.RegistrationStatus) (*models.EventRegistration, error) {
	if organizer == nil {
		return nil, ErrNoIdentity
	}
	if status != models.RegistrationStatusAttended && status != models.RegistrationStatusNoShow {
		return nil, models.NewValidationError("status", "must be attended or no_show")
	}

	var out *models.EventRegistration
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		reg, err := lockRegistration(ctx, r, registrationID)
		if err != nil {
			return err
		}
		e, err := r.Events().Get(ctx, reg.EventID)
		if err != nil {
			return err
		}
		if !canManage(organizer, e) {
			return ErrNotOrganizer
		}
		if e.Status == models.EventStatusCancelled {
			return ErrEventClosed
		}
		if reg.Status != models.RegistrationStatusRegistered {
			return ErrAttendanceRecorded
		}

		reg.Status = status
		reg.UpdatedAt = s.now().UTC()
		if err := r.Registrations().Update(ctx, reg); err != nil {
			return err
		}
		out = reg
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark attendance: %w", err)
	}
	return out, nil
}

// ClaimReward pays the event reward for an attended registration. The flag
// and the wallet credit commit together, so a reward is paid at most once.
func (s *Service) ClaimReward(ctx context.Context, caller *models.Profile, registrationID uuid.UUID) (*ClaimResponse, error) {
	if caller == nil {
		return nil, ErrNoIdentity
	}

	resp := &ClaimResponse{}
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		reg, err := lockRegistration(ctx, r, registrationID)
		if err != nil {
			return err
		}
		if reg.UserID != caller.ID {
			return ErrNotRegistrant
		}
		if reg.Status != models.RegistrationStatusAttended {
			return ErrNotAttended
		}
		if reg.RewardClaimed {
			return ErrRewardClaimed
		}

		e, err := r.Events().Get(ctx, reg.EventID)
		if err != nil {
			return err
		}

		if e.RewardAmount > 0 {
			w, err := r.Wallets().GetByUser(ctx, reg.UserID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return wallet.ErrWalletNotFound
				}
				return err
			}
			desc := "Reward: " + e.Title
			ref := "registration:" + reg.ID.String()
			resp.Transaction, err = s.wallets.ApplyWith(ctx, r, &wallet.ApplyRequest{
				WalletID:    w.ID,
				Amount:      e.RewardAmount,
				Type:        models.TransactionTypeReward,
				Description: &desc,
				ReferenceID: &ref,
			})
			if err != nil {
				return err
			}
		}

		reg.RewardClaimed = true
		reg.UpdatedAt = s.now().UTC()
		if err := r.Registrations().Update(ctx, reg); err != nil {
			return err
		}
		resp.Registration = reg
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim reward: %w", err)
	}

	if resp.Transaction != nil {
		s.wallets.AfterCommit(ctx, resp.Transaction)
	}
	monitoring.RecordRewardClaimed()
	broker.Notify(ctx, s.bus, broker.SubjectRewardClaimed, resp.Registration)
	return resp, nil
}

// CancelEvent cancels an event that has not finished
func (s *Service) CancelEvent(ctx context.Context, organizer *models.Profile, eventID uuid.UUID) (*models.Event, error) {
	if organizer == nil {
		return nil, ErrNoIdentity
	}

	var out *models.Event
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		e, err := lockEvent(ctx, r, eventID)
		if err != nil {
			return err
		}
		if !canManage(organizer, e) {
			return ErrNotOrganizer
		}
		if e.Status.Closed() {
			return ErrEventClosed
		}
		e.Status = models.EventStatusCancelled
		e.UpdatedAt = s.now().UTC()
		if err := r.Events().Update(ctx, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel event: %w", err)
	}

	monitoring.RecordEventTransition(string(models.EventStatusCancelled))
	broker.Notify(ctx, s.bus, broker.SubjectEventUpdated, out)
	return out, nil
}

// LifecycleResult summarizes one scheduler pass
type LifecycleResult struct {
	Started   int       `json:"started"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	RanAt     time.Time `json:"ran_at"`
}

// AdvanceLifecycle starts upcoming events whose start has passed and
// completes ongoing events whose end has passed. Each event moves in its own
// unit; a failure on one does not stop the pass.
func (s *Service) AdvanceLifecycle(ctx context.Context) (*LifecycleResult, error) {
	now := s.now().UTC()
	result := &LifecycleResult{RanAt: now}

	steps := []struct {
		from, to models.EventStatus
		due      func(e *models.Event) bool
		count    *int
	}{
		{models.EventStatusUpcoming, models.EventStatusOngoing, func(e *models.Event) bool { return !e.StartDate.After(now) }, &result.Started},
		{models.EventStatusOngoing, models.EventStatusCompleted, func(e *models.Event) bool { return !e.EndDate.After(now) }, &result.Completed},
	}

	for _, step := range steps {
		due, err := s.dueEvents(ctx, step.from, step.due)
		if err != nil {
			return result, err
		}
		for _, id := range due {
			moved, err := s.advance(ctx, id, step.from, step.to, step.due)
			if err != nil {
				result.Failed++
				log.Error().Err(err).Str("event_id", id.String()).Msg("Failed to advance event")
				continue
			}
			if moved != nil {
				*step.count++
				monitoring.RecordEventTransition(string(step.to))
				broker.Notify(ctx, s.bus, broker.SubjectEventUpdated, moved)
			}
		}
	}
	return result, nil
}

func (s *Service) dueEvents(ctx context.Context, status models.EventStatus, due func(*models.Event) bool) ([]uuid.UUID, error) {
	const batch = 100
	var ids []uuid.UUID
	for offset := 0; ; offset += batch {
		list, total, err := s.store.Events().List(ctx, store.EventFilter{Status: status, Limit: batch, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s events: %w", status, err)
		}
		for _, e := range list {
			if due(e) {
				ids = append(ids, e.ID)
			}
		}
		if offset+batch >= total || len(list) == 0 {
			return ids, nil
		}
	}
}

// advance re-checks the event under lock; nil means it already moved
func (s *Service) advance(ctx context.Context, id uuid.UUID, from, to models.EventStatus, due func(*models.Event) bool) (*models.Event, error) {
	var out *models.Event
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		e, err := lockEvent(ctx, r, id)
		if err != nil {
			return err
		}
		if e.Status != from || !due(e) {
			return nil
		}
		e.Status = to
		e.UpdatedAt = s.now().UTC()
		if err := r.Events().Update(ctx, e); err != nil {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

func canManage(p *models.Profile, e *models.Event) bool {
	return p.ID == e.OrganizerID || p.Role == models.RoleAdmin
}

func lockEvent(ctx context.Context, r store.Repos, id uuid.UUID) (*models.Event, error) {
	e, err := r.Events().GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return e, nil
}

func lockRegistration(ctx context.Context, r store.Repos, id uuid.UUID) (*models.EventRegistration, error) {
	reg, err := r.Registrations().GetForUpdate(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return reg, nil
}
