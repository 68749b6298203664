package postgres

import (
	"context"
	"fmt"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/google/uuid"
)

const eventColumns = `id, organizer_id, title, description, start_date, end_date, location,
	max_participants, reward_amount, status, created_at, updated_at`

const registrationColumns = `id, event_id, user_id, status, reward_claimed, created_at, updated_at`

type eventRepo struct{ q querier }

func scanEvent(row rowScanner) (*models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.OrganizerID, &e.Title, &e.Description, &e.StartDate, &e.EndDate, &e.Location,
		&e.MaxParticipants, &e.RewardAmount, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

func (r *eventRepo) Create(ctx context.Context, e *models.Event) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.OrganizerID, e.Title, e.Description, e.StartDate, e.EndDate, e.Location,
		e.MaxParticipants, e.RewardAmount, e.Status, e.CreatedAt, e.UpdatedAt)
	return mapErr(err)
}

func (r *eventRepo) Get(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return scanEvent(r.q.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
}

func (r *eventRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return scanEvent(r.q.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
}

func (r *eventRepo) Update(ctx context.Context, e *models.Event) error {
	return expectOne(r.q.Exec(ctx, `
		UPDATE events SET
			title = $2, description = $3, start_date = $4, end_date = $5, location = $6,
			max_participants = $7, reward_amount = $8, status = $9, updated_at = $10
		WHERE id = $1
	`, e.ID, e.Title, e.Description, e.StartDate, e.EndDate, e.Location,
		e.MaxParticipants, e.RewardAmount, e.Status, e.UpdatedAt))
}

func (r *eventRepo) List(ctx context.Context, f store.EventFilter) ([]*models.Event, int, error) {
	w := &where{}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM events`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	rows, err := r.q.Query(ctx, `SELECT `+eventColumns+` FROM events`+w.String()+
		` ORDER BY start_date ASC, id`+pageClause(f.Limit, f.Offset), w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	out := []*models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

type registrationRepo struct{ q querier }

func scanRegistration(row rowScanner) (*models.EventRegistration, error) {
	var reg models.EventRegistration
	err := row.Scan(&reg.ID, &reg.EventID, &reg.UserID, &reg.Status, &reg.RewardClaimed, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &reg, nil
}

func (r *registrationRepo) Create(ctx context.Context, reg *models.EventRegistration) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO event_registrations (`+registrationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, reg.ID, reg.EventID, reg.UserID, reg.Status, reg.RewardClaimed, reg.CreatedAt, reg.UpdatedAt)
	return mapErr(err)
}

func (r *registrationRepo) Get(ctx context.Context, id uuid.UUID) (*models.EventRegistration, error) {
	return scanRegistration(r.q.QueryRow(ctx, `SELECT `+registrationColumns+` FROM event_registrations WHERE id = $1`, id))
}

func (r *registrationRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.EventRegistration, error) {
	return scanRegistration(r.q.QueryRow(ctx, `SELECT `+registrationColumns+` FROM event_registrations WHERE id = $1 FOR UPDATE`, id))
}

func (r *registrationRepo) GetByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.EventRegistration, error) {
	return scanRegistration(r.q.QueryRow(ctx, `
		SELECT `+registrationColumns+` FROM event_registrations WHERE event_id = $1 AND user_id = $2
	`, eventID, userID))
}

func (r *registrationRepo) Update(ctx context.Context, reg *models.EventRegistration) error {
	return expectOne(r.q.Exec(ctx, `
		UPDATE event_registrations SET status = $2, reward_claimed = $3, updated_at = $4 WHERE id = $1
	`, reg.ID, reg.Status, reg.RewardClaimed, reg.UpdatedAt))
}

func (r *registrationRepo) CountByEvent(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM event_registrations WHERE event_id = $1`, eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return n, nil
}

func (r *registrationRepo) list(ctx context.Context, sql string, arg any) ([]*models.EventRegistration, error) {
	rows, err := r.q.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	defer rows.Close()

	out := []*models.EventRegistration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func (r *registrationRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.EventRegistration, error) {
	return r.list(ctx, `SELECT `+registrationColumns+` FROM event_registrations WHERE event_id = $1 ORDER BY created_at, id`, eventID)
}

func (r *registrationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.EventRegistration, error) {
	return r.list(ctx, `SELECT `+registrationColumns+` FROM event_registrations WHERE user_id = $1 ORDER BY created_at, id`, userID)
}
