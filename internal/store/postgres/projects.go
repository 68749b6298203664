package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/google/uuid"
)

const projectColumns = `id, owner_id, title, description, budget, deadline, status,
	skills_required, created_at, updated_at`

const bidColumns = `id, project_id, bidder_id, amount, proposal, status, created_at, updated_at`

const milestoneColumns = `id, project_id, title, description, due_date, completed,
	completed_at, created_at, updated_at`

type projectRepo struct{ q querier }

func scanProject(row rowScanner) (*models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Description, &p.Budget, &p.Deadline, &p.Status,
		&p.SkillsRequired, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (r *projectRepo) Create(ctx context.Context, p *models.Project) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.OwnerID, p.Title, p.Description, p.Budget, p.Deadline, p.Status,
		nonNil(p.SkillsRequired), p.CreatedAt, p.UpdatedAt)
	return mapErr(err)
}

func (r *projectRepo) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return scanProject(r.q.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id))
}

func (r *projectRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return scanProject(r.q.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1 FOR UPDATE`, id))
}

func (r *projectRepo) Update(ctx context.Context, p *models.Project) error {
	return expectOne(r.q.Exec(ctx, `
		UPDATE projects SET
			title = $2, description = $3, budget = $4, deadline = $5, status = $6,
			skills_required = $7, updated_at = $8
		WHERE id = $1
	`, p.ID, p.Title, p.Description, p.Budget, p.Deadline, p.Status,
		nonNil(p.SkillsRequired), p.UpdatedAt))
}

func (r *projectRepo) List(ctx context.Context, f store.ProjectFilter) ([]*models.Project, int, error) {
	w := &where{}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}
	if f.OwnerID != nil {
		w.add("owner_id = $%d", *f.OwnerID)
	}
	if f.Skill != "" {
		w.add("$%d = ANY(skills_required)", f.Skill)
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM projects`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count projects: %w", err)
	}

	rows, err := r.q.Query(ctx, `SELECT `+projectColumns+` FROM projects`+w.String()+
		` ORDER BY created_at DESC, id`+pageClause(f.Limit, f.Offset), w.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	out := []*models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

type bidRepo struct{ q querier }

func scanBid(row rowScanner) (*models.Bid, error) {
	var b models.Bid
	err := row.Scan(&b.ID, &b.ProjectID, &b.BidderID, &b.Amount, &b.Proposal, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &b, nil
}

func (r *bidRepo) Create(ctx context.Context, b *models.Bid) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO bids (`+bidColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, b.ID, b.ProjectID, b.BidderID, b.Amount, b.Proposal, b.Status, b.CreatedAt, b.UpdatedAt)
	return mapErr(err)
}

func (r *bidRepo) Get(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	return scanBid(r.q.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id))
}

func (r *bidRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	return scanBid(r.q.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1 FOR UPDATE`, id))
}

func (r *bidRepo) GetByProjectAndBidder(ctx context.Context, projectID, bidderID uuid.UUID) (*models.Bid, error) {
	return scanBid(r.q.QueryRow(ctx, `
		SELECT `+bidColumns+` FROM bids WHERE project_id = $1 AND bidder_id = $2
	`, projectID, bidderID))
}

func (r *bidRepo) Update(ctx context.Context, b *models.Bid) error {
	return expectOne(r.q.Exec(ctx, `
		UPDATE bids SET amount = $2, proposal = $3, status = $4, updated_at = $5 WHERE id = $1
	`, b.ID, b.Amount, b.Proposal, b.Status, b.UpdatedAt))
}

func (r *bidRepo) list(ctx context.Context, sql string, arg any) ([]*models.Bid, error) {
	rows, err := r.q.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	out := []*models.Bid{}
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *bidRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Bid, error) {
	return r.list(ctx, `SELECT `+bidColumns+` FROM bids WHERE project_id = $1 ORDER BY created_at, id`, projectID)
}

func (r *bidRepo) ListByBidder(ctx context.Context, bidderID uuid.UUID) ([]*models.Bid, error) {
	return r.list(ctx, `SELECT `+bidColumns+` FROM bids WHERE bidder_id = $1 ORDER BY created_at, id`, bidderID)
}

func (r *bidRepo) RejectPending(ctx context.Context, projectID, exceptID uuid.UUID, at time.Time) (int, error) {
	tag, err := r.q.Exec(ctx, `
		UPDATE bids SET status = 'rejected', updated_at = $3
		WHERE project_id = $1 AND id <> $2 AND status = 'pending'
	`, projectID, exceptID, at)
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}

type milestoneRepo struct{ q querier }

func scanMilestone(row rowScanner) (*models.Milestone, error) {
	var m models.Milestone
	err := row.Scan(&m.ID, &m.ProjectID, &m.Title, &m.Description, &m.DueDate, &m.Completed,
		&m.CompletedAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (r *milestoneRepo) Create(ctx context.Context, m *models.Milestone) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO milestones (`+milestoneColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, m.ID, m.ProjectID, m.Title, m.Description, m.DueDate, m.Completed, m.CompletedAt, m.CreatedAt, m.UpdatedAt)
	return mapErr(err)
}

func (r *milestoneRepo) Get(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	return scanMilestone(r.q.QueryRow(ctx, `SELECT `+milestoneColumns+` FROM milestones WHERE id = $1`, id))
}

func (r *milestoneRepo) Update(ctx context.Context, m *models.Milestone) error {
	return expectOne(r.q.Exec(ctx, `
		UPDATE milestones SET
			title = $2, description = $3, due_date = $4, completed = $5, completed_at = $6, updated_at = $7
		WHERE id = $1
	`, m.ID, m.Title, m.Description, m.DueDate, m.Completed, m.CompletedAt, m.UpdatedAt))
}

func (r *milestoneRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Milestone, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+milestoneColumns+` FROM milestones WHERE project_id = $1 ORDER BY due_date, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list milestones: %w", err)
	}
	defer rows.Close()

	out := []*models.Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
