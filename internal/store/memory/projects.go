package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/google/uuid"
)

type projectRepo struct{ *repos }

func copyProject(p models.Project) *models.Project {
	p.SkillsRequired = slices.Clone(p.SkillsRequired)
	return &p
}

func (r *projectRepo) Create(ctx context.Context, p *models.Project) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.projects[p.ID]; ok {
			return store.ErrDuplicate
		}
		if _, ok := st.profiles[p.OwnerID]; !ok {
			return store.ErrNotFound
		}
		st.projects[p.ID] = *copyProject(*p)
		return nil
	})
}

func (r *projectRepo) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var out *models.Project
	err := r.run(ctx, func(st *state) error {
		p, ok := st.projects[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyProject(p)
		return nil
	})
	return out, err
}

func (r *projectRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return r.Get(ctx, id)
}

func (r *projectRepo) Update(ctx context.Context, p *models.Project) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.projects[p.ID]; !ok {
			return store.ErrNotFound
		}
		st.projects[p.ID] = *copyProject(*p)
		return nil
	})
}

func (r *projectRepo) List(ctx context.Context, f store.ProjectFilter) ([]*models.Project, int, error) {
	var out []*models.Project
	var total int
	err := r.run(ctx, func(st *state) error {
		var all []*models.Project
		for _, p := range st.projects {
			if f.Status != "" && p.Status != f.Status {
				continue
			}
			if f.OwnerID != nil && p.OwnerID != *f.OwnerID {
				continue
			}
			if f.Skill != "" && !slices.Contains(p.SkillsRequired, f.Skill) {
				continue
			}
			all = append(all, copyProject(p))
		}
		sort.Slice(all, func(i, j int) bool {
			if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
				return all[i].CreatedAt.After(all[j].CreatedAt)
			}
			return all[i].ID.String() < all[j].ID.String()
		})
		total = len(all)
		out = page(all, f.Limit, f.Offset)
		return nil
	})
	return out, total, err
}

type bidRepo struct{ *repos }

func (r *bidRepo) Create(ctx context.Context, b *models.Bid) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.bids[b.ID]; ok {
			return store.ErrDuplicate
		}
		if _, ok := st.projects[b.ProjectID]; !ok {
			return store.ErrNotFound
		}
		for _, other := range st.bids {
			if other.ProjectID == b.ProjectID && other.BidderID == b.BidderID {
				return store.ErrDuplicate
			}
		}
		st.bids[b.ID] = *b
		return nil
	})
}

func (r *bidRepo) Get(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	var out *models.Bid
	err := r.run(ctx, func(st *state) error {
		b, ok := st.bids[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &b
		return nil
	})
	return out, err
}

func (r *bidRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Bid, error) {
	return r.Get(ctx, id)
}

func (r *bidRepo) GetByProjectAndBidder(ctx context.Context, projectID, bidderID uuid.UUID) (*models.Bid, error) {
	var out *models.Bid
	err := r.run(ctx, func(st *state) error {
		for _, b := range st.bids {
			if b.ProjectID == projectID && b.BidderID == bidderID {
				out = &b
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r *bidRepo) Update(ctx context.Context, b *models.Bid) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.bids[b.ID]; !ok {
			return store.ErrNotFound
		}
		if b.Status == models.BidStatusAccepted {
			for id, other := range st.bids {
				if id != b.ID && other.ProjectID == b.ProjectID && other.Status == models.BidStatusAccepted {
					return store.ErrDuplicate
				}
			}
		}
		st.bids[b.ID] = *b
		return nil
	})
}

func (r *bidRepo) list(ctx context.Context, match func(b *models.Bid) bool) ([]*models.Bid, error) {
	var out []*models.Bid
	err := r.run(ctx, func(st *state) error {
		for _, b := range st.bids {
			if match(&b) {
				b := b
				out = append(out, &b)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.Before(out[j].CreatedAt)
			}
			return out[i].ID.String() < out[j].ID.String()
		})
		return nil
	})
	return out, err
}

func (r *bidRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Bid, error) {
	return r.list(ctx, func(b *models.Bid) bool { return b.ProjectID == projectID })
}

func (r *bidRepo) ListByBidder(ctx context.Context, bidderID uuid.UUID) ([]*models.Bid, error) {
	return r.list(ctx, func(b *models.Bid) bool { return b.BidderID == bidderID })
}

func (r *bidRepo) RejectPending(ctx context.Context, projectID, exceptID uuid.UUID, at time.Time) (int, error) {
	var n int
	err := r.run(ctx, func(st *state) error {
		for id, b := range st.bids {
			if b.ProjectID != projectID || id == exceptID || b.Status != models.BidStatusPending {
				continue
			}
			b.Status = models.BidStatusRejected
			b.UpdatedAt = at
			st.bids[id] = b
			n++
		}
		return nil
	})
	return n, err
}

type milestoneRepo struct{ *repos }

func copyMilestone(m models.Milestone) *models.Milestone {
	m.Description = clonePtr(m.Description)
	m.CompletedAt = clonePtr(m.CompletedAt)
	return &m
}

func (r *milestoneRepo) Create(ctx context.Context, m *models.Milestone) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.milestones[m.ID]; ok {
			return store.ErrDuplicate
		}
		if _, ok := st.projects[m.ProjectID]; !ok {
			return store.ErrNotFound
		}
		st.milestones[m.ID] = *copyMilestone(*m)
		return nil
	})
}

func (r *milestoneRepo) Get(ctx context.Context, id uuid.UUID) (*models.Milestone, error) {
	var out *models.Milestone
	err := r.run(ctx, func(st *state) error {
		m, ok := st.milestones[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyMilestone(m)
		return nil
	})
	return out, err
}

func (r *milestoneRepo) Update(ctx context.Context, m *models.Milestone) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.milestones[m.ID]; !ok {
			return store.ErrNotFound
		}
		st.milestones[m.ID] = *copyMilestone(*m)
		return nil
	})
}

func (r *milestoneRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Milestone, error) {
	var out []*models.Milestone
	err := r.run(ctx, func(st *state) error {
		for _, m := range st.milestones {
			if m.ProjectID == projectID {
				out = append(out, copyMilestone(m))
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].DueDate.Equal(out[j].DueDate) {
				return out[i].DueDate.Before(out[j].DueDate)
			}
			return out[i].ID.String() < out[j].ID.String()
		})
		return nil
	})
	return out, err
}
