package memory

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/google/uuid"
)

type profileRepo struct{ *repos }

func copyProfile(p models.Profile) *models.Profile {
	p.DisplayName = clonePtr(p.DisplayName)
	p.AvatarURL = clonePtr(p.AvatarURL)
	p.Bio = clonePtr(p.Bio)
	p.Phone = clonePtr(p.Phone)
	p.VerifiedBy = clonePtr(p.VerifiedBy)
	p.VerifiedAt = clonePtr(p.VerifiedAt)
	p.Subject = clonePtr(p.Subject)
	p.PasswordHash = clonePtr(p.PasswordHash)
	p.Skills = slices.Clone(p.Skills)
	return &p
}

// clashes reports whether p collides with another profile on email or subject
func clashes(st *state, p *models.Profile) bool {
	for id, other := range st.profiles {
		if id == p.ID {
			continue
		}
		if strings.EqualFold(other.Email, p.Email) {
			return true
		}
		if p.Subject != nil && other.Subject != nil && *p.Subject == *other.Subject {
			return true
		}
	}
	return false
}

func (r *profileRepo) Create(ctx context.Context, p *models.Profile) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.profiles[p.ID]; ok || clashes(st, p) {
			return store.ErrDuplicate
		}
		st.profiles[p.ID] = *copyProfile(*p)
		return nil
	})
}

func (r *profileRepo) Get(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var out *models.Profile
	err := r.run(ctx, func(st *state) error {
		p, ok := st.profiles[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyProfile(p)
		return nil
	})
	return out, err
}

func (r *profileRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return r.Get(ctx, id)
}

func (r *profileRepo) find(ctx context.Context, match func(p *models.Profile) bool) (*models.Profile, error) {
	var out *models.Profile
	err := r.run(ctx, func(st *state) error {
		for _, p := range st.profiles {
			if match(&p) {
				out = copyProfile(p)
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r *profileRepo) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return r.find(ctx, func(p *models.Profile) bool {
		return strings.EqualFold(p.Email, email)
	})
}

func (r *profileRepo) GetBySubject(ctx context.Context, subject string) (*models.Profile, error) {
	return r.find(ctx, func(p *models.Profile) bool {
		return p.Subject != nil && *p.Subject == subject
	})
}

func (r *profileRepo) Update(ctx context.Context, p *models.Profile) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.profiles[p.ID]; !ok {
			return store.ErrNotFound
		}
		if clashes(st, p) {
			return store.ErrDuplicate
		}
		st.profiles[p.ID] = *copyProfile(*p)
		return nil
	})
}

func (r *profileRepo) List(ctx context.Context, f store.ProfileFilter) ([]*models.Profile, int, error) {
	var out []*models.Profile
	var total int
	err := r.run(ctx, func(st *state) error {
		var all []*models.Profile
		for _, p := range st.profiles {
			if f.Role != "" && p.Role != f.Role {
				continue
			}
			all = append(all, copyProfile(p))
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
