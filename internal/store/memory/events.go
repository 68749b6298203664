package memory

import (
	"context"
	"sort"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/google/uuid"
)

type eventRepo struct{ *repos }

func copyEvent(e models.Event) *models.Event {
	e.Location = clonePtr(e.Location)
	e.MaxParticipants = clonePtr(e.MaxParticipants)
	return &e
}

func (r *eventRepo) Create(ctx context.Context, e *models.Event) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.events[e.ID]; ok {
			return store.ErrDuplicate
		}
		if _, ok := st.profiles[e.OrganizerID]; !ok {
			return store.ErrNotFound
		}
		st.events[e.ID] = *copyEvent(*e)
		return nil
	})
}

func (r *eventRepo) Get(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var out *models.Event
	err := r.run(ctx, func(st *state) error {
		e, ok := st.events[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyEvent(e)
		return nil
	})
	return out, err
}

func (r *eventRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	return r.Get(ctx, id)
}

func (r *eventRepo) Update(ctx context.Context, e *models.Event) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.events[e.ID]; !ok {
			return store.ErrNotFound
		}
		st.events[e.ID] = *copyEvent(*e)
		return nil
	})
}

func (r *eventRepo) List(ctx context.Context, f store.EventFilter) ([]*models.Event, int, error) {
	var out []*models.Event
	var total int
	err := r.run(ctx, func(st *state) error {
		var all []*models.Event
		for _, e := range st.events {
			if f.Status != "" && e.Status != f.Status {
				continue
			}
			all = append(all, copyEvent(e))
		}
		sort.Slice(all, func(i, j int) bool {
			if !all[i].StartDate.Equal(all[j].StartDate) {
				return all[i].StartDate.Before(all[j].StartDate)
			}
			return all[i].ID.String() < all[j].ID.String()
		})
		total = len(all)
		out = page(all, f.Limit, f.Offset)
		return nil
	})
	return out, total, err
}

type registrationRepo struct{ *repos }

func (r *registrationRepo) Create(ctx context.Context, reg *models.EventRegistration) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.registrations[reg.ID]; ok {
			return store.ErrDuplicate
		}
		if _, ok := st.events[reg.EventID]; !ok {
			return store.ErrNotFound
		}
		for _, other := range st.registrations {
			if other.EventID == reg.EventID && other.UserID == reg.UserID {
				return store.ErrDuplicate
			}
		}
		st.registrations[reg.ID] = *reg
		return nil
	})
}

func (r *registrationRepo) Get(ctx context.Context, id uuid.UUID) (*models.EventRegistration, error) {
	var out *models.EventRegistration
	err := r.run(ctx, func(st *state) error {
		reg, ok := st.registrations[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &reg
		return nil
	})
	return out, err
}

func (r *registrationRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.EventRegistration, error) {
	return r.Get(ctx, id)
}

func (r *registrationRepo) GetByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.EventRegistration, error) {
	var out *models.EventRegistration
	err := r.run(ctx, func(st *state) error {
		for _, reg := range st.registrations {
			if reg.EventID == eventID && reg.UserID == userID {
				out = &reg
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r *registrationRepo) Update(ctx context.Context, reg *models.EventRegistration) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.registrations[reg.ID]; !ok {
			return store.ErrNotFound
		}
		st.registrations[reg.ID] = *reg
		return nil
	})
}

func (r *registrationRepo) CountByEvent(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := r.run(ctx, func(st *state) error {
		for _, reg := range st.registrations {
			if reg.EventID == eventID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *registrationRepo) list(ctx context.Context, match func(reg *models.EventRegistration) bool) ([]*models.EventRegistration, error) {
	var out []*models.EventRegistration
	err := r.run(ctx, func(st *state) error {
		for _, reg := range st.registrations {
			if match(&reg) {
				reg := reg
				out = append(out, &reg)
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

func (r *registrationRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.EventRegistration, error) {
	return r.list(ctx, func(reg *models.EventRegistration) bool { return reg.EventID == eventID })
}

func (r *registrationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.EventRegistration, error) {
	return r.list(ctx, func(reg *models.EventRegistration) bool { return reg.UserID == userID })
}
