package memory

import (
	"context"
	"sort"
	"time"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/aimerfeng/Gigsy/internal/store"
	"github.com/google/uuid"
)

type conversationRepo struct{ *repos }

func copyConversation(c models.Conversation) *models.Conversation {
	c.Name = clonePtr(c.Name)
	return &c
}

func copyMember(m models.ConversationMember) *models.ConversationMember {
	m.LastSeenMessageID = clonePtr(m.LastSeenMessageID)
	return &m
}

func (r *conversationRepo) Create(ctx context.Context, c *models.Conversation) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.conversations[c.ID]; ok {
			return store.ErrDuplicate
		}
		st.conversations[c.ID] = *copyConversation(*c)
		return nil
	})
}

func (r *conversationRepo) Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	var out *models.Conversation
	err := r.run(ctx, func(st *state) error {
		c, ok := st.conversations[id]
		if !ok {
			return store.ErrNotFound
		}
		out = copyConversation(c)
		return nil
	})
	return out, err
}

func (r *conversationRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.run(ctx, func(st *state) error {
		c, ok := st.conversations[id]
		if !ok {
			return store.ErrNotFound
		}
		c.UpdatedAt = at
		st.conversations[id] = c
		return nil
	})
}

func (r *conversationRepo) AddMember(ctx context.Context, m *models.ConversationMember) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.conversations[m.ConversationID]; !ok {
			return store.ErrNotFound
		}
		if _, ok := st.profiles[m.MemberID]; !ok {
			return store.ErrNotFound
		}
		key := memberKey{m.ConversationID, m.MemberID}
		if _, ok := st.members[key]; ok {
			return store.ErrDuplicate
		}
		st.members[key] = *copyMember(*m)
		return nil
	})
}

func (r *conversationRepo) GetMember(ctx context.Context, conversationID, memberID uuid.UUID) (*models.ConversationMember, error) {
	var out *models.ConversationMember
	err := r.run(ctx, func(st *state) error {
		m, ok := st.members[memberKey{conversationID, memberID}]
		if !ok {
			return store.ErrNotFound
		}
		out = copyMember(m)
		return nil
	})
	return out, err
}

func (r *conversationRepo) GetMemberForUpdate(ctx context.Context, conversationID, memberID uuid.UUID) (*models.ConversationMember, error) {
	return r.GetMember(ctx, conversationID, memberID)
}

func (r *conversationRepo) UpdateMember(ctx context.Context, m *models.ConversationMember) error {
	return r.run(ctx, func(st *state) error {
		key := memberKey{m.ConversationID, m.MemberID}
		if _, ok := st.members[key]; !ok {
			return store.ErrNotFound
		}
		st.members[key] = *copyMember(*m)
		return nil
	})
}

func (r *conversationRepo) ListMembers(ctx context.Context, conversationID uuid.UUID) ([]*models.ConversationMember, error) {
	var out []*models.ConversationMember
	err := r.run(ctx, func(st *state) error {
		for key, m := range st.members {
			if key.conversationID == conversationID {
				out = append(out, copyMember(m))
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
				return out[i].JoinedAt.Before(out[j].JoinedAt)
			}
			return out[i].MemberID.String() < out[j].MemberID.String()
		})
		return nil
	})
	return out, err
}

func (r *conversationRepo) ListForMember(ctx context.Context, memberID uuid.UUID) ([]*models.Conversation, error) {
	var out []*models.Conversation
	err := r.run(ctx, func(st *state) error {
		for key := range st.members {
			if key.memberID != memberID {
				continue
			}
			if c, ok := st.conversations[key.conversationID]; ok {
				out = append(out, copyConversation(c))
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
				return out[i].UpdatedAt.After(out[j].UpdatedAt)
			}
			return out[i].ID.String() < out[j].ID.String()
		})
		return nil
	})
	return out, err
}

type messageRepo struct{ *repos }

func (r *messageRepo) Create(ctx context.Context, m *models.Message) error {
	return r.run(ctx, func(st *state) error {
		if _, ok := st.messages[m.ID]; ok {
			return store.ErrDuplicate
		}
		if _, ok := st.conversations[m.ConversationID]; !ok {
			return store.ErrNotFound
		}
		st.seq++
		m.Seq = st.seq
		st.messages[m.ID] = *m
		return nil
	})
}

func (r *messageRepo) Get(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var out *models.Message
	err := r.run(ctx, func(st *state) error {
		m, ok := st.messages[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &m
		return nil
	})
	return out, err
}

func (r *messageRepo) List(ctx context.Context, conversationID uuid.UUID, afterSeq int64, limit int) ([]*models.Message, error) {
	var out []*models.Message
	err := r.run(ctx, func(st *state) error {
		for _, m := range st.messages {
			if m.ConversationID == conversationID && m.Seq > afterSeq {
				m := m
				out = append(out, &m)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
		out = page(out, limit, 0)
		return nil
	})
	return out, err
}
