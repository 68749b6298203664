package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/aimerfeng/Gigsy/internal/models"
	"github.com/google/uuid"
)

const conversationColumns = `id, name, is_group, created_at, updated_at`

const memberColumns = `conversation_id, member_id, last_seen_message_id, last_seen_seq, joined_at`

const messageColumns = `id, seq, conversation_id, sender_id, content, type, created_at`

type conversationRepo struct{ q querier }

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var c models.Conversation
	if err := row.Scan(&c.ID, &c.Name, &c.IsGroup, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func scanMember(row rowScanner) (*models.ConversationMember, error) {
	var m models.ConversationMember
	if err := row.Scan(&m.ConversationID, &m.MemberID, &m.LastSeenMessageID, &m.LastSeenSeq, &m.JoinedAt); err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (r *conversationRepo) Create(ctx context.Context, c *models.Conversation) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO conversations (`+conversationColumns+`) VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.Name, c.IsGroup, c.CreatedAt, c.UpdatedAt)
	return mapErr(err)
}

func (r *conversationRepo) Get(ctx context.Context, id uuid.UUID) (*models.Conversation, error) {
	return scanConversation(r.q.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
}

func (r *conversationRepo) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	return expectOne(r.q.Exec(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, id, at))
}

func (r *conversationRepo) AddMember(ctx context.Context, m *models.ConversationMember) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO conversation_members (`+memberColumns+`) VALUES ($1, $2, $3, $4, $5)
	`, m.ConversationID, m.MemberID, m.LastSeenMessageID, m.LastSeenSeq, m.JoinedAt)
	return mapErr(err)
}

func (r *conversationRepo) GetMember(ctx context.Context, conversationID, memberID uuid.UUID) (*models.ConversationMember, error) {
	return scanMember(r.q.QueryRow(ctx, `
		SELECT `+memberColumns+` FROM conversation_members WHERE conversation_id = $1 AND member_id = $2
	`, conversationID, memberID))
}

func (r *conversationRepo) GetMemberForUpdate(ctx context.Context, conversationID, memberID uuid.UUID) (*models.ConversationMember, error) {
	return scanMember(r.q.QueryRow(ctx, `
		SELECT `+memberColumns+` FROM conversation_members
		WHERE conversation_id = $1 AND member_id = $2 FOR UPDATE
	`, conversationID, memberID))
}

func (r *conversationRepo) UpdateMember(ctx context.Context, m *models.ConversationMember) error {
	return expectOne(r.q.Exec(ctx, `
		UPDATE conversation_members SET last_seen_message_id = $3, last_seen_seq = $4
		WHERE conversation_id = $1 AND member_id = $2
	`, m.ConversationID, m.MemberID, m.LastSeenMessageID, m.LastSeenSeq))
}

func (r *conversationRepo) ListMembers(ctx context.Context, conversationID uuid.UUID) ([]*models.ConversationMember, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+memberColumns+` FROM conversation_members
		WHERE conversation_id = $1 ORDER BY joined_at, member_id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	out := []*models.ConversationMember{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *conversationRepo) ListForMember(ctx context.Context, memberID uuid.UUID) ([]*models.Conversation, error) {
	rows, err := r.q.Query(ctx, `
		SELECT c.id, c.name, c.is_group, c.created_at, c.updated_at
		FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id
		WHERE m.member_id = $1
		ORDER BY c.updated_at DESC, c.id
	`, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	out := []*models.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type messageRepo struct{ q querier }

func scanMessage(row rowScanner) (*models.Message, error) {
	var m models.Message
	if err := row.Scan(&m.ID, &m.Seq, &m.ConversationID, &m.SenderID, &m.Content, &m.Type, &m.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (r *messageRepo) Create(ctx context.Context, m *models.Message) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING seq
	`, m.ID, m.ConversationID, m.SenderID, m.Content, m.Type, m.CreatedAt).Scan(&m.Seq)
	return mapErr(err)
}

func (r *messageRepo) Get(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return scanMessage(r.q.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

func (r *messageRepo) List(ctx context.Context, conversationID uuid.UUID, afterSeq int64, limit int) ([]*models.Message, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+messageColumns+` FROM messages
		WHERE conversation_id = $1 AND seq > $2
		ORDER BY seq`+pageClause(limit, 0), conversationID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	out := []*models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
