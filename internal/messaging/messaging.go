package messaging

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
)

// Messaging errors
var (
	ErrNoIdentity           = fmt.Errorf("%w: no caller identity", models.ErrUnauthorized)
	ErrNotMember            = fmt.Errorf("%w: caller is not a conversation member", models.ErrForbidden)
	ErrConversationNotFound = fmt.Errorf("conversation %w", models.ErrNotFound)
	ErrMessageNotFound      = fmt.Errorf("message %w", models.ErrNotFound)
	ErrMemberNotFound       = fmt.Errorf("member %w", models.ErrNotFound)
)

const (
	maxContent  = 4000
	maxName     = 80
	maxMembers  = 50
	defaultPage = 50
	maxPage     = 200
)

// Service runs conversations and messages
type Service struct {
	store store.Store
	bus   broker.Bus
	now   func() time.Time
}

// NewService creates a new messaging service
func NewService(st store.Store, bus broker.Bus) *Service {
	return &Service{
		store: st,
		bus:   bus,
		now:   time.Now,
	}
}

// CreateConversationRequest represents a new conversation
type CreateConversationRequest struct {
	MemberIDs []uuid.UUID `json:"member_ids" binding:"required"`
	Name      *string     `json:"name"`
	IsGroup   bool        `json:"is_group"`
}

// ConversationResponse is a conversation with its members
type ConversationResponse struct {
	*models.Conversation
	Members []*models.ConversationMember `json:"members"`
}

// SendMessageRequest represents a new message
type SendMessageRequest struct {
	Content string             `json:"content" binding:"required"`
	Type    models.MessageType `json:"type"`
}

// MarkSeenRequest names the newest message a member has read
type MarkSeenRequest struct {
	MessageID uuid.UUID `json:"message_id" binding:"required"`
}

// CreateConversation opens a conversation. The creator is always a member;
// a direct conversation has exactly two.
func (s *Service) CreateConversation(ctx context.Context, creator *models.Profile, req *CreateConversationRequest) (*ConversationResponse, error) {
	if creator == nil {
		return nil, ErrNoIdentity
	}

	members := []uuid.UUID{creator.ID}
	seen := map[uuid.UUID]bool{creator.ID: true}
	for _, id := range req.MemberIDs {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		members = append(members, id)
	}

	var name *string
	if req.Name != nil {
		if n := strings.TrimSpace(*req.Name); n != "" {
			name = &n
		}
	}

	v := &models.ValidationError{}
	switch {
	case !req.IsGroup && len(members) != 2:
		v.Add("member_ids", "a direct conversation needs exactly one other member")
	case req.IsGroup && len(members) < 2:
		v.Add("member_ids", "a group needs at least one other member")
	case len(members) > maxMembers:
		v.Add("member_ids", fmt.Sprintf("at most %d members", maxMembers))
	}
	if name != nil && utf8.RuneCountInString(*name) > maxName {
		v.Add("name", fmt.Sprintf("must be at most %d characters", maxName))
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	c := &models.Conversation{
		ID:        uuid.New(),
		Name:      name,
		IsGroup:   req.IsGroup,
		CreatedAt: now,
		UpdatedAt: now,
	}
	resp := &ConversationResponse{Conversation: c}

	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		if err := r.Conversations().Create(ctx, c); err != nil {
			return err
		}
		for _, id := range members {
			m := &models.ConversationMember{ConversationID: c.ID, MemberID: id, JoinedAt: now}
			if err := r.Conversations().AddMember(ctx, m); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("%w: %s", ErrMemberNotFound, id)
				}
				return err
			}
			resp.Members = append(resp.Members, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return resp, nil
}

// ListConversations returns the caller's conversations, most recent first
func (s *Service) ListConversations(ctx context.Context, caller *models.Profile) ([]*models.Conversation, error) {
	if caller == nil {
		return nil, ErrNoIdentity
	}
	list, err := s.store.Conversations().ListForMember(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	if list == nil {
		list = []*models.Conversation{}
	}
	return list, nil
}

// CheckMember returns nil when memberID belongs to the conversation
func (s *Service) CheckMember(ctx context.Context, conversationID, memberID uuid.UUID) error {
	if _, err := s.store.Conversations().Get(ctx, conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	if _, err := s.store.Conversations().GetMember(ctx, conversationID, memberID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotMember
		}
		return err
	}
	return nil
}

// SendMessage appends a message. Other members' read pointers are untouched.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID uuid.UUID, req *SendMessageRequest) (*models.Message, error) {
	content := strings.TrimSpace(req.Content)
	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}

	v := &models.ValidationError{}
	if content == "" {
		v.Add("content", "is required")
	} else if utf8.RuneCountInString(content) > maxContent {
		v.Add("content", fmt.Sprintf("must be at most %d characters", maxContent))
	}
	if msgType != models.MessageTypeText && msgType != models.MessageTypeImage {
		v.Add("type", "must be text or image")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	var msg *models.Message
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		if _, err := r.Conversations().Get(ctx, conversationID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrConversationNotFound
			}
			return err
		}
		if _, err := r.Conversations().GetMember(ctx, conversationID, senderID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotMember
			}
			return err
		}

		// the conversation row lock orders seq allocation with commit order
		now := s.now().UTC()
		if err := r.Conversations().Touch(ctx, conversationID, now); err != nil {
			return err
		}
		msg = &models.Message{
			ID:             uuid.New(),
			ConversationID: conversationID,
			SenderID:       senderID,
			Content:        content,
			Type:           msgType,
			CreatedAt:      now,
		}
		return r.Messages().Create(ctx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	monitoring.RecordMessageSent()
	broker.Notify(ctx, s.bus, broker.SubjectMessageCreated, msg)
	return msg, nil
}

// ListMessages returns messages after the given sequence, oldest first
func (s *Service) ListMessages(ctx context.Context, conversationID, viewerID uuid.UUID, afterSeq int64, limit int) ([]*models.Message, error) {
	if err := s.CheckMember(ctx, conversationID, viewerID); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = defaultPage
	}
	if limit > maxPage {
		limit = maxPage
	}
	if afterSeq < 0 {
		afterSeq = 0
	}

	list, err := s.store.Messages().List(ctx, conversationID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if list == nil {
		list = []*models.Message{}
	}
	return list, nil
}

// MarkSeen advances a member's read pointer. The pointer only moves forward:
// the same or an older message leaves it unchanged.
func (s *Service) MarkSeen(ctx context.Context, conversationID, memberID, messageID uuid.UUID) (*models.ConversationMember, error) {
	var out *models.ConversationMember
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(r store.Repos) error {
		m, err := r.Conversations().GetMemberForUpdate(ctx, conversationID, memberID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrNotMember
			}
			return err
		}
		msg, err := r.Messages().Get(ctx, messageID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrMessageNotFound
			}
			return err
		}
		if msg.ConversationID != conversationID {
			return ErrMessageNotFound
		}

		out = m
		if msg.Seq <= m.LastSeenSeq {
			return nil
		}
		id := msg.ID
		m.LastSeenMessageID = &id
		m.LastSeenSeq = msg.Seq
		return r.Conversations().UpdateMember(ctx, m)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark seen: %w", err)
	}
	return out, nil
}
