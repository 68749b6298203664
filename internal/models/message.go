package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageType represents the kind of message content
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeSystem MessageType = "system"
)

// Conversation is a direct or group chat
type Conversation struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      *string   `json:"name,omitempty" db:"name"`
	IsGroup   bool      `json:"is_group" db:"is_group"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ConversationMember records membership and the last message a member has seen
type ConversationMember struct {
	ConversationID    uuid.UUID  `json:"conversation_id" db:"conversation_id"`
	MemberID          uuid.UUID  `json:"member_id" db:"member_id"`
	LastSeenMessageID *uuid.UUID `json:"last_seen_message_id,omitempty" db:"last_seen_message_id"`
	LastSeenSeq       int64      `json:"last_seen_seq" db:"last_seen_seq"`
	JoinedAt          time.Time  `json:"joined_at" db:"joined_at"`
}

// Message is immutable once stored. Seq is assigned by the store and gives
// the total order of messages.
type Message struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	ConversationID uuid.UUID   `json:"conversation_id" db:"conversation_id"`
	SenderID       uuid.UUID   `json:"sender_id" db:"sender_id"`
	Content        string      `json:"content" db:"content"`
	Type           MessageType `json:"type" db:"type"`
	Seq            int64       `json:"seq" db:"seq"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}
