package entity

import (
	"time"

	"github.com/google/uuid"
)

type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

type Message struct {
	Id             uuid.UUID
	ConversationId uuid.UUID
	UserId         *string
	Role           MessageRole
	Text           string
	// IndexId points at the similarity index entry holding the same text.
	// Set only after that entry was written.
	IndexId   *string
	Metadata  map[string]interface{}
	CreatedAt time.Time
}
