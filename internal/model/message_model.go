package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Message struct {
	Id             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ConversationId uuid.UUID      `gorm:"type:uuid;not null;index"`
	UserId         *string        `gorm:"type:varchar(32);index"`
	Role           string         `gorm:"type:varchar(20);not null"`
	Text           string         `gorm:"type:text;not null"`
	IndexId        *string        `gorm:"type:varchar(64)"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"autoCreateTime"`
}

func (Message) TableName() string {
	return "messages"
}
