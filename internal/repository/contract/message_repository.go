package contract

import (
	"context"

	"code-review-be/internal/entity"
	"code-review-be/internal/repository/specification"

	"github.com/google/uuid"
)

type MessageRepository interface {
	Create(ctx context.Context, message *entity.Message) error
	SetIndexId(ctx context.Context, id uuid.UUID, indexId string) error
	FindAll(ctx context.Context, specs ...specification.Specification) ([]*entity.Message, error)
}
