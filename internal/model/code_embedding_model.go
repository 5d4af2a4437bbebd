package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// CodeEmbedding is a row of the similarity index. The table is provisioned
// by rag.PgvectorIndex so the vector column carries the configured dimension.
type CodeEmbedding struct {
	Id             string          `gorm:"type:varchar(64);primaryKey"`
	Document       string          `gorm:"type:text;not null"`
	EmbeddingValue pgvector.Vector `gorm:"type:vector"`
	Metadata       datatypes.JSON  `gorm:"type:jsonb"`
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
}

func (CodeEmbedding) TableName() string {
	return "code_embeddings"
}

type CodeEmbeddingWithScore struct {
	CodeEmbedding
	Similarity float64
}
