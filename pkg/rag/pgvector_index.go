package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"code-review-be/internal/model"
)

// PgvectorIndex stores vectors in the code_embeddings table and ranks them
// with pgvector's cosine distance operator.
type PgvectorIndex struct {
	db   *gorm.DB
	dims int
}

func NewPgvectorIndex(db *gorm.DB) *PgvectorIndex {
	return &PgvectorIndex{db: db}
}

func (p *PgvectorIndex) table() string {
	return model.CodeEmbedding{}.TableName()
}

func (p *PgvectorIndex) EnsureSchema(ctx context.Context, dims int) error {
	db := p.db.WithContext(ctx)

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	var existing []int
	err := db.Raw(
		"SELECT atttypmod FROM pg_attribute WHERE attrelid = to_regclass(?) AND attname = 'embedding_value' AND NOT attisdropped",
		p.table(),
	).Scan(&existing).Error
	if err != nil {
		return fmt.Errorf("inspect %s: %w", p.table(), err)
	}

	if len(existing) == 1 && existing[0] != dims {
		if err := db.Exec(fmt.Sprintf("DROP TABLE %s", p.table())).Error; err != nil {
			return fmt.Errorf("drop %s (dimension %d): %w", p.table(), existing[0], err)
		}
	}

	ddl := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id varchar(64) PRIMARY KEY,
			document text NOT NULL,
			embedding_value vector(%d) NOT NULL,
			metadata jsonb,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, p.table(), dims),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_hnsw ON %[1]s USING hnsw (embedding_value vector_cosine_ops)", p.table()),
	}
	for _, stmt := range ddl {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}

	p.dims = dims
	return nil
}

func (p *PgvectorIndex) Upsert(ctx context.Context, id, document string, vector []float32, metadata map[string]interface{}) error {
	if p.dims > 0 && len(vector) != p.dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), p.dims)
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	row := &model.CodeEmbedding{
		Id:             id,
		Document:       document,
		EmbeddingValue: pgvector.NewVector(vector),
		Metadata:       datatypes.JSON(meta),
	}

	return p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"document", "embedding_value", "metadata"}),
		}).
		Create(row).Error
}

func (p *PgvectorIndex) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return []Match{}, nil
	}

	queryVector := pgvector.NewVector(vector)

	// cosine similarity = 1 - cosine distance
	var results []model.CodeEmbeddingWithScore
	err := p.db.WithContext(ctx).
		Table(p.table()).
		Select(p.table()+".*, 1 - (embedding_value <=> ?) as similarity", queryVector).
		Order(gorm.Expr("embedding_value <=> ?", queryVector)).
		Limit(k).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(results))
	for _, res := range results {
		meta := map[string]interface{}{}
		if len(res.Metadata) > 0 {
			if err := json.Unmarshal(res.Metadata, &meta); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", res.Id, err)
			}
		}
		matches = append(matches, Match{ID: res.Id, Score: res.Similarity, Metadata: meta})
	}
	return matches, nil
}
