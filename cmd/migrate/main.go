package main

import (
	"context"
	"log"

	"code-review-be/internal/bootstrap"
	"code-review-be/internal/config"
	"code-review-be/internal/model"
	"code-review-be/pkg/database"
	"code-review-be/pkg/rag"
)

func main() {
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DATABASE_URL is not set")
	}

	db, err := database.Open(cfg.Database.Connection)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Step 1: Running AutoMigrate for relational tables...")
	if err := db.AutoMigrate(model.Relational()...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	if database.IsSQLite(cfg.Database.Connection) {
		log.Println("Success: sqlite database migrated (similarity index is in-memory)")
		return
	}

	log.Printf("Step 2: Provisioning similarity index (%d dimensions)...", cfg.Ai.EmbeddingDimension)
	embedder, err := bootstrap.NewEmbeddingProvider(cfg.Ai)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	gateway := rag.NewGateway(embedder, rag.NewPgvectorIndex(db))
	if err := gateway.EnsureIndex(context.Background()); err != nil {
		log.Fatalf("Error: %v", err)
	}

	log.Println("Success: Database migration completed.")
}
