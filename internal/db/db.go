package db

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"maritime-tutor/internal/chat"
	"maritime-tutor/internal/config"
	"maritime-tutor/internal/user"
)

var DB *gorm.DB

// Init opens the gorm connection used for the user/chat/message tables.
// The semantic_memories and knowledge_embeddings tables (spec §6) are
// owned by internal/memory and internal/vectorstore respectively, via a
// separate pgxpool.Pool connection opened in cmd/server/main.go — they
// are not gorm models and are not migrated here.
func Init(cfg *config.Config) error {
	db, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{})
	if err != nil {
		return err
	}

	if err := db.AutoMigrate(&user.User{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&chat.Chat{}, &chat.Message{}); err != nil {
		return err
	}

	DB = db
	log.Printf("Database connected and migrated")
	return nil
}
