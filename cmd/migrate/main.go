package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/qapilot/backend/internal/db"
	"github.com/qapilot/backend/internal/logger"
)

func main() {
	logger.Initialize()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Connect to database
	if err := db.Connect(); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}

	// Run migrations
	log.Println("Running database migrations...")
	if err := db.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ Database migrations completed successfully!")
}
