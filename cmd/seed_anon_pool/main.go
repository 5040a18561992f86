package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"watchparty-backend/internal/identity"
	"watchparty-backend/internal/model"
)

func main() {
	size := flag.Int("size", 5, "number of pool identities to ensure")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Database connection
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		os.Getenv("DB_HOST"),
		os.Getenv("DB_PORT"),
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		os.Getenv("DB_NAME"),
		os.Getenv("DB_SSLMODE"),
		os.Getenv("DB_TIMEZONE"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	fmt.Println("✅ Connected to database")
	fmt.Println()

	resolver := identity.NewResolver(db, 0)
	if err := resolver.EnsurePool(context.Background(), *size); err != nil {
		log.Fatal("Failed to seed pool:", err)
	}

	var pool []model.User
	if err := db.Where("is_pool_identity = ?", true).Order("nickname ASC").Find(&pool).Error; err != nil {
		log.Fatal("Failed to list pool:", err)
	}

	fmt.Printf("📊 Pool identities: %d\n", len(pool))
	for _, u := range pool {
		var hosting int64
		db.Model(&model.Room{}).
			Where("host_id = ? AND status <> ?", u.ID, model.RoomStatusEnded.String()).
			Count(&hosting)
		fmt.Printf("  - %s (%s): hosting %d room(s)\n", u.Nickname, u.ID, hosting)
	}

	fmt.Println()
	fmt.Println("Done.")
}
