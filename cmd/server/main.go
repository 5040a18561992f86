package main

import (
	"context"
	"log"

	"watchparty-backend/internal/config"
	"watchparty-backend/internal/database"
	"watchparty-backend/internal/identity"
	"watchparty-backend/internal/server"
)

func main() {
	// 설정 로드
	cfg := config.Load()

	// 데이터베이스 연결
	db, err := database.ConnectDB()
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close()

	// Ping 테스트
	if err := database.Ping(); err != nil {
		log.Fatalf("❌ Database ping failed: %v", err)
	}
	log.Printf("✅ Database connected successfully")

	// 익명 호스트 풀 시드 (이미 있으면 no-op)
	resolver := identity.NewResolver(db, cfg.Party.AnonPoolCapacity)
	if err := resolver.EnsurePool(context.Background(), cfg.Party.AnonPoolSize); err != nil {
		log.Fatalf("❌ Anonymous host pool seeding failed: %v", err)
	}
	log.Printf("✅ Anonymous host pool ready (size=%d)", cfg.Party.AnonPoolSize)

	// 서버 생성 및 설정
	srv := server.New(cfg, db)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	// 서버 시작
	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
