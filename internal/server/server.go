package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"watchparty-backend/internal/auth"
	"watchparty-backend/internal/cache"
	"watchparty-backend/internal/config"
	"watchparty-backend/internal/handler"
	"watchparty-backend/internal/identity"
	"watchparty-backend/internal/notifier"
	"watchparty-backend/internal/presence"
	"watchparty-backend/internal/service"
)

// Server Fiber 서버 래퍼
type Server struct {
	app           *fiber.App
	cfg           *config.Config
	db            *gorm.DB
	jwtManager    *auth.JWTManager
	membership    *service.Membership
	authHandler   *handler.AuthHandler
	roomHandler   *handler.RoomHandler
	syncHandler   *handler.SyncHandler
	chatHandler   *handler.ChatHandler
	healthHandler *handler.HealthHandler
	wsHandler     *handler.WSHandler
	redisClient   *cache.RedisClient
	changes       *notifier.RedisNotifier
	presence      *presence.Manager
}

// New 새 서버 인스턴스 생성
func New(cfg *config.Config, db *gorm.DB) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Watch Party Backend",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // WebSocket과 호환성 문제로 비활성화
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		BodyLimit:             1 * 1024 * 1024, // 1MB
		DisableStartupMessage: false,
	})

	// Auth 초기화
	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)
	googleAuth := auth.NewGoogleAuthenticator(cfg.Auth.GoogleClientID)

	// Redis 초기화 (채팅 캐시는 선택적, 장애 시 DB로 우회)
	redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("⚠️ Redis cache unavailable: %v (chat cache disabled)", err)
		redisClient = nil
	}
	changes := notifier.NewRedisNotifier(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	presenceManager := presence.NewManager(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Party.PresenceTTL)

	// 도메인 서비스 초기화
	resolver := identity.NewResolver(db, cfg.Party.AnonPoolCapacity)
	directory := service.NewDirectory(db, resolver, changes, cfg.Party.CodeMaxAttempts)
	membership := service.NewMembership(db, directory, changes, redisClient)
	syncEngine := service.NewSyncEngine(db, membership, changes)
	chatRelay := service.NewChatRelay(db, membership, changes, redisClient, cfg.Party.ChatCacheLimit)

	// 핸들러 초기화
	hub := handler.NewRoomHub(changes, presenceManager)

	return &Server{
		app:           app,
		cfg:           cfg,
		db:            db,
		jwtManager:    jwtManager,
		membership:    membership,
		authHandler:   handler.NewAuthHandler(db, jwtManager, googleAuth, cfg.Auth.SecureCookie),
		roomHandler:   handler.NewRoomHandler(directory, membership),
		syncHandler:   handler.NewSyncHandler(syncEngine),
		chatHandler:   handler.NewChatHandler(chatRelay),
		healthHandler: handler.NewHealthHandler(db, redisClient),
		wsHandler:     handler.NewWSHandler(db, hub, presenceManager, membership, chatRelay, cfg.Party.ChatCacheLimit),
		redisClient:   redisClient,
		changes:       changes,
		presence:      presenceManager,
	}
}

// SetupMiddleware 미들웨어 설정
func (s *Server) SetupMiddleware() {
	// 패닉 복구
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// 로깅
	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Asia/Seoul",
	}))

	// CORS
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Anon-Id, X-Participant-Token",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes 라우트 설정
func (s *Server) SetupRoutes() {
	// 헬스체크 엔드포인트
	s.app.Get("/health", s.healthHandler.Check)
	s.app.Get("/health/live", s.healthHandler.Liveness)
	s.app.Get("/health/ready", s.healthHandler.Readiness)

	// Rate Limiter 설정 (인증 엔드포인트용 - Brute Force 방지)
	authLimiter := limiter.New(limiter.Config{
		Max:        10,              // 최대 10회
		Expiration: 1 * time.Minute, // 1분당
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP() // IP 기반 제한
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	// Auth 라우트 그룹
	authGroup := s.app.Group("/auth")
	authGroup.Post("/google", authLimiter, s.authHandler.GoogleLogin)
	authGroup.Post("/refresh", authLimiter, s.authHandler.RefreshToken)
	authGroup.Post("/logout", auth.AuthMiddleware(s.jwtManager), s.authHandler.Logout)
	authGroup.Get("/me", auth.AuthMiddleware(s.jwtManager), s.authHandler.GetMe)

	// Room 라우트 그룹. 인증은 선택적 (익명 참가자는 헤더로 식별)
	roomGroup := s.app.Group("/api/rooms", auth.OptionalAuthMiddleware(s.jwtManager))
	roomGroup.Post("", s.roomHandler.CreateRoom)
	roomGroup.Post("/join", s.roomHandler.JoinRoom)
	roomGroup.Get("/:code", s.roomHandler.LookupRoom)
	roomGroup.Post("/:roomId/leave", s.roomHandler.LeaveRoom)
	roomGroup.Post("/:roomId/end", s.roomHandler.EndParty)
	roomGroup.Post("/:roomId/sync", s.syncHandler.SubmitSyncEvent)
	roomGroup.Get("/:roomId/sync", s.syncHandler.RoomEvents)
	roomGroup.Post("/:roomId/messages", s.chatHandler.SendMessage)
	roomGroup.Get("/:roomId/messages", s.chatHandler.GetMessages)

	// WebSocket 업그레이드 체크 미들웨어
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket 방 구독 엔드포인트
	s.app.Get("/ws/rooms/:roomId", s.wsUpgradeGuard, websocket.New(s.wsHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// wsUpgradeGuard 업그레이드 전에 행위자를 식별하고 방 멤버십을 검증한다.
// 브라우저 WebSocket은 커스텀 헤더를 못 싣는 경우가 있어 쿼리 파라미터도 허용한다.
func (s *Server) wsUpgradeGuard(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	roomID := c.Params("roomId")

	// 액세스 토큰: 쿼리 > 쿠키 순으로 시도 (없으면 익명 경로)
	var claims *auth.Claims
	token := c.Query("token")
	if token == "" {
		token = c.Cookies("access_token")
	}
	if token != "" {
		parsed, err := s.jwtManager.ValidateAccessToken(token)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		claims = parsed
	}

	anonID := c.Get("X-Anon-Id")
	if anonID == "" {
		anonID = c.Query("anon_id")
	}
	anonToken := c.Get("X-Participant-Token")
	if anonToken == "" {
		anonToken = c.Query("participant_token")
	}

	actor := identity.Resolve(claims, anonID, anonToken)
	if actor.Identity() == "" {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	// 멤버십 확인. 참가자가 아니면 구독 불가
	participant, err := s.membership.FindParticipant(c.UserContext(), roomID, actor)
	if err != nil {
		return c.SendStatus(fiber.StatusForbidden)
	}

	c.Locals("roomId", roomID)
	c.Locals("participant", participant)

	return c.Next()
}

// Start 서버 시작 (Graceful Shutdown 지원)
func (s *Server) Start() error {
	// Graceful Shutdown 설정
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Watch Party Backend starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/rooms/:roomId", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown 서버 종료
func (s *Server) Shutdown() error {
	err := s.app.ShutdownWithTimeout(30 * time.Second)
	if s.redisClient != nil {
		s.redisClient.Close()
	}
	s.changes.Close()
	s.presence.Close()
	return err
}
