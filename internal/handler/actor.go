package handler

import (
	"github.com/gofiber/fiber/v2"

	"watchparty-backend/internal/auth"
	"watchparty-backend/internal/identity"
)

// 익명 참가자 식별 헤더
const (
	headerAnonID           = "X-Anon-Id"
	headerParticipantToken = "X-Participant-Token"
)

// actorFromCtx 요청에서 행위자(인증 유저 또는 익명 참가자)를 추출
// OptionalAuthMiddleware가 먼저 실행되었다고 가정한다
func actorFromCtx(c *fiber.Ctx) identity.Actor {
	var claims *auth.Claims
	if v := c.Locals("claims"); v != nil {
		claims, _ = v.(*auth.Claims)
	}
	return identity.Resolve(claims, c.Get(headerAnonID), c.Get(headerParticipantToken))
}
