package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"watchparty-backend/internal/service"
)

// ChatHandler 채팅 메시지 핸들러
type ChatHandler struct {
	relay *service.ChatRelay
}

// NewChatHandler ChatHandler 생성
func NewChatHandler(relay *service.ChatRelay) *ChatHandler {
	return &ChatHandler{relay: relay}
}

// SendMessage 메시지 전송
// POST /api/rooms/:roomId/messages
func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	roomID := c.Params("roomId")

	var req service.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "message is required",
		})
	}

	actor := actorFromCtx(c)
	message, err := h.relay.SendMessage(c.UserContext(), roomID, req, actor)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingIdentity):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "participant identity is required",
			})
		case errors.Is(err, service.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "not a participant of this room",
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to send message",
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(message)
}

// GetMessages 최근 메시지 조회 (캐시 우선, 미스 시 DB)
// GET /api/rooms/:roomId/messages
func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	roomID := c.Params("roomId")
	limit := int64(c.QueryInt("limit", 50))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	messages, err := h.relay.RecentMessages(c.UserContext(), roomID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load messages",
		})
	}

	return c.JSON(fiber.Map{
		"messages": messages,
		"count":    len(messages),
	})
}
