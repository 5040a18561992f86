package handler

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"watchparty-backend/internal/model"
	"watchparty-backend/internal/service"
)

// SyncHandler 재생 동기화 이벤트 핸들러
type SyncHandler struct {
	engine *service.SyncEngine
}

// NewSyncHandler SyncHandler 생성
func NewSyncHandler(engine *service.SyncEngine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// syncEventBody 동기화 이벤트 요청 바디
type syncEventBody struct {
	EventType   model.SyncEventType `json:"event_type"`
	EventData   json.RawMessage     `json:"event_data"`
	TimestampMs int64               `json:"timestamp_ms"`
}

// SubmitSyncEvent 동기화 이벤트 수신
// POST /api/rooms/:roomId/sync
func (h *SyncHandler) SubmitSyncEvent(c *fiber.Ctx) error {
	roomID := c.Params("roomId")

	var body syncEventBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if body.EventType == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "event_type is required",
		})
	}

	actor := actorFromCtx(c)
	if err := h.engine.Submit(c.UserContext(), roomID, body.EventType, body.EventData, body.TimestampMs, actor); err != nil {
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
				"error": "failed to record sync event",
			})
		}
	}

	return c.JSON(fiber.Map{
		"message": "sync event recorded",
	})
}

// RoomEvents 방 이벤트 이력 조회 (오래된 것부터)
// GET /api/rooms/:roomId/sync
func (h *SyncHandler) RoomEvents(c *fiber.Ctx) error {
	roomID := c.Params("roomId")

	events, err := h.engine.RoomEvents(c.UserContext(), roomID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load sync events",
		})
	}

	return c.JSON(fiber.Map{
		"events": events,
		"count":  len(events),
	})
}
