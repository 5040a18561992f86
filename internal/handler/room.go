package handler

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"watchparty-backend/internal/service"
)

// RoomHandler 방 생성/조회/참가/퇴장/종료 핸들러
type RoomHandler struct {
	directory  *service.Directory
	membership *service.Membership
}

// NewRoomHandler RoomHandler 생성
func NewRoomHandler(directory *service.Directory, membership *service.Membership) *RoomHandler {
	return &RoomHandler{directory: directory, membership: membership}
}

// CreateRoom 방 생성
// POST /api/rooms
func (h *RoomHandler) CreateRoom(c *fiber.Ctx) error {
	var req service.CreateRoomRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "room name is required",
		})
	}

	actor := actorFromCtx(c)
	result, err := h.directory.CreateRoom(c.UserContext(), req, actor)
	if err != nil {
		if errors.Is(err, service.ErrCodeGeneration) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "could not allocate a room code, try again",
			})
		}
		log.Printf("❌ 방 생성 실패: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to create room",
		})
	}

	resp := fiber.Map{
		"room": result.Room,
		"host": result.Host,
	}
	if result.ParticipantToken != "" {
		resp["participant_token"] = result.ParticipantToken
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

// LookupRoom 코드로 방 조회
// GET /api/rooms/:code
func (h *RoomHandler) LookupRoom(c *fiber.Ctx) error {
	code := c.Params("code")

	room, err := h.directory.LookupRoomByCode(c.UserContext(), code)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "room not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to look up room",
		})
	}

	participants, err := h.membership.RoomParticipants(c.UserContext(), room.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load participants",
		})
	}

	return c.JSON(fiber.Map{
		"room":         room,
		"participants": participants,
	})
}

// joinRoomBody Join 요청 바디. 방 코드를 바디로 받는다.
type joinRoomBody struct {
	Code string `json:"code"`
	service.JoinRequest
}

// JoinRoom 코드로 방 참가
// POST /api/rooms/join
func (h *RoomHandler) JoinRoom(c *fiber.Ctx) error {
	var body joinRoomBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if body.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "room code is required",
		})
	}

	actor := actorFromCtx(c)
	result, err := h.membership.Join(c.UserContext(), body.Code, body.JoinRequest, actor)
	if err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "room not found",
			})
		}
		log.Printf("❌ 방 참가 실패: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to join room",
		})
	}

	resp := fiber.Map{
		"room":        result.Room,
		"participant": result.Participant,
	}
	if result.ParticipantToken != "" {
		resp["participant_token"] = result.ParticipantToken
	}
	return c.JSON(resp)
}

// LeaveRoom 방에서 퇴장 (참가자 레코드 삭제)
// POST /api/rooms/:roomId/leave
func (h *RoomHandler) LeaveRoom(c *fiber.Ctx) error {
	roomID := c.Params("roomId")
	actor := actorFromCtx(c)

	if err := h.membership.Leave(c.UserContext(), roomID, actor); err != nil {
		switch {
		case errors.Is(err, service.ErrMissingIdentity):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "participant identity is required",
			})
		case errors.Is(err, service.ErrNotAParticipant):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "not a participant of this room",
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to leave room",
			})
		}
	}

	return c.JSON(fiber.Map{
		"message": "left room",
	})
}

// EndParty 파티 종료 (호스트 전용)
// POST /api/rooms/:roomId/end
func (h *RoomHandler) EndParty(c *fiber.Ctx) error {
	roomID := c.Params("roomId")
	actor := actorFromCtx(c)

	if err := h.membership.EndParty(c.UserContext(), roomID, actor); err != nil {
		switch {
		case errors.Is(err, service.ErrMissingIdentity):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "participant identity is required",
			})
		case errors.Is(err, service.ErrForbidden):
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "only the host can end the party",
			})
		case errors.Is(err, service.ErrRoomNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "room not found",
			})
		default:
			log.Printf("❌ 파티 종료 실패: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to end party",
			})
		}
	}

	return c.JSON(fiber.Map{
		"message": "party ended",
	})
}
