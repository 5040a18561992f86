package handler

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"watchparty-backend/internal/model"
	"watchparty-backend/internal/presence"
	"watchparty-backend/internal/service"
	"watchparty-backend/internal/session"
)

// WSHandler 방 WebSocket 구독 핸들러
type WSHandler struct {
	db         *gorm.DB
	hub        *RoomHub
	presence   *presence.Manager
	membership *service.Membership
	relay      *service.ChatRelay
	chatLimit  int64
}

// NewWSHandler WSHandler 생성
func NewWSHandler(db *gorm.DB, hub *RoomHub, pm *presence.Manager, membership *service.Membership, relay *service.ChatRelay, chatLimit int64) *WSHandler {
	return &WSHandler{
		db:         db,
		hub:        hub,
		presence:   pm,
		membership: membership,
		relay:      relay,
		chatLimit:  chatLimit,
	}
}

// SnapshotFrame 연결 직후 1회 전송되는 초기 상태.
// Presence는 현재 접속 중인 연결의 평탄화 뷰로, 클라이언트는 기존 뷰를 이것으로 통째로 대체한다.
type SnapshotFrame struct {
	Type             string                    `json:"type"` // "snapshot"
	Room             *model.Room               `json:"room"`
	Participants     []model.Participant       `json:"participants"`
	ChatMessages     []model.ChatMessage       `json:"chat_messages"`
	Presence         map[string]*presence.Data `json:"presence"`
	ConnectionStatus string                    `json:"connection_status"`
}

// inboundFrame 클라이언트가 보내는 제어 프레임
type inboundFrame struct {
	Type string `json:"type"` // heartbeat
}

// presenceProfile 연결의 presence key와 공개 identity를 결정한다.
// key는 방에 저장된 username에서 오고, 비어 있으면 연결마다 새 토큰을 만든다.
// 공개되는 identity는 인증 사용자 ID이거나, 익명 참가자는 "anonymous" 리터럴이다.
func presenceProfile(p *model.Participant) (string, presence.Data) {
	key := p.Username
	if key == "" {
		key = uuid.NewString()
	}

	identityID := p.UserID
	if p.AnonToken != nil {
		identityID = "anonymous"
	}

	now := time.Now().Unix()
	return key, presence.Data{
		UserID:        identityID,
		Username:      p.Username,
		Status:        "online",
		OnlineAt:      now,
		LastHeartbeat: now,
	}
}

// HandleWebSocket WebSocket 연결 처리.
// 업그레이드 가드가 roomId와 participant Locals를 채웠다고 가정한다.
func (h *WSHandler) HandleWebSocket(c *websocket.Conn) {
	roomID, ok1 := c.Locals("roomId").(string)
	participant, ok2 := c.Locals("participant").(*model.Participant)

	if !ok1 || !ok2 {
		c.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","message":"invalid session"}`))
		c.Close()
		return
	}

	presenceKey, presenceData := presenceProfile(participant)

	sess := session.New(roomID, presenceKey, 64)
	sub := &Subscriber{Session: sess, Conn: c}

	sess.SetConnected()

	// 초기 스냅샷 전송. 실패하면 구독 자체를 포기한다
	if err := h.sendSnapshot(sub, roomID); err != nil {
		log.Printf("❌ 스냅샷 전송 실패: room=%s err=%v", roomID, err)
		sess.Close()
		c.Close()
		return
	}

	h.hub.Attach(roomID, sub)

	// presence 등록. Redis 장애 시에도 구독은 계속한다 (fail-open)
	if err := h.presence.Track(roomID, presenceKey, presenceData); err != nil {
		log.Printf("⚠️ presence 등록 실패: room=%s key=%s err=%v", roomID, presenceKey, err)
	}
	if err := h.presence.Publish(roomID, presenceData); err != nil {
		log.Printf("⚠️ presence 알림 실패: room=%s err=%v", roomID, err)
	}

	log.Printf("🔌 구독 시작: room=%s user=%s session=%s", roomID, participant.UserID, sess.ID)

	// 연결 해제 시 정리
	defer func() {
		h.dropPresence(roomID, presenceKey, presenceData)
		h.hub.Detach(roomID, sub)
		sess.Close()
		c.Close()
		log.Printf("🔌 구독 종료: room=%s user=%s duration=%s frames=%d",
			roomID, participant.UserID, sess.Duration(), sess.FrameCount())
	}()

	// 쓰기 펌프: 세션 큐의 프레임을 소켓으로 밀어낸다
	go func() {
		for frame := range sess.Outbound {
			sub.writeMu.Lock()
			err := c.WriteMessage(websocket.TextMessage, frame)
			sub.writeMu.Unlock()
			if err != nil {
				return
			}
			sess.IncrementFrameCount()
		}
	}()

	// 읽기 루프: 하트비트만 의미를 가진다
	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}

		if frame.Type == "heartbeat" {
			if err := h.presence.Heartbeat(roomID, presenceKey); err != nil {
				log.Printf("⚠️ 하트비트 갱신 실패: room=%s key=%s err=%v", roomID, presenceKey, err)
			}
			sub.WriteJSON(map[string]string{"type": "heartbeat_ack"})
		}
	}
}

// dropPresence 연결 종료 처리. 엔트리를 지우고 offline 이벤트를 발행해서
// 구독자들이 퇴장 즉시 뷰를 갱신할 수 있게 한다.
func (h *WSHandler) dropPresence(roomID, presenceKey string, data presence.Data) {
	if err := h.presence.Untrack(roomID, presenceKey); err != nil {
		log.Printf("⚠️ presence 해제 실패: room=%s key=%s err=%v", roomID, presenceKey, err)
	}

	data.Status = "offline"
	data.LastHeartbeat = time.Now().Unix()
	if err := h.presence.Publish(roomID, data); err != nil {
		log.Printf("⚠️ presence 종료 알림 실패: room=%s err=%v", roomID, err)
	}
}

// snapshotFrame 현재 방 상태를 단일 프레임으로 조립
func (h *WSHandler) snapshotFrame(ctx context.Context, roomID, connectionStatus string) (*SnapshotFrame, error) {
	var room model.Room
	if err := h.db.WithContext(ctx).First(&room, "id = ?", roomID).Error; err != nil {
		return nil, err
	}

	participants, err := h.membership.RoomParticipants(ctx, roomID)
	if err != nil {
		return nil, err
	}

	messages, err := h.relay.RecentMessages(ctx, roomID, h.chatLimit)
	if err != nil {
		// 채팅 이력은 스냅샷의 부가 정보. 실패해도 방 상태는 전달한다
		log.Printf("⚠️ 스냅샷 채팅 로드 실패: room=%s err=%v", roomID, err)
		messages = []model.ChatMessage{}
	}

	online, err := h.presence.RoomPresence(roomID)
	if err != nil {
		log.Printf("⚠️ 스냅샷 presence 로드 실패: room=%s err=%v", roomID, err)
		online = map[string]*presence.Data{}
	}

	return &SnapshotFrame{
		Type:             "snapshot",
		Room:             &room,
		Participants:     participants,
		ChatMessages:     messages,
		Presence:         online,
		ConnectionStatus: connectionStatus,
	}, nil
}

// sendSnapshot 현재 방 상태를 단일 프레임으로 전송
func (h *WSHandler) sendSnapshot(sub *Subscriber, roomID string) error {
	frame, err := h.snapshotFrame(sub.Session.Context(), roomID, sub.Session.GetState().String())
	if err != nil {
		return err
	}
	return sub.WriteJSON(frame)
}
