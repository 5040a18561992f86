package service

import (
	"context"
	"errors"
	"log"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"watchparty-backend/internal/cache"
	"watchparty-backend/internal/identity"
	"watchparty-backend/internal/model"
	"watchparty-backend/internal/notifier"
)

const maxMessageLength = 2000

// ChatRelay 채팅 중계. 발신자 멤버십을 검증하고 표시 이름은 서버가 확정한다.
type ChatRelay struct {
	db         *gorm.DB
	membership *Membership
	notifier   Notifier
	chatCache  *cache.RedisClient // 최근 메시지 캐시 (nil 허용)
	cacheLimit int64
}

// NewChatRelay ChatRelay 생성
func NewChatRelay(db *gorm.DB, membership *Membership, n Notifier, chatCache *cache.RedisClient, cacheLimit int64) *ChatRelay {
	if cacheLimit <= 0 {
		cacheLimit = 50
	}
	return &ChatRelay{
		db:         db,
		membership: membership,
		notifier:   n,
		chatCache:  chatCache,
		cacheLimit: cacheLimit,
	}
}

// SendMessageRequest 메시지 전송 요청. Username 필드는 받더라도 저장에는 쓰지 않는다.
type SendMessageRequest struct {
	Message       string            `json:"message"`
	MessageType   model.MessageType `json:"message_type"`
	VoiceDuration *int              `json:"voice_duration,omitempty"`
}

// SendMessage 메시지 저장 및 팬아웃.
// 저장되는 username은 항상 참가자 명부의 canonical 값이다.
// 클라이언트가 보낸 표시 이름은 참가자 레코드가 존재하는 한 신뢰하지 않는다.
func (r *ChatRelay) SendMessage(ctx context.Context, roomID string, req SendMessageRequest, actor identity.Actor) (*model.ChatMessage, error) {
	if actor.Identity() == "" {
		return nil, ErrMissingIdentity
	}

	participant, err := r.membership.FindParticipant(ctx, roomID, actor)
	if err != nil {
		if errors.Is(err, ErrNotAParticipant) {
			return nil, ErrForbidden
		}
		return nil, err
	}

	// 자를 때 멀티바이트 룬을 중간에서 쪼개지 않도록 룬 경계까지 물러난다
	message := req.Message
	if len(message) > maxMessageLength {
		cut := maxMessageLength
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut]
	}

	messageType := req.MessageType
	if messageType == "" {
		messageType = model.MessageTypeText
	}

	// voice_duration은 voice 메시지에서만 의미가 있다
	var voiceDuration *int
	if messageType == model.MessageTypeVoice {
		voiceDuration = req.VoiceDuration
	}

	chatMessage := model.ChatMessage{
		ID:            uuid.NewString(),
		RoomID:        roomID,
		UserID:        participant.UserID,
		Username:      participant.Username,
		Message:       message,
		MessageType:   messageType.String(),
		VoiceDuration: voiceDuration,
	}

	if err := r.db.WithContext(ctx).Create(&chatMessage).Error; err != nil {
		return nil, err
	}

	if r.chatCache != nil {
		cached := &cache.CachedMessage{
			ID:            chatMessage.ID,
			RoomID:        chatMessage.RoomID,
			UserID:        chatMessage.UserID,
			Username:      chatMessage.Username,
			Message:       chatMessage.Message,
			MessageType:   chatMessage.MessageType,
			VoiceDuration: chatMessage.VoiceDuration,
			CreatedAt:     chatMessage.CreatedAt,
		}
		if err := r.chatCache.AddMessage(ctx, roomID, cached); err != nil {
			log.Printf("[Chat] Failed to cache message for room %s: %v", roomID, err)
		}
	}

	publishRow(ctx, r.notifier, "chat_messages", notifier.OpInsert, roomID, chatMessage)

	return &chatMessage, nil
}

// RecentMessages 최근 메시지 조회. 캐시 우선, 비면 DB로 폴백.
func (r *ChatRelay) RecentMessages(ctx context.Context, roomID string, limit int64) ([]model.ChatMessage, error) {
	if limit <= 0 {
		limit = r.cacheLimit
	}

	if r.chatCache != nil {
		cached, err := r.chatCache.GetRecentMessages(ctx, roomID, limit)
		if err == nil && len(cached) > 0 {
			messages := make([]model.ChatMessage, len(cached))
			for i, c := range cached {
				messages[i] = model.ChatMessage{
					ID:            c.ID,
					RoomID:        c.RoomID,
					UserID:        c.UserID,
					Username:      c.Username,
					Message:       c.Message,
					MessageType:   c.MessageType,
					VoiceDuration: c.VoiceDuration,
					CreatedAt:     c.CreatedAt,
				}
			}
			return messages, nil
		}
	}

	var messages []model.ChatMessage
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at DESC").
		Limit(int(limit)).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// DB는 최신순으로 읽었으니 시간순으로 뒤집는다
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}
