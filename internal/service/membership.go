package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"watchparty-backend/internal/cache"
	"watchparty-backend/internal/identity"
	"watchparty-backend/internal/model"
	"watchparty-backend/internal/notifier"
)

// Membership 참가자 명부 관리. 방당 호스트 1명 불변식을 여기서 지킨다.
type Membership struct {
	db        *gorm.DB
	directory *Directory
	notifier  Notifier
	chatCache *cache.RedisClient // 파티 종료 시 최근 채팅 캐시 정리 (nil 허용)
}

// NewMembership Membership 생성
func NewMembership(db *gorm.DB, directory *Directory, n Notifier, chatCache *cache.RedisClient) *Membership {
	return &Membership{
		db:        db,
		directory: directory,
		notifier:  n,
		chatCache: chatCache,
	}
}

// JoinRequest 참가 요청
type JoinRequest struct {
	Username   string           `json:"username"`
	DeviceType model.DeviceType `json:"device_type"`
	DeviceName string           `json:"device_name"`
}

// JoinResult 참가 결과. ParticipantToken은 익명 참가에서만 채워진다.
type JoinResult struct {
	Room             *model.Room
	Participant      *model.Participant
	ParticipantToken string
}

// Join 코드로 방에 참가.
// 인증 사용자는 기존 레코드가 있으면 제자리 갱신(멱등 재참가), 익명은 매번 새 레코드를 삽입한다.
// 익명 ID는 개별 식별이 안 되므로 중복 제거를 시도하지 않는다(의도된 비대칭).
func (m *Membership) Join(ctx context.Context, code string, req JoinRequest, actor identity.Actor) (*JoinResult, error) {
	room, err := m.directory.LookupRoomByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	deviceType := req.DeviceType
	if deviceType == "" {
		deviceType = model.DeviceMobile
	}

	if actor.Authenticated() {
		var existing model.Participant
		err := m.db.WithContext(ctx).
			Where("room_id = ? AND user_id = ?", room.ID, actor.UserID).
			First(&existing).Error

		if err == nil {
			// 멱등 재참가: 역할은 유지하고 표시 정보만 갱신
			updates := map[string]any{
				"username":     req.Username,
				"device_type":  deviceType.String(),
				"device_name":  req.DeviceName,
				"is_connected": true,
				"last_seen":    time.Now(),
			}
			if err := m.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
				return nil, err
			}

			if err := m.db.WithContext(ctx).First(&existing, "id = ?", existing.ID).Error; err != nil {
				return nil, err
			}
			publishRow(ctx, m.notifier, "participants", notifier.OpUpdate, room.ID, existing)

			return &JoinResult{Room: room, Participant: &existing}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		participant := model.Participant{
			ID:          uuid.NewString(),
			RoomID:      room.ID,
			UserID:      actor.UserID,
			Username:    req.Username,
			Role:        model.RoleMember.String(),
			DeviceType:  deviceType.String(),
			DeviceName:  req.DeviceName,
			IsConnected: true,
		}
		if err := m.db.WithContext(ctx).Create(&participant).Error; err != nil {
			return nil, err
		}

		publishRow(ctx, m.notifier, "participants", notifier.OpInsert, room.ID, participant)
		return &JoinResult{Room: room, Participant: &participant}, nil
	}

	// 익명 참가: 클라이언트 보관 ID가 없으면 새로 만들어 준다
	anonID := actor.AnonID
	if anonID == "" {
		anonID = uuid.NewString()
	}
	token := uuid.NewString()

	participant := model.Participant{
		ID:          uuid.NewString(),
		RoomID:      room.ID,
		UserID:      anonID,
		Username:    req.Username,
		Role:        model.RoleMember.String(),
		DeviceType:  deviceType.String(),
		DeviceName:  req.DeviceName,
		IsConnected: true,
		AnonToken:   &token,
	}
	if err := m.db.WithContext(ctx).Create(&participant).Error; err != nil {
		return nil, err
	}

	publishRow(ctx, m.notifier, "participants", notifier.OpInsert, room.ID, participant)
	return &JoinResult{Room: room, Participant: &participant, ParticipantToken: token}, nil
}

// FindParticipant 인가 게이트. actor 본인의 참가자 레코드를 찾는다.
// 익명 actor는 클라이언트 보관 ID와 join 시 발급된 능력 토큰이 모두 일치해야 한다.
func (m *Membership) FindParticipant(ctx context.Context, roomID string, actor identity.Actor) (*model.Participant, error) {
	var participant model.Participant

	if actor.Authenticated() {
		err := m.db.WithContext(ctx).
			Where("room_id = ? AND user_id = ?", roomID, actor.UserID).
			First(&participant).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotAParticipant
		}
		if err != nil {
			return nil, err
		}
		return &participant, nil
	}

	if actor.AnonID == "" || actor.AnonToken == "" {
		return nil, ErrMissingIdentity
	}

	err := m.db.WithContext(ctx).
		Where("room_id = ? AND user_id = ? AND anon_token = ?", roomID, actor.AnonID, actor.AnonToken).
		First(&participant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotAParticipant
	}
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

// Leave 방 나가기. 레코드가 이미 없으면 조용히 성공하지 않고 NotAParticipant로 실패한다.
func (m *Membership) Leave(ctx context.Context, roomID string, actor identity.Actor) error {
	participant, err := m.FindParticipant(ctx, roomID, actor)
	if err != nil {
		return err
	}

	if err := m.db.WithContext(ctx).Delete(&model.Participant{}, "id = ?", participant.ID).Error; err != nil {
		return err
	}

	publishRow(ctx, m.notifier, "participants", notifier.OpDelete, roomID, participant)
	return nil
}

// EndParty 파티 종료. 호스트 전용, 되돌릴 수 없다.
// 방 상태 전환과 참가자 전원 삭제를 하나의 논리 연산으로 묶는다.
func (m *Membership) EndParty(ctx context.Context, roomID string, actor identity.Actor) error {
	participant, err := m.FindParticipant(ctx, roomID, actor)
	if err != nil {
		if errors.Is(err, ErrNotAParticipant) {
			return ErrForbidden
		}
		return err
	}

	if participant.Role != model.RoleHost.String() {
		return ErrForbidden
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.Room{}).
			Where("id = ?", roomID).
			Updates(map[string]any{
				"status":     model.RoomStatusEnded.String(),
				"is_playing": false,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRoomNotFound
		}

		return tx.Where("room_id = ?", roomID).Delete(&model.Participant{}).Error
	})
	if err != nil {
		return err
	}

	// 최근 채팅 캐시는 best-effort 정리
	if m.chatCache != nil {
		if err := m.chatCache.DeleteRoom(ctx, roomID); err != nil {
			log.Printf("[Membership] Failed to flush chat cache for room %s: %v", roomID, err)
		}
	}

	var room model.Room
	if err := m.db.WithContext(ctx).First(&room, "id = ?", roomID).Error; err == nil {
		publishRow(ctx, m.notifier, "rooms", notifier.OpUpdate, roomID, room)
	}
	publishRow(ctx, m.notifier, "participants", notifier.OpDelete, roomID, map[string]string{"room_id": roomID})

	return nil
}

// RoomParticipants 방의 현재 명부 조회 (구독 스냅샷용)
func (m *Membership) RoomParticipants(ctx context.Context, roomID string) ([]model.Participant, error) {
	var participants []model.Participant
	err := m.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at ASC").
		Find(&participants).Error
	return participants, err
}
