package service

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"watchparty-backend/internal/identity"
	"watchparty-backend/internal/model"
	"watchparty-backend/internal/notifier"
)

// SyncEngine 방의 권위 상태 머신.
// 상태 전이: waiting -> active (start_party, 호스트 전용) -> ended (end_party/EndParty, 호스트 전용).
// ended에서 빠져나가는 전이는 없다.
type SyncEngine struct {
	db         *gorm.DB
	membership *Membership
	notifier   Notifier
}

// NewSyncEngine SyncEngine 생성
func NewSyncEngine(db *gorm.DB, membership *Membership, n Notifier) *SyncEngine {
	return &SyncEngine{
		db:         db,
		membership: membership,
		notifier:   n,
	}
}

// Submit 동기화 이벤트 접수.
// 인가를 통과하면 이벤트는 무조건 로그에 남고, 방 패치가 no-op이어도 마찬가지다.
// 충돌 해소는 서버 수신 순서 기준 last-writer-wins. timestampMs는 진단용 참고값일 뿐이다.
func (e *SyncEngine) Submit(ctx context.Context, roomID string, eventType model.SyncEventType, eventData json.RawMessage, timestampMs int64, actor identity.Actor) error {
	participant, err := e.membership.FindParticipant(ctx, roomID, actor)
	if err != nil {
		if errors.Is(err, ErrNotAParticipant) {
			return ErrForbidden
		}
		return err
	}

	rawData := string(eventData)
	if rawData == "" {
		rawData = "{}"
	}

	event := model.SyncEvent{
		ID:          uuid.NewString(),
		RoomID:      roomID,
		UserID:      participant.UserID,
		EventType:   eventType.String(),
		EventData:   rawData,
		TimestampMs: timestampMs,
	}

	// 로그 append와 방 패치는 의도적으로 별개 쓰기다 (soft consistency).
	// 둘 사이에서 죽으면 로그가 방 상태보다 앞서 가는데, 이 시스템은 원장이 아니다.
	if err := e.db.WithContext(ctx).Create(&event).Error; err != nil {
		return err
	}

	publishRow(ctx, e.notifier, "sync_events", notifier.OpInsert, roomID, event)

	payload, err := model.DecodeEventData(eventType, eventData)
	if err != nil {
		log.Printf("[Sync] Malformed %s payload in room %s, event logged without room patch: %v", eventType, roomID, err)
		return nil
	}

	patch := e.derivePatch(payload, participant)
	if len(patch) == 0 {
		return nil
	}

	if err := e.db.WithContext(ctx).Model(&model.Room{}).
		Where("id = ? AND status <> ?", roomID, model.RoomStatusEnded.String()).
		Updates(patch).Error; err != nil {
		return err
	}

	var room model.Room
	if err := e.db.WithContext(ctx).First(&room, "id = ?", roomID).Error; err == nil {
		publishRow(ctx, e.notifier, "rooms", notifier.OpUpdate, roomID, room)
	}

	return nil
}

// derivePatch 이벤트 타입별 방 패치 도출.
// start_party/end_party는 호스트가 아니면 조용히 무시된다 (이벤트 로그는 이미 남았다).
func (e *SyncEngine) derivePatch(payload model.EventPayload, participant *model.Participant) map[string]any {
	isHost := participant.Role == model.RoleHost.String()

	switch p := payload.(type) {
	case model.PlayPayload:
		return map[string]any{
			"is_playing":       true,
			"current_position": p.Position,
		}
	case model.PausePayload:
		return map[string]any{
			"is_playing":       false,
			"current_position": p.Position,
		}
	case model.SeekPayload:
		return map[string]any{
			"current_position": p.Position,
		}
	case model.ContentChangePayload:
		return map[string]any{
			"current_content_url": p.URL,
			"current_position":    int64(0),
			"is_playing":          false,
		}
	case model.StartPartyPayload:
		if !isHost {
			return nil
		}
		return map[string]any{
			"status":           model.RoomStatusActive.String(),
			"is_playing":       true,
			"current_position": int64(0),
		}
	case model.EndPartyPayload:
		if !isHost {
			return nil
		}
		return map[string]any{
			"status":     model.RoomStatusEnded.String(),
			"is_playing": false,
		}
	default:
		// remote_action, volume_change 등: 기록만 하고 방 상태는 건드리지 않는다
		return nil
	}
}

// RoomEvents 방의 이벤트 로그 조회 (수신 순서대로)
func (e *SyncEngine) RoomEvents(ctx context.Context, roomID string) ([]model.SyncEvent, error) {
	var events []model.SyncEvent
	err := e.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}
