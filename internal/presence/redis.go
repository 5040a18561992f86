package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Data Redis에 저장될 연결 단위 presence 데이터.
// 내구성 있는 참가자 명부와는 별개다. 명부에 있어도 오프라인일 수 있고 그 반대도 가능하다.
type Data struct {
	UserID        string `json:"user_id"` // 인증 사용자 ID 또는 "anonymous"
	Username      string `json:"username"`
	Status        string `json:"status"` // online / offline
	OnlineAt      int64  `json:"online_at"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	ServerID      string `json:"server_id"` // 멀티 서버 확장 대비
}

// Manager 방 단위 presence 관리자
type Manager struct {
	client *redis.Client
	ctx    context.Context
	ttl    time.Duration
}

// NewManager 생성자
func NewManager(addr string, password string, db int, ttl time.Duration) *Manager {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Manager{
		client: rdb,
		ctx:    context.Background(),
		ttl:    ttl,
	}
}

// Key 생성 유틸. presence key는 방에 저장된 username에서 파생되고,
// 없으면 연결마다 새로 만든 토큰으로 대체된다(호출자 책임).
func (m *Manager) entryKey(roomID, presenceKey string) string {
	return fmt.Sprintf("presence:room:%s:%s", roomID, presenceKey)
}

func (m *Manager) setKey(roomID string) string {
	return fmt.Sprintf("presence:room:%s:members", roomID)
}

func (m *Manager) channel(roomID string) string {
	return fmt.Sprintf("presence:room:%s", roomID)
}

// Track 연결 성사 시 presence 등록 (fresh timestamp)
func (m *Manager) Track(roomID, presenceKey string, data Data) error {
	now := time.Now().Unix()
	data.OnlineAt = now
	data.LastHeartbeat = now

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if err := m.client.Set(m.ctx, m.entryKey(roomID, presenceKey), jsonData, m.ttl).Err(); err != nil {
		return err
	}

	// 방 단위 인덱스 셋. 엔트리보다 오래 살아야 하므로 긴 TTL.
	if err := m.client.SAdd(m.ctx, m.setKey(roomID), presenceKey).Err(); err != nil {
		return err
	}
	return m.client.Expire(m.ctx, m.setKey(roomID), 24*time.Hour).Err()
}

// Heartbeat 생존 신고 (TTL 연장)
func (m *Manager) Heartbeat(roomID, presenceKey string) error {
	result, err := m.client.Expire(m.ctx, m.entryKey(roomID, presenceKey), m.ttl).Result()
	if err != nil {
		return err
	}
	if !result {
		return fmt.Errorf("presence %s not found in room %s (offline)", presenceKey, roomID)
	}
	return nil
}

// Untrack 연결 종료 시 presence 제거
func (m *Manager) Untrack(roomID, presenceKey string) error {
	if err := m.client.Del(m.ctx, m.entryKey(roomID, presenceKey)).Err(); err != nil {
		return err
	}
	return m.client.SRem(m.ctx, m.setKey(roomID), presenceKey).Err()
}

// RoomPresence 현재 접속 중인 연결 전체를 평탄화해서 반환.
// 전체 동기화("sync") 시 이 결과가 기존 뷰를 통째로 대체한다.
func (m *Manager) RoomPresence(roomID string) (map[string]*Data, error) {
	keys, err := m.client.SMembers(m.ctx, m.setKey(roomID)).Result()
	if err != nil {
		return nil, err
	}

	view := make(map[string]*Data)
	if len(keys) == 0 {
		return view, nil
	}

	entryKeys := make([]string, len(keys))
	for i, k := range keys {
		entryKeys[i] = m.entryKey(roomID, k)
	}

	// MGET으로 한 번에 조회
	results, err := m.client.MGet(m.ctx, entryKeys...).Result()
	if err != nil {
		return nil, err
	}

	for i, result := range results {
		if result == nil {
			// TTL 만료된 유령 키는 인덱스에서 정리
			m.client.SRem(m.ctx, m.setKey(roomID), keys[i])
			continue
		}

		strVal, ok := result.(string)
		if !ok {
			continue
		}

		var data Data
		if err := json.Unmarshal([]byte(strVal), &data); err == nil {
			view[keys[i]] = &data
		}
	}

	return view, nil
}

// Publish presence 변경 이벤트 발행
func (m *Manager) Publish(roomID string, data Data) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return m.client.Publish(m.ctx, m.channel(roomID), jsonData).Err()
}

// Subscribe presence 변경 이벤트 구독 (채널 반환)
func (m *Manager) Subscribe(roomID string) *redis.PubSub {
	return m.client.Subscribe(m.ctx, m.channel(roomID))
}

// Close 연결 종료
func (m *Manager) Close() error {
	return m.client.Close()
}
