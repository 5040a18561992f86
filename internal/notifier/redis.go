package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Op 행 변경 종류
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// RowChange Store 행 변경 이벤트. 방 구독자 전원에게 팬아웃된다.
type RowChange struct {
	Table  string          `json:"table"`
	Op     Op              `json:"op"`
	RoomID string          `json:"room_id"`
	Row    json.RawMessage `json:"row,omitempty"`
}

// RedisNotifier Redis pub/sub 기반 변경 알림기
type RedisNotifier struct {
	client *redis.Client
	ctx    context.Context
}

// NewRedisNotifier 생성자
func NewRedisNotifier(addr string, password string, db int) *RedisNotifier {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisNotifier{
		client: rdb,
		ctx:    context.Background(),
	}
}

// 채널 네이밍 유틸
func channelFor(roomID string) string {
	return fmt.Sprintf("room_changes:%s", roomID)
}

// PublishRowChange 행 변경 이벤트 발행
func (n *RedisNotifier) PublishRowChange(ctx context.Context, change RowChange) error {
	jsonData, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, channelFor(change.RoomID), jsonData).Err()
}

// Subscribe 방 단위 변경 이벤트 구독 (채널 반환)
func (n *RedisNotifier) Subscribe(ctx context.Context, roomID string) *redis.PubSub {
	return n.client.Subscribe(ctx, channelFor(roomID))
}

// Close 연결 종료
func (n *RedisNotifier) Close() error {
	return n.client.Close()
}
