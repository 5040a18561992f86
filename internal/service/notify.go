package service

import (
	"context"
	"encoding/json"
	"log"

	"watchparty-backend/internal/notifier"
)

// Notifier Store 행 변경을 방 구독자에게 밀어주는 변경 알림기.
// 운영에서는 notifier.RedisNotifier, 테스트에서는 기록용 페이크가 들어온다.
type Notifier interface {
	PublishRowChange(ctx context.Context, change notifier.RowChange) error
}

// publishRow 행 변경 발행. 발행 실패는 원 연산을 실패시키지 않고 로그만 남긴다.
func publishRow(ctx context.Context, n Notifier, table string, op notifier.Op, roomID string, row any) {
	if n == nil {
		return
	}

	var raw json.RawMessage
	if row != nil {
		data, err := json.Marshal(row)
		if err != nil {
			log.Printf("[Notify] Failed to marshal %s row: %v", table, err)
			return
		}
		raw = data
	}

	change := notifier.RowChange{
		Table:  table,
		Op:     op,
		RoomID: roomID,
		Row:    raw,
	}

	if err := n.PublishRowChange(ctx, change); err != nil {
		log.Printf("[Notify] Failed to publish %s %s for room %s: %v", table, op, roomID, err)
	}
}
