package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"watchparty-backend/internal/identity"
	"watchparty-backend/internal/model"
	"watchparty-backend/internal/notifier"
)

// newTestDB 테스트용 인메모리 sqlite
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 커넥션이 갈리면 인메모리 DB가 날아가므로 1개로 고정
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.Room{},
		&model.Participant{},
		&model.SyncEvent{},
		&model.ChatMessage{},
	))

	return db
}

// fakeNotifier 발행된 행 변경을 기록하는 테스트 더블
type fakeNotifier struct {
	mu      sync.Mutex
	changes []notifier.RowChange
}

func (f *fakeNotifier) PublishRowChange(_ context.Context, change notifier.RowChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, change)
	return nil
}

func (f *fakeNotifier) published(table string, op notifier.Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.changes {
		if c.Table == table && c.Op == op {
			n++
		}
	}
	return n
}

// newTestStack 서비스 일체 구성. 풀 계정 3개를 함께 심는다.
func newTestStack(t *testing.T) (*gorm.DB, *Directory, *Membership, *SyncEngine, *ChatRelay, *fakeNotifier) {
	t.Helper()

	db := newTestDB(t)
	fn := &fakeNotifier{}

	resolver := identity.NewResolver(db, 2)
	require.NoError(t, resolver.EnsurePool(context.Background(), 3))

	directory := NewDirectory(db, resolver, fn, 10)
	membership := NewMembership(db, directory, fn, nil)
	syncEngine := NewSyncEngine(db, membership, fn)
	chatRelay := NewChatRelay(db, membership, fn, nil, 50)

	return db, directory, membership, syncEngine, chatRelay, fn
}

// seedUser 인증 사용자 생성
func seedUser(t *testing.T, db *gorm.DB, id, nickname string) identity.Actor {
	t.Helper()

	email := nickname + "@example.com"
	require.NoError(t, db.Create(&model.User{
		ID:       id,
		Email:    &email,
		Nickname: nickname,
	}).Error)

	return identity.Actor{UserID: id, Nickname: nickname}
}
