package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"watchparty-backend/internal/auth"
	"watchparty-backend/internal/model"
)

var (
	ErrEmptyPool = errors.New("anonymous identity pool is empty")
)

// Actor 요청을 수행하는 주체. 인증된 사용자거나 클라이언트가 보관하는 익명 ID다.
type Actor struct {
	UserID    string // 인증된 사용자 ID (익명이면 빈 문자열)
	Nickname  string
	AnonID    string // 클라이언트 보관 익명 식별자
	AnonToken string // join 시 발급된 능력 토큰, 이후 요청에 동반
}

// Authenticated 인증 여부
func (a Actor) Authenticated() bool {
	return a.UserID != ""
}

// Identity 대표 식별자 (인증 ID 우선, 없으면 익명 ID)
func (a Actor) Identity() string {
	if a.UserID != "" {
		return a.UserID
	}
	return a.AnonID
}

// Resolve JWT 클레임과 클라이언트 익명 정보로 Actor 구성
func Resolve(claims *auth.Claims, anonID, anonToken string) Actor {
	if claims != nil {
		return Actor{
			UserID:   claims.UserID,
			Nickname: claims.Nickname,
		}
	}
	return Actor{
		AnonID:    anonID,
		AnonToken: anonToken,
	}
}

// Resolver 익명 호스트 풀 관리자
type Resolver struct {
	db       *gorm.DB
	capacity int // 풀 계정당 동시 호스팅 방 상한
}

// NewResolver Resolver 생성
func NewResolver(db *gorm.DB, capacity int) *Resolver {
	return &Resolver{db: db, capacity: capacity}
}

// SelectAnonymousHost 익명 파티 호스트로 쓸 풀 계정 선택.
// 풀을 고정 순서로 훑으며 호스팅 중인(종료되지 않은) 방 수가 상한 미만인 첫 계정을 고른다.
// 전부 포화면 첫 계정에 과적재한다. 상한은 soft throttle이라 파티 생성을 막지 않는다.
// 조회-선택 사이에 락이 없어 동시 생성이 같은 계정을 고를 수 있다(허용된 레이스).
func (r *Resolver) SelectAnonymousHost(ctx context.Context) (*model.User, error) {
	var pool []model.User
	if err := r.db.WithContext(ctx).
		Where("is_pool_identity = ?", true).
		Order("nickname ASC").
		Find(&pool).Error; err != nil {
		return nil, err
	}

	if len(pool) == 0 {
		return nil, ErrEmptyPool
	}

	for i := range pool {
		var count int64
		if err := r.db.WithContext(ctx).Model(&model.Room{}).
			Where("host_id = ? AND status <> ?", pool[i].ID, model.RoomStatusEnded.String()).
			Count(&count).Error; err != nil {
			return nil, err
		}

		if count < int64(r.capacity) {
			return &pool[i], nil
		}
	}

	return &pool[0], nil
}

// EnsurePool 풀 계정 사전 생성 (party-host-1 .. party-host-K)
func (r *Resolver) EnsurePool(ctx context.Context, size int) error {
	for i := 1; i <= size; i++ {
		nickname := fmt.Sprintf("party-host-%d", i)

		var count int64
		if err := r.db.WithContext(ctx).Model(&model.User{}).
			Where("is_pool_identity = ? AND nickname = ?", true, nickname).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		user := model.User{
			ID:             uuid.NewString(),
			Nickname:       nickname,
			IsPoolIdentity: true,
		}
		if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
			return err
		}
	}

	return nil
}
